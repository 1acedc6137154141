// Package config opens a gqlcache.Store from a YAML document.
//
//	namespace: app:prod
//	codec: cbor
//	max_decode_bytes: 1048576
//	key_resolver: id
//	field_key_argument: id
//	tiers:
//	  - type: memory
//	    max_records: 10000
//	  - type: redis
//	    redis:
//	      addrs: ["localhost:6379"]
//	    ttl: 24h
//	log:
//	  backend: zap
//	  level: info
//	hooks:
//	  enabled: true
//	  async: true
//	  miss_every: 10
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML shape. Zero values mean library defaults.
type Config struct {
	// Namespace prefixes every provider key, rec:<namespace>:<record key>.
	Namespace string `yaml:"namespace"`

	// Tiers are tried in order on reads; writes go to all of them. One tier
	// opens that store directly; none opens an unbounded memory store.
	Tiers []Tier `yaml:"tiers"`

	Codec          string `yaml:"codec"`
	MaxDecodeBytes int    `yaml:"max_decode_bytes"`

	// KeyResolver is one of path, id or type_id.
	KeyResolver string `yaml:"key_resolver"`
	IDField     string `yaml:"id_field"`

	// FieldKeyArgument, when set, lets reads resolve fields by that
	// argument, e.g. droid(id: "2001") -> record 2001.
	FieldKeyArgument string `yaml:"field_key_argument"`

	Log   Log   `yaml:"log"`
	Hooks Hooks `yaml:"hooks"`
}

// Tier is one record store.
type Tier struct {
	// Type is one of memory, ristretto, bigcache, redis or badger.
	Type string `yaml:"type"`
	// Name labels a memory tier in dumps.
	Name string `yaml:"name"`

	// memory
	MaxRecords int `yaml:"max_records"`

	// provider-backed tiers
	TTL             time.Duration `yaml:"ttl"`
	LoadConcurrency int           `yaml:"load_concurrency"`

	Ristretto Ristretto `yaml:"ristretto"`
	Bigcache  Bigcache  `yaml:"bigcache"`
	Redis     Redis     `yaml:"redis"`
	Badger    Badger    `yaml:"badger"`
}

type Ristretto struct {
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`
	BufferItems int64 `yaml:"buffer_items"`
	Metrics     bool  `yaml:"metrics"`
}

type Bigcache struct {
	LifeWindow         time.Duration `yaml:"life_window"`
	CleanWindow        time.Duration `yaml:"clean_window"`
	MaxEntriesInWindow int           `yaml:"max_entries_in_window"`
	MaxEntrySize       int           `yaml:"max_entry_size"`
	HardMaxCacheSizeMB int           `yaml:"hard_max_cache_size_mb"`
}

type Redis struct {
	Addrs     []string `yaml:"addrs"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	ScanCount int64    `yaml:"scan_count"`
}

type Badger struct {
	Dir        string `yaml:"dir"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
}

type Log struct {
	// Backend is one of none, slog, zap or logrus.
	Backend string `yaml:"backend"`
	Level   string `yaml:"level"`

	// Format is json or text. zap always writes json.
	Format string `yaml:"format"`
}

type Hooks struct {
	Enabled bool `yaml:"enabled"`

	// Async delivers hook events on background workers.
	Async   bool `yaml:"async"`
	Workers int  `yaml:"workers"`
	Queue   int  `yaml:"queue"`

	// MissEvery samples cache-miss logs; 0 logs all.
	MissEvery uint64 `yaml:"miss_every"`
}

var (
	tierTypes     = map[string]bool{"memory": true, "ristretto": true, "bigcache": true, "redis": true, "badger": true}
	resolverNames = map[string]bool{"": true, "path": true, "id": true, "type_id": true}
	logBackends   = map[string]bool{"": true, "none": true, "slog": true, "zap": true, "logrus": true}
)

// Parse decodes and validates a YAML document. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Config
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Validate checks names and required settings without touching any
// backend.
func (c *Config) Validate() error {
	var errs []error
	needsNS := false
	for i, t := range c.Tiers {
		if !tierTypes[t.Type] {
			errs = append(errs, fmt.Errorf("tiers[%d]: unknown type %q", i, t.Type))
			continue
		}
		if t.Type != "memory" {
			needsNS = true
		}
		if t.Type == "redis" && len(t.Redis.Addrs) == 0 {
			errs = append(errs, fmt.Errorf("tiers[%d]: redis needs at least one address", i))
		}
		if t.Type == "badger" && !t.Badger.InMemory && t.Badger.Dir == "" {
			errs = append(errs, fmt.Errorf("tiers[%d]: badger needs dir or in_memory", i))
		}
	}
	if needsNS && c.Namespace == "" {
		errs = append(errs, errors.New("namespace is required for provider-backed tiers"))
	}
	switch c.Codec {
	case "", "json", "cbor", "msgpack", "protobuf", "proto":
	default:
		errs = append(errs, fmt.Errorf("unknown codec %q", c.Codec))
	}
	if !resolverNames[c.KeyResolver] {
		errs = append(errs, fmt.Errorf("unknown key_resolver %q", c.KeyResolver))
	}
	if !logBackends[c.Log.Backend] {
		errs = append(errs, fmt.Errorf("unknown log backend %q", c.Log.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Open parses the file at path and opens the store it describes.
func Open(ctx context.Context, path string, logOut io.Writer) (*Cache, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return c.Open(ctx, logOut)
}
