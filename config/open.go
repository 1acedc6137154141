package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdslog "log/slog"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/gqlcache"
	"github.com/unkn0wn-root/gqlcache/codec"
	asynchook "github.com/unkn0wn-root/gqlcache/hooks/async"
	logruslog "github.com/unkn0wn-root/gqlcache/log/logrus"
	slogl "github.com/unkn0wn-root/gqlcache/log/slog"
	zapl "github.com/unkn0wn-root/gqlcache/log/zap"
	"github.com/unkn0wn-root/gqlcache/normalize"
	pr "github.com/unkn0wn-root/gqlcache/provider"
	"github.com/unkn0wn-root/gqlcache/provider/badger"
	"github.com/unkn0wn-root/gqlcache/provider/bigcache"
	"github.com/unkn0wn-root/gqlcache/provider/redis"
	"github.com/unkn0wn-root/gqlcache/provider/ristretto"
	"github.com/unkn0wn-root/gqlcache/recordstore"
	"github.com/unkn0wn-root/gqlcache/sloghooks"
)

// Cache is an opened store. Close also stops background hook delivery.
type Cache struct {
	gqlcache.Store
	async *asynchook.Hooks
}

func (c *Cache) Close(ctx context.Context) error {
	err := c.Store.Close(ctx)
	if c.async != nil {
		c.async.Close()
	}
	return err
}

// Open builds every tier, the logger and the hooks, and opens the store.
// Log output goes to logOut, stderr when nil. Tiers opened before a
// failure are closed again.
func (c *Config) Open(ctx context.Context, logOut io.Writer) (*Cache, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if logOut == nil {
		logOut = os.Stderr
	}

	logger, err := NewLogger(c.Log, logOut)
	if err != nil {
		return nil, err
	}
	hooks, async := c.hooks(logOut)

	cd, err := codec.ByName(c.Codec)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if c.MaxDecodeBytes > 0 {
		cd = codec.Limit{Inner: cd, MaxDecode: c.MaxDecodeBytes}
	}

	tiers := make([]recordstore.RecordStore, 0, len(c.Tiers))
	fail := func(err error) (*Cache, error) {
		for _, t := range tiers {
			_ = t.Close(ctx)
		}
		if async != nil {
			async.Close()
		}
		return nil, err
	}
	for i, t := range c.Tiers {
		rs, err := c.openTier(ctx, t, cd, hooks)
		if err != nil {
			return fail(fmt.Errorf("config: tiers[%d] %s: %w", i, t.Type, err))
		}
		tiers = append(tiers, rs)
	}

	var records recordstore.RecordStore
	switch len(tiers) {
	case 0:
	case 1:
		records = tiers[0]
	default:
		records = recordstore.NewChain(tiers[0], tiers[1:]...)
	}

	opts := gqlcache.Options{
		Records:     records,
		KeyResolver: c.keyResolver(),
		Logger:      logger,
		Hooks:       hooks,
	}
	if c.FieldKeyArgument != "" {
		opts.FieldKeyResolver = normalize.ArgumentResolver(c.FieldKeyArgument)
	}
	s, err := gqlcache.New(opts)
	if err != nil {
		return fail(err)
	}
	logger.Info("cache opened", gqlcache.Fields{"namespace": c.Namespace, "tiers": len(tiers), "codec": cd.Name()})
	return &Cache{Store: s, async: async}, nil
}

func (c *Config) keyResolver() normalize.KeyResolver {
	switch c.KeyResolver {
	case "id":
		return normalize.IDResolver(c.IDField)
	case "type_id":
		return normalize.TypeIDResolver(c.IDField)
	default:
		return normalize.PathResolver
	}
}

func (c *Config) hooks(w io.Writer) (gqlcache.Hooks, *asynchook.Hooks) {
	if !c.Hooks.Enabled {
		return nil, nil
	}
	var h gqlcache.Hooks = sloghooks.New(
		stdslog.New(stdslog.NewJSONHandler(w, &stdslog.HandlerOptions{Level: stdslog.LevelDebug})),
		sloghooks.Options{MissEvery: c.Hooks.MissEvery},
	)
	if !c.Hooks.Async {
		return h, nil
	}
	a := asynchook.New(h, c.Hooks.Workers, c.Hooks.Queue)
	return a, a
}

func (c *Config) openTier(ctx context.Context, t Tier, cd codec.Codec, hooks gqlcache.Hooks) (recordstore.RecordStore, error) {
	if t.Type == "memory" {
		return recordstore.NewMemory(recordstore.MemoryOptions{
			Name:       t.Name,
			MaxRecords: t.MaxRecords,
			TTL:        t.TTL,
		}), nil
	}

	p, err := openProvider(t)
	if err != nil {
		return nil, err
	}
	opts := recordstore.ProviderOptions{
		Namespace:       c.Namespace,
		Provider:        p,
		Codec:           cd,
		TTL:             t.TTL,
		LoadConcurrency: t.LoadConcurrency,
	}
	if hooks != nil {
		opts.Events = hooks
	}
	if t.Type == "ristretto" {
		// ristretto admits by cost; charge the encoded size.
		opts.ComputeCost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	rs, err := recordstore.NewProviderStore(ctx, opts)
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	return rs, nil
}

func openProvider(t Tier) (pr.Provider, error) {
	switch t.Type {
	case "ristretto":
		return ristretto.New(ristretto.Config{
			NumCounters: orDefault(t.Ristretto.NumCounters, 1e6),
			MaxCost:     orDefault(t.Ristretto.MaxCost, 64<<20),
			BufferItems: orDefault(t.Ristretto.BufferItems, 64),
			Metrics:     t.Ristretto.Metrics,
		})
	case "bigcache":
		return bigcache.New(bigcache.Config{
			LifeWindow:         orDefault(t.Bigcache.LifeWindow, 10*time.Minute),
			CleanWindow:        t.Bigcache.CleanWindow,
			MaxEntriesInWindow: t.Bigcache.MaxEntriesInWindow,
			MaxEntrySize:       t.Bigcache.MaxEntrySize,
			HardMaxCacheSizeMB: t.Bigcache.HardMaxCacheSizeMB,
		})
	case "redis":
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    t.Redis.Addrs,
			Username: t.Redis.Username,
			Password: t.Redis.Password,
			DB:       t.Redis.DB,
		})
		return redis.New(redis.Config{Client: client, CloseClient: true, ScanCount: t.Redis.ScanCount})
	case "badger":
		return badger.Open(badger.Config{
			Dir:        t.Badger.Dir,
			InMemory:   t.Badger.InMemory,
			SyncWrites: t.Badger.SyncWrites,
		})
	default:
		return nil, fmt.Errorf("unknown type %q", t.Type)
	}
}

func orDefault[T int64 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// NewLogger builds the configured logging adapter writing to w.
func NewLogger(l Log, w io.Writer) (gqlcache.Logger, error) {
	level := l.Level
	if level == "" {
		level = "info"
	}
	switch l.Backend {
	case "", "none":
		return gqlcache.NopLogger{}, nil

	case "slog":
		var lvl stdslog.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("config: log level: %w", err)
		}
		hopts := &stdslog.HandlerOptions{Level: lvl}
		if l.Format == "text" {
			return slogl.New(stdslog.New(stdslog.NewTextHandler(w, hopts))), nil
		}
		return slogl.New(stdslog.New(stdslog.NewJSONHandler(w, hopts))), nil

	case "zap":
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("config: log level: %w", err)
		}
		core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(w), lvl)
		return zapl.New(zap.New(core)), nil

	case "logrus":
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("config: log level: %w", err)
		}
		lg := logrus.New()
		lg.SetOutput(w)
		lg.SetLevel(lvl)
		if l.Format != "text" {
			lg.SetFormatter(&logrus.JSONFormatter{})
		}
		return logruslog.New(lg), nil
	}
	return nil, errors.New("config: unknown log backend " + l.Backend)
}
