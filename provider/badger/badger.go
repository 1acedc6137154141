// Package badger persists cache entries in an embedded BadgerDB, which lets
// a record table survive process restarts.
package badger

import (
	"context"
	"errors"
	"time"

	bdb "github.com/dgraph-io/badger/v4"

	pr "github.com/unkn0wn-root/gqlcache/provider"
)

type Provider struct {
	db      *bdb.DB
	closeDB bool
}

var (
	_ pr.Provider = (*Provider)(nil)
	_ pr.Scanner  = (*Provider)(nil)
)

type Config struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir        string
	InMemory   bool
	SyncWrites bool
	// Logger receives badger's own logs; nil silences them.
	Logger bdb.Logger
}

// Open opens (or creates) a database owned by the provider.
func Open(cfg Config) (*Provider, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, errors.New("badger provider: Dir is required unless InMemory")
	}
	opts := bdb.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if cfg.SyncWrites {
		opts = opts.WithSyncWrites(true)
	}
	opts = opts.WithLogger(cfg.Logger)

	db, err := bdb.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Provider{db: db, closeDB: true}, nil
}

// NewWithDB wraps a database the caller keeps owning; Close leaves it open.
func NewWithDB(db *bdb.DB) *Provider { return &Provider{db: db} }

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := p.db.View(func(txn *bdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, bdb.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	e := bdb.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	if err := p.db.Update(func(txn *bdb.Txn) error { return txn.SetEntry(e) }); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	return p.db.Update(func(txn *bdb.Txn) error { return txn.Delete([]byte(key)) })
}

// Keys iterates the key range under prefix without fetching values.
func (p *Provider) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	pfx := []byte(prefix)
	err := p.db.View(func(txn *bdb.Txn) error {
		opts := bdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = pfx
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(pfx); it.ValidForPrefix(pfx); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			out = append(out, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) Close(_ context.Context) error {
	if !p.closeDB {
		return nil
	}
	return p.db.Close()
}
