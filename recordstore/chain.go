package recordstore

import (
	"context"
	"errors"
	"strings"

	"github.com/unkn0wn-root/gqlcache/record"
)

// Chain layers stores into one read-through table. Reads try each tier in
// order; a hit in a lower tier is merged into the tiers above it. Writes,
// removals and clears go to every tier.
type Chain struct {
	tiers  []RecordStore
	merger record.Merger
}

var (
	_ RecordStore = (*Chain)(nil)
	_ Tiered      = (*Chain)(nil)
	_ MergerAware = (*Chain)(nil)
)

// NewChain returns a chain over primary followed by lower tiers. Promotions
// use record.DefaultMerger until UseMerger is called.
func NewChain(primary RecordStore, lower ...RecordStore) *Chain {
	return &Chain{
		tiers:  append([]RecordStore{primary}, lower...),
		merger: record.DefaultMerger,
	}
}

// UseMerger sets the merger applied when a read promotes a lower-tier hit.
// Call it before the chain is shared; gqlcache.New does so with
// Options.Merger.
func (c *Chain) UseMerger(m record.Merger) {
	if m == nil {
		m = record.DefaultMerger
	}
	c.merger = m
}

func (c *Chain) Name() string {
	names := make([]string, len(c.tiers))
	for i, t := range c.tiers {
		names[i] = t.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func (c *Chain) Tiers() []RecordStore {
	out := make([]RecordStore, len(c.tiers))
	copy(out, c.tiers)
	return out
}

func (c *Chain) Load(ctx context.Context, key string) (*record.Record, bool, error) {
	return c.load(ctx, key, c.merger)
}

func (c *Chain) load(ctx context.Context, key string, m record.Merger) (*record.Record, bool, error) {
	for i, t := range c.tiers {
		r, ok, err := t.Load(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		c.promote(ctx, i, r, m)
		return r, true, nil
	}
	return nil, false, nil
}

// promote merges r into the tiers above depth with m. Failures only cost a
// future lower-tier read.
func (c *Chain) promote(ctx context.Context, depth int, r *record.Record, m record.Merger) {
	for _, t := range c.tiers[:depth] {
		_, _ = t.Merge(ctx, []*record.Record{r}, m)
	}
}

func (c *Chain) LoadMany(ctx context.Context, keys []string) (map[string]*record.Record, error) {
	out := make(map[string]*record.Record, len(keys))
	pending := keys
	for i, t := range c.tiers {
		if len(pending) == 0 {
			break
		}
		got, err := t.LoadMany(ctx, pending)
		if err != nil {
			return nil, err
		}
		next := pending[:0:0]
		for _, k := range pending {
			r, ok := got[k]
			if !ok {
				next = append(next, k)
				continue
			}
			out[k] = r
			c.promote(ctx, i, r, c.merger)
		}
		pending = next
	}
	return out, nil
}

// Merge writes to every tier. Changes are those of the primary tier, which
// is what readers see first.
func (c *Chain) Merge(ctx context.Context, recs []*record.Record, m record.Merger) (record.Changes, error) {
	if m == nil {
		m = record.DefaultMerger
	}
	// pull existing records up first so upper tiers merge onto complete data
	if len(c.tiers) > 1 {
		for _, r := range recs {
			if r == nil {
				continue
			}
			if _, _, err := c.load(ctx, r.Key(), m); err != nil {
				return nil, err
			}
		}
	}
	var primary record.Changes
	for i, t := range c.tiers {
		ch, err := t.Merge(ctx, recs, m)
		if err != nil {
			return primary, err
		}
		if i == 0 {
			primary = ch
		}
	}
	return primary, nil
}

func (c *Chain) Remove(ctx context.Context, key string) (bool, error) {
	var (
		found bool
		errs  []error
	)
	for _, t := range c.tiers {
		ok, err := t.Remove(ctx, key)
		if err != nil {
			errs = append(errs, err)
		}
		found = found || ok
	}
	return found, errors.Join(errs...)
}

// Dump returns the read-through view: for each key, the record of the
// highest tier holding it.
func (c *Chain) Dump(ctx context.Context) (map[string]*record.Record, error) {
	out := make(map[string]*record.Record)
	for _, t := range c.tiers {
		d, err := t.Dump(ctx)
		if err != nil {
			return nil, err
		}
		for k, r := range d {
			if _, ok := out[k]; !ok {
				out[k] = r
			}
		}
	}
	return out, nil
}

func (c *Chain) Clear(ctx context.Context) error {
	var errs []error
	for _, t := range c.tiers {
		if err := t.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Chain) Close(ctx context.Context) error {
	var errs []error
	for _, t := range c.tiers {
		if err := t.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
