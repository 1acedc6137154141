package gqlcache

import (
	"context"
	"sort"
)

func (s *store) Remove(ctx context.Context, key string, cascade bool) (bool, error) {
	n, err := s.RemoveAll(ctx, []string{key}, cascade)
	return n > 0, err
}

// RemoveAll deletes keys, and with cascade everything reachable from them,
// from the base store and every optimistic patch in one transaction. It
// returns how many distinct records were deleted from at least one of them.
func (s *store) RemoveAll(ctx context.Context, keys []string, cascade bool) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	s.mu.Lock()
	targets := keys
	if cascade {
		var err error
		if targets, err = s.reachable(ctx, keys); err != nil {
			s.mu.Unlock()
			s.backendError("read", err)
			return 0, err
		}
	}

	var (
		removed []string
		rerr    RemoveError
	)
	for _, k := range targets {
		inBase, err := s.records.Remove(ctx, k)
		if err != nil {
			rerr.Keys = append(rerr.Keys, k)
			rerr.Errs = append(rerr.Errs, err)
		}
		inPatch := s.layer.Remove(k)
		if inBase || inPatch {
			removed = append(removed, k)
		}
	}
	s.mu.Unlock()

	if len(removed) > 0 {
		s.hooks.RecordsRemoved(len(removed), cascade)
		s.log.Debug("records removed", Fields{"count": len(removed), "cascade": cascade})
		s.publish(removed)
	}
	if len(rerr.Errs) > 0 {
		s.backendError("remove", &rerr)
		return len(removed), &rerr
	}
	return len(removed), nil
}

// reachable walks references from roots through the overlaid view and
// returns every key visited, roots included, sorted. Cycles are visited
// once. Keys that resolve to no record end the walk on that branch.
// Callers hold mu.
func (s *store) reachable(ctx context.Context, roots []string) ([]string, error) {
	seen := make(map[string]struct{}, len(roots))
	queue := append([]string(nil), roots...)
	v := view{s}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}

		r, ok, err := v.ReadRecord(ctx, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, ref := range r.References() {
			if _, ok := seen[ref]; !ok {
				queue = append(queue, ref)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
