// Package gqlcache implements a client-side normalized GraphQL cache.
//
// Responses are split into flat records, one per entity, linked by
// references, so an entity fetched by several queries is stored once and
// every query reading it sees the same, latest fields.
//
// Components:
//   - record: the Record/Value model, the field-level Merger and dump text.
//   - selection: the parsed selection description of operations and fragments.
//   - normalize: response tree <-> records, driven by a KeyResolver.
//   - optimistic: speculative patches stacked over the base records.
//   - recordstore: the base table (memory, provider-backed, chained tiers).
//   - provider / codec: byte stores and record encodings for persisted tiers.
//
// Keys:
//
//	QUERY_ROOT / MUTATION_ROOT / SUBSCRIPTION_ROOT - operation roots
//	<resolved key>                                  - entities (e.g. "2001")
//	<parent key>.<field key>[.<index>]              - objects without an id
//
// Watch pattern:
//
//	w, _ := store.Watch(ctx, op)
//	defer w.Cancel()
//	for u := range w.C() {
//	    render(u.Data, u.Missing, u.Err)
//	}
package gqlcache
