package selection

// Collect flattens selections for one object: inline fragments are applied
// when their type condition holds, skipped fields are dropped, and fields
// sharing a response name are merged into a single field whose
// sub-selections are the concatenation of every occurrence. The result keeps
// first-occurrence order.
func Collect(sels []Selection, vars map[string]any, runtime, static string) []*Field {
	var (
		out   []*Field
		index = make(map[string]int)
	)
	var walk func([]Selection)
	walk = func(ss []Selection) {
		for _, s := range ss {
			switch t := s.(type) {
			case *Field:
				if !Included(t.Conditions, vars) {
					continue
				}
				name := t.ResponseName()
				if i, ok := index[name]; ok {
					merged := *out[i]
					merged.Selections = append(append([]Selection{}, merged.Selections...), t.Selections...)
					merged.NonNull = merged.NonNull || t.NonNull
					out[i] = &merged
					continue
				}
				index[name] = len(out)
				out = append(out, t)
			case *InlineFragment:
				if !Included(t.Conditions, vars) {
					continue
				}
				if !Applies(t.TypeCondition, t.PossibleTypes, runtime, static) {
					continue
				}
				walk(t.Selections)
			}
		}
	}
	walk(sels)
	return out
}
