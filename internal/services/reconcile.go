package services

// NewIdentifiers returns the harvested ids missing from existing, in
// harvested order and without repeats.
func NewIdentifiers(existing, harvested []int64) []int64 {
	seen := make(map[int64]struct{}, len(existing)+len(harvested))
	for _, id := range existing {
		seen[id] = struct{}{}
	}

	var out []int64
	for _, id := range harvested {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
