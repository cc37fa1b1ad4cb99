package index

// Reconcile merges two keyed collections by precedence. Every entry of
// primary is kept (the first occurrence wins when primary repeats a key),
// followed by the entries of secondary whose key primary does not hold.
// Input order is preserved within each source.
func Reconcile[T any](primary, secondary []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(primary)+len(secondary))
	out := make([]T, 0, len(primary)+len(secondary))
	for _, item := range primary {
		k := key(item)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	for _, item := range secondary {
		k := key(item)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}
