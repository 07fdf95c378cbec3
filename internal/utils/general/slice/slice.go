package slice

import "strings"

// Contains reports whether item is in s.
func Contains[T comparable](s []T, item T) bool {
	for _, v := range s {
		if v == item {
			return true
		}
	}
	return false
}

// ContainsFold is Contains with case-insensitive string comparison.
func ContainsFold(s []string, item string) bool {
	for _, v := range s {
		if strings.EqualFold(v, item) {
			return true
		}
	}
	return false
}

// Unique returns s without repeated elements, keeping first occurrences.
func Unique[T comparable](s []T) []T {
	seen := make(map[T]struct{}, len(s))
	out := make([]T, 0, len(s))
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Difference returns the elements of a that are not in b.
func Difference[T comparable](a, b []T) []T {
	var out []T
	for _, v := range a {
		if !Contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}
