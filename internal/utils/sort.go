package utils

import (
	"cmp"
	"slices"
)

func SortedKeys[K cmp.Ordered, T any](m map[K]T) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Union returns the distinct values of lists in first-seen order.
func Union[T comparable](lists ...[]T) []T {
	seen := make(map[T]struct{})
	var out []T
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
