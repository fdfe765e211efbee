// Package util holds small generic slice helpers.
package util

// CloneSlice returns a copy of src with its own backing array.
func CloneSlice[T any](src []T) []T {
	clone := make([]T, len(src))
	copy(clone, src)

	return clone
}

// Fill sets every element of s from index n on to v and returns the number of
// elements set. n outside [0, len(s)] sets nothing.
func Fill[T any](s []T, n int, v T) int {
	if n < 0 || n >= len(s) {
		return 0
	}

	for i := n; i < len(s); i++ {
		s[i] = v
	}

	return len(s) - n
}
