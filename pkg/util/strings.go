package util

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/json"
)

// Map is a functional map: (a -> b) -> [a] -> [b]
func Map[T, U any](f func(T) U, s []T) []U {
	result := make([]U, len(s))
	for i, v := range s {
		result[i] = f(v)
	}
	return result
}

// Stringify renders a value as compact JSON for log and error messages.
func Stringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}

// Truncate cuts a string to at most n bytes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
