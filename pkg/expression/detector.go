package expression

import (
	"slices"

	"github.com/l7mp/hybridagg/pkg/document"
)

// ContainsCustomOperator reports whether any mapping key anywhere in the value, including the
// stage operator itself, nested documents, list elements and the arguments of built-in operators,
// is a registered custom operator.
func ContainsCustomOperator(v any, reg *Registry) bool {
	if reg == nil || reg.Len() == 0 {
		return false
	}
	return containsCustomOperator(document.Normalize(v), reg)
}

func containsCustomOperator(v any, reg *Registry) bool {
	switch val := v.(type) {
	case document.Document:
		for k, e := range val {
			if _, ok := reg.Lookup(k); ok {
				return true
			}
			if containsCustomOperator(e, reg) {
				return true
			}
		}
	case []any:
		for _, e := range val {
			if containsCustomOperator(e, reg) {
				return true
			}
		}
	}
	return false
}

// CustomOperatorsIn returns the sorted names of the registered custom operators used anywhere in
// the value.
func CustomOperatorsIn(v any, reg *Registry) []string {
	if reg == nil || reg.Len() == 0 {
		return []string{}
	}
	found := map[string]bool{}
	collectCustomOperators(document.Normalize(v), reg, found)

	ret := make([]string, 0, len(found))
	for op := range found {
		ret = append(ret, op)
	}
	slices.Sort(ret)
	return ret
}

func collectCustomOperators(v any, reg *Registry, found map[string]bool) {
	switch val := v.(type) {
	case document.Document:
		for k, e := range val {
			if _, ok := reg.Lookup(k); ok {
				found[k] = true
			}
			collectCustomOperators(e, reg, found)
		}
	case []any:
		for _, e := range val {
			collectCustomOperators(e, reg, found)
		}
	}
}
