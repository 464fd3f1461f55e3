package memory

import (
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/l7mp/hybridagg/pkg/document"
	"github.com/l7mp/hybridagg/pkg/expression"
	"github.com/l7mp/hybridagg/pkg/pipeline"
)

// matches evaluates a $match filter on a document.
func matches(doc document.Document, filter document.Document) (bool, error) {
	for _, k := range document.Keys(filter) {
		cond := filter[k]

		switch k {
		case "$and", "$or", "$nor":
			subs, err := expression.AsList(cond)
			if err != nil || len(subs) == 0 {
				return false, fmt.Errorf("%s argument must be a non-empty list", k)
			}
			some, all := false, true
			for _, s := range subs {
				sf, ok := s.(document.Document)
				if !ok {
					return false, fmt.Errorf("%s argument must be a list of documents", k)
				}
				ok, err := matches(doc, sf)
				if err != nil {
					return false, err
				}
				some, all = some || ok, all && ok
			}
			if (k == "$and" && !all) || (k == "$or" && !some) || (k == "$nor" && some) {
				return false, nil
			}
			continue
		}

		if expression.IsOperator(k) {
			return false, fmt.Errorf("unsupported $match operator %q", k)
		}

		v, found := document.Lookup(doc, k)
		ok, err := matchField(v, found, cond)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func matchField(v any, found bool, cond any) (bool, error) {
	ops, ok := cond.(document.Document)
	if !ok || len(ops) == 0 || !expression.IsOperator(document.Keys(ops)[0]) {
		return equals(v, cond), nil
	}

	for _, op := range document.Keys(ops) {
		arg := ops[op]
		var ok bool
		switch op {
		case "$eq":
			ok = equals(v, arg)
		case "$ne":
			ok = !equals(v, arg)
		case "$gt", "$gte", "$lt", "$lte":
			ok = compareAny(v, arg, op)
		case "$in", "$nin":
			list, err := expression.AsList(arg)
			if err != nil {
				return false, fmt.Errorf("%s argument must be a list", op)
			}
			in := false
			for _, e := range list {
				if equals(v, e) {
					in = true
					break
				}
			}
			ok = in == (op == "$in")
		case "$exists":
			want, isBool := arg.(bool)
			if !isBool {
				n, err := expression.AsInt(arg)
				if err != nil {
					return false, fmt.Errorf("$exists argument must be a bool")
				}
				want = n != 0
			}
			ok = found == want
		default:
			return false, fmt.Errorf("unsupported $match operator %q", op)
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// equals implements equality with list semantics: a list field matches a scalar if any of its
// elements does.
func equals(v, cond any) bool {
	if same(v, cond) {
		return true
	}
	if list, ok := v.([]any); ok {
		if _, condIsList := cond.([]any); !condIsList {
			for _, e := range list {
				if same(e, cond) {
					return true
				}
			}
		}
	}
	return false
}

func same(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func compareAny(v, arg any, op string) bool {
	check := func(e any) bool {
		if rank(e) != rank(arg) || e == nil {
			return false
		}
		c := compare(e, arg)
		switch op {
		case "$gt":
			return c > 0
		case "$gte":
			return c >= 0
		case "$lt":
			return c < 0
		default:
			return c <= 0
		}
	}

	if check(v) {
		return true
	}
	if list, ok := v.([]any); ok {
		for _, e := range list {
			if check(e) {
				return true
			}
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// rank orders values of different types: null, numbers, strings, documents, lists, bools, others.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int64, float64:
		return 1
	case string:
		return 2
	case document.Document:
		return 3
	case []any:
		return 4
	case bool:
		return 5
	}
	return 6
}

// compare returns -1, 0 or 1 as a is less than, equal to or greater than b.
func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 1:
		fa, _ := asFloat(a)
		fb, _ := asFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 5:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	case 0:
		return 0
	}

	return strings.Compare(expression.Stringify(a), expression.Stringify(b))
}

type sortKey struct {
	path string
	dir  int
}

// sortKeys returns the sort specification in the order the caller gave it.
func sortKeys(stage pipeline.Stage) ([]sortKey, error) {
	var elems bson.D
	if raw, ok := stage.Raw().(bson.D); ok && len(raw) == 1 {
		if spec, ok := raw[0].Value.(bson.D); ok {
			elems = spec
		}
	}

	if elems == nil {
		spec, ok := stage.Arg.(document.Document)
		if !ok {
			return nil, fmt.Errorf("$sort argument must be a document")
		}
		for _, k := range document.Keys(spec) {
			elems = append(elems, bson.E{Key: k, Value: spec[k]})
		}
	}

	if len(elems) == 0 {
		return nil, fmt.Errorf("$sort argument must not be empty")
	}

	ret := make([]sortKey, 0, len(elems))
	for _, e := range elems {
		dir, err := expression.AsInt(e.Value)
		if err != nil || (dir != 1 && dir != -1) {
			return nil, fmt.Errorf("invalid $sort direction for %q: %v", e.Key, e.Value)
		}
		ret = append(ret, sortKey{path: e.Key, dir: int(dir)})
	}

	return ret, nil
}
