package expression

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/l7mp/hybridagg/pkg/document"
	"github.com/l7mp/hybridagg/pkg/util"
)

// AsList returns the argument as a list.
func AsList(d any) ([]any, error) {
	ret, ok := document.Normalize(d).([]any)
	if !ok {
		return nil, fmt.Errorf("argument is not a list: %s", util.Stringify(d))
	}
	return ret, nil
}

// AsString returns the argument if it is a string.
func AsString(d any) (string, error) {
	if d == nil {
		return "", errors.New("argument is nil")
	}
	s, ok := d.(string)
	if !ok {
		return "", fmt.Errorf("argument is not a string: %s", util.Stringify(d))
	}
	return s, nil
}

// AsInt returns the argument as an integer. Floats are accepted when they hold an integral value.
func AsInt(d any) (int64, error) {
	if d == nil {
		return 0, errors.New("argument is nil")
	}

	switch v := document.Normalize(d).(type) {
	case int64:
		return v, nil
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v), nil
		}
	}

	return 0, fmt.Errorf("argument is not an int: %s", util.Stringify(d))
}

// Stringify converts any value into its string form: strings as is, numbers in decimal, bools as
// "true"/"false", nil as the empty string, documents and lists as JSON.
// The formatting follows MongoDB's string conversion, so nil and bools never render as "None" or
// "True".
func Stringify(d any) string {
	switch v := document.Normalize(d).(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case document.Document, []any:
		return util.Stringify(v)
	case interface{ Hex() string }: // object ids
		return v.Hex()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
