package document

import (
	"strings"

	"github.com/ohler55/ojg/jp"
)

// Resolve returns the value at the dotted field path in the document, or nil if any segment of
// the path is missing or an intermediate value is not a document. Array indices and wildcards are
// not supported: every segment is a literal field name.
func Resolve(doc Document, path string) any {
	v, _ := Lookup(doc, path)
	return v
}

// Lookup is like Resolve but also reports whether the path exists in the document.
func Lookup(doc Document, path string) (any, bool) {
	if doc == nil {
		return nil, false
	}

	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		// only documents are traversed, never lists or opaque values such as bson.Timestamp
		d, ok := cur.(Document)
		if !ok {
			return nil, false
		}

		values := jp.C(seg).Get(d)
		if len(values) == 0 {
			return nil, false
		}
		cur = values[0]
	}

	return cur, true
}
