// Package document provides the canonical in-memory document representation shared by the
// expression evaluator, the local stage executor and the database collaborators.
package document

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
	"k8s.io/apimachinery/pkg/util/json"
)

// IDField is the identity field of a document.
const IDField = "_id"

// Document represents an unstructured document as map[string]any. Values are nil, bool, int64,
// float64, string, []any or embedded documents. Opaque database scalars (object ids, dates, etc.)
// are kept as is.
type Document = map[string]any

// Normalize converts a value into the canonical document form: maps (including bson.M and
// bson.D) become Document, lists (including bson.A) become []any, integers become int64 and
// floats become float64. Values of any other type are returned unchanged.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		ret := make(Document, len(val))
		for k, e := range val {
			ret[k] = Normalize(e)
		}
		return ret
	case bson.M:
		ret := make(Document, len(val))
		for k, e := range val {
			ret[k] = Normalize(e)
		}
		return ret
	case bson.D:
		ret := make(Document, len(val))
		for _, e := range val {
			ret[e.Key] = Normalize(e.Value)
		}
		return ret
	case []any:
		ret := make([]any, len(val))
		for i, e := range val {
			ret[i] = Normalize(e)
		}
		return ret
	case bson.A:
		ret := make([]any, len(val))
		for i, e := range val {
			ret[i] = Normalize(e)
		}
		return ret
	case []Document:
		ret := make([]any, len(val))
		for i, e := range val {
			ret[i] = Normalize(e)
		}
		return ret
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return int64(val) //nolint:gosec
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val) //nolint:gosec
	case float32:
		return float64(val)
	default:
		return v
	}
}

// FromAny converts a map-like value into a canonical Document.
func FromAny(v any) (Document, error) {
	doc, ok := Normalize(v).(Document)
	if !ok {
		return nil, fmt.Errorf("expected a document, got %T", v)
	}
	return doc, nil
}

// DeepCopy returns a deep copy of a document.
func DeepCopy(doc Document) Document {
	if doc == nil {
		return nil
	}
	return Normalize(doc).(Document)
}

// DeepCopyList returns a deep copy of a list of documents.
func DeepCopyList(docs []Document) []Document {
	ret := make([]Document, len(docs))
	for i := range docs {
		ret[i] = DeepCopy(docs[i])
	}
	return ret
}

// Keys returns the field names of a document in lexicographic order.
func Keys(doc Document) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unmarshal parses a JSON encoded document. Integral numbers are decoded as int64.
func Unmarshal(b []byte) (Document, error) {
	doc := Document{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("invalid document %q: %w", string(b), err)
	}
	return Normalize(doc).(Document), nil
}
