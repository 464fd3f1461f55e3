package expression

import (
	"context"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/json"

	"github.com/l7mp/hybridagg/pkg/document"
)

// Kind is the variant of an expression.
type Kind int

const (
	// LiteralKind is a constant: string, number, bool or nil.
	LiteralKind Kind = iota
	// FieldRefKind is a "$a.b.c" field reference.
	FieldRefKind
	// CallKind is an operator call: a single-key map whose key starts with "$".
	CallKind
	// ObjectKind is a literal document whose values are expressions.
	ObjectKind
	// ListKind is a literal list whose elements are expressions.
	ListKind
)

func (k Kind) String() string {
	switch k {
	case LiteralKind:
		return "literal"
	case FieldRefKind:
		return "fieldref"
	case CallKind:
		return "call"
	case ObjectKind:
		return "object"
	case ListKind:
		return "list"
	}
	return "unknown"
}

// Field is a key-expression pair of an object expression.
type Field struct {
	Key   string
	Value Expression
}

// Expression is a parsed expression tree.
//
//   - LiteralKind: Literal holds the value.
//   - FieldRefKind: Literal holds the field path without the "$" prefix.
//   - CallKind: Op is the operator name, Arg the parsed argument and Literal the raw argument as
//     it appeared in the stage. Custom operators receive the raw argument.
//   - ObjectKind: Fields, sorted by key.
//   - ListKind: Items.
type Expression struct {
	Kind    Kind
	Op      string
	Arg     *Expression
	Literal any
	Fields  []Field
	Items   []Expression
}

// EvalCtx is the context an expression is evaluated in.
type EvalCtx struct {
	Context  context.Context
	Document document.Document
	Registry *Registry
	Log      logr.Logger
}

func (ctx EvalCtx) context() context.Context {
	if ctx.Context == nil {
		return context.Background()
	}
	return ctx.Context
}

// IsOperator returns true if the key is an operator name.
func IsOperator(key string) bool {
	return strings.HasPrefix(key, "$")
}

// Parse builds an expression tree from a raw value. The value is normalized first, so bson.M,
// bson.D and bson.A are accepted.
func Parse(raw any) Expression {
	return parse(document.Normalize(raw))
}

func parse(v any) Expression {
	switch val := v.(type) {
	case string:
		if IsOperator(val) {
			return Expression{Kind: FieldRefKind, Literal: val[1:]}
		}
		return Expression{Kind: LiteralKind, Literal: val}

	case []any:
		items := make([]Expression, len(val))
		for i := range val {
			items[i] = parse(val[i])
		}
		return Expression{Kind: ListKind, Items: items}

	case document.Document:
		// specialcase operators: an op has a single key that starts with $
		if len(val) == 1 {
			for k, arg := range val {
				if IsOperator(k) {
					exp := parse(arg)
					return Expression{Kind: CallKind, Op: k, Arg: &exp, Literal: arg}
				}
			}
		}

		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fields := make([]Field, len(keys))
		for i, k := range keys {
			fields[i] = Field{Key: k, Value: parse(val[k])}
		}
		return Expression{Kind: ObjectKind, Fields: fields}

	default:
		return Expression{Kind: LiteralKind, Literal: v}
	}
}

// Evaluate evaluates the expression on the document in the evaluation context.
func (e *Expression) Evaluate(ctx EvalCtx) (any, error) {
	switch e.Kind {
	case LiteralKind:
		return e.Literal, nil

	case FieldRefKind:
		path, _ := e.Literal.(string)
		v := document.Resolve(ctx.Document, path)
		ctx.Log.V(8).Info("eval ready", "expression", e.String(), "result", v)
		return v, nil

	case ListKind:
		ret := make([]any, len(e.Items))
		for i := range e.Items {
			v, err := e.Items[i].Evaluate(ctx)
			if err != nil {
				return nil, err
			}
			ret[i] = v
		}
		return ret, nil

	case ObjectKind:
		ret := make(document.Document, len(e.Fields))
		for _, f := range e.Fields {
			v, err := f.Value.Evaluate(ctx)
			if err != nil {
				return nil, err
			}
			ret[f.Key] = v
		}
		return ret, nil

	case CallKind:
		if ctx.Registry != nil {
			if op, ok := ctx.Registry.Lookup(e.Op); ok {
				// custom operators interpret their own arguments; errors go back unchanged
				v, err := op.Evaluate(ctx.context(), ctx.Document, e.Literal)
				if err != nil {
					return nil, err
				}
				ctx.Log.V(8).Info("eval ready", "custom-operator", e.Op, "result", v)
				return v, nil
			}
		}

		v, err := e.evalBuiltin(ctx)
		if err != nil {
			return nil, err
		}
		ctx.Log.V(8).Info("eval ready", "expression", e.String(), "result", v)
		return v, nil
	}

	return nil, NewUnmarshalError("expression", e.String())
}

// Raw returns the expression in the form it was parsed from.
func (e *Expression) Raw() any {
	switch e.Kind {
	case FieldRefKind:
		path, _ := e.Literal.(string)
		return "$" + path
	case CallKind:
		return document.Document{e.Op: e.Literal}
	case ObjectKind:
		ret := make(document.Document, len(e.Fields))
		for _, f := range e.Fields {
			ret[f.Key] = f.Value.Raw()
		}
		return ret
	case ListKind:
		ret := make([]any, len(e.Items))
		for i := range e.Items {
			ret[i] = e.Items[i].Raw()
		}
		return ret
	default:
		return e.Literal
	}
}

func (e *Expression) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return NewUnmarshalError("expression", string(b))
	}
	*e = Parse(v)
	return nil
}

func (e *Expression) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Raw())
}

func (e *Expression) String() string {
	b, err := json.Marshal(e.Raw())
	if err != nil {
		return ""
	}
	return string(b)
}
