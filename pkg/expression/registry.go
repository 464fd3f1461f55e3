package expression

import (
	"context"
	"sort"
	"sync"

	"github.com/l7mp/hybridagg/pkg/document"
)

// CustomOperator is a user-defined operator evaluated outside the database engine.
//
// Evaluate receives the document and the unevaluated argument exactly as it appears in the stage.
// It must not mutate the document and may return nil to signal that no value was produced. A
// returned error aborts the whole aggregation.
type CustomOperator interface {
	Evaluate(ctx context.Context, doc document.Document, arg any) (any, error)
}

// OperatorFunc adapts a plain function to the CustomOperator interface.
type OperatorFunc func(ctx context.Context, doc document.Document, arg any) (any, error)

func (f OperatorFunc) Evaluate(ctx context.Context, doc document.Document, arg any) (any, error) {
	return f(ctx, doc, arg)
}

// Registry maps operator names to custom operators. Each engine holds its own registry. The
// registry must not be mutated while an aggregation is running on it.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]CustomOperator
}

// NewRegistry creates an empty operator registry.
func NewRegistry() *Registry {
	return &Registry{ops: map[string]CustomOperator{}}
}

// Register adds a custom operator, overwriting any previous operator of the same name.
func (r *Registry) Register(name string, op CustomOperator) error {
	if !IsOperator(name) {
		return NewInvalidOperatorNameError(name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = op

	return nil
}

// RegisterFunc adds a custom operator implemented by a function.
func (r *Registry) RegisterFunc(name string, f func(ctx context.Context, doc document.Document, arg any) (any, error)) error {
	return r.Register(name, OperatorFunc(f))
}

// Unregister removes a custom operator. Removing an unknown operator is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ops, name)
}

// Lookup returns the custom operator registered under the name.
func (r *Registry) Lookup(name string) (CustomOperator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names returns the registered operator names in lexicographic order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ret := make([]string, 0, len(r.ops))
	for k := range r.ops {
		ret = append(ret, k)
	}
	sort.Strings(ret)

	return ret
}

// Len returns the number of registered operators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}
