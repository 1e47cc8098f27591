package instrument

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/BaSui01/testflow/types"
)

// InterceptFunc rewrites the message of a failed action.
type InterceptFunc func(err error, args ...any) string

// Action describes one instrumented browser operation.
type Action[T any] struct {
	// Name is unique per registry.
	Name string
	// Message renders the step display text from the call arguments.
	Message func(args []any) string
	// ErrorMessage is the default interceptor. Nil keeps err.Error().
	ErrorMessage InterceptFunc
	// Origin performs the operation.
	Origin func(ctx context.Context, args []any) (T, error)
}

// Func is the instrumented form of an Action.
type Func[T any] func(ctx context.Context, args ...any) *Pending[T]

// Registry records registered action names.
type Registry struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

func (r *Registry) add(name string) error {
	if name == "" {
		return types.NewError(types.ErrInvalidConfig, "action name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; ok {
		return types.NewError(types.ErrDuplicateAction, fmt.Sprintf("action %q already registered", name))
	}
	r.names[name] = struct{}{}
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Register adds a to the engine registry and returns its instrumented form.
func Register[T any](e *Engine, a Action[T]) (Func[T], error) {
	if a.Origin == nil {
		return nil, types.NewError(types.ErrInvalidConfig, fmt.Sprintf("action %q has no origin", a.Name))
	}
	if err := e.registry.add(a.Name); err != nil {
		return nil, err
	}
	return func(ctx context.Context, args ...any) *Pending[T] {
		return invoke(e, ctx, a, args)
	}, nil
}

// Wrap is like Register but panics on error. Meant for static action tables.
func Wrap[T any](e *Engine, a Action[T]) Func[T] {
	fn, err := Register(e, a)
	if err != nil {
		panic(err)
	}
	return fn
}
