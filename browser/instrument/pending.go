package instrument

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/testflow/types"
)

// Pending is the eventual result of an instrumented call.
//
// The call runs eagerly. The outcome is sealed as soon as the origin settles:
// the error interceptor is applied at that point (before the step is closed
// for top-level calls) and interceptors attached afterwards are ignored.
type Pending[T any] struct {
	action string
	args   []any
	logger *zap.Logger
	done   chan struct{}

	mu        sync.Mutex
	fallback  InterceptFunc
	override  InterceptFunc
	attached  bool
	configErr error
	sealed    bool

	value T
	err   error
}

func newPending[T any](action string, args []any, fallback InterceptFunc, logger *zap.Logger) *Pending[T] {
	return &Pending[T]{
		action:   action,
		args:     args,
		logger:   logger,
		fallback: fallback,
		done:     make(chan struct{}),
	}
}

// Done is closed when the call has finished, including its after-breakpoint.
func (p *Pending[T]) Done() <-chan struct{} { return p.done }

// Wait blocks until the call finishes and returns its sealed outcome.
func (p *Pending[T]) Wait() (T, error) {
	<-p.done
	return p.value, p.err
}

// IfError replaces the failure message with msg.
func (p *Pending[T]) IfError(msg string) *Pending[T] {
	if msg == "" {
		return p.attach(nil, "IfError requires a non-empty message")
	}
	return p.attach(func(error, ...any) string { return msg }, "")
}

// IfErrorFunc rewrites the failure message with fn.
func (p *Pending[T]) IfErrorFunc(fn InterceptFunc) *Pending[T] {
	if fn == nil {
		return p.attach(nil, "IfErrorFunc requires a non-nil function")
	}
	return p.attach(fn, "")
}

func (p *Pending[T]) attach(fn InterceptFunc, invalid string) *Pending[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed || p.attached {
		return p
	}
	p.attached = true
	if invalid != "" {
		p.configErr = types.NewError(types.ErrInterceptConfig, invalid)
		return p
	}
	p.override = fn
	return p
}

// seal stops accepting interceptors and returns the outcome callers observe.
// Once sealed, later calls pass their outcome through unchanged.
func (p *Pending[T]) seal(value T, err error) (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed {
		return value, err
	}
	p.sealed = true
	switch {
	case p.configErr != nil:
		var zero T
		return zero, p.configErr
	case err != nil:
		return value, p.rewrite(err)
	}
	return value, nil
}

// complete publishes an already sealed outcome and closes Done.
func (p *Pending[T]) complete(value T, err error) {
	p.mu.Lock()
	p.sealed = true
	p.value, p.err = value, err
	p.mu.Unlock()
	close(p.done)
}

// rewrite must be called with p.mu held.
func (p *Pending[T]) rewrite(err error) (out error) {
	fn := p.fallback
	if p.override != nil {
		fn = p.override
	}
	if fn == nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("error interceptor panicked",
				zap.String("action", p.action),
				zap.String("panic", fmt.Sprint(r)),
			)
			out = err
		}
	}()

	msg := fn(err, p.args...)
	if msg == err.Error() {
		return err
	}
	return &ActionError{Action: p.action, Message: msg, Err: err}
}

// rejected returns an already finished pending result.
func rejected[T any](action string, err error, logger *zap.Logger) *Pending[T] {
	p := newPending[T](action, nil, nil, logger)
	var zero T
	p.complete(zero, err)
	return p
}
