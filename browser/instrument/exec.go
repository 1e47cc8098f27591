package instrument

import "sync/atomic"

// ExecContext is the per-session reentrancy guard. While busy, actions
// invoked on the same session run nested: no step, no breakpoints.
type ExecContext struct {
	busy atomic.Bool
}

// Busy reports whether a top-level action is running.
func (x *ExecContext) Busy() bool { return x.busy.Load() }

func (x *ExecContext) tryAcquire() bool { return x.busy.CompareAndSwap(false, true) }

func (x *ExecContext) release() { x.busy.Store(false) }
