package instrument

import (
	"context"
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/BaSui01/testflow/browser/steplog"
)

// Any mix of succeeding, failing, panicking and nested calls leaves every
// opened step closed exactly once and the guard free.
func TestProperty_StepsAreBalanced(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rec := steplog.NewRecorder()
		e := NewEngine(WithStepLogger(rec), WithBreakpoints(&fakeBreakpoints{}))

		ok := Wrap(e, constAction("ok", "v", nil))
		bad := Wrap(e, constAction("bad", "", errors.New("bad")))
		boom := Wrap(e, Action[string]{
			Name:   "boom",
			Origin: func(context.Context, []any) (string, error) { panic("boom") },
		})
		nested := Wrap(e, Action[string]{
			Name: "nested",
			Origin: func(ctx context.Context, args []any) (string, error) {
				inner := args[0].(int)
				switch inner {
				case 0:
					return ok(ctx).Wait()
				case 1:
					return bad(ctx).Wait()
				default:
					return boom(ctx).Wait()
				}
			},
		})

		ops := rapid.SliceOfN(rapid.IntRange(0, 5), 1, 20).Draw(rt, "ops")
		topLevel := 0
		for _, op := range ops {
			switch op {
			case 0:
				_, _ = ok(context.Background()).Wait()
			case 1:
				_, _ = bad(context.Background()).IfError("rewritten").Wait()
			case 2:
				_, _ = boom(context.Background()).Wait()
			default:
				_, _ = nested(context.Background(), op-3).Wait()
			}
			topLevel++
		}

		if !rec.Balanced() {
			rt.Fatalf("unbalanced steps: open=%v", rec.Open())
		}
		if got := len(rec.Ended()); got != topLevel {
			rt.Fatalf("expected %d steps, got %d", topLevel, got)
		}
		if e.ExecContext().Busy() {
			rt.Fatal("guard still held")
		}
	})
}
