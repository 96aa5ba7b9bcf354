package tx

import (
	"context"
	"sync"
)

type localKey struct{}

// LocalRunner serializes callbacks for in-memory stores. There is no rollback:
// writes made before fn fails stay in place. Nested calls on the same context
// run without re-locking.
type LocalRunner struct {
	mu sync.Mutex
}

func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

func (r *LocalRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, ok := ctx.Value(localKey{}).(*LocalRunner); ok && owner == r {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(context.WithValue(ctx, localKey{}, r))
}
