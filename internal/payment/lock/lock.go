// Package lock provides per-key mutual exclusion for payment reconciliation.
// The in-process locker serves a single instance; the Redis locker spans
// instances sharing one Redis.
package lock

import (
	"context"
	"hash/fnv"
)

// Release gives the lock back. It is safe to call more than once.
type Release func()

// Locker grants exclusive access to a key until released or ctx ends.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

const defaultShards = 256

// Local serializes keys across a fixed set of shards. Distinct keys may share
// a shard and wait on each other; the same key always does.
type Local struct {
	shards []chan struct{}
}

func NewLocal(shards int) *Local {
	if shards <= 0 {
		shards = defaultShards
	}
	l := &Local{shards: make([]chan struct{}, shards)}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

func (l *Local) Acquire(ctx context.Context, key string) (Release, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	sem := l.shards[h.Sum32()%uint32(len(l.shards))]

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-sem
	}, nil
}
