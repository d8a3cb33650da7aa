package event

import (
	"context"
	"sync/atomic"
)

// Completion resolves once every handler scheduled by one Dispatch call
// has run. Handler failures do not fail the Completion; they are only
// counted.
type Completion struct {
	id          string
	invocations int
	pending     atomic.Int64
	failures    atomic.Int64
	done        chan struct{}
	onDone      func(failures int)
}

func newCompletion(id string, invocations int, onDone func(failures int)) *Completion {
	c := &Completion{
		id:          id,
		invocations: invocations,
		done:        make(chan struct{}),
		onDone:      onDone,
	}
	c.pending.Store(int64(invocations))
	if invocations == 0 {
		c.resolve()
	}
	return c
}

// finish records one finished invocation.
func (c *Completion) finish(failed bool) {
	if failed {
		c.failures.Add(1)
	}
	if c.pending.Add(-1) == 0 {
		c.resolve()
	}
}

func (c *Completion) resolve() {
	if c.onDone != nil {
		c.onDone(int(c.failures.Load()))
	}
	close(c.done)
}

// DispatchID returns the unique identifier of the dispatch.
func (c *Completion) DispatchID() string {
	return c.id
}

// Done returns a channel closed when all invocations have run.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until all invocations have run.
func (c *Completion) Wait() {
	<-c.done
}

// WaitContext blocks until all invocations have run or ctx is done.
// Giving up on the wait does not cancel any invocation.
func (c *Completion) WaitContext(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolved reports whether all invocations have run.
func (c *Completion) Resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Invocations returns the number of handlers the dispatch scheduled.
func (c *Completion) Invocations() int {
	return c.invocations
}

// Failures returns how many invocations returned an error or panicked.
// The value is final once Done is closed.
func (c *Completion) Failures() int {
	return int(c.failures.Load())
}
