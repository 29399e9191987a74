package wss

import (
	"context"
)

// Result is the outcome of an asynchronous Connect or Send. It can be waited
// on, polled or ignored.
type Result struct {
	done chan struct{}
	ok   bool
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

func resolvedResult(ok bool) *Result {
	r := newResult()
	r.resolve(ok)
	return r
}

func (r *Result) resolve(ok bool) {
	r.ok = ok
	close(r.done)
}

// Done is closed once the operation has finished.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the operation finishes and reports whether it succeeded.
func (r *Result) Wait() bool {
	<-r.done
	return r.ok
}

// WaitContext is Wait with an escape hatch. Giving up on the wait does not
// stop the operation itself.
func (r *Result) WaitContext(ctx context.Context) (bool, error) {
	select {
	case <-r.done:
		return r.ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Poll returns the outcome without blocking. ready is false while the
// operation is still running.
func (r *Result) Poll() (ok bool, ready bool) {
	select {
	case <-r.done:
		return r.ok, true
	default:
		return false, false
	}
}
