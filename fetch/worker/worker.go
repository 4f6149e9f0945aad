// Package worker runs fetches off the caller's goroutine.
//
// [Submit] returns immediately with a [Result] that completes once the
// work function returned. A [Queue] bounds how many work functions run at
// once and lets its owner wait for in-flight work at shutdown.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrShutdown is returned for work submitted after [Queue.Shutdown].
var ErrShutdown = errors.New("queue shut down")

// Func is the signature of async work.
type Func[T any] func(ctx context.Context) (T, error)

// Queue manages concurrently running work.
type Queue struct {
	wg  sync.WaitGroup
	sem chan struct{}

	// mu orders wg.Add against Shutdown, so Wait never races a late Add.
	mu       sync.Mutex
	shutdown bool

	running atomic.Int64
}

// New creates a Queue running at most maxConcurrent work functions at
// once. If maxConcurrent <= 0, concurrency is unlimited.
func New(maxConcurrent int) *Queue {
	q := &Queue{}
	if maxConcurrent > 0 {
		q.sem = make(chan struct{}, maxConcurrent)
	}
	return q
}

// SubmitOption configures a single [Submit].
type SubmitOption func(*submitOptions)

type submitOptions struct {
	onSkip func(err error)
}

// OnSkip registers fn to run when the work never starts, because the queue
// was shut down or ctx ended while waiting for a slot. fn runs before the
// Result completes and receives the Result's error.
func OnSkip(fn func(err error)) SubmitOption {
	return func(o *submitOptions) {
		o.onSkip = fn
	}
}

// Submit launches fn in a new goroutine managed by q.
func Submit[T any](ctx context.Context, q *Queue, fn Func[T], optFns ...SubmitOption) *Result[T] {
	var opts submitOptions
	for _, opt := range optFns {
		opt(&opts)
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Result[T]{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	skip := func(err error) {
		r.err = err
		if opts.onSkip != nil {
			opts.onSkip(err)
		}
	}

	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		cancel()
		skip(ErrShutdown)
		close(r.done)
		return r
	}
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			close(r.done)
			q.wg.Done()
		}()

		if q.sem != nil {
			select {
			case q.sem <- struct{}{}:
				defer func() {
					<-q.sem
				}()
			case <-ctx.Done():
				skip(ctx.Err())
				return
			}
		}

		q.running.Add(1)
		defer q.running.Add(-1)

		r.val, r.err = fn(ctx)
	}()

	return r
}

// Running returns the number of work functions currently executing.
func (q *Queue) Running() int {
	return int(q.running.Load())
}

// Shutdown rejects further submissions. Work already submitted runs to
// completion.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.shutdown = true
}

// Wait blocks until all submitted work completed.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Result represents in-flight or completed async work.
type Result[T any] struct {
	done   chan struct{}
	val    T
	err    error
	cancel context.CancelFunc
}

// Done returns a channel that is closed when the work completes.
func (r *Result[T]) Done() <-chan struct{} { return r.done }

// Wait blocks until the work completes and returns its outcome.
func (r *Result[T]) Wait() (T, error) {
	<-r.done
	return r.val, r.err
}

// Err blocks until the work completes and returns its error.
func (r *Result[T]) Err() error {
	<-r.done
	return r.err
}

// Cancel cancels the work's context.
func (r *Result[T]) Cancel() {
	r.cancel()
}
