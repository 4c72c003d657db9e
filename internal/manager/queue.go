package manager

import (
	"context"
	"sync"
	"sync/atomic"
)

type job struct {
	fn   func() error
	done chan error
	last bool
}

// serialQueue runs jobs and notification batches on one goroutine.
// Notifications queued before a job was admitted are always processed before
// that job runs.
type serialQueue struct {
	jobs    chan job
	wake    chan struct{}
	stopped chan struct{}
	closing atomic.Bool

	mu      sync.Mutex
	pending [][]byte

	process func(batch [][]byte)
}

func newSerialQueue(process func([][]byte)) *serialQueue {
	q := &serialQueue{
		jobs:    make(chan job),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		process: process,
	}
	go q.loop()
	return q
}

// push appends a raw notification without blocking. It is safe to call from
// transport threads.
func (q *serialQueue) push(raw []byte) {
	select {
	case <-q.stopped:
		return
	default:
	}
	q.mu.Lock()
	q.pending = append(q.pending, raw)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *serialQueue) take() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	return batch
}

func (q *serialQueue) drain() {
	for {
		batch := q.take()
		if len(batch) == 0 {
			return
		}
		q.process(batch)
	}
}

func (q *serialQueue) loop() {
	defer close(q.stopped)
	for {
		q.drain()
		select {
		case j := <-q.jobs:
			q.drain()
			j.done <- j.fn()
			if j.last {
				return
			}
		case <-q.wake:
		}
	}
}

// run submits fn and waits for its result. ctx bounds admission and the
// wait; a job that was admitted runs to completion even if ctx ends first.
func (q *serialQueue) run(ctx context.Context, fn func() error) error {
	if q.closing.Load() {
		return ErrClosed
	}
	return q.submit(ctx, job{fn: fn, done: make(chan error, 1)})
}

// close runs fn as the final job and stops the loop. The final job is
// admitted regardless of ctx, so the loop always stops and fn always runs;
// ctx only bounds the wait for its result.
func (q *serialQueue) close(ctx context.Context, fn func() error) error {
	if !q.closing.CompareAndSwap(false, true) {
		return ErrClosed
	}
	j := job{fn: fn, done: make(chan error, 1), last: true}
	select {
	case q.jobs <- j:
	case <-q.stopped:
		return ErrClosed
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *serialQueue) submit(ctx context.Context, j job) error {
	select {
	case q.jobs <- j:
	case <-q.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
