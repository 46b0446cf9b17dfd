// Package queue provides the bounded-concurrency task scheduler feeding the
// document pipeline. Every unseen file becomes one task; the queue is the
// single ingress for processing work.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrDropped is delivered to a task's future when Clear removes it before it
// ran.
var ErrDropped = errors.New("task dropped from queue")

// Task is a unit of work. The context is the queue's lifetime context.
type Task func(ctx context.Context) error

// Stats is a snapshot of queue counters. Completed and Failed only grow.
type Stats struct {
	Pending   int
	Running   int
	Completed int64
	Failed    int64
}

type job struct {
	task Task
	done chan error
}

// Queue runs tasks with bounded parallelism. Tasks may suspend on I/O; the
// bound applies to tasks in flight, not OS threads.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	pending   []*job
	running   int
	completed int64
	failed    int64
	paused    bool
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a queue with the given parallelism and starts its workers.
func New(ctx context.Context, parallelism int) *Queue {
	if parallelism <= 0 {
		parallelism = 1
	}
	qctx, cancel := context.WithCancel(ctx)
	q := &Queue{ctx: qctx, cancel: cancel}
	q.cond = sync.NewCond(&q.mu)

	for i := 0; i < parallelism; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	// Wake blocked workers when the surrounding context dies.
	go func() {
		<-qctx.Done()
		q.mu.Lock()
		q.closed = true
		q.cond.Broadcast()
		q.mu.Unlock()
	}()

	return q
}

// Add enqueues a task and returns a future that yields its error (nil on
// success, ErrDropped if cleared before running).
func (q *Queue) Add(task Task) <-chan error {
	j := &job{task: task, done: make(chan error, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		j.done <- ErrDropped
		return j.done
	}
	q.pending = append(q.pending, j)
	q.cond.Broadcast()
	q.mu.Unlock()

	return j.done
}

// AddAll enqueues tasks in order; the returned futures line up with the input.
func (q *Queue) AddAll(tasks []Task) []<-chan error {
	futures := make([]<-chan error, len(tasks))
	for i, t := range tasks {
		futures[i] = q.Add(t)
	}
	return futures
}

// Pause stops dispatching new tasks. Running tasks finish normally.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Start resumes dispatching after a Pause.
func (q *Queue) Start() {
	q.mu.Lock()
	q.paused = false
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Clear drops all pending tasks. Their futures resolve with ErrDropped.
func (q *Queue) Clear() {
	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()

	for _, j := range dropped {
		j.done <- ErrDropped
	}
}

// OnIdle blocks until the queue has no pending and no running tasks, or the
// context is cancelled.
func (q *Queue) OnIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.mu.Lock()
		for (len(q.pending) > 0 || q.running > 0) && !q.closed {
			q.cond.Wait()
		}
		q.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:   len(q.pending),
		Running:   q.running,
		Completed: q.completed,
		Failed:    q.failed,
	}
}

// Close drops pending tasks, cancels the queue context and waits for running
// tasks to exit.
func (q *Queue) Close() {
	q.Clear()
	q.cancel()
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		for (q.paused || len(q.pending) == 0) && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		j := q.pending[0]
		q.pending = q.pending[1:]
		q.running++
		q.mu.Unlock()

		err := j.task(q.ctx)

		q.mu.Lock()
		q.running--
		if err != nil {
			q.failed++
		} else {
			q.completed++
		}
		q.cond.Broadcast()
		q.mu.Unlock()

		j.done <- err
	}
}
