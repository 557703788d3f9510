// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package job implements the engine's worker pool. CPU-side work (asset
// decoding, parallel command recording) is submitted as jobs and executed
// on a fixed set of worker goroutines. Each worker owns a queue and steals
// from the others when its own runs dry, so a slow job cannot starve the
// rest of the submission stream indefinitely.
package job

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ErrShutdown is reported on handles of jobs submitted after Shutdown.
var ErrShutdown = errors.New("job: queue is shut down")

// Job is a single unit of asynchronous work. Ownership of the returned
// value transfers to whoever waits on the job's handle. A job must not
// touch shared graphics state unless it holds the relevant synchronization
// for the duration of the job.
type Job func() (interface{}, error)

// Handle tracks the completion of one submitted job.
type Handle struct {
	done   chan struct{}
	result interface{}
	err    error
}

// Wait blocks until the job completes and returns its result. It is safe
// to call from the main thread while workers are active, and from several
// goroutines at once.
func (h *Handle) Wait() (interface{}, error) {
	<-h.done
	return h.result, h.err
}

// TryResult polls for completion without blocking. The boolean reports
// whether the job has finished.
func (h *Handle) TryResult() (interface{}, bool, error) {
	select {
	case <-h.done:
		return h.result, true, h.err
	default:
		return nil, false, nil
	}
}

// Done returns a channel closed when the job completes, for use in select
// statements.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

type task struct {
	run    Job
	handle *Handle
}

// Queue is a fixed-size worker pool. Workers are started at construction
// and run until Shutdown, which drains every queued job before joining.
type Queue struct {
	workers int
	queues  []chan *task
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// pending counts accepted but unfinished jobs; idle broadcasts when
	// it reaches zero.
	mu      sync.Mutex
	pending int
	idle    *sync.Cond

	log *logrus.Entry
}

// DefaultWorkers is the construction-time worker count policy: hardware
// concurrency minus one, but always at least one.
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// NewQueue creates a queue with the given worker count. Zero or negative
// selects DefaultWorkers. Workers begin waiting for jobs immediately.
func NewQueue(workers int) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	// A few buffered entries per worker hide submission latency.
	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	q := &Queue{
		workers: workers,
		queues:  make([]chan *task, workers),
		done:    make(chan struct{}),
		log:     logrus.WithField("component", "jobqueue"),
	}
	q.idle = sync.NewCond(&q.mu)
	for i := range q.queues {
		q.queues[i] = make(chan *task, queueSize)
	}

	q.running.Store(true)
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker(i)
	}
	return q
}

// Workers returns the fixed worker count.
func (q *Queue) Workers() int {
	return q.workers
}

// Submit enqueues a job and returns its handle immediately. Jobs submitted
// after Shutdown complete at once with ErrShutdown.
func (q *Queue) Submit(j Job) *Handle {
	h := &Handle{done: make(chan struct{})}
	if j == nil {
		h.err = errors.New("job: nil job")
		close(h.done)
		return h
	}
	if !q.running.Load() {
		h.err = ErrShutdown
		close(h.done)
		return h
	}

	q.mu.Lock()
	q.pending++
	q.mu.Unlock()
	t := &task{run: j, handle: h}

	// Once done is closed, run inline; a select with a ready send and a
	// closed done picks either arm, which could land the task in a queue
	// no worker will ever read. Shutdown still sweeps the queues until
	// pending drains, so a task that slips through here is not dropped.
	select {
	case <-q.done:
		q.execute(t)
		return h
	default:
	}

	// Prefer the shortest queue.
	minIdx := 0
	minLen := len(q.queues[0])
	for i := 1; i < q.workers; i++ {
		if l := len(q.queues[i]); l < minLen {
			minIdx, minLen = i, l
		}
	}

	select {
	case q.queues[minIdx] <- t:
	case <-q.done:
		q.execute(t)
	}
	return h
}

// Wait blocks until the given handle completes. Convenience for callers
// holding the queue rather than the handle's package.
func (q *Queue) Wait(h *Handle) (interface{}, error) {
	return h.Wait()
}

// WaitAll blocks until every job submitted so far has completed.
func (q *Queue) WaitAll() {
	q.mu.Lock()
	for q.pending > 0 {
		q.idle.Wait()
	}
	q.mu.Unlock()
}

// Shutdown stops accepting work, waits for every queued and in-flight job
// to complete, and joins the workers. Jobs are never cancelled mid-flight
// and never silently dropped. Safe to call more than once.
func (q *Queue) Shutdown() {
	if !q.running.CompareAndSwap(true, false) {
		return
	}
	close(q.done)
	q.wg.Wait()

	// Sweep the queues until every accepted job has settled. A Submit
	// racing the close can still deposit a task after a sweep pass, so
	// one pass is not enough; pending going to zero is.
	for {
		for _, ch := range q.queues {
			q.drain(ch)
		}
		q.mu.Lock()
		if q.pending == 0 {
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
		runtime.Gosched()
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	myQueue := q.queues[id]

	for {
		select {
		case <-q.done:
			q.drain(myQueue)
			return
		case t := <-myQueue:
			q.execute(t)
		default:
			if t := q.steal(id); t != nil {
				q.execute(t)
				continue
			}
			// Nothing anywhere; block on the own queue.
			select {
			case <-q.done:
				q.drain(myQueue)
				return
			case t := <-myQueue:
				q.execute(t)
			}
		}
	}
}

// steal takes one task from another worker's queue, if any has one.
func (q *Queue) steal(myID int) *task {
	for i := 0; i < q.workers; i++ {
		if i == myID {
			continue
		}
		select {
		case t := <-q.queues[i]:
			return t
		default:
		}
	}
	return nil
}

// drain executes everything left in a queue before the worker exits.
func (q *Queue) drain(ch chan *task) {
	for {
		select {
		case t := <-ch:
			q.execute(t)
		default:
			return
		}
	}
}

func (q *Queue) execute(t *task) {
	defer q.settle()
	defer func() {
		if r := recover(); r != nil {
			t.handle.err = fmt.Errorf("job: panic: %v", r)
			q.log.WithField("panic", r).Error("job panicked")
			close(t.handle.done)
		}
	}()
	t.handle.result, t.handle.err = t.run()
	close(t.handle.done)
}

func (q *Queue) settle() {
	q.mu.Lock()
	q.pending--
	if q.pending == 0 {
		q.idle.Broadcast()
	}
	q.mu.Unlock()
}
