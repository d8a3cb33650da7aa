package event

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Scheduler runs handler invocations after Dispatch has returned.
// Schedule must not run task on the calling goroutine and must not block
// waiting for task to run.
type Scheduler interface {
	// Schedule queues task for later execution.
	Schedule(task func())

	// Close waits for every scheduled task to finish.
	// Schedule must not be called after Close.
	Close()
}

// Built-in scheduler kinds for BusConfig.SchedulerKind.
const (
	SchedulerGoroutine = "goroutine"
	SchedulerQueue     = "queue"
)

// GoroutineScheduler runs each task on its own goroutine.
// Tasks may run concurrently and complete in any order.
type GoroutineScheduler struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewGoroutineScheduler creates a scheduler running at most maxConcurrency
// tasks at once. Zero or less means unbounded.
func NewGoroutineScheduler(maxConcurrency int) *GoroutineScheduler {
	s := &GoroutineScheduler{}
	if maxConcurrency > 0 {
		s.sem = semaphore.NewWeighted(int64(maxConcurrency))
	}
	return s
}

// Schedule implements Scheduler.
func (s *GoroutineScheduler) Schedule(task func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.sem != nil {
			// Background never cancels, so Acquire only returns nil.
			_ = s.sem.Acquire(context.Background(), 1)
			defer s.sem.Release(1)
		}
		task()
	}()
}

// Close implements Scheduler.
func (s *GoroutineScheduler) Close() {
	s.wg.Wait()
}

// QueueScheduler runs tasks one at a time, in submission order, on a
// single worker goroutine. It is the closest match to an event loop:
// every task runs on a later turn of the same queue.
//
// A task must not wait for another task scheduled on the same queue.
type QueueScheduler struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

// NewQueueScheduler creates a queue scheduler and starts its worker.
func NewQueueScheduler() *QueueScheduler {
	s := &QueueScheduler{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Schedule implements Scheduler.
func (s *QueueScheduler) Schedule(task func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	s.cond.Signal()
}

// Close implements Scheduler. Pending tasks are drained before it returns.
func (s *QueueScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
	<-s.done
}

// Pending returns the number of tasks waiting to run.
func (s *QueueScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *QueueScheduler) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.tasks) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return
		}
		task := s.tasks[0]
		s.tasks[0] = nil
		s.tasks = s.tasks[1:]
		s.mu.Unlock()

		task()
	}
}

// newScheduler builds the scheduler named by kind.
func newScheduler(kind string, maxConcurrency int) Scheduler {
	if kind == SchedulerQueue {
		return NewQueueScheduler()
	}
	return NewGoroutineScheduler(maxConcurrency)
}
