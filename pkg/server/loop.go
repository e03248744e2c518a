package server

import (
	"sync"
)

// Scheduler schedules work onto the host's execution context. Tool handlers
// are never run inline inside a socket read callback; they are deferred
// through a Scheduler so host state is not mutated re-entrantly from I/O
// handling.
type Scheduler interface {
	Schedule(task func())
}

// Loop is a channel-backed Scheduler: a single goroutine consumes queued
// tasks in submission order, modeling the host's one execution context.
// A slow task delays everything queued behind it but never blocks network
// I/O, which runs on its own goroutines.
type Loop struct {
	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLoop creates and starts an execution loop
func NewLoop() *Loop {
	l := &Loop{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			// Drain whatever was already queued so in-flight tool calls
			// still resolve their pending responses.
			for {
				select {
				case task := <-l.tasks:
					task()
				default:
					return
				}
			}
		case task := <-l.tasks:
			task()
		}
	}
}

// Schedule queues a task for a later turn of the loop. Tasks submitted
// after Stop are dropped.
func (l *Loop) Schedule(task func()) {
	select {
	case <-l.done:
	case l.tasks <- task:
	}
}

// Stop terminates the loop after draining queued tasks
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}
