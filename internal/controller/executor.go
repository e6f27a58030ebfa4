package controller

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned when work is submitted to a closed Executor.
var ErrClosed = errors.New("executor closed")

// Executor runs submitted functions one at a time on a single goroutine.
// Functions must not submit to the same executor; that deadlocks.
type Executor struct {
	work chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewExecutor starts an executor. Close it to stop the goroutine.
func NewExecutor() *Executor {
	e := &Executor{
		work: make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.done)
	for {
		select {
		case fn := <-e.work:
			fn()
		case <-e.quit:
			return
		}
	}
}

// Do runs fn on the executor and waits for it to finish. A panic in fn
// is recovered and returned as an error.
func (e *Executor) Do(fn func()) error {
	finished := make(chan struct{})
	var perr error
	task := func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				perr = fmt.Errorf("panic in executor: %v", r)
			}
		}()
		fn()
	}
	select {
	case e.work <- task:
	case <-e.quit:
		return ErrClosed
	}
	<-finished
	return perr
}

// Call runs fn on e and returns its result.
func Call[T any](e *Executor, fn func() T) (T, error) {
	var value T
	err := e.Do(func() { value = fn() })
	return value, err
}

// Close stops accepting work and waits for the running function to return.
func (e *Executor) Close() {
	e.once.Do(func() { close(e.quit) })
	<-e.done
}
