package console

import (
	"context"
	"sync"
)

// Loop runs functions one at a time, in the order they were posted.
// It is the only place session state is touched.
type Loop interface {
	Post(fn func())
}

// SerialLoop is a Loop backed by a single goroutine, for surfaces without their own event loop.
type SerialLoop struct {
	fns       chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func NewSerialLoop() *SerialLoop {
	return &SerialLoop{
		fns:  make(chan func(), 256),
		done: make(chan struct{}),
	}
}

// Post queues fn. Posting after Run has returned is a no-op.
func (l *SerialLoop) Post(fn func()) {
	select {
	case <-l.done:
	case l.fns <- fn:
	}
}

// Run executes posted functions until ctx is done.
func (l *SerialLoop) Run(ctx context.Context) error {
	defer l.closeOnce.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.fns:
			fn()
		}
	}
}
