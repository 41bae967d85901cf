// Package loop runs closures one at a time, in the order they were posted.
package loop

import (
	"context"
	"sync"
)

type Loop struct {
	mutex  sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn and returns immediately. Posts after Run has returned are dropped.
func (l *Loop) Post(fn func()) {
	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mutex.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do posts fn and waits for it to finish. It must not be called from inside the loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		l.mutex.Lock()
		l.closed = true
		l.queue = nil
		l.mutex.Unlock()
	}()

	for {
		for {
			l.mutex.Lock()
			if len(l.queue) == 0 {
				l.mutex.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mutex.Unlock()

			fn()

			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}
