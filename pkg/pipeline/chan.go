package pipeline

import "sync"

// ClearableChan is a bounded channel whose pending items can be discarded.
// Send never blocks: when the buffer is full the value is dropped.
type ClearableChan[T any] struct {
	mu sync.Mutex
	ch chan T
}

// NewClearableChan creates a ClearableChan with a buffer of size.
func NewClearableChan[T any](size int) *ClearableChan[T] {
	return &ClearableChan[T]{
		ch: make(chan T, size),
	}
}

// Send enqueues val and reports whether it fit.
func (cc *ClearableChan[T]) Send(val T) bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	select {
	case cc.ch <- val:
		return true
	default:
		return false
	}
}

// Recv blocks until a value is available.
func (cc *ClearableChan[T]) Recv() T {
	return <-cc.ch
}

func (cc *ClearableChan[T]) Chan() <-chan T {
	return cc.ch
}

func (cc *ClearableChan[T]) Len() int {
	return len(cc.ch)
}

// Clear drops everything currently queued.
func (cc *ClearableChan[T]) Clear() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	for {
		select {
		case <-cc.ch:
		default:
			return
		}
	}
}
