package extractor

import (
	"errors"
	"io"
	"sync"
)

// ErrPoolClosed is returned when a model is requested from a closed pool
var ErrPoolClosed = errors.New("model pool is closed")

// Pool is a simple pool of embedding models, eg: the same network loaded once
// per NPU core or GPU stream
type Pool[T any] struct {
	// pool of models
	models chan Model[T]
	// size of pool
	size int
	// mu guards closed and sends on models
	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool holding the given models
func NewPool[T any](models ...Model[T]) *Pool[T] {

	p := &Pool[T]{
		models: make(chan Model[T], len(models)),
		size:   len(models),
	}

	for _, m := range models {
		p.Return(m)
	}

	return p
}

// Get a model from the pool, blocking until one is free.  It returns false
// once the pool has been closed.
func (p *Pool[T]) Get() (Model[T], bool) {
	m, ok := <-p.models
	return m, ok
}

// Return a model to the pool.  A model returned after Close is closed
// instead.
func (p *Pool[T]) Return(m Model[T]) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		closeModel(m)
		return
	}

	select {
	case p.models <- m:
	default:
		// pool is full
	}
}

// Size returns the number of models the pool was created with
func (p *Pool[T]) Size() int {
	return p.size
}

// Close the pool and any idle models in it implementing io.Closer.  Models
// in use are closed when returned.
func (p *Pool[T]) Close() error {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.models)

	var firstErr error

	for next := range p.models {
		if err := closeModel(next); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func closeModel[T any](m Model[T]) error {

	if c, ok := m.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
