package pool

import (
	"errors"
	"sync"
)

// Resettable values are cleared on Put so the next Get starts clean
type Resettable interface {
	Reset()
}

// Pool is a typed sync.Pool. The constructor is checked once up front so Get can
// assert without a fallback.
type Pool[T any] struct {
	pool sync.Pool
}

var (
	errNilConstructor = errors.New("pool: constructor must not be nil")
	errNilValue       = errors.New("pool: constructor returned nil")
)

func NewLitePool[T any](newFn func() T) (*Pool[T], error) {
	if newFn == nil {
		return nil, errNilConstructor
	}
	if any(newFn()) == nil {
		return nil, errNilValue
	}

	return &Pool[T]{
		pool: sync.Pool{
			New: func() any { return newFn() },
		},
	}, nil
}

func (p *Pool[T]) Get() T {
	//nolint:forcetypeassert // New only ever produces T
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(v T) {
	if r, ok := any(v).(Resettable); ok {
		r.Reset()
	}
	p.pool.Put(v)
}
