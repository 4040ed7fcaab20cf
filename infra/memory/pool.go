package memory

import "sync"

// Pool is a typed wrapper over sync.Pool. Values handed to Put must not be
// touched by the caller afterwards.
type Pool[T any] struct {
	p     sync.Pool
	reset func(*T)
}

// NewPool builds a pool that allocates with ctor. When reset is non-nil it
// runs on every value returned through Put.
func NewPool[T any](ctor func() *T, reset ...func(*T)) *Pool[T] {
	p := &Pool[T]{}
	p.p.New = func() any { return ctor() }
	if len(reset) > 0 {
		p.reset = reset[0]
	}
	return p
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	if v == nil {
		return
	}
	if p.reset != nil {
		p.reset(v)
	}
	p.p.Put(v)
}

// NewSlicePool pools slices of E, truncating them to zero length on Put.
// Elements are cleared so pooled slices do not pin pointers.
func NewSlicePool[E any](capacity int) *Pool[[]E] {
	return NewPool(
		func() *[]E {
			s := make([]E, 0, capacity)
			return &s
		},
		func(s *[]E) {
			clear(*s)
			*s = (*s)[:0]
		},
	)
}
