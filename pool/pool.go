// Copyright (c) 2024 karhu3d
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package pool implements a fixed-capacity slot allocator. It hands out
// stable indices into a preallocated array, which lets per-frame objects
// (command buffers, sync primitives, descriptor sets) be recycled without
// heap allocation on the frame path.
package pool

import (
	"errors"
	"fmt"
	"sync"
)

// ErrExhausted is returned when every slot is taken. Capacity is fixed at
// construction and never grows, so hitting this is a sizing error on the
// caller's side rather than a condition to retry.
var ErrExhausted = errors.New("pool: capacity exhausted")

// Pool is a fixed-capacity arena of T with a free-list of indices.
// Acquired indices stay valid until explicitly released. Pool is safe for
// concurrent use.
type Pool[T any] struct {
	mu    sync.Mutex
	items []T
	free  []int
	live  []bool
}

// New creates a pool with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Pool[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("pool: invalid capacity %d", capacity))
	}
	p := &Pool[T]{
		items: make([]T, capacity),
		free:  make([]int, 0, capacity),
		live:  make([]bool, capacity),
	}
	// Lowest indices come out first.
	for i := capacity - 1; i >= 0; i-- {
		p.free = append(p.free, i)
	}
	return p
}

// Acquire pops an index off the free-list. It fails with ErrExhausted once
// all slots are held.
func (p *Pool[T]) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return -1, ErrExhausted
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.live[idx] = true
	return idx, nil
}

// Release returns a slot to the free-list. The caller guarantees the
// underlying object is no longer in use; for GPU objects that means the
// owning frame slot's fence has signaled. Releasing an index that is not
// currently held is a protocol violation.
func (p *Pool[T]) Release(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.items) || !p.live[idx] {
		panic(fmt.Sprintf("pool: release of slot %d that is not held", idx))
	}
	p.live[idx] = false
	p.free = append(p.free, idx)
}

// Get returns a pointer to the value stored in a held slot.
func (p *Pool[T]) Get(idx int) *T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.items) || !p.live[idx] {
		panic(fmt.Sprintf("pool: access of slot %d that is not held", idx))
	}
	return &p.items[idx]
}

// Set stores a value into a slot. Unlike Get it does not require the slot
// to be held, so pools can be prefilled right after construction.
func (p *Pool[T]) Set(idx int, v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.items) {
		panic(fmt.Sprintf("pool: set of slot %d out of range", idx))
	}
	p.items[idx] = v
}

// Cap returns the fixed capacity.
func (p *Pool[T]) Cap() int {
	return len(p.items)
}

// InUse returns the number of currently held slots.
func (p *Pool[T]) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items) - len(p.free)
}
