// SPDX-License-Identifier: Apache-2.0

package allocator

import (
	"sync"
	"unsafe"
)

// Concurrent wraps a Strategy with a mutex so it can be shared safely across
// goroutines. Use it over strategies that aren't already internally
// synchronized, such as strategy/freelist; strategy/bump is already
// lock-free and doesn't need this decorator.
type Concurrent struct {
	mtx sync.Mutex
	s   Strategy
}

// NewConcurrent wraps s so every Strategy method is serialized by a mutex.
func NewConcurrent(s Strategy) *Concurrent {
	return &Concurrent{s: s}
}

// Find satisfies the Strategy interface.
func (c *Concurrent) Find(layout Layout) (unsafe.Pointer, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.s.Find(layout)
}

// FindSize satisfies the Strategy interface.
func (c *Concurrent) FindSize(size uintptr) (unsafe.Pointer, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.s.FindSize(size)
}

// Return satisfies the Strategy interface.
func (c *Concurrent) Return(ptr unsafe.Pointer) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.s.Return(ptr)
}

// Reset satisfies the Strategy interface.
func (c *Concurrent) Reset() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.s.Reset()
}

// AcceptsAlignment satisfies the Strategy interface.
func (c *Concurrent) AcceptsAlignment() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.s.AcceptsAlignment()
}

// AcceptsReturn satisfies the Strategy interface.
func (c *Concurrent) AcceptsReturn() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.s.AcceptsReturn()
}
