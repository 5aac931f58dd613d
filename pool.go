// SPDX-License-Identifier: Apache-2.0

package allocator

import (
	"sync"
	"weak"
)

// Pool provides a thread-safe pool of Strategy instances for memory-efficient
// allocations. It uses weak pointers to allow garbage collection of unused
// strategies while maintaining a pool of reusable ones for high-frequency
// allocation patterns.
//
// By storing PoolItem as weak pointers, the GC can collect them at any time.
// Before using a PoolItem, Acquire tries to get a strong pointer while
// removing it from the pool; once Release is called, the item goes back to
// the pool as a weak pointer again. This lets the GC automatically manage an
// appropriate pool size depending on available memory and GC pressure.
type Pool struct {
	factory func() Strategy
	pool    []weak.Pointer[PoolItem]
	mu      sync.Mutex
}

// PoolItem wraps a Strategy for use in the pool.
type PoolItem struct {
	Strategy Strategy
}

// NewPool creates a new Pool. factory builds a fresh Strategy whenever the
// pool has nothing recyclable to offer.
func NewPool(factory func() Strategy) *Pool {
	return &Pool{factory: factory}
}

// Acquire gets a strategy from the pool or builds a new one via the pool's
// factory if none are available.
func (p *Pool) Acquire() *PoolItem {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.pool) > 0 {
		lastIdx := len(p.pool) - 1
		wp := p.pool[lastIdx]
		p.pool = p.pool[:lastIdx]

		if v := wp.Value(); v != nil {
			return v
		}
		// Weak pointer was nil (GC collected); keep looking.
	}

	return &PoolItem{Strategy: p.factory()}
}

// Release resets item's strategy and returns it to the pool for reuse.
func (p *Pool) Release(item *PoolItem) error {
	if err := item.Strategy.Reset(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.pool = append(p.pool, weak.Make(item))
	return nil
}
