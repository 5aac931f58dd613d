// SPDX-License-Identifier: Apache-2.0

// Package lockfree provides a thread-safe, lock-free Provider that hands out
// single-page superblocks from a descriptor table seeded as a LIFO free
// list. It is the preferred provider for multi-threaded strategies.
package lockfree

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	allocator "github.com/fathomcore/allocators"
	"github.com/fathomcore/allocators/internal/trace"
	"github.com/fathomcore/allocators/ospage"
)

// defaultLimit is (1GiB / PageSize) - 1, the number of superblocks a
// Provider will hand out before it reports CodeNoFreeBlock, chosen so the
// descriptor table and superblock-of-pages region together fit a 1GiB
// virtual footprint (spec §6).
const defaultLimit = (1 << 30) / allocator.PageSize - 1

// status values packed into the low 2 bits of an anchor.
type status uint64

const (
	statusInitial status = iota
	statusAllocating
	statusAllocated
)

// anchor packs (status:2, head:18, available:18) into a single uint64,
// matching the original lock-free page provider's bitfield layout.
type anchor uint64

const (
	headBits      = 18
	availableBits = 18
	headMask      = (uint64(1) << headBits) - 1
	availMask     = (uint64(1) << availableBits) - 1
)

func packAnchor(st status, head, available uint64) anchor {
	return anchor(uint64(st) | (head&headMask)<<2 | (available&availMask)<<(2+headBits))
}

func (a anchor) status() status   { return status(uint64(a) & 0x3) }
func (a anchor) head() uint64     { return (uint64(a) >> 2) & headMask }
func (a anchor) available() uint64 {
	return (uint64(a) >> (2 + headBits)) & availMask
}

// descriptor is one slot in the LIFO free list of pages.
type descriptor struct {
	next     uint64
	occupied bool
}

// heap is the lazily-initialized, OS-page-backed state of a Provider: the
// superblock-of-pages region and the fixed-capacity descriptor table.
type heap struct {
	superBlock  allocator.VirtualAddressRange
	descriptors []descriptor
}

// Provider hands out page-sized superblocks using CAS loops over a packed
// anchor, with no blocking primitives. Construct it with New: the zero value
// has a limit of zero and rejects every Provide call with CodeInvalidInput.
type Provider struct {
	limit  uint64
	anchor atomic.Uint64

	// heapPtr is set exactly once, by the thread that wins initialization,
	// and is only ever read afterward — safe to publish via the anchor's
	// transition out of statusAllocating.
	heapPtr atomic.Pointer[heap]
}

// Option configures a Provider at construction.
type Option func(*Provider)

// WithLimit overrides the maximum number of superblocks this Provider will
// ever hand out. Defaults to (1GiB / PageSize) - 1.
func WithLimit(limit int) Option {
	return func(p *Provider) {
		if limit > 0 {
			p.limit = uint64(limit)
		}
	}
}

// New creates a Provider. The backing heap is not reserved from the OS
// until the first successful Provide call.
func New(opts ...Option) *Provider {
	p := &Provider{limit: defaultLimit}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BlockSize returns the fixed superblock size: one native page.
func (p *Provider) BlockSize() int {
	return int(allocator.PageSize)
}

// Provide returns a pointer to a single page. Only count == 1 is supported;
// any other value reports CodeOperationNotSupported (count outside
// [1, limit] reports CodeInvalidInput first).
func (p *Provider) Provide(count int) (unsafe.Pointer, error) {
	if count <= 0 || uint64(count) > p.limit {
		return nil, allocator.NewError("lockfree.Provide", allocator.CodeInvalidInput, nil)
	}
	if count != 1 {
		return nil, allocator.NewError("lockfree.Provide", allocator.CodeOperationNotSupported, nil)
	}

	for {
		old := anchor(p.anchor.Load())
		switch old.status() {
		case statusInitial:
			if err := p.initializeHeap(); err != nil {
				return nil, err
			}
			continue
		case statusAllocating:
			runtime.Gosched()
			continue
		}

		if old.available() == 0 || old.head() == p.limit {
			return nil, allocator.NewError("lockfree.Provide", allocator.CodeNoFreeBlock, nil)
		}

		h := p.heapPtr.Load()
		next := h.descriptors[old.head()].next
		newAnchor := packAnchor(statusAllocated, next, old.available()-1)

		if p.anchor.CompareAndSwap(uint64(old), uint64(newAnchor)) {
			d := &h.descriptors[old.head()]
			d.occupied = true
			d.next = 0
			ptr := unsafe.Pointer(h.superBlock.Address + uintptr(old.head())*allocator.PageSize)
			return ptr, nil
		}
	}
}

// Return gives a page previously obtained from Provide back to the pool.
func (p *Provider) Return(ptr unsafe.Pointer) error {
	h := p.heapPtr.Load()
	if ptr == nil || h == nil {
		return allocator.NewError("lockfree.Return", allocator.CodeInvalidInput, nil)
	}

	distance := uintptr(ptr) - h.superBlock.Address
	index := uint64(distance / allocator.PageSize)
	h.descriptors[index].occupied = false

	for {
		old := anchor(p.anchor.Load())

		// Eagerly link this slot's next to the current head before the CAS
		// that publishes it as the new head, so a racing Provide that wins
		// the race right after never observes a half-linked descriptor.
		h.descriptors[index].next = old.head()

		newAnchor := packAnchor(statusAllocated, index, old.available()+1)
		if p.anchor.CompareAndSwap(uint64(old), uint64(newAnchor)) {
			return nil
		}
	}
}

// initializeHeap runs the one-time CAS race to reserve the heap's backing
// pages. Losers observe statusAllocating and retry after yielding.
func (p *Provider) initializeHeap() error {
	old := anchor(p.anchor.Load())
	if old.status() != statusInitial {
		return nil
	}

	allocating := packAnchor(statusAllocating, old.head(), old.available())
	if !p.anchor.CompareAndSwap(uint64(old), uint64(allocating)) {
		return nil
	}

	sbRange, err := ospage.FetchPages(int(p.limit))
	if err != nil {
		trace.Tracef("lockfree: failed to reserve superblock region: %v", err)
		p.anchor.Store(uint64(packAnchor(statusInitial, 0, 0)))
		return allocator.NewError("lockfree.Provide", allocator.CodeOutOfMemory, err)
	}

	h := &heap{
		superBlock:  sbRange,
		descriptors: make([]descriptor, p.limit),
	}
	for i := range h.descriptors {
		h.descriptors[i] = descriptor{next: uint64(i + 1), occupied: false}
	}

	p.heapPtr.Store(h)
	p.anchor.Store(uint64(packAnchor(statusAllocated, 0, p.limit)))
	return nil
}
