// SPDX-License-Identifier: Apache-2.0

// Package bump implements a lock-free, monotonic bump strategy: allocation
// advances an offset inside the active superblock with a CAS loop, growth
// requests another superblock from the provider, and Reset returns every
// held superblock at once. Per-object release is not supported.
package bump

import (
	"sync/atomic"
	"unsafe"

	allocator "github.com/fathomcore/allocators"
)

// maxBlocks is the number of entries in the strategy's block table: 1 << 10,
// matching the original lock-free bump's 10-bit index field.
const maxBlocks = 1 << 10

const (
	indexBits  = 10
	sizeBits   = 16
	offsetBits = 25

	indexMask  = uint64(1)<<indexBits - 1
	sizeMask   = uint64(1)<<sizeBits - 1
	offsetMask = uint64(1)<<offsetBits - 1
)

// blockDescriptor packs (initialized:1, index:10, size:16, offset:25) into a
// single uint64, matching the spec's data model. The size field tracks the
// provider's block size for data-model fidelity but headroom is computed
// from blockSize (cached separately) minus offset, not from this field.
type blockDescriptor uint64

func packDescriptor(initialized bool, index, size uint32, offset uint64) blockDescriptor {
	var bits uint64
	if initialized {
		bits |= 1
	}
	bits |= (uint64(index) & indexMask) << 1
	bits |= (uint64(size) & sizeMask) << (1 + indexBits)
	bits |= (offset & offsetMask) << (1 + indexBits + sizeBits)
	return blockDescriptor(bits)
}

func (d blockDescriptor) initialized() bool { return uint64(d)&1 != 0 }
func (d blockDescriptor) index() uint32      { return uint32((uint64(d) >> 1) & indexMask) }
func (d blockDescriptor) offset() uint64 {
	return (uint64(d) >> (1 + indexBits + sizeBits)) & offsetMask
}

// Strategy is a lock-free bump allocator over superblocks obtained from a
// Provider.
type Strategy struct {
	provider allocator.Provider

	grow      allocator.GrowPolicy
	alignment uintptr

	// blockPages is how many provider pages each superblock spans, per the
	// configured size/size_policy (see WithConfig). Defaults to 1, matching
	// providers that only support single-page superblocks.
	blockPages int

	active     atomic.Uint64 // packed blockDescriptor
	blockTable [maxBlocks]atomic.Pointer[byte]
}

// Option configures a Strategy at construction.
type Option func(*Strategy)

// WithGrowPolicy selects what happens when the active block has no room
// left for a request. Defaults to allocator.GrowStorage.
func WithGrowPolicy(policy allocator.GrowPolicy) Option {
	return func(s *Strategy) { s.grow = policy }
}

// WithAlignment sets the alignment used by FindSize. Defaults to
// allocator.MinimumAlignment.
func WithAlignment(alignment uintptr) Option {
	return func(s *Strategy) {
		if allocator.IsValidAlignment(alignment) {
			s.alignment = alignment
		}
	}
}

// WithConfig sizes each superblock from cfg.Size/cfg.SizePolicy, in addition
// to applying cfg.Alignment and cfg.Grow. The bump strategy has no
// per-block header: HaveAtLeastSizeBytes rounds cfg.Size up to whole pages
// and NoMoreThanSizeBytes rounds it down (to at least one page), so the two
// agree whenever cfg.Size is a whole number of pages. Options passed after
// WithConfig override its selections.
func WithConfig(cfg allocator.Config) Option {
	return func(s *Strategy) {
		cfg = cfg.WithDefaults()
		if allocator.IsValidAlignment(cfg.Alignment) {
			s.alignment = cfg.Alignment
		}
		s.grow = cfg.Grow
		s.blockPages = cfg.PageCount(0)
	}
}

// New creates a Strategy drawing superblocks from provider.
func New(provider allocator.Provider, opts ...Option) *Strategy {
	s := &Strategy{
		provider:   provider,
		grow:       allocator.GrowStorage,
		alignment:  allocator.MinimumAlignment,
		blockPages: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// blockSize is the usable byte span of a superblock: the provider's
// per-page unit times the configured page count.
func (s *Strategy) blockSize() uint64 {
	return uint64(s.provider.BlockSize()) * uint64(s.blockPages)
}

// Find returns layout.Size bytes, rounded up to layout.Alignment, from the
// active superblock, requesting new superblocks from the provider as
// needed. Contents are uninitialized.
func (s *Strategy) Find(layout allocator.Layout) (unsafe.Pointer, error) {
	if !layout.Valid() {
		return nil, allocator.NewError("bump.Find", allocator.CodeInvalidInput, nil)
	}

	request := allocator.AlignUp(layout.Size, layout.Alignment)
	blockSize := s.blockSize()
	if request > uintptr(blockSize) {
		return nil, allocator.NewError("bump.Find", allocator.CodeSizeRequestTooLarge, nil)
	}

	for {
		old := blockDescriptor(s.active.Load())
		if !old.initialized() {
			if err := s.allocateNewBlock(); err != nil {
				return nil, err
			}
			continue
		}

		// Round the cursor itself up so the returned address honors
		// layout.Alignment even after requests with a smaller alignment.
		start := uint64(allocator.AlignUp(uintptr(old.offset()), layout.Alignment))
		if start > blockSize || blockSize-start < uint64(request) {
			if s.grow == allocator.ReturnNull {
				return nil, allocator.NewError("bump.Find", allocator.CodeReachedMemoryLimit, nil)
			}
			if err := s.allocateNewBlock(); err != nil {
				return nil, err
			}
			continue
		}

		newDescriptor := packDescriptor(true, old.index(), uint32(blockSize), start+uint64(request))
		if s.active.CompareAndSwap(uint64(old), uint64(newDescriptor)) {
			base := s.blockTable[old.index()].Load()
			if base == nil {
				return nil, allocator.NewError("bump.Find", allocator.CodeInternal, nil)
			}
			return unsafe.Pointer(uintptr(unsafe.Pointer(base)) + uintptr(start)), nil
		}
	}
}

// FindSize is shorthand for Find with the strategy's configured alignment.
func (s *Strategy) FindSize(size uintptr) (unsafe.Pointer, error) {
	return s.Find(allocator.Layout{Size: size, Alignment: s.alignment})
}

// Return always fails: the bump strategy does not support per-object
// release.
func (s *Strategy) Return(unsafe.Pointer) error {
	return allocator.NewError("bump.Return", allocator.CodeOperationNotSupported, nil)
}

// Reset returns every superblock held by the strategy to its provider and
// rewinds to the initial, uninitialized state.
func (s *Strategy) Reset() error {
	old := blockDescriptor(s.active.Load())
	if !old.initialized() {
		return nil
	}

	for i := uint32(0); i <= old.index(); i++ {
		base := s.blockTable[i].Load()
		if base == nil {
			continue
		}
		if err := s.provider.Return(unsafe.Pointer(base)); err != nil {
			return allocator.NewError("bump.Reset", allocator.CodeInternal, err)
		}
		s.blockTable[i].Store(nil)
	}

	s.active.Store(0)
	return nil
}

// AcceptsAlignment reports true: Find honors layout.Alignment.
func (s *Strategy) AcceptsAlignment() bool { return true }

// AcceptsReturn reports false: per-object release is unsupported.
func (s *Strategy) AcceptsReturn() bool { return false }

// allocateNewBlock requests one superblock from the provider and installs
// it as the next table entry. The table slot is claimed with its own CAS
// before the descriptor CAS is attempted, so any thread that observes the
// descriptor pointing at the new index is guaranteed to also observe a
// populated table slot — closing the publish race the spec leaves open as
// an implementation choice.
func (s *Strategy) allocateNewBlock() error {
	old := blockDescriptor(s.active.Load())

	var newIndex uint32
	if old.initialized() {
		newIndex = old.index() + 1
	}
	if newIndex >= maxBlocks {
		return allocator.NewError("bump.Find", allocator.CodeReachedMemoryLimit, nil)
	}

	ptr, err := s.provider.Provide(s.blockPages)
	if err != nil {
		return allocator.NewError("bump.Find", allocator.CodeNoFreeBlock, err)
	}

	if !s.blockTable[newIndex].CompareAndSwap(nil, (*byte)(ptr)) {
		// Another goroutine, racing from the same snapshot, already
		// claimed this slot. Our block is redundant.
		_ = s.provider.Return(ptr)
		return nil
	}

	newDescriptor := packDescriptor(true, newIndex, uint32(s.blockSize()), 0)
	if !s.active.CompareAndSwap(uint64(old), uint64(newDescriptor)) {
		s.blockTable[newIndex].Store(nil)
		_ = s.provider.Return(ptr)
	}

	return nil
}
