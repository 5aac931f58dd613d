// SPDX-License-Identifier: Apache-2.0

// Package freelist implements a single-threaded, address-ordered free-list
// strategy: each superblock obtained from a Provider is threaded with
// intrusive headers, split on allocation and coalesced back together on
// release. Wrap a Strategy in a mutex decorator for concurrent use.
package freelist

import (
	"unsafe"

	"github.com/pkg/errors"

	allocator "github.com/fathomcore/allocators"
)

// blockHeader precedes every chunk, free or allocated. size is the number of
// usable bytes that follow the header; next links free chunks together and
// is meaningless once a chunk is handed out.
type blockHeader struct {
	size uintptr
	next *blockHeader
}

// Strategy is a free-list allocator carving chunks out of superblocks drawn
// from a Provider. Not safe for concurrent use.
type Strategy struct {
	provider allocator.Provider

	alignment    uintptr
	searchPolicy allocator.SearchPolicy
	grow         allocator.GrowPolicy

	headerSize uintptr

	// blockPages is how many provider pages each superblock spans, per the
	// configured size/size_policy (see WithConfig). Defaults to 1, matching
	// providers that only support single-page superblocks.
	blockPages int
	sizeConfig *allocator.Config // set by WithConfig; resolved into blockPages in New

	free   *blockHeader // sorted ascending by address
	blocks []uintptr    // base addresses of superblocks currently held
}

// Option configures a Strategy at construction.
type Option func(*Strategy)

// WithAlignment sets the strategy's alignment ceiling: Find honors any
// layout.Alignment up to this value, and FindSize uses it as the default.
// Defaults to allocator.MinimumAlignment.
func WithAlignment(alignment uintptr) Option {
	return func(s *Strategy) {
		if allocator.IsValidAlignment(alignment) {
			s.alignment = alignment
		}
	}
}

// WithSearchPolicy selects the fit policy Find uses when choosing among
// candidate free chunks. Defaults to allocator.BestFit.
func WithSearchPolicy(policy allocator.SearchPolicy) Option {
	return func(s *Strategy) { s.searchPolicy = policy }
}

// WithGrowPolicy selects what happens when no free chunk fits a request.
// Defaults to allocator.GrowStorage.
func WithGrowPolicy(policy allocator.GrowPolicy) Option {
	return func(s *Strategy) { s.grow = policy }
}

// WithConfig sizes each superblock from cfg.Size/cfg.SizePolicy, in addition
// to applying cfg.Alignment, cfg.Grow and cfg.Search. HaveAtLeastSizeBytes
// reserves enough pages that the usable body, after the intrusive header is
// subtracted, is still at least cfg.Size; NoMoreThanSizeBytes instead caps
// the whole superblock, header included, at cfg.Size. Options passed after
// WithConfig override its selections; blockPages is resolved in New, once
// the final alignment (and so headerSize) is known.
func WithConfig(cfg allocator.Config) Option {
	return func(s *Strategy) {
		cfg = cfg.WithDefaults()
		if allocator.IsValidAlignment(cfg.Alignment) {
			s.alignment = cfg.Alignment
		}
		s.searchPolicy = cfg.Search
		s.grow = cfg.Grow
		s.sizeConfig = &cfg
	}
}

// New creates a Strategy drawing superblocks from provider.
func New(provider allocator.Provider, opts ...Option) *Strategy {
	s := &Strategy{
		provider:     provider,
		alignment:    allocator.MinimumAlignment,
		searchPolicy: allocator.BestFit,
		grow:         allocator.GrowStorage,
		blockPages:   1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.headerSize = allocator.AlignUp(unsafe.Sizeof(blockHeader{}), s.alignment)
	if s.sizeConfig != nil {
		s.blockPages = s.sizeConfig.PageCount(s.headerSize)
	}
	return s
}

// blockSize is the usable byte span of a superblock: the provider's
// per-page unit times the configured page count.
func (s *Strategy) blockSize() uintptr {
	return uintptr(s.provider.BlockSize()) * uintptr(s.blockPages)
}

// Find returns layout.Size bytes, rounded up to layout.Alignment, splitting
// a free chunk or requesting a new superblock from the provider as needed.
// layout.Alignment must not exceed the strategy's configured alignment.
func (s *Strategy) Find(layout allocator.Layout) (unsafe.Pointer, error) {
	if !layout.Valid() {
		return nil, allocator.NewError("freelist.Find", allocator.CodeInvalidInput, nil)
	}
	if layout.Alignment > s.alignment {
		return nil, allocator.NewError("freelist.Find", allocator.CodeInvalidInput, nil)
	}

	request := allocator.AlignUp(layout.Size, s.alignment)
	blockSize := s.blockSize()
	if blockSize <= s.headerSize || request > blockSize-s.headerSize {
		return nil, allocator.NewError("freelist.Find", allocator.CodeSizeRequestTooLarge, nil)
	}

	for {
		prev, found := s.search(request)
		if found == nil {
			// The first superblock is acquired lazily whatever the grow
			// policy; ReturnNull only refuses to add further ones.
			if s.grow == allocator.ReturnNull && len(s.blocks) > 0 {
				return nil, allocator.NewError("freelist.Find", allocator.CodeReachedMemoryLimit, nil)
			}
			if err := s.addBlock(); err != nil {
				return nil, err
			}
			continue
		}

		if prev == nil {
			s.free = found.next
		} else {
			prev.next = found.next
		}

		// A remainder too small to hold a header plus one usable byte isn't
		// worth keeping as its own free chunk; fold it into this allocation
		// as internal slack instead.
		minRemainder := allocator.AlignUp(s.headerSize+1, s.alignment)
		if found.size-request >= minRemainder {
			remainderAddr := uintptr(unsafe.Pointer(found)) + s.headerSize + request
			remainder := (*blockHeader)(unsafe.Pointer(remainderAddr))
			remainder.size = found.size - request - s.headerSize
			remainder.next = nil
			found.size = request
			s.releaseToFreeList(remainder)
		}

		return s.dataFromHeader(found), nil
	}
}

// FindSize is shorthand for Find with the strategy's configured alignment.
func (s *Strategy) FindSize(size uintptr) (unsafe.Pointer, error) {
	return s.Find(allocator.Layout{Size: size, Alignment: s.alignment})
}

// Return releases a chunk previously obtained from Find, coalescing it with
// any physically adjacent free neighbors. If the merge leaves an entire
// superblock free, the superblock is returned to the provider.
func (s *Strategy) Return(ptr unsafe.Pointer) error {
	if ptr == nil {
		return allocator.NewError("freelist.Return", allocator.CodeInvalidInput, nil)
	}

	h := s.headerFromData(ptr)
	if !s.owns(h) {
		return allocator.NewError("freelist.Return", allocator.CodeInvalidInput, nil)
	}

	merged := s.releaseToFreeList(h)
	return s.reclaimIfWholeBlock(merged)
}

// Reset returns every superblock held by the strategy to its provider.
// Every pointer previously returned by Find becomes invalid.
func (s *Strategy) Reset() error {
	for _, base := range s.blocks {
		if err := s.provider.Return(unsafe.Pointer(base)); err != nil {
			return allocator.NewError("freelist.Reset", allocator.CodeInternal, errors.Wrap(err, "returning held superblock"))
		}
	}
	s.blocks = nil
	s.free = nil
	return nil
}

// AcceptsAlignment reports true: Find honors layout.Alignment up to the
// strategy's configured ceiling.
func (s *Strategy) AcceptsAlignment() bool { return true }

// AcceptsReturn reports true: per-chunk release is supported.
func (s *Strategy) AcceptsReturn() bool { return true }

// search walks the free list once, applying the configured fit policy. The
// walk never swaps entries, so among equally-sized candidates the one
// encountered first (lowest address) wins.
func (s *Strategy) search(request uintptr) (prev, found *blockHeader) {
	var p *blockHeader
	var bestPrev, best *blockHeader
	for cur := s.free; cur != nil; cur = cur.next {
		if cur.size >= request {
			switch s.searchPolicy {
			case allocator.FirstFit:
				return p, cur
			case allocator.WorstFit:
				if best == nil || cur.size > best.size {
					best, bestPrev = cur, p
				}
			default: // allocator.BestFit
				if best == nil || cur.size < best.size {
					best, bestPrev = cur, p
				}
			}
		}
		p = cur
	}
	return bestPrev, best
}

// addBlock requests one superblock from the provider and threads the whole
// thing onto the free list as a single chunk.
func (s *Strategy) addBlock() error {
	blockSize := s.blockSize()
	if blockSize <= s.headerSize {
		return allocator.NewError("freelist.Find", allocator.CodeInternal, errors.New("configured block size does not leave room for a header"))
	}

	ptr, err := s.provider.Provide(s.blockPages)
	if err != nil {
		return allocator.NewError("freelist.Find", allocator.CodeNoFreeBlock, err)
	}

	h := (*blockHeader)(ptr)
	h.size = blockSize - s.headerSize
	h.next = nil

	s.blocks = append(s.blocks, uintptr(ptr))
	s.releaseToFreeList(h)
	return nil
}

// releaseToFreeList inserts h into the address-sorted free list, coalescing
// it with a physically adjacent predecessor and/or successor in the same
// superblock. Returns the header that ends up representing the (possibly
// merged) free chunk.
func (s *Strategy) releaseToFreeList(h *blockHeader) *blockHeader {
	hAddr := uintptr(unsafe.Pointer(h))

	// Chunks never merge across a superblock boundary, even when two
	// superblocks happen to be contiguous in memory.
	isBlockBase := func(addr uintptr) bool {
		for _, base := range s.blocks {
			if base == addr {
				return true
			}
		}
		return false
	}

	var prev *blockHeader
	cur := s.free
	for cur != nil && uintptr(unsafe.Pointer(cur)) < hAddr {
		prev = cur
		cur = cur.next
	}

	if cur != nil && s.headerEnd(h) == uintptr(unsafe.Pointer(cur)) && !isBlockBase(uintptr(unsafe.Pointer(cur))) {
		h.size += s.headerSize + cur.size
		h.next = cur.next
	} else {
		h.next = cur
	}

	if prev != nil && s.headerEnd(prev) == hAddr && !isBlockBase(hAddr) {
		prev.size += s.headerSize + h.size
		prev.next = h.next
		return prev
	}

	if prev == nil {
		s.free = h
	} else {
		prev.next = h
	}
	return h
}

// reclaimIfWholeBlock returns h's superblock to the provider if h alone now
// spans it end to end.
func (s *Strategy) reclaimIfWholeBlock(h *blockHeader) error {
	hAddr := uintptr(unsafe.Pointer(h))
	blockSize := s.blockSize()

	for i, base := range s.blocks {
		if base != hAddr || s.headerEnd(h) != base+blockSize {
			continue
		}

		s.removeFree(h)
		if err := s.provider.Return(unsafe.Pointer(base)); err != nil {
			// Put it back rather than lose track of it.
			s.releaseToFreeList(h)
			return allocator.NewError("freelist.Return", allocator.CodeInternal, errors.Wrap(err, "returning fully-coalesced superblock"))
		}
		s.blocks = append(s.blocks[:i], s.blocks[i+1:]...)
		return nil
	}
	return nil
}

// removeFree unlinks target from the free list by pointer identity.
func (s *Strategy) removeFree(target *blockHeader) {
	if s.free == target {
		s.free = target.next
		return
	}
	for cur := s.free; cur != nil; cur = cur.next {
		if cur.next == target {
			cur.next = target.next
			return
		}
	}
}

// owns reports whether h's address falls within a superblock this strategy
// currently holds.
func (s *Strategy) owns(h *blockHeader) bool {
	addr := uintptr(unsafe.Pointer(h))
	blockSize := s.blockSize()
	for _, base := range s.blocks {
		if addr >= base && addr < base+blockSize {
			return true
		}
	}
	return false
}

func (s *Strategy) headerFromData(ptr unsafe.Pointer) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(uintptr(ptr) - s.headerSize))
}

func (s *Strategy) dataFromHeader(h *blockHeader) unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(h)) + s.headerSize)
}

func (s *Strategy) headerEnd(h *blockHeader) uintptr {
	return uintptr(unsafe.Pointer(h)) + s.headerSize + h.size
}
