// SPDX-License-Identifier: Apache-2.0

// Package unsynchronized provides a single-threaded Provider backed by a
// chain of fixed-capacity block maps. Concurrent use from multiple
// goroutines is a caller error — there is no locking here by design.
package unsynchronized

import (
	"unsafe"

	allocator "github.com/fathomcore/allocators"
	"github.com/fathomcore/allocators/ospage"
)

// maxPageCount is the largest count a single Provide call accepts: the
// VirtualAddressRange page-count field is 16 bits wide.
const maxPageCount = 0xFFFF

// Provider hands out page-multiple superblocks and tracks outstanding
// issuances in a chain of block maps so they can be returned later. Not
// safe for concurrent use.
type Provider struct {
	head *blockMap
}

// New creates an unsynchronized Provider. The first block map page is
// allocated lazily on the first Provide call.
func New() *Provider {
	return &Provider{}
}

// BlockSize returns the nominal superblock unit: one native page. Provide
// accepts multi-page requests; BlockSize reports the page granularity they
// are measured in.
func (p *Provider) BlockSize() int {
	return int(allocator.PageSize)
}

// Provide reserves count pages from the OS and records the issuance so it
// can be returned later. count must be in [1, 65535].
func (p *Provider) Provide(count int) (unsafe.Pointer, error) {
	if count <= 0 || count > maxPageCount {
		return nil, allocator.NewError("unsynchronized.Provide", allocator.CodeInvalidInput, nil)
	}

	r, err := ospage.FetchPages(count)
	if err != nil {
		return nil, allocator.NewError("unsynchronized.Provide", allocator.CodeOutOfMemory, err)
	}

	if p.head == nil || p.head.isFull() {
		p.head = &blockMap{next: p.head}
	}

	if !p.head.insert(uint64(r.Address), r) {
		// The map we just ensured has room refused the insert: this can
		// only happen if isFull() and insert() have drifted out of sync.
		p.head = &blockMap{next: p.head}
		p.head.insert(uint64(r.Address), r)
	}

	return unsafe.Pointer(r.Address), nil
}

// Return gives back a superblock previously obtained from Provide.
func (p *Provider) Return(ptr unsafe.Pointer) error {
	if ptr == nil {
		return allocator.NewError("unsynchronized.Return", allocator.CodeInvalidInput, nil)
	}

	key := uint64(uintptr(ptr))
	for m := p.head; m != nil; m = m.next {
		if r, ok := m.take(key); ok {
			if err := ospage.ReturnPages(r); err != nil {
				return allocator.NewError("unsynchronized.Return", allocator.CodeInternal, err)
			}
			return nil
		}
	}

	return allocator.NewError("unsynchronized.Return", allocator.CodeInvalidInput, nil)
}
