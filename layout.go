// SPDX-License-Identifier: Apache-2.0

package allocator

import "unsafe"

// MinimumAlignment is the smallest alignment any strategy will accept: the
// machine word size.
const MinimumAlignment = unsafe.Sizeof(uintptr(0))

// Layout describes a single allocation request: Size bytes, aligned to
// Alignment, which must be a power of two no smaller than MinimumAlignment.
type Layout struct {
	Size      uintptr
	Alignment uintptr
}

// NewLayout builds a Layout with the minimum machine alignment.
func NewLayout(size uintptr) Layout {
	return Layout{Size: size, Alignment: MinimumAlignment}
}

// Valid reports whether the layout satisfies the invariants required by
// every strategy in this module: non-zero size, power-of-two alignment no
// smaller than the machine word size.
func (l Layout) Valid() bool {
	return l.Size > 0 && IsValidAlignment(l.Alignment)
}

// IsPowerOfTwo reports whether n is a power of two. Zero is not a power of
// two.
func IsPowerOfTwo(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}

// IsValidAlignment reports whether alignment is a power of two at least
// MinimumAlignment.
func IsValidAlignment(alignment uintptr) bool {
	return alignment >= MinimumAlignment && IsPowerOfTwo(alignment)
}

// AlignUp rounds n up to the nearest multiple of alignment. alignment must
// be a power of two. Returns 0 if n or alignment is 0.
func AlignUp(n, alignment uintptr) uintptr {
	if n == 0 || alignment == 0 {
		return 0
	}
	return (n + alignment - 1) &^ (alignment - 1)
}

// AlignDown rounds n down to the nearest multiple of alignment. alignment
// must be a power of two. Returns 0 if n or alignment is 0.
func AlignDown(n, alignment uintptr) uintptr {
	if n == 0 || alignment == 0 {
		return 0
	}
	return n &^ (alignment - 1)
}

// VirtualAddressRange is a contiguous, page-aligned region of virtual
// memory: PageCount pages starting at Address. Packed and
// UnpackVirtualAddressRange convert to and from a compact 64-bit form
// (48-bit address, 16-bit page count) for callers that want it; the round
// trip holds only for page counts up to 0xFFFF, since Packed keeps the low
// 16 bits of PageCount. The struct itself keeps the fields separate so the
// Go GC never mistakes a packed word for a pointer.
type VirtualAddressRange struct {
	Address   uintptr
	PageCount uint32
}

// Size returns the byte size of the range: PageCount * PageSize.
func (r VirtualAddressRange) Size() uintptr {
	return uintptr(r.PageCount) * PageSize
}

// Valid reports whether the range satisfies the data-model invariants:
// non-zero page count and a page-aligned address.
func (r VirtualAddressRange) Valid() bool {
	return r.PageCount > 0 && r.Address%PageSize == 0
}

// Packed returns the range encoded as (address:48 | pageCount:16).
func (r VirtualAddressRange) Packed() uint64 {
	return (uint64(r.Address) & 0xFFFFFFFFFFFF) | (uint64(r.PageCount&0xFFFF) << 48)
}

// UnpackVirtualAddressRange decodes a value previously produced by Packed.
func UnpackVirtualAddressRange(v uint64) VirtualAddressRange {
	return VirtualAddressRange{
		Address:   uintptr(v & 0xFFFFFFFFFFFF),
		PageCount: uint32((v >> 48) & 0xFFFF),
	}
}
