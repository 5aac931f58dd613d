// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package ospage

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	allocator "github.com/fathomcore/allocators"
)

// fetchPages reserves an anonymous, private, read/write mapping sized to an
// exact multiple of allocator.PageSize, mirroring
// other_examples/rclone-rclone__mmap_unix.go's use of unix.Mmap.
func fetchPages(count int) (allocator.VirtualAddressRange, error) {
	size := count * int(allocator.PageSize)

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return allocator.VirtualAddressRange{}, &Error{Code: CodeAllocationFailed, Err: errors.Wrap(err, "mmap")}
	}

	base := uintptr(unsafe.Pointer(&mem[0]))
	return allocator.VirtualAddressRange{Address: base, PageCount: uint32(count)}, nil
}

// returnPages releases a mapping previously obtained from fetchPages.
func returnPages(r allocator.VirtualAddressRange) error {
	size := int(r.Size())
	mem := unsafe.Slice((*byte)(unsafe.Pointer(r.Address)), size)

	if err := unix.Munmap(mem); err != nil {
		return &Error{Code: CodeReleaseFailed, Err: errors.Wrap(err, "munmap")}
	}
	return nil
}
