// SPDX-License-Identifier: Apache-2.0

//go:build windows

package ospage

import (
	"errors"

	allocator "github.com/fathomcore/allocators"
)

// ErrUnsupportedPlatform is returned on Windows, where this module specifies
// only the POSIX anonymous-mapping contract (spec §1, §6). A caller wanting
// Windows support should substitute an equivalent reserve/commit facade
// behind the same FetchPages/ReturnPages signatures.
var ErrUnsupportedPlatform = errors.New("ospage: windows page reservation is not implemented")

func fetchPages(count int) (allocator.VirtualAddressRange, error) {
	return allocator.VirtualAddressRange{}, &Error{Code: CodeAllocationFailed, Err: ErrUnsupportedPlatform}
}

func returnPages(r allocator.VirtualAddressRange) error {
	return &Error{Code: CodeReleaseFailed, Err: ErrUnsupportedPlatform}
}
