// SPDX-License-Identifier: Apache-2.0

// Package ospage is the sole path through which this module touches OS
// virtual memory. Everything above it treats page memory as an opaque
// ownership token: a VirtualAddressRange obtained from FetchPages and given
// back, unmodified, to ReturnPages.
package ospage

import (
	"fmt"

	allocator "github.com/fathomcore/allocators"
)

// Code classifies ospage failures. These are internal to the OS layer; the
// provider package maps them onto the public allocator.Code taxonomy before
// they're exposed to callers.
type Code int

const (
	CodeInvalidSize Code = iota + 1
	CodeAllocationFailed
	CodeReleaseFailed
)

func (c Code) String() string {
	switch c {
	case CodeInvalidSize:
		return "invalid_size"
	case CodeAllocationFailed:
		return "allocation_failed"
	case CodeReleaseFailed:
		return "release_failed"
	default:
		return "unknown"
	}
}

// Error is returned by FetchPages and ReturnPages.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ospage: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("ospage: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// FetchPages reserves count*allocator.PageSize bytes of read/write anonymous
// memory and returns its page-aligned base as a VirtualAddressRange. count
// must be greater than zero.
func FetchPages(count int) (allocator.VirtualAddressRange, error) {
	if count <= 0 {
		return allocator.VirtualAddressRange{}, &Error{Code: CodeInvalidSize}
	}
	return fetchPages(count)
}

// ReturnPages releases a region exactly as obtained from FetchPages.
func ReturnPages(r allocator.VirtualAddressRange) error {
	return returnPages(r)
}
