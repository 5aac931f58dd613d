// SPDX-License-Identifier: Apache-2.0

package allocator

import (
	"unsafe"
)

// Allocate allocates memory for a value of type T using the provided
// Strategy. If s is non-nil and FindSize succeeds, it returns a *T backed by
// that memory. Otherwise it falls back to Go's built-in new.
func Allocate[T any](s Strategy) *T {
	if s != nil {
		var x T
		if ptr, err := s.FindSize(unsafe.Sizeof(x)); err == nil && ptr != nil {
			return (*T)(ptr)
		}
	}
	return new(T)
}
