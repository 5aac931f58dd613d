// SPDX-License-Identifier: Apache-2.0

package allocator

import (
	"unsafe"
)

const growThreshold = 256

// AllocateSlice creates a slice of type T with a given length and capacity,
// using the provided Strategy for memory allocation. If s is non-nil and the
// allocation succeeds, the returned slice is backed by memory from s;
// otherwise it falls back to Go's built-in make.
func AllocateSlice[T any](s Strategy, length, capacity int) []T {
	if s != nil {
		var x T
		bufSize := uintptr(capacity) * unsafe.Sizeof(x)
		if ptr, err := s.Find(Layout{Size: bufSize, Alignment: unsafe.Alignof(x)}); err == nil && ptr != nil {
			out := unsafe.Slice((*T)(ptr), capacity)
			return out[:length]
		}
	}
	return make([]T, length, capacity)
}

// SliceAppend appends elements to a slice of type T, growing it through the
// provided Strategy when its capacity is exhausted.
func SliceAppend[T any](s Strategy, slice []T, data ...T) []T {
	if s == nil {
		return append(slice, data...)
	}
	slice = growSlice(s, slice, len(data))
	slice = append(slice, data...)
	return slice
}

func growSlice[T any](s Strategy, slice []T, dataLen int) []T {
	newCap := nextCapacity(cap(slice), len(slice)+dataLen)
	if newCap == cap(slice) {
		return slice
	}
	grown := AllocateSlice[T](s, len(slice), newCap)
	copy(grown, slice)
	return grown
}

// nextCapacity computes the smallest capacity at least need, growing from
// current by doubling below growThreshold elements and by 25% above it.
// Shared by growSlice and Buffer's own strategy-backed growth.
func nextCapacity(current, need int) int {
	newCap := current
	if newCap > 0 {
		for need > newCap {
			if newCap < growThreshold {
				newCap *= 2
			} else {
				newCap += newCap / 4
			}
		}
	} else {
		newCap = need
	}
	return newCap
}
