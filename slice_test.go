// SPDX-License-Identifier: Apache-2.0

package allocator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	allocator "github.com/fathomcore/allocators"
	"github.com/fathomcore/allocators/strategy/freelist"
)

func TestSliceAppendWithStrategy(t *testing.T) {
	s := freelist.New(unsyncProvider(t))

	slice := allocator.AllocateSlice[int](s, 3, 3)
	slice[0] = 1
	slice[1] = 2
	slice[2] = 3

	result := allocator.SliceAppend[int](s, slice, 4, 5)

	require.Equal(t, []int{1, 2, 3, 4, 5}, result)
}

func TestAllocateSliceFallsBackWithoutStrategy(t *testing.T) {
	slice := allocator.AllocateSlice[int](nil, 2, 2)
	require.Len(t, slice, 2)
}
