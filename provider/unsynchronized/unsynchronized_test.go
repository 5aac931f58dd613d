// SPDX-License-Identifier: Apache-2.0

package unsynchronized

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	allocator "github.com/fathomcore/allocators"
)

func TestProvideAndReturnRoundTrip(t *testing.T) {
	p := New()

	ptr, err := p.Provide(1)
	require.NoError(t, err)
	require.NotNil(t, ptr)
	require.Zero(t, uintptr(ptr)%allocator.PageSize)

	require.NoError(t, p.Return(ptr))

	// A second return of the same pointer is now a caller error.
	err = p.Return(ptr)
	require.True(t, allocator.IsCode(err, allocator.CodeInvalidInput))
}

func TestProvideRejectsZeroAndOversizedCount(t *testing.T) {
	p := New()

	_, err := p.Provide(0)
	require.True(t, allocator.IsCode(err, allocator.CodeInvalidInput))

	_, err = p.Provide(maxPageCount + 1)
	require.True(t, allocator.IsCode(err, allocator.CodeInvalidInput))
}

func TestProvideMultiPageSuperblock(t *testing.T) {
	p := New()

	ptr, err := p.Provide(4)
	require.NoError(t, err)
	require.NotNil(t, ptr)

	require.NoError(t, p.Return(ptr))
}

// TestProvideChainsWhenMapFull is scenario F's overflow half: inserting
// beyond a single map's capacity must chain a fresh map page rather than
// fail, and every outstanding superblock (across the chain) must still be
// returnable.
func TestProvideChainsWhenMapFull(t *testing.T) {
	p := New()

	held := make([]uintptr, 0, mapCapacity+1)
	for i := 0; i < mapCapacity+1; i++ {
		ptr, err := p.Provide(1)
		require.NoError(t, err)
		held = append(held, uintptr(ptr))
	}

	// The head map has chained: there must be more than one map in use.
	require.NotNil(t, p.head.next)

	for _, addr := range held {
		require.NoError(t, p.Return(unsafe.Pointer(addr)))
	}
}
