// SPDX-License-Identifier: Apache-2.0

package lockfree

import (
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	allocator "github.com/fathomcore/allocators"
)

func TestProvideReturnsDistinctPages(t *testing.T) {
	p := New(WithLimit(10))

	seen := map[unsafe.Pointer]bool{}
	for i := 0; i < 10; i++ {
		ptr, err := p.Provide(1)
		require.NoError(t, err)
		require.False(t, seen[ptr])
		seen[ptr] = true
	}

	_, err := p.Provide(1)
	require.Error(t, err)
	require.True(t, allocator.IsCode(err, allocator.CodeNoFreeBlock))
}

func TestProvideRejectsUnsupportedCount(t *testing.T) {
	p := New(WithLimit(10))

	_, err := p.Provide(0)
	require.True(t, allocator.IsCode(err, allocator.CodeInvalidInput))

	_, err = p.Provide(2)
	require.True(t, allocator.IsCode(err, allocator.CodeOperationNotSupported))
}

func TestReturnThenProvideReusesSlot(t *testing.T) {
	p := New(WithLimit(4))

	ptr, err := p.Provide(1)
	require.NoError(t, err)

	require.NoError(t, p.Return(ptr))

	ptr2, err := p.Provide(1)
	require.NoError(t, err)
	require.Equal(t, ptr, ptr2)
}

func TestProvidedPageIsPageAlignedAndWritable(t *testing.T) {
	p := New(WithLimit(4))

	ptr, err := p.Provide(1)
	require.NoError(t, err)
	require.Zero(t, uintptr(ptr)%allocator.PageSize)

	b := unsafe.Slice((*byte)(ptr), p.BlockSize())
	for i := range b {
		b[i] = byte(i)
	}
	for i := range b {
		require.Equal(t, byte(i), b[i])
	}
}

// TestConcurrentProvideReturn exercises scenario E: 64 goroutines perform
// random-length Provide/Return pairs concurrently. After everything joins,
// the pool must be back to its starting capacity.
func TestConcurrentProvideReturn(t *testing.T) {
	const limit = 100
	const workers = 64

	p := New(WithLimit(limit))

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		seed := int64(i)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			ops := rng.Intn(50) + 1

			held := make([]unsafe.Pointer, 0, ops)
			for j := 0; j < ops; j++ {
				ptr, err := p.Provide(1)
				if err != nil {
					if allocator.IsCode(err, allocator.CodeNoFreeBlock) {
						continue
					}
					return err
				}
				held = append(held, ptr)
			}
			for _, ptr := range held {
				if err := p.Return(ptr); err != nil {
					return err
				}
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())

	// The pool must be fully drained back to its starting capacity: a
	// further limit Provide calls must all succeed and the (limit+1)-th
	// must fail.
	held := make([]unsafe.Pointer, 0, limit)
	for i := 0; i < limit; i++ {
		ptr, err := p.Provide(1)
		require.NoError(t, err)
		held = append(held, ptr)
	}
	_, err := p.Provide(1)
	require.True(t, allocator.IsCode(err, allocator.CodeNoFreeBlock))

	for _, ptr := range held {
		require.NoError(t, p.Return(ptr))
	}
}

func TestBlockSizeIsOnePage(t *testing.T) {
	p := New()
	require.EqualValues(t, allocator.PageSize, p.BlockSize())
}
