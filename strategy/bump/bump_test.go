// SPDX-License-Identifier: Apache-2.0

package bump_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	allocator "github.com/fathomcore/allocators"
	"github.com/fathomcore/allocators/provider/lockfree"
	"github.com/fathomcore/allocators/strategy/bump"
)

// sliceProvider is a tiny in-memory allocator.Provider used so bump's
// allocation logic can be tested without touching the OS. Each Provide call
// hands out a freshly zeroed Go byte slice of the fixed block size.
type sliceProvider struct {
	blockSize int
	issued    map[unsafe.Pointer][]byte
}

func newSliceProvider(blockSize int) *sliceProvider {
	return &sliceProvider{blockSize: blockSize, issued: map[unsafe.Pointer][]byte{}}
}

func (p *sliceProvider) Provide(count int) (unsafe.Pointer, error) {
	if count < 1 {
		return nil, allocator.NewError("sliceProvider.Provide", allocator.CodeInvalidInput, nil)
	}
	buf := make([]byte, p.blockSize*count)
	ptr := unsafe.Pointer(unsafe.SliceData(buf))
	p.issued[ptr] = buf
	return ptr, nil
}

func (p *sliceProvider) Return(ptr unsafe.Pointer) error {
	if _, ok := p.issued[ptr]; !ok {
		return allocator.NewError("sliceProvider.Return", allocator.CodeInvalidInput, nil)
	}
	delete(p.issued, ptr)
	return nil
}

func (p *sliceProvider) BlockSize() int { return p.blockSize }

type sizeOfT = uint64

const sizeOfTBytes = unsafe.Sizeof(sizeOfT(0))

// TestBumpReturnsNeighboringAllocations is scenario B: a block sized for
// exactly ten SizeOfT objects, ReturnNull policy. Ten allocations succeed
// and land contiguously; the eleventh hits the memory limit; Return always
// fails; Reset makes room for ten more.
func TestBumpReturnsNeighboringAllocations(t *testing.T) {
	provider := newSliceProvider(int(sizeOfTBytes) * 10)
	s := bump.New(provider, bump.WithGrowPolicy(allocator.ReturnNull))

	var addrs [10]uintptr
	for i := 0; i < 10; i++ {
		ptr, err := s.FindSize(sizeOfTBytes)
		require.NoError(t, err)
		addrs[i] = uintptr(ptr)
	}
	for i := 0; i < 9; i++ {
		require.Equal(t, addrs[i]+sizeOfTBytes, addrs[i+1])
	}

	_, err := s.FindSize(sizeOfTBytes)
	require.True(t, allocator.IsCode(err, allocator.CodeReachedMemoryLimit))

	err = s.Return(unsafe.Pointer(addrs[0]))
	require.True(t, allocator.IsCode(err, allocator.CodeOperationNotSupported))

	require.NoError(t, s.Reset())

	for i := 0; i < 10; i++ {
		_, err := s.FindSize(sizeOfTBytes)
		require.NoError(t, err)
	}
}

// TestBumpGrowsAcrossBlocks is scenario C: grow-when-full across page
// blocks. Serial allocations filling two page blocks all succeed, the second
// block coming from growth; Reset succeeds and returns both; a subsequent
// oversize request reports CodeSizeRequestTooLarge.
func TestBumpGrowsAcrossBlocks(t *testing.T) {
	provider := newSliceProvider(int(allocator.PageSize))
	s := bump.New(provider, bump.WithGrowPolicy(allocator.GrowStorage))

	n := 2 * int(allocator.PageSize/sizeOfTBytes)
	for i := 0; i < n; i++ {
		_, err := s.FindSize(sizeOfTBytes)
		require.NoError(t, err)
	}
	require.Len(t, provider.issued, 2)

	require.NoError(t, s.Reset())
	require.Empty(t, provider.issued)

	_, err := s.FindSize(uintptr(provider.BlockSize()) + 1)
	require.True(t, allocator.IsCode(err, allocator.CodeSizeRequestTooLarge))
}

func TestBumpAlignment(t *testing.T) {
	provider := newSliceProvider(int(allocator.PageSize))
	s := bump.New(provider)

	ptr, err := s.Find(allocator.Layout{Size: 3, Alignment: 16})
	require.NoError(t, err)
	require.Zero(t, uintptr(ptr)%16)
}

func TestBumpResetIdempotent(t *testing.T) {
	provider := newSliceProvider(int(allocator.PageSize))
	s := bump.New(provider)

	_, err := s.FindSize(8)
	require.NoError(t, err)

	require.NoError(t, s.Reset())
	require.NoError(t, s.Reset())

	require.Empty(t, provider.issued)
}

// TestBumpConcurrentAllocationsAreDistinctAndContained exercises property 9
// against the lock-free bump strategy layered on the lock-free page
// provider: concurrent Find calls of one equal size never hand out the same
// address twice.
func TestBumpConcurrentAllocationsAreDistinctAndContained(t *testing.T) {
	provider := lockfree.New(lockfree.WithLimit(64))
	s := bump.New(provider, bump.WithGrowPolicy(allocator.GrowStorage))

	const workers = 32
	const perWorker = 50

	results := make([][perWorker]uintptr, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				ptr, err := s.FindSize(64)
				if err != nil {
					return err
				}
				results[w][i] = uintptr(ptr)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := map[uintptr]bool{}
	for _, row := range results {
		for _, addr := range row {
			require.False(t, seen[addr], "address %x allocated twice", addr)
			seen[addr] = true
		}
	}

	require.NoError(t, s.Reset())
}

// TestBumpConfigSizesSuperblocks confirms WithConfig drives how many pages
// each superblock spans. The bump strategy has no per-block header, so
// HaveAtLeastSizeBytes and NoMoreThanSizeBytes agree here: both reconcile
// Size into the same page count.
func TestBumpConfigSizesSuperblocks(t *testing.T) {
	provider := newSliceProvider(int(allocator.PageSize))
	cfg := allocator.Config{Size: 3 * allocator.PageSize}
	s := bump.New(provider, bump.WithConfig(cfg))

	_, err := s.FindSize(16)
	require.NoError(t, err)

	require.Len(t, provider.issued, 1)
	for _, buf := range provider.issued {
		require.Len(t, buf, 3*int(allocator.PageSize))
	}
}
