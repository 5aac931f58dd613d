// SPDX-License-Identifier: Apache-2.0

//go:build !(darwin && arm64)

package allocator

// PageSize is the native page size for every platform other than 64-bit
// Apple silicon: 4KiB.
const PageSize = 1 << 12
