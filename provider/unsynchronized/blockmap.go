// SPDX-License-Identifier: Apache-2.0

package unsynchronized

import (
	allocator "github.com/fathomcore/allocators"
)

// mapCapacity sizes each blockMap page so a chain of them tracks outstanding
// superblocks without resizing, mirroring the original block_map.hpp's
// fixed-capacity, page-budgeted table.
const mapCapacity = 509

type blockMapEntry struct {
	key      uint64
	value    allocator.VirtualAddressRange
	occupied bool
}

// blockMap is a fixed-capacity, open-addressed hash table tracking
// outstanding VirtualAddressRange records, keyed by superblock base
// address. When full, the provider chains a fresh blockMap onto it rather
// than growing it.
type blockMap struct {
	entries [mapCapacity]blockMapEntry
	size    int
	next    *blockMap
}

func hashKey(key uint64) uint64 {
	// A cheap 64-bit mix (MurmurHash3's fmix64 finalizer), sufficient for spreading
	// page addresses across the table.
	key ^= key >> 33
	key *= 0xff51afd7ed558ccd
	key ^= key >> 33
	key *= 0xc4ceb9fe1a85ec53
	key ^= key >> 33
	return key
}

func (m *blockMap) isFull() bool { return m.size == mapCapacity }

// insert places value under key at the first unoccupied slot found via
// linear probing. Returns false if the map is full.
func (m *blockMap) insert(key uint64, value allocator.VirtualAddressRange) bool {
	start := int(hashKey(key) % mapCapacity)
	idx := start

	if m.entries[idx].occupied {
		for {
			idx = (idx + 1) % mapCapacity
			if idx == start {
				return false
			}
			if !m.entries[idx].occupied {
				break
			}
		}
	}

	m.entries[idx] = blockMapEntry{key: key, value: value, occupied: true}
	m.size++
	return true
}

// take removes and returns the record stored under key, if present in this
// map (not its chain). The probe stops on the first occupied slot whose key
// doesn't match the target, never on an unoccupied slot — stopping at an
// empty slot would produce false negatives for keys whose probe sequence
// passed through a slot vacated by an earlier take.
func (m *blockMap) take(key uint64) (allocator.VirtualAddressRange, bool) {
	start := int(hashKey(key) % mapCapacity)
	idx := start

	for {
		if m.entries[idx].occupied {
			if m.entries[idx].key == key {
				value := m.entries[idx].value
				m.entries[idx] = blockMapEntry{}
				m.size--
				return value, true
			}
			return allocator.VirtualAddressRange{}, false
		}

		idx = (idx + 1) % mapCapacity
		if idx == start {
			return allocator.VirtualAddressRange{}, false
		}
	}
}
