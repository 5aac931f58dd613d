// SPDX-License-Identifier: Apache-2.0

package allocator

// SizePolicy reconciles a strategy's configured block size with header
// overhead and alignment padding.
type SizePolicy int

const (
	// HaveAtLeastSizeBytes requires the usable block body to be at least
	// Size bytes after headers and alignment are subtracted.
	HaveAtLeastSizeBytes SizePolicy = iota

	// NoMoreThanSizeBytes requires the total block, including headers and
	// alignment padding, to never exceed Size bytes.
	NoMoreThanSizeBytes
)

// GrowPolicy controls what happens when a strategy's current block has no
// room left for a request.
type GrowPolicy int

const (
	// GrowStorage requests another superblock from the provider.
	GrowStorage GrowPolicy = iota

	// ReturnNull reports CodeReachedMemoryLimit instead of growing.
	ReturnNull
)

// SearchPolicy selects how the free-list strategy picks a candidate chunk.
type SearchPolicy int

const (
	// BestFit returns the smallest free chunk that fits. It is the zero
	// value, so a Config that leaves Search unset selects it.
	BestFit SearchPolicy = iota

	// FirstFit returns the first free chunk encountered that fits.
	FirstFit

	// WorstFit returns the largest free chunk that fits.
	WorstFit
)

// Config is the shared construction-time configuration surface for
// strategies. Zero-value fields are replaced with the documented defaults
// by each strategy's constructor.
type Config struct {
	// Alignment is the default alignment applied to Find(size) calls and to
	// block-sizing math. Must be a power of two at least MinimumAlignment.
	// Defaults to MinimumAlignment.
	Alignment uintptr

	// Size is the per-block byte target. Defaults to one PageSize.
	Size uintptr

	// SizePolicy reconciles Size with header overhead. Defaults to
	// HaveAtLeastSizeBytes.
	SizePolicy SizePolicy

	// Grow controls on-exhaustion behavior. Defaults to GrowStorage.
	Grow GrowPolicy

	// Search selects the free-list fit policy. Ignored by the bump
	// strategy. Defaults to BestFit.
	Search SearchPolicy
}

// WithDefaults returns a copy of c with zero-value fields replaced by their
// documented defaults.
func (c Config) WithDefaults() Config {
	if c.Alignment == 0 {
		c.Alignment = MinimumAlignment
	}
	if c.Size == 0 {
		c.Size = PageSize
	}
	return c
}

// PageCount reconciles Size and SizePolicy into a page count a Provider can
// be asked for, given headerOverhead bytes of per-block bookkeeping a
// strategy subtracts from every block it receives before handing bytes to a
// caller (zero for strategies with no intrusive header). Zero-value fields
// are defaulted first, via WithDefaults. HaveAtLeastSizeBytes rounds Size
// plus headerOverhead up to whole pages; NoMoreThanSizeBytes rounds Size
// down. Always returns at least 1, so under NoMoreThanSizeBytes a Size below
// one page still yields a one-page block.
func (c Config) PageCount(headerOverhead uintptr) int {
	c = c.WithDefaults()

	var pages int
	switch c.SizePolicy {
	case NoMoreThanSizeBytes:
		pages = int(c.Size / PageSize)
	default: // HaveAtLeastSizeBytes
		target := c.Size + headerOverhead
		pages = int((target + PageSize - 1) / PageSize)
	}

	if pages < 1 {
		pages = 1
	}
	return pages
}
