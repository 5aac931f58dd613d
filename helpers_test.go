// SPDX-License-Identifier: Apache-2.0

package allocator_test

import (
	"testing"

	allocator "github.com/fathomcore/allocators"
	"github.com/fathomcore/allocators/provider/unsynchronized"
)

// unsyncProvider builds a fresh unsynchronized.Provider for a test.
func unsyncProvider(t *testing.T) allocator.Provider {
	t.Helper()
	return unsynchronized.New()
}
