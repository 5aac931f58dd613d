// SPDX-License-Identifier: Apache-2.0

package allocator

import "fmt"

// Code classifies the failure mode of an allocator operation. The set is
// deliberately small and closed: every fallible call in this module returns
// one of these, never an ad-hoc string.
type Code int

const (
	// CodeInvalidInput covers null pointers, zero sizes, and malformed
	// alignment requests detected without contacting a provider.
	CodeInvalidInput Code = iota + 1

	// CodeSizeRequestTooLarge means the request, after accounting for
	// headers and alignment, exceeds the block size a strategy is
	// configured with.
	CodeSizeRequestTooLarge

	// CodeReachedMemoryLimit means the strategy is configured not to grow
	// and the current block has no room left for the request.
	CodeReachedMemoryLimit

	// CodeNoFreeBlock means growth is allowed but the provider has no more
	// superblocks to hand out.
	CodeNoFreeBlock

	// CodeOutOfMemory means the OS refused a page-reservation request.
	CodeOutOfMemory

	// CodeOperationNotSupported means the strategy doesn't implement the
	// requested capability (e.g. per-object Return on a bump strategy).
	CodeOperationNotSupported

	// CodeInternal means an invariant that should be unreachable was
	// violated. Triggering it is a bug in this module, not caller error.
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeInvalidInput:
		return "invalid_input"
	case CodeSizeRequestTooLarge:
		return "size_request_too_large"
	case CodeReachedMemoryLimit:
		return "reached_memory_limit"
	case CodeNoFreeBlock:
		return "no_free_block"
	case CodeOutOfMemory:
		return "out_of_memory"
	case CodeOperationNotSupported:
		return "operation_not_supported"
	case CodeInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the error value returned by every fallible allocator operation.
// Op names the failing call (e.g. "bump.Find", "lockfree.Provide") and Err,
// when set, carries the underlying cause (often an *ospage.Error).
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code, so that callers
// can check a code with errors.Is(err, allocator.NewError("", code, nil));
// Op and Err of target are ignored. IsCode is the shorter form.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// NewError constructs an *Error for the given operation, code and optional
// wrapped cause.
func NewError(op string, code Code, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// IsCode reports whether the first *Error found in err's Unwrap chain carries
// code. Causes wrapped inside that *Error are not examined.
func IsCode(err error, code Code) bool {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			return ae.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
