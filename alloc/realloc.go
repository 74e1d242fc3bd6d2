package alloc

import (
	"github.com/davidmdm/x/xruntime"
	"go.uber.org/zap"

	wasmboundary "github.com/wippyai/wasm-boundary"
	"github.com/wippyai/wasm-boundary/errors"
)

// Abort terminates the process after an unrecoverable allocation failure.
// Allocation failures have no recovery path across the boundary, so every
// allocator in this module reports them here instead of returning an error.
//
// Tests may replace Abort; a replacement must not return normally, or the
// allocator that called it will panic with the failure instead.
var Abort = func(err error) {
	Logger().Fatal("allocation failure",
		zap.Error(err),
		zap.String("stack", xruntime.CallStack(-1).String()))
}

// fail reports err through Abort. If a replaced Abort returns, the error is
// raised as a panic so that no caller ever sees a bogus pointer.
func fail(err error) {
	Abort(err)
	panic(err)
}

// IsPowerOfTwo reports whether align is a valid alignment.
func IsPowerOfTwo(align uint32) bool {
	return align != 0 && align&(align-1) == 0
}

// AlignTo rounds offset up to a multiple of align.
func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// ReallocAllocator adapts a Realloc entry point to the Allocator interface.
type ReallocAllocator struct {
	R wasmboundary.Realloc
}

// AllocatorFromRealloc wraps r so it can be used wherever an Allocator is
// expected. Free is realloc with a zero new size.
func AllocatorFromRealloc(r wasmboundary.Realloc) *ReallocAllocator {
	return &ReallocAllocator{R: r}
}

// Alloc allocates size bytes. A zero size returns the align sentinel without
// touching the underlying allocator.
func (a *ReallocAllocator) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return align, nil
	}
	return a.R.Realloc(0, 0, align, size), nil
}

// Free releases a block previously returned by Alloc.
func (a *ReallocAllocator) Free(ptr, size, align uint32) {
	if ptr == 0 || size == 0 {
		return
	}
	a.R.Realloc(ptr, size, align, 0)
}

// Realloc forwards to the wrapped entry point.
func (a *ReallocAllocator) Realloc(oldPtr, oldSize, align, newSize uint32) uint32 {
	return a.R.Realloc(oldPtr, oldSize, align, newSize)
}

func invalidAlign(align uint32) error {
	return errors.New(errors.PhaseAlloc, errors.KindAllocation).
		Value(align).
		Detail("alignment %d is not a power of two", align).
		Build()
}
