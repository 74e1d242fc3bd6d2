package linker

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boundary/alloc"
	"github.com/wippyai/wasm-boundary/errors"
)

// ReallocExport is the name of the guest allocation entry point.
const ReallocExport = "cabi_realloc"

// GuestRealloc calls a guest's cabi_realloc export. A trap, or a zero
// pointer for a non-zero request, is an allocation failure and aborts.
type GuestRealloc struct {
	ctx context.Context
	fn  api.Function
}

// NewGuestRealloc binds the cabi_realloc export of mod.
func NewGuestRealloc(ctx context.Context, mod api.Module) (*GuestRealloc, error) {
	fn := mod.ExportedFunction(ReallocExport)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseHost, "export", ReallocExport)
	}
	return &GuestRealloc{ctx: ctx, fn: fn}, nil
}

// Realloc implements the cabi_realloc contract on the guest heap.
func (g *GuestRealloc) Realloc(oldPtr, oldSize, align, newSize uint32) uint32 {
	if newSize == 0 && oldPtr == 0 {
		return align
	}

	res, err := g.fn.Call(g.ctx, uint64(oldPtr), uint64(oldSize), uint64(align), uint64(newSize))
	if err != nil {
		abort(errors.AllocationFailed(newSize, align, err))
	}
	if newSize == 0 {
		return align
	}

	ptr := uint32(res[0])
	if ptr == 0 {
		abort(errors.AllocationFailed(newSize, align, nil))
	}
	Logger().Debug("guest realloc",
		zap.Uint32("old", oldPtr),
		zap.Uint32("size", newSize),
		zap.Uint32("ptr", ptr))
	return ptr
}

// Allocator adapts the guest entry point to the Allocator interface.
func (g *GuestRealloc) Allocator() *alloc.ReallocAllocator {
	return alloc.AllocatorFromRealloc(g)
}

func abort(err error) {
	alloc.Abort(err)
	panic(err)
}

// missingRealloc stands in for a guest without cabi_realloc. Anything
// that needs guest memory fails; flat values still work.
type missingRealloc struct{}

func (missingRealloc) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return align, nil
	}
	return 0, errors.NotFound(errors.PhaseHost, "export", ReallocExport)
}

func (missingRealloc) Free(uint32, uint32, uint32) {}
