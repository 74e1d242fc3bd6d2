package alloc

import (
	wasmboundary "github.com/wippyai/wasm-boundary"
	"github.com/wippyai/wasm-boundary/errors"
)

// Buffer is an ownership token for a block of linear memory. Exactly one
// party owns a buffer at a time: the producer frees it, unless it leaks it
// to the far side, in which case the receiver adopts and frees it.
type Buffer struct {
	alloc wasmboundary.Allocator
	ptr   uint32
	size  uint32
	align uint32
	owned bool
}

// NewBuffer allocates size bytes and returns the owning token. A zero size
// yields the align sentinel, which owns nothing.
func NewBuffer(a wasmboundary.Allocator, size, align uint32) (*Buffer, error) {
	if size == 0 {
		return &Buffer{alloc: a, ptr: align, align: align}, nil
	}
	ptr, err := a.Alloc(size, align)
	if err != nil {
		return nil, err
	}
	return &Buffer{alloc: a, ptr: ptr, size: size, align: align, owned: true}, nil
}

// Adopt takes ownership of a buffer leaked by the far side.
func Adopt(a wasmboundary.Allocator, ptr, size, align uint32) *Buffer {
	return &Buffer{alloc: a, ptr: ptr, size: size, align: align, owned: size != 0}
}

// Ptr returns the buffer address.
func (b *Buffer) Ptr() uint32 { return b.ptr }

// Len returns the buffer length in bytes.
func (b *Buffer) Len() uint32 { return b.size }

// Owned reports whether this token is still responsible for freeing.
func (b *Buffer) Owned() bool { return b.owned }

// Write copies data into the buffer at offset.
func (b *Buffer) Write(mem wasmboundary.Memory, offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(b.size) {
		return errors.OutOfBounds(errors.PhaseAlloc, nil, offset, uint32(len(data)))
	}
	if len(data) == 0 {
		return nil
	}
	return mem.Write(b.ptr+offset, data)
}

// Bytes reads the buffer contents.
func (b *Buffer) Bytes(mem wasmboundary.Memory) ([]byte, error) {
	if b.size == 0 {
		return []byte{}, nil
	}
	return mem.Read(b.ptr, b.size)
}

// Leak transfers ownership to the far side and returns the (ptr, len) pair
// to put on the wire. After Leak, Free is a no-op.
func (b *Buffer) Leak() (ptr, size uint32) {
	b.owned = false
	return b.ptr, b.size
}

// Free releases the buffer if this token still owns it. Free is idempotent.
func (b *Buffer) Free() {
	if !b.owned {
		return
	}
	b.owned = false
	b.alloc.Free(b.ptr, b.size, b.align)
}
