package wasmboundary

// Memory is a linear memory shared across the boundary.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates buffers in linear memory.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// Realloc is the reciprocal allocation entry point, cabi_realloc.
//
// A newSize of zero returns align as a sentinel pointer that must never be
// dereferenced. Any other request that cannot be satisfied aborts the
// process; there is no error return.
type Realloc interface {
	Realloc(oldPtr, oldSize, align, newSize uint32) uint32
}
