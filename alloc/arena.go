package alloc

import (
	"encoding/binary"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-boundary/errors"
)

const (
	// arenaBase is the first address handed out. Everything below it is
	// reserved so that 0 and the small alignment sentinels are never live.
	arenaBase = 64

	// blockGranule is the size-class granularity of reused blocks.
	blockGranule = 8

	// DefaultArenaLimit caps an arena created with a zero limit.
	DefaultArenaLimit = 64 << 20
)

// Arena is a linear memory backed by a Go byte slice. It implements Memory,
// Allocator and the Realloc contract, and plays the role of the host side of
// cabi_realloc: buffers lowered into it can be handed across the boundary by
// address and length.
//
// Freed blocks are kept on per-size free lists and reused first-fit. The
// slice grows by doubling up to the configured limit; exceeding the limit
// aborts through Abort.
type Arena struct {
	mem    []byte
	blocks map[uint32]uint32   // live ptr -> block capacity
	free   map[uint32][]uint32 // capacity -> freed ptrs
	top    uint32
	limit  uint32
	mu     sync.Mutex
}

// NewArena creates an arena with initial bytes of backing storage that may
// grow up to limit bytes. A zero limit uses DefaultArenaLimit.
func NewArena(initial, limit uint32) *Arena {
	if limit == 0 {
		limit = DefaultArenaLimit
	}
	if initial < arenaBase {
		initial = arenaBase
	}
	if initial > limit {
		initial = limit
	}
	return &Arena{
		mem:    make([]byte, initial),
		blocks: make(map[uint32]uint32),
		free:   make(map[uint32][]uint32),
		top:    arenaBase,
		limit:  limit,
	}
}

// Realloc implements the cabi_realloc contract.
//
//   - newSize == 0 frees oldPtr (if any) and returns align, which must never
//     be dereferenced.
//   - oldPtr == 0 or oldSize == 0 allocates a fresh block.
//   - otherwise the block is resized, preserving min(oldSize, newSize) bytes.
//
// Any failure aborts.
func (a *Arena) Realloc(oldPtr, oldSize, align, newSize uint32) uint32 {
	if !IsPowerOfTwo(align) {
		fail(invalidAlign(align))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if newSize == 0 {
		if oldPtr != 0 && oldSize != 0 {
			a.freeLocked(oldPtr)
		}
		return align
	}

	if oldPtr == 0 || oldSize == 0 {
		return a.allocLocked(newSize, align)
	}

	capacity, ok := a.blocks[oldPtr]
	if !ok {
		fail(errors.New(errors.PhaseAlloc, errors.KindAllocation).
			Value(oldPtr).
			Detail("realloc of unknown block %d", oldPtr).
			Build())
	}
	if newSize <= capacity && oldPtr%align == 0 {
		return oldPtr
	}

	ptr := a.allocLocked(newSize, align)
	n := min(oldSize, newSize, capacity)
	copy(a.mem[ptr:ptr+n], a.mem[oldPtr:oldPtr+n])
	a.freeLocked(oldPtr)
	return ptr
}

// Alloc allocates size bytes. It never returns an error: failure aborts.
func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		if !IsPowerOfTwo(align) {
			fail(invalidAlign(align))
		}
		return align, nil
	}
	return a.Realloc(0, 0, align, size), nil
}

// TryAlloc is Alloc for callers that can recover: it reports failure as an
// allocation error instead of aborting.
func (a *Arena) TryAlloc(size, align uint32) (ptr uint32, err error) {
	if !IsPowerOfTwo(align) {
		return 0, invalidAlign(align)
	}
	if size == 0 {
		return align, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ptr, ok := a.tryAllocLocked(size, align)
	if !ok {
		return 0, errors.AllocationFailed(size, align, nil)
	}
	return ptr, nil
}

// Free releases a block. Zero-size frees and sentinel pointers are ignored.
func (a *Arena) Free(ptr, size, align uint32) {
	if ptr == 0 || size == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeLocked(ptr)
}

// Live returns the number of allocated blocks.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.blocks)
}

// Size returns the current size of the backing storage.
func (a *Arena) Size() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint32(len(a.mem))
}

func (a *Arena) allocLocked(size, align uint32) uint32 {
	ptr, ok := a.tryAllocLocked(size, align)
	if !ok {
		fail(errors.AllocationFailed(size, align, nil))
	}
	return ptr
}

func (a *Arena) tryAllocLocked(size, align uint32) (uint32, bool) {
	capacity := AlignTo(size, blockGranule)
	if capacity < size {
		return 0, false
	}

	if list := a.free[capacity]; len(list) > 0 {
		for i := len(list) - 1; i >= 0; i-- {
			ptr := list[i]
			if ptr%align != 0 {
				continue
			}
			a.free[capacity] = append(list[:i], list[i+1:]...)
			a.blocks[ptr] = capacity
			clear(a.mem[ptr : ptr+capacity])
			return ptr, true
		}
	}

	ptr := AlignTo(a.top, align)
	end := uint64(ptr) + uint64(capacity)
	if ptr < a.top || end > uint64(a.limit) {
		Logger().Debug("arena exhausted",
			zap.Uint32("size", size),
			zap.Uint32("align", align),
			zap.Uint32("limit", a.limit))
		return 0, false
	}
	a.grow(uint32(end))

	a.top = uint32(end)
	a.blocks[ptr] = capacity
	return ptr, true
}

func (a *Arena) grow(need uint32) {
	if need <= uint32(len(a.mem)) {
		return
	}
	size := uint64(len(a.mem))
	for size < uint64(need) {
		size *= 2
	}
	if size > uint64(a.limit) {
		size = uint64(a.limit)
	}
	next := make([]byte, size)
	copy(next, a.mem)
	a.mem = next
}

func (a *Arena) freeLocked(ptr uint32) {
	capacity, ok := a.blocks[ptr]
	if !ok {
		// Double free or a pointer this arena never produced.
		panic(errors.ProtocolViolation(errors.PhaseAlloc, "free of unknown block %d", ptr))
	}
	delete(a.blocks, ptr)
	a.free[capacity] = append(a.free[capacity], ptr)
}

func (a *Arena) bounds(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(a.mem)) {
		return errors.OutOfBounds(errors.PhaseAlloc, nil, offset, length)
	}
	return nil
}

// Read returns a copy of length bytes at offset.
func (a *Arena) Read(offset uint32, length uint32) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bounds(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, a.mem[offset:offset+length])
	return out, nil
}

// Write copies data to offset.
func (a *Arena) Write(offset uint32, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bounds(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(a.mem[offset:], data)
	return nil
}

// ReadU8 reads an unsigned 8-bit value.
func (a *Arena) ReadU8(offset uint32) (uint8, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bounds(offset, 1); err != nil {
		return 0, err
	}
	return a.mem[offset], nil
}

// ReadU16 reads an unsigned 16-bit little-endian value.
func (a *Arena) ReadU16(offset uint32) (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bounds(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(a.mem[offset:]), nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (a *Arena) ReadU32(offset uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bounds(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(a.mem[offset:]), nil
}

// ReadU64 reads an unsigned 64-bit little-endian value.
func (a *Arena) ReadU64(offset uint32) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bounds(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(a.mem[offset:]), nil
}

// WriteU8 writes an unsigned 8-bit value.
func (a *Arena) WriteU8(offset uint32, value uint8) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bounds(offset, 1); err != nil {
		return err
	}
	a.mem[offset] = value
	return nil
}

// WriteU16 writes an unsigned 16-bit little-endian value.
func (a *Arena) WriteU16(offset uint32, value uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bounds(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(a.mem[offset:], value)
	return nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (a *Arena) WriteU32(offset uint32, value uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bounds(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(a.mem[offset:], value)
	return nil
}

// WriteU64 writes an unsigned 64-bit little-endian value.
func (a *Arena) WriteU64(offset uint32, value uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bounds(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(a.mem[offset:], value)
	return nil
}

// View returns the live bytes at offset without copying. The slice is valid
// until the arena next grows.
func (a *Arena) View(offset, length uint32) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bounds(offset, length) != nil {
		return nil, false
	}
	return a.mem[offset : offset+length : offset+length], true
}
