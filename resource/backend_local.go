package resource

import (
	"sync"

	"github.com/wippyai/wasm-boundary/errors"
)

// LocalBackend is the slot storage behind a Table: a dense entries slice
// indexed by handle-1 plus a LIFO free list of dropped handles.
type LocalBackend struct {
	entries  []entry
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value       any
	typeID      uint32
	rep         uint32
	borrowCount uint32
	ownership   Ownership
	valid       bool
}

// Slot is a copy of an entry handed out of the lock.
type Slot struct {
	Value     any
	TypeID    uint32
	Ownership Ownership
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

func (b *LocalBackend) insert(e entry) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.Closed(errors.PhaseHandle, "handle table")
	}

	e.valid = true
	if n := len(b.freeList); n > 0 {
		handle := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		b.entries[handle-1] = e
		return handle, nil
	}

	b.entries = append(b.entries, e)
	return Handle(len(b.entries)), nil
}

// Create stores a value and returns a fresh or recycled handle.
func (b *LocalBackend) Create(typeID uint32, value any, own Ownership) (Handle, error) {
	return b.insert(entry{typeID: typeID, value: value, ownership: own})
}

// NewFromRep creates a handle from a representation value, the
// resource.new intrinsic.
func (b *LocalBackend) NewFromRep(typeID uint32, rep uint32) (Handle, error) {
	return b.insert(entry{typeID: typeID, rep: rep, ownership: Own})
}

// lookup must be called with b.mu held.
func (b *LocalBackend) lookup(handle Handle) (*entry, bool) {
	if handle == 0 {
		return nil, false
	}
	idx := int(handle - 1)
	if idx >= len(b.entries) {
		return nil, false
	}
	e := &b.entries[idx]
	if !e.valid {
		return nil, false
	}
	return e, true
}

// Get retrieves a live slot by handle.
func (b *LocalBackend) Get(handle Handle) (Slot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup(handle)
	if !ok {
		return Slot{}, false
	}
	return Slot{Value: e.value, TypeID: e.typeID, Ownership: e.ownership}, true
}

// Rep returns the representation value for a handle.
func (b *LocalBackend) Rep(handle Handle) (uint32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup(handle)
	if !ok {
		return 0, false
	}
	return e.rep, true
}

// Remove frees the slot and returns its contents. The caller decides
// whether the value is destroyed. Fails while borrows are outstanding.
func (b *LocalBackend) Remove(handle Handle) (Slot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.lookup(handle)
	if !ok {
		return Slot{}, errors.InvalidHandle(errors.PhaseHandle, uint32(handle))
	}
	if e.borrowCount > 0 {
		return Slot{}, errors.New(errors.PhaseHandle, errors.KindProtocolViolation).
			Handle(uint32(handle)).
			Detail("drop with %d outstanding borrow(s)", e.borrowCount).
			Build()
	}

	s := Slot{Value: e.value, TypeID: e.typeID, Ownership: e.ownership}
	*e = entry{}
	b.freeList = append(b.freeList, handle)
	return s, nil
}

// Borrow increments the borrow count for a handle.
func (b *LocalBackend) Borrow(handle Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.lookup(handle)
	if !ok {
		return false
	}
	e.borrowCount++
	return true
}

// ReturnBorrow decrements the borrow count for a handle.
func (b *LocalBackend) ReturnBorrow(handle Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.lookup(handle)
	if !ok || e.borrowCount == 0 {
		return false
	}
	e.borrowCount--
	return true
}

// Borrows returns the outstanding borrow count for a handle.
func (b *LocalBackend) Borrows(handle Handle) uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup(handle)
	if !ok {
		return 0
	}
	return e.borrowCount
}

// Len returns the number of live slots.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.entries) - len(b.freeList)
}

// Each iterates over live slots in handle order.
func (b *LocalBackend) Each(fn func(Handle, Slot) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(Handle(i+1), Slot{Value: e.value, TypeID: e.typeID, Ownership: e.ownership}) {
				break
			}
		}
	}
}

// Close marks the backend closed and drains every live slot. The caller
// destroys the returned values outside the lock.
func (b *LocalBackend) Close() []Slot {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var live []Slot
	for i := range b.entries {
		e := &b.entries[i]
		if e.valid {
			live = append(live, Slot{Value: e.value, TypeID: e.typeID, Ownership: e.ownership})
		}
	}

	b.entries = nil
	b.freeList = nil
	return live
}
