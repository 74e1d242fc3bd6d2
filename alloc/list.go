package alloc

import (
	"sync"

	wasmboundary "github.com/wippyai/wasm-boundary"
)

// Allocation is one block recorded by a List.
type Allocation struct {
	Ptr   uint32
	Size  uint32
	Align uint32
}

// List tracks the blocks allocated while lowering one call. On error the
// blocks are freed; on success ownership has passed to the callee and the
// list simply forgets them.
//
// Ownership moves that must only happen once the whole call has lowered,
// such as taking the handle out of an owning proxy, are queued with
// OnForget. Forget runs them; FreeAll and Release discard them.
type List struct {
	allocations []Allocation
	moves       []func()
}

var listPool = sync.Pool{
	New: func() any {
		return &List{allocations: make([]Allocation, 0, 8)}
	},
}

const maxPooledListCapacity = 128

// NewList returns an empty list from the pool.
func NewList() *List {
	return listPool.Get().(*List)
}

// Release returns the list to the pool. The list must not be used after.
func (l *List) Release() {
	if cap(l.allocations) > maxPooledListCapacity {
		return
	}
	l.allocations = l.allocations[:0]
	clear(l.moves)
	l.moves = l.moves[:0]
	listPool.Put(l)
}

// Add records a block. Zero-size sentinel blocks are not recorded.
func (l *List) Add(ptr, size, align uint32) {
	if size == 0 {
		return
	}
	l.allocations = append(l.allocations, Allocation{Ptr: ptr, Size: size, Align: align})
}

// FreeAll frees every recorded block in reverse order and empties the list.
func (l *List) FreeAll(a wasmboundary.Allocator) {
	if a != nil {
		for i := len(l.allocations) - 1; i >= 0; i-- {
			blk := l.allocations[i]
			if blk.Ptr != 0 {
				a.Free(blk.Ptr, blk.Size, blk.Align)
			}
		}
	}
	l.allocations = l.allocations[:0]
	clear(l.moves)
	l.moves = l.moves[:0]
}

// OnForget queues fn to run when the list is forgotten.
func (l *List) OnForget(fn func()) {
	l.moves = append(l.moves, fn)
}

// Forget empties the list without freeing: the blocks were leaked to the
// far side, which now owns them. Queued moves run in order.
func (l *List) Forget() {
	l.allocations = l.allocations[:0]
	moves := l.moves
	l.moves = nil
	for _, fn := range moves {
		fn()
	}
}

// Moves returns the number of queued moves.
func (l *List) Moves() int {
	return len(l.moves)
}

// Count returns the number of recorded blocks.
func (l *List) Count() int {
	return len(l.allocations)
}

// Entries returns the recorded blocks.
func (l *List) Entries() []Allocation {
	return l.allocations
}
