package alloc

import (
	"bytes"
	"errors"
	"testing"

	errs "github.com/wippyai/wasm-boundary/errors"
)

type abortSignal struct {
	err error
}

// trapAbort replaces Abort for the duration of a test so failures surface
// as a recoverable panic.
func trapAbort(t *testing.T) {
	t.Helper()
	prev := Abort
	Abort = func(err error) { panic(abortSignal{err: err}) }
	t.Cleanup(func() { Abort = prev })
}

func expectAbort(t *testing.T, fn func()) error {
	t.Helper()
	var got error
	func() {
		defer func() {
			r := recover()
			sig, ok := r.(abortSignal)
			if !ok {
				t.Fatalf("expected abort, recovered %v", r)
			}
			got = sig.err
		}()
		fn()
	}()
	return got
}

func TestArena_ZeroSizeReturnsAlign(t *testing.T) {
	a := NewArena(1024, 0)

	for _, align := range []uint32{1, 2, 4, 8, 16, 64} {
		if got := a.Realloc(0, 0, align, 0); got != align {
			t.Errorf("Realloc(0, 0, %d, 0) = %d, want %d", align, got, align)
		}
	}
	if a.Live() != 0 {
		t.Fatalf("zero-size requests allocated %d blocks", a.Live())
	}

	head, _ := a.Read(0, arenaBase)
	if !bytes.Equal(head, make([]byte, arenaBase)) {
		t.Fatal("reserved region below the first block was written")
	}
}

func TestArena_ZeroSizeFreesOldBlock(t *testing.T) {
	a := NewArena(1024, 0)

	p := a.Realloc(0, 0, 4, 32)
	if got := a.Realloc(p, 32, 4, 0); got != 4 {
		t.Fatalf("shrink to zero returned %d, want sentinel 4", got)
	}
	if a.Live() != 0 {
		t.Fatalf("block not freed, %d live", a.Live())
	}
}

func TestArena_AllocAlignmentAndDisjointness(t *testing.T) {
	a := NewArena(64, 1<<20)

	type block struct{ ptr, size uint32 }
	var blocks []block
	for i, align := range []uint32{1, 2, 4, 8, 16, 4, 1, 32} {
		size := uint32(3 + i*5)
		ptr, err := a.Alloc(size, align)
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		if ptr == 0 {
			t.Fatal("Alloc returned null")
		}
		if ptr%align != 0 {
			t.Fatalf("ptr %d not aligned to %d", ptr, align)
		}
		for _, b := range blocks {
			if ptr < b.ptr+b.size && b.ptr < ptr+size {
				t.Fatalf("block [%d,+%d) overlaps [%d,+%d)", ptr, size, b.ptr, b.size)
			}
		}
		blocks = append(blocks, block{ptr, size})
	}
}

func TestArena_ReallocPreservesPrefix(t *testing.T) {
	a := NewArena(128, 1<<20)

	p := a.Realloc(0, 0, 1, 5)
	if err := a.Write(p, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	// Force a move by growing past the block capacity.
	q := a.Realloc(p, 5, 1, 4096)
	got, err := a.Read(q, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("after grow: %q, want hello", got)
	}

	r := a.Realloc(q, 4096, 1, 2)
	got, _ = a.Read(r, 2)
	if string(got) != "he" {
		t.Fatalf("after shrink: %q, want he", got)
	}
	if a.Live() != 1 {
		t.Fatalf("live blocks = %d, want 1", a.Live())
	}
}

func TestArena_ReusesFreedBlocks(t *testing.T) {
	a := NewArena(1024, 0)

	p, _ := a.Alloc(24, 8)
	a.Free(p, 24, 8)
	q, _ := a.Alloc(20, 8)
	if q != p {
		t.Fatalf("expected reuse of freed block %d, got %d", p, q)
	}
}

func TestArena_ExhaustionAborts(t *testing.T) {
	trapAbort(t)
	a := NewArena(128, 256)

	err := expectAbort(t, func() { a.Realloc(0, 0, 8, 1024) })
	if !errors.Is(err, errs.ErrAllocationFailure) {
		t.Fatalf("abort error = %v, want allocation failure", err)
	}

	if _, err := a.TryAlloc(1024, 8); !errors.Is(err, errs.ErrAllocationFailure) {
		t.Fatalf("TryAlloc = %v, want allocation failure error", err)
	}
}

func TestArena_InvalidAlignAborts(t *testing.T) {
	trapAbort(t)
	a := NewArena(128, 0)

	expectAbort(t, func() { a.Realloc(0, 0, 3, 8) })
	expectAbort(t, func() { a.Alloc(0, 6) })
}

func TestArena_ReallocUnknownBlockAborts(t *testing.T) {
	trapAbort(t)
	a := NewArena(128, 0)
	expectAbort(t, func() { a.Realloc(4000, 8, 4, 16) })
}

func TestArena_DoubleFreePanics(t *testing.T) {
	a := NewArena(128, 0)
	p, _ := a.Alloc(8, 8)
	a.Free(p, 8, 8)

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, errs.ErrProtocolViolation) {
			t.Fatalf("recovered %v, want protocol violation", r)
		}
	}()
	a.Free(p, 8, 8)
	t.Fatal("double free did not panic")
}

func TestArena_MemoryBounds(t *testing.T) {
	a := NewArena(128, 128)

	if err := a.WriteU64(120, 0x0102030405060708); err != nil {
		t.Fatalf("WriteU64 at end: %v", err)
	}
	v, err := a.ReadU64(120)
	if err != nil || v != 0x0102030405060708 {
		t.Fatalf("ReadU64 = %x, %v", v, err)
	}
	if _, err := a.ReadU32(126); !errors.Is(err, &errs.Error{Kind: errs.KindOutOfBounds}) {
		t.Fatalf("ReadU32 past end = %v, want out of bounds", err)
	}
	if err := a.Write(127, []byte{1, 2}); err == nil {
		t.Fatal("Write past end should fail")
	}
	if a.Size() != 128 {
		t.Fatalf("Size = %d, want 128", a.Size())
	}
}

func TestArena_Grows(t *testing.T) {
	a := NewArena(64, 1<<16)
	p, _ := a.Alloc(1000, 4)
	if a.Size() < p+1000 {
		t.Fatalf("arena did not grow: size %d, block end %d", a.Size(), p+1000)
	}
	if err := a.WriteU32(p+996, 7); err != nil {
		t.Fatalf("write to grown region: %v", err)
	}
}

type countingRealloc struct {
	calls [][4]uint32
	next  uint32
}

func (c *countingRealloc) Realloc(oldPtr, oldSize, align, newSize uint32) uint32 {
	c.calls = append(c.calls, [4]uint32{oldPtr, oldSize, align, newSize})
	if newSize == 0 {
		return align
	}
	c.next += 64
	return c.next
}

func TestAllocatorFromRealloc(t *testing.T) {
	r := &countingRealloc{}
	a := AllocatorFromRealloc(r)

	ptr, err := a.Alloc(16, 4)
	if err != nil || ptr == 0 {
		t.Fatalf("Alloc = %d, %v", ptr, err)
	}
	if got, _ := a.Alloc(0, 8); got != 8 {
		t.Fatalf("zero-size Alloc = %d, want 8", got)
	}
	a.Free(ptr, 16, 4)
	a.Free(8, 0, 8)

	want := [][4]uint32{{0, 0, 4, 16}, {ptr, 16, 4, 0}}
	if len(r.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", r.calls, want)
	}
	for i := range want {
		if r.calls[i] != want[i] {
			t.Fatalf("call %d = %v, want %v", i, r.calls[i], want[i])
		}
	}
}

type recordingAllocator struct {
	*Arena
	frees []uint32
}

func (r *recordingAllocator) Free(ptr, size, align uint32) {
	r.frees = append(r.frees, ptr)
	r.Arena.Free(ptr, size, align)
}

func TestBuffer_LeakSuppressesFree(t *testing.T) {
	ra := &recordingAllocator{Arena: NewArena(256, 0)}

	buf, err := NewBuffer(ra, 5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := buf.Write(ra, 0, []byte("abcde")); err != nil {
		t.Fatal(err)
	}

	ptr, n := buf.Leak()
	if ptr != buf.Ptr() || n != 5 {
		t.Fatalf("Leak = (%d, %d)", ptr, n)
	}
	buf.Free()
	if len(ra.frees) != 0 {
		t.Fatal("leaked buffer was freed by its producer")
	}

	// The receiver adopts and frees exactly once.
	recv := Adopt(ra, ptr, n, 1)
	data, _ := recv.Bytes(ra)
	if string(data) != "abcde" {
		t.Fatalf("adopted bytes = %q", data)
	}
	recv.Free()
	recv.Free()
	if len(ra.frees) != 1 || ra.frees[0] != ptr {
		t.Fatalf("frees = %v, want [%d]", ra.frees, ptr)
	}
}

func TestBuffer_ZeroSize(t *testing.T) {
	ra := &recordingAllocator{Arena: NewArena(128, 0)}
	buf, _ := NewBuffer(ra, 0, 4)
	if buf.Ptr() != 4 || buf.Owned() {
		t.Fatalf("zero-size buffer: ptr=%d owned=%v", buf.Ptr(), buf.Owned())
	}
	buf.Free()
	if len(ra.frees) != 0 {
		t.Fatal("sentinel buffer must never be freed")
	}
	if err := buf.Write(ra, 0, []byte{1}); err == nil {
		t.Fatal("write into zero-size buffer should fail")
	}
}

func TestList_FreeAllAndForget(t *testing.T) {
	ra := &recordingAllocator{Arena: NewArena(1024, 0)}

	l := NewList()
	defer l.Release()

	for i := 0; i < 3; i++ {
		p, _ := ra.Alloc(8, 8)
		l.Add(p, 8, 8)
	}
	l.Add(4, 0, 4)
	if l.Count() != 3 {
		t.Fatalf("Count = %d, want 3 (sentinels are not tracked)", l.Count())
	}

	entries := append([]Allocation(nil), l.Entries()...)
	l.FreeAll(ra)
	if len(ra.frees) != 3 {
		t.Fatalf("freed %d blocks, want 3", len(ra.frees))
	}
	for i, p := range ra.frees {
		if want := entries[len(entries)-1-i].Ptr; p != want {
			t.Fatalf("free %d = %d, want %d (reverse order)", i, p, want)
		}
	}

	p, _ := ra.Alloc(8, 8)
	l.Add(p, 8, 8)
	l.Forget()
	if l.Count() != 0 || len(ra.frees) != 3 {
		t.Fatal("Forget must drop tracking without freeing")
	}
}

func TestList_MovesRunOnlyOnForget(t *testing.T) {
	l := NewList()
	defer l.Release()

	var ran []int
	l.OnForget(func() { ran = append(ran, 1) })
	l.FreeAll(nil)
	if len(ran) != 0 || l.Moves() != 0 {
		t.Fatalf("FreeAll ran %v and kept %d moves", ran, l.Moves())
	}

	l.OnForget(func() { ran = append(ran, 1) })
	l.OnForget(func() { ran = append(ran, 2) })
	l.Forget()
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 2 {
		t.Fatalf("Forget ran %v, want [1 2]", ran)
	}
	l.Forget()
	if len(ran) != 2 {
		t.Fatal("moves must run once")
	}
}
