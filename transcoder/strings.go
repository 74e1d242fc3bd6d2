package transcoder

import (
	"reflect"
	"strconv"
	"unicode/utf8"
	"unsafe"

	wasmboundary "github.com/wippyai/wasm-boundary"
	"github.com/wippyai/wasm-boundary/alloc"
	"github.com/wippyai/wasm-boundary/errors"
	"go.bytecodealliance.org/wit"
)

// Viewer is implemented by memories that can expose a region without
// copying it. Views are valid only until the memory next grows.
type Viewer interface {
	View(offset, length uint32) ([]byte, bool)
}

// LowerString copies s into a freshly allocated buffer and returns the
// (ptr, len) pair to pass across. The buffer is recorded in allocs: the
// caller forgets it once the far side has taken ownership, or frees it on
// error.
func (c *Codec) LowerString(s string, allocs *alloc.List) (ptr, n uint32, err error) {
	err = c.track(allocs, func(l *alloc.List) error {
		ptr, n, err = c.lowerString(s, l, nil)
		return err
	})
	return ptr, n, err
}

// LeakString transfers s to the far side. The returned buffer belongs to
// the receiver, which must release it exactly once.
func (c *Codec) LeakString(s string) (ptr, n uint32, err error) {
	return c.LowerString(s, nil)
}

// AdoptString lifts a string leaked by the far side and frees its buffer.
// The buffer is freed even when the contents are rejected.
func (c *Codec) AdoptString(ptr, n uint32) (string, error) {
	buf := alloc.Adopt(c.allocator, ptr, n, 1)
	defer buf.Free()
	return c.liftString(ptr, n, nil)
}

// LiftString copies a borrowed string out of memory. The callee never
// retains a reference to the caller's buffer.
func (c *Codec) LiftString(ptr, n uint32) (string, error) {
	return c.liftString(ptr, n, nil)
}

// BorrowString returns the string at (ptr, n) without copying when the
// memory supports views. The result is valid only for the duration of the
// call that received it.
func (c *Codec) BorrowString(ptr, n uint32) (string, error) {
	if n == 0 {
		return "", nil
	}
	v, ok := c.mem.(Viewer)
	if !ok {
		return c.liftString(ptr, n, nil)
	}
	if n > MaxStringSize {
		return "", errors.Overflow(errors.PhaseDecode, nil, n, "string")
	}
	data, ok := v.View(ptr, n)
	if !ok {
		return "", errors.OutOfBounds(errors.PhaseDecode, nil, ptr, n)
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, nil, data)
	}
	return unsafe.String(unsafe.SliceData(data), len(data)), nil
}

// LowerList stores the elements of v, any slice or array, into a freshly
// allocated buffer and returns the (ptr, len) pair. Ownership follows the
// same rules as LowerString.
func (c *Codec) LowerList(elem wit.Type, v any, allocs *alloc.List) (ptr, n uint32, err error) {
	err = c.track(allocs, func(l *alloc.List) error {
		ptr, n, err = c.lowerList(elem, v, l, nil)
		return err
	})
	return ptr, n, err
}

// LiftList copies a list of elem out of memory.
func (c *Codec) LiftList(elem wit.Type, ptr, n uint32) (any, error) {
	return c.liftList(elem, ptr, n, nil)
}

func (c *Codec) lowerString(s string, allocs *alloc.List, path []string) (uint32, uint32, error) {
	if len(s) == 0 {
		return 1, 0, nil
	}
	if len(s) > MaxStringSize {
		return 0, 0, errors.Overflow(errors.PhaseEncode, path, len(s), "string")
	}
	n := uint32(len(s))
	buf, err := alloc.NewBuffer(c.allocator, n, 1)
	if err != nil {
		return 0, 0, err
	}
	if err := buf.Write(c.mem, 0, unsafe.Slice(unsafe.StringData(s), len(s))); err != nil {
		buf.Free()
		return 0, 0, err
	}
	ptr, _ := buf.Leak()
	allocs.Add(ptr, n, 1)
	return ptr, n, nil
}

func (c *Codec) liftString(ptr, n uint32, path []string) (string, error) {
	if n == 0 {
		return "", nil
	}
	if n > MaxStringSize {
		return "", errors.Overflow(errors.PhaseDecode, path, n, "string")
	}
	data, err := c.mem.Read(ptr, n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, path, data)
	}
	return string(data), nil
}

func (c *Codec) lowerList(elem wit.Type, v any, allocs *alloc.List, path []string) (uint32, uint32, error) {
	l := c.layout.Layout(elem)
	if v == nil {
		return l.Align, 0, nil
	}

	if b, ok := v.([]byte); ok {
		if _, isU8 := elem.(wit.U8); isU8 {
			return c.lowerBytes(b, allocs, path)
		}
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return 0, 0, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "list<"+witName(elem)+">")
	}
	if rv.Len() == 0 {
		return l.Align, 0, nil
	}
	if rv.Len() > MaxListLength {
		return 0, 0, errors.Overflow(errors.PhaseEncode, path, rv.Len(), "list")
	}
	count := uint32(rv.Len())
	total, ok := SafeMulU32(l.Size, count)
	if !ok || total > MaxAlloc {
		return 0, 0, errors.Overflow(errors.PhaseEncode, path, count, "list")
	}
	if total == 0 {
		return l.Align, count, nil
	}

	ptr, err := c.allocator.Alloc(total, l.Align)
	if err != nil {
		return 0, 0, err
	}
	allocs.Add(ptr, total, l.Align)
	for i := 0; i < rv.Len(); i++ {
		if err := c.store(elem, rv.Index(i).Interface(), ptr+uint32(i)*l.Size, allocs, extend(path, strconv.Itoa(i))); err != nil {
			return 0, 0, err
		}
	}
	return ptr, count, nil
}

func (c *Codec) lowerBytes(b []byte, allocs *alloc.List, path []string) (uint32, uint32, error) {
	if len(b) == 0 {
		return 1, 0, nil
	}
	if len(b) > MaxAlloc {
		return 0, 0, errors.Overflow(errors.PhaseEncode, path, len(b), "list<u8>")
	}
	n := uint32(len(b))
	buf, err := alloc.NewBuffer(c.allocator, n, 1)
	if err != nil {
		return 0, 0, err
	}
	if err := buf.Write(c.mem, 0, b); err != nil {
		buf.Free()
		return 0, 0, err
	}
	ptr, _ := buf.Leak()
	allocs.Add(ptr, n, 1)
	return ptr, n, nil
}

// liftList returns typed slices for primitive element types and []any for
// everything else.
func (c *Codec) liftList(elem wit.Type, ptr, n uint32, path []string) (any, error) {
	if n > MaxListLength {
		return nil, errors.Overflow(errors.PhaseDecode, path, n, "list")
	}
	l := c.layout.Layout(elem)
	total, ok := SafeMulU32(l.Size, n)
	if !ok || total > MaxAlloc {
		return nil, errors.Overflow(errors.PhaseDecode, path, n, "list")
	}
	if sz, ok := c.mem.(wasmboundary.MemorySizer); ok && total > 0 {
		if end, ok := SafeAddU32(ptr, total); !ok || end > sz.Size() {
			return nil, errors.OutOfBounds(errors.PhaseDecode, path, ptr, total)
		}
	}

	switch elem.(type) {
	case wit.U8:
		if n == 0 {
			return []byte{}, nil
		}
		return c.mem.Read(ptr, n)
	case wit.Bool:
		return loadSlice[bool](c, elem, ptr, n, l.Size, path)
	case wit.S8:
		return loadSlice[int8](c, elem, ptr, n, l.Size, path)
	case wit.U16:
		return loadSlice[uint16](c, elem, ptr, n, l.Size, path)
	case wit.S16:
		return loadSlice[int16](c, elem, ptr, n, l.Size, path)
	case wit.U32:
		return loadSlice[uint32](c, elem, ptr, n, l.Size, path)
	case wit.S32:
		return loadSlice[int32](c, elem, ptr, n, l.Size, path)
	case wit.U64:
		return loadSlice[uint64](c, elem, ptr, n, l.Size, path)
	case wit.S64:
		return loadSlice[int64](c, elem, ptr, n, l.Size, path)
	case wit.F32:
		return loadSlice[float32](c, elem, ptr, n, l.Size, path)
	case wit.F64:
		return loadSlice[float64](c, elem, ptr, n, l.Size, path)
	case wit.Char:
		return loadSlice[rune](c, elem, ptr, n, l.Size, path)
	case wit.String:
		return loadSlice[string](c, elem, ptr, n, l.Size, path)
	default:
		return loadSlice[any](c, elem, ptr, n, l.Size, path)
	}
}

func loadSlice[T any](c *Codec, elem wit.Type, ptr, n, stride uint32, path []string) ([]T, error) {
	out := make([]T, n)
	for i := range out {
		v, err := c.load(elem, ptr+uint32(i)*stride, extend(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		out[i], _ = v.(T)
	}
	return out, nil
}
