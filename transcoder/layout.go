package transcoder

import (
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

// Layout is the in-memory size and alignment of a WIT type.
type Layout struct {
	Size  uint32
	Align uint32
}

type typeInfo struct {
	layout Layout
	flat   []api.ValueType
}

// Calculator computes and caches layouts and flat signatures per type
// definition. It is safe for concurrent use.
type Calculator struct {
	cache map[*wit.TypeDef]*typeInfo
	mu    sync.RWMutex
}

func NewCalculator() *Calculator {
	return &Calculator{cache: make(map[*wit.TypeDef]*typeInfo)}
}

var defaultCalculator = NewCalculator()

// LayoutOf returns the layout of t using a shared calculator.
func LayoutOf(t wit.Type) Layout {
	return defaultCalculator.Layout(t)
}

// Flatten returns the core value types t lowers to.
func Flatten(t wit.Type) []api.ValueType {
	return defaultCalculator.Flatten(t)
}

// FlatCount returns len(Flatten(t)).
func FlatCount(t wit.Type) int {
	return len(defaultCalculator.Flatten(t))
}

// Layout returns the size and alignment of t.
func (c *Calculator) Layout(t wit.Type) Layout {
	switch typ := t.(type) {
	case wit.Bool, wit.U8, wit.S8:
		return Layout{Size: 1, Align: 1}
	case wit.U16, wit.S16:
		return Layout{Size: 2, Align: 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return Layout{Size: 4, Align: 4}
	case wit.U64, wit.S64, wit.F64:
		return Layout{Size: 8, Align: 8}
	case wit.String:
		return Layout{Size: 8, Align: 4} // ptr, len
	case *wit.TypeDef:
		return c.info(typ).layout
	default:
		return Layout{Size: 0, Align: 1}
	}
}

// Flatten returns the core value types t lowers to. The returned slice is
// shared and must not be modified.
func (c *Calculator) Flatten(t wit.Type) []api.ValueType {
	switch typ := t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return flatI32
	case wit.U64, wit.S64:
		return flatI64
	case wit.F32:
		return flatF32
	case wit.F64:
		return flatF64
	case wit.String:
		return flatPtrLen
	case *wit.TypeDef:
		return c.info(typ).flat
	default:
		return nil
	}
}

var (
	flatI32    = []api.ValueType{api.ValueTypeI32}
	flatI64    = []api.ValueType{api.ValueTypeI64}
	flatF32    = []api.ValueType{api.ValueTypeF32}
	flatF64    = []api.ValueType{api.ValueTypeF64}
	flatPtrLen = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
)

func (c *Calculator) info(t *wit.TypeDef) *typeInfo {
	c.mu.RLock()
	info, ok := c.cache[t]
	c.mu.RUnlock()
	if ok {
		return info
	}

	// Computed outside the lock: nested definitions recurse into info.
	info = c.compute(t)

	c.mu.Lock()
	c.cache[t] = info
	c.mu.Unlock()
	return info
}

func (c *Calculator) compute(t *wit.TypeDef) *typeInfo {
	switch kind := t.Kind.(type) {
	case *wit.Record:
		types := make([]wit.Type, len(kind.Fields))
		for i, f := range kind.Fields {
			types[i] = f.Type
		}
		return c.sequence(types)
	case *wit.Tuple:
		return c.sequence(kind.Types)
	case *wit.List:
		return &typeInfo{layout: Layout{Size: 8, Align: 4}, flat: flatPtrLen}
	case *wit.Variant, *wit.Option, *wit.Result:
		return c.variant(casesOf(t))
	case *wit.Enum:
		size := DiscriminantSize(len(kind.Cases))
		return &typeInfo{layout: Layout{Size: size, Align: size}, flat: flatI32}
	case *wit.Flags:
		return flagsInfo(len(kind.Flags))
	case *wit.Own, *wit.Borrow:
		return &typeInfo{layout: Layout{Size: 4, Align: 4}, flat: flatI32}
	case wit.Type:
		return &typeInfo{layout: c.Layout(kind), flat: c.Flatten(kind)}
	default:
		return &typeInfo{layout: Layout{Size: 0, Align: 1}}
	}
}

// sequence lays out records and tuples: each element at its own alignment,
// the whole padded to the largest alignment.
func (c *Calculator) sequence(types []wit.Type) *typeInfo {
	maxAlign := uint32(1)
	offset := uint32(0)
	var flat []api.ValueType
	for _, t := range types {
		l := c.Layout(t)
		offset = AlignTo(offset, l.Align) + l.Size
		maxAlign = max(maxAlign, l.Align)
		flat = append(flat, c.Flatten(t)...)
	}
	return &typeInfo{
		layout: Layout{Size: AlignTo(offset, maxAlign), Align: maxAlign},
		flat:   flat,
	}
}

// variant lays out a discriminant followed by the widest case payload at the
// largest case alignment. Flat payloads are joined position by position.
func (c *Calculator) variant(cases []variantCase) *typeInfo {
	if len(cases) == 0 {
		return &typeInfo{layout: Layout{Size: 0, Align: 1}}
	}
	discSize := DiscriminantSize(len(cases))
	maxAlign := discSize
	maxSize := uint32(0)
	var payload []api.ValueType
	for _, cs := range cases {
		if cs.typ == nil {
			continue
		}
		l := c.Layout(cs.typ)
		maxAlign = max(maxAlign, l.Align)
		maxSize = max(maxSize, l.Size)
		for i, ft := range c.Flatten(cs.typ) {
			if i < len(payload) {
				payload[i] = join(payload[i], ft)
			} else {
				payload = append(payload, ft)
			}
		}
	}
	payloadOffset := AlignTo(discSize, maxAlign)
	return &typeInfo{
		layout: Layout{Size: AlignTo(payloadOffset+maxSize, maxAlign), Align: maxAlign},
		flat:   append([]api.ValueType{api.ValueTypeI32}, payload...),
	}
}

// join unifies two core types sharing a payload position.
func join(a, b api.ValueType) api.ValueType {
	if a == b {
		return a
	}
	if (a == api.ValueTypeI32 && b == api.ValueTypeF32) || (a == api.ValueTypeF32 && b == api.ValueTypeI32) {
		return api.ValueTypeI32
	}
	return api.ValueTypeI64
}

// Flags up to 64 are carried as one integer; wider sets as a u32 array.
func flagsInfo(n int) *typeInfo {
	switch {
	case n == 0:
		return &typeInfo{layout: Layout{Size: 0, Align: 1}}
	case n <= 8:
		return &typeInfo{layout: Layout{Size: 1, Align: 1}, flat: flatI32}
	case n <= 16:
		return &typeInfo{layout: Layout{Size: 2, Align: 2}, flat: flatI32}
	case n <= 32:
		return &typeInfo{layout: Layout{Size: 4, Align: 4}, flat: flatI32}
	case n <= 64:
		return &typeInfo{layout: Layout{Size: 8, Align: 8}, flat: flatI64}
	}
	words := (n + 31) / 32
	flat := make([]api.ValueType, words)
	for i := range flat {
		flat[i] = api.ValueTypeI32
	}
	return &typeInfo{layout: Layout{Size: uint32(words * 4), Align: 4}, flat: flat}
}

// payloadOffset returns where a variant-like type stores its payload.
func (c *Calculator) payloadOffset(t *wit.TypeDef, numCases int) uint32 {
	return AlignTo(DiscriminantSize(numCases), c.Layout(t).Align)
}

// variantCase is one arm of a variant, option or result.
type variantCase struct {
	name string
	typ  wit.Type
}

// casesOf views option and result as the two-armed variants they are.
func casesOf(t *wit.TypeDef) []variantCase {
	switch kind := t.Kind.(type) {
	case *wit.Variant:
		cases := make([]variantCase, len(kind.Cases))
		for i, cs := range kind.Cases {
			cases[i] = variantCase{name: cs.Name, typ: cs.Type}
		}
		return cases
	case *wit.Option:
		return []variantCase{{name: "none"}, {name: "some", typ: kind.Type}}
	case *wit.Result:
		return []variantCase{{name: "ok", typ: kind.OK}, {name: "err", typ: kind.Err}}
	}
	return nil
}
