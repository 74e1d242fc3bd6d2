package transcoder

import (
	"math"
	"strconv"

	"github.com/wippyai/wasm-boundary/errors"
	"github.com/wippyai/wasm-boundary/resource"
	"go.bytecodealliance.org/wit"
)

// Load reads a value of type t from memory at addr.
func (c *Codec) Load(t wit.Type, addr uint32) (any, error) {
	return c.load(t, addr, nil)
}

func (c *Codec) load(t wit.Type, addr uint32, path []string) (any, error) {
	switch typ := t.(type) {
	case wit.Bool:
		v, err := c.mem.ReadU8(addr)
		return v != 0, err
	case wit.U8:
		return c.mem.ReadU8(addr)
	case wit.S8:
		v, err := c.mem.ReadU8(addr)
		return int8(v), err
	case wit.U16:
		return c.mem.ReadU16(addr)
	case wit.S16:
		v, err := c.mem.ReadU16(addr)
		return int16(v), err
	case wit.U32:
		return c.mem.ReadU32(addr)
	case wit.S32:
		v, err := c.mem.ReadU32(addr)
		return int32(v), err
	case wit.U64:
		return c.mem.ReadU64(addr)
	case wit.S64:
		v, err := c.mem.ReadU64(addr)
		return int64(v), err
	case wit.F32:
		v, err := c.mem.ReadU32(addr)
		return math.Float32frombits(CanonicalizeF32(v)), err
	case wit.F64:
		v, err := c.mem.ReadU64(addr)
		return math.Float64frombits(CanonicalizeF64(v)), err
	case wit.Char:
		v, err := c.mem.ReadU32(addr)
		if err != nil {
			return nil, err
		}
		return liftChar(v, path)
	case wit.String:
		ptr, n, err := c.readPtrLen(addr)
		if err != nil {
			return nil, err
		}
		return c.liftString(ptr, n, path)
	case *wit.TypeDef:
		return c.loadTypeDef(typ, addr, path)
	default:
		return nil, errors.Unsupported(errors.PhaseDecode, "WIT type "+witName(t))
	}
}

func (c *Codec) readPtrLen(addr uint32) (uint32, uint32, error) {
	ptr, err := c.mem.ReadU32(addr)
	if err != nil {
		return 0, 0, err
	}
	n, err := c.mem.ReadU32(addr + 4)
	if err != nil {
		return 0, 0, err
	}
	return ptr, n, nil
}

func (c *Codec) loadTypeDef(t *wit.TypeDef, addr uint32, path []string) (any, error) {
	switch kind := t.Kind.(type) {
	case *wit.Record:
		out := make(map[string]any, len(kind.Fields))
		offset := uint32(0)
		for _, field := range kind.Fields {
			l := c.layout.Layout(field.Type)
			offset = AlignTo(offset, l.Align)
			v, err := c.load(field.Type, addr+offset, extend(path, field.Name))
			if err != nil {
				return nil, err
			}
			out[field.Name] = v
			offset += l.Size
		}
		return out, nil

	case *wit.Tuple:
		return c.loadSequence(kind.Types, addr, path)

	case *wit.List:
		ptr, n, err := c.readPtrLen(addr)
		if err != nil {
			return nil, err
		}
		return c.liftList(kind.Type, ptr, n, path)

	case *wit.Variant, *wit.Option, *wit.Result:
		cases := casesOf(t)
		disc, err := c.readDiscriminant(addr, len(cases))
		if err != nil {
			return nil, err
		}
		if disc >= uint32(len(cases)) {
			return nil, errors.InvalidDiscriminant(errors.PhaseDecode, path, disc, uint32(len(cases)-1))
		}
		var payload any
		if pt := cases[disc].typ; pt != nil {
			payload, err = c.load(pt, addr+c.layout.payloadOffset(t, len(cases)), extend(path, cases[disc].name))
			if err != nil {
				return nil, err
			}
		}
		return buildCase(t, cases, int(disc), payload), nil

	case *wit.Enum:
		idx, err := c.readDiscriminant(addr, len(kind.Cases))
		if err != nil {
			return nil, err
		}
		if idx >= uint32(len(kind.Cases)) {
			return nil, errors.InvalidEnum(errors.PhaseDecode, path, idx)
		}
		return idx, nil

	case *wit.Flags:
		n := len(kind.Flags)
		switch {
		case n == 0:
			return uint64(0), nil
		case n <= 8:
			v, err := c.mem.ReadU8(addr)
			return uint64(v) & (1<<n - 1), err
		case n <= 16:
			v, err := c.mem.ReadU16(addr)
			return uint64(v) & (1<<n - 1), err
		case n <= 32:
			v, err := c.mem.ReadU32(addr)
			return uint64(v) & (1<<n - 1), err
		case n < 64:
			v, err := c.mem.ReadU64(addr)
			return v & (1<<n - 1), err
		case n == 64:
			return c.mem.ReadU64(addr)
		}
		words := make([]uint32, (n+31)/32)
		for i := range words {
			w, err := c.mem.ReadU32(addr + uint32(i*4))
			if err != nil {
				return nil, err
			}
			words[i] = w
		}
		return words, nil

	case *wit.Own, *wit.Borrow:
		h, err := c.mem.ReadU32(addr)
		return resource.Handle(h), err

	case wit.Type:
		return c.load(kind, addr, path)

	default:
		return nil, errors.Unsupported(errors.PhaseDecode, "type definition "+witName(t))
	}
}

// loadSequence reads a tuple of types starting at addr.
func (c *Codec) loadSequence(types []wit.Type, addr uint32, path []string) ([]any, error) {
	out := make([]any, len(types))
	offset := uint32(0)
	for i, t := range types {
		l := c.layout.Layout(t)
		offset = AlignTo(offset, l.Align)
		v, err := c.load(t, addr+offset, extend(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		out[i] = v
		offset += l.Size
	}
	return out, nil
}
