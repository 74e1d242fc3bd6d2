package transcoder

import (
	"math"
	"strconv"

	"github.com/wippyai/wasm-boundary/alloc"
	"github.com/wippyai/wasm-boundary/errors"
	"go.bytecodealliance.org/wit"
)

// Store writes v into memory at addr using the layout of t.
func (c *Codec) Store(t wit.Type, v any, addr uint32, allocs *alloc.List) error {
	return c.track(allocs, func(l *alloc.List) error {
		return c.store(t, v, addr, l, nil)
	})
}

func (c *Codec) store(t wit.Type, v any, addr uint32, allocs *alloc.List, path []string) error {
	switch typ := t.(type) {
	case wit.Bool:
		b, ok := v.(bool)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "bool")
		}
		var u uint8
		if b {
			u = 1
		}
		return c.mem.WriteU8(addr, u)
	case wit.U8, wit.S8:
		bits, err := lowerInt(t, v, path)
		if err != nil {
			return err
		}
		return c.mem.WriteU8(addr, uint8(bits))
	case wit.U16, wit.S16:
		bits, err := lowerInt(t, v, path)
		if err != nil {
			return err
		}
		return c.mem.WriteU16(addr, uint16(bits))
	case wit.U32, wit.S32:
		bits, err := lowerInt(t, v, path)
		if err != nil {
			return err
		}
		return c.mem.WriteU32(addr, uint32(bits))
	case wit.U64, wit.S64:
		bits, err := lowerInt(t, v, path)
		if err != nil {
			return err
		}
		return c.mem.WriteU64(addr, bits)
	case wit.F32:
		f, ok := toFloat(v)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "f32")
		}
		return c.mem.WriteU32(addr, CanonicalizeF32(math.Float32bits(float32(f))))
	case wit.F64:
		f, ok := toFloat(v)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "f64")
		}
		return c.mem.WriteU64(addr, CanonicalizeF64(math.Float64bits(f)))
	case wit.Char:
		r, err := lowerChar(v, path)
		if err != nil {
			return err
		}
		return c.mem.WriteU32(addr, uint32(r))
	case wit.String:
		s, ok := v.(string)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "string")
		}
		ptr, n, err := c.lowerString(s, allocs, path)
		if err != nil {
			return err
		}
		return c.writePtrLen(addr, ptr, n)
	case *wit.TypeDef:
		return c.storeTypeDef(typ, v, addr, allocs, path)
	default:
		return errors.Unsupported(errors.PhaseEncode, "WIT type "+witName(t))
	}
}

func (c *Codec) writePtrLen(addr, ptr, n uint32) error {
	if err := c.mem.WriteU32(addr, ptr); err != nil {
		return err
	}
	return c.mem.WriteU32(addr+4, n)
}

func (c *Codec) storeTypeDef(t *wit.TypeDef, v any, addr uint32, allocs *alloc.List, path []string) error {
	switch kind := t.Kind.(type) {
	case *wit.Record:
		offset := uint32(0)
		for _, field := range kind.Fields {
			l := c.layout.Layout(field.Type)
			offset = AlignTo(offset, l.Align)
			fv, ok := recordField(v, field.Name)
			if !ok {
				return errors.FieldMissing(errors.PhaseEncode, path, field.Name)
			}
			if err := c.store(field.Type, fv, addr+offset, allocs, extend(path, field.Name)); err != nil {
				return err
			}
			offset += l.Size
		}
		return nil

	case *wit.Tuple:
		elems, err := tupleElems(v, len(kind.Types), path)
		if err != nil {
			return err
		}
		return c.storeSequence(kind.Types, elems, addr, allocs, path)

	case *wit.List:
		ptr, n, err := c.lowerList(kind.Type, v, allocs, path)
		if err != nil {
			return err
		}
		return c.writePtrLen(addr, ptr, n)

	case *wit.Variant, *wit.Option, *wit.Result:
		cases := casesOf(t)
		disc, payload, err := selectCase(t, cases, v, path)
		if err != nil {
			return err
		}
		if err := c.writeDiscriminant(addr, len(cases), uint32(disc)); err != nil {
			return err
		}
		pt := cases[disc].typ
		if pt == nil {
			return nil
		}
		return c.store(pt, payload, addr+c.layout.payloadOffset(t, len(cases)), allocs, extend(path, cases[disc].name))

	case *wit.Enum:
		idx, err := enumIndex(kind, v, path)
		if err != nil {
			return err
		}
		return c.writeDiscriminant(addr, len(kind.Cases), idx)

	case *wit.Flags:
		n := len(kind.Flags)
		if n == 0 {
			return nil
		}
		words, err := flagWords(n, v, path)
		if err != nil {
			return err
		}
		switch {
		case n <= 8:
			return c.mem.WriteU8(addr, uint8(words[0]))
		case n <= 16:
			return c.mem.WriteU16(addr, uint16(words[0]))
		case n <= 32:
			return c.mem.WriteU32(addr, words[0])
		case n <= 64:
			return c.mem.WriteU64(addr, uint64(words[0])|uint64(words[1])<<32)
		}
		for i, w := range words {
			if err := c.mem.WriteU32(addr+uint32(i*4), w); err != nil {
				return err
			}
		}
		return nil

	case *wit.Own:
		h, err := handleOf(v, true, allocs, path)
		if err != nil {
			return err
		}
		return c.mem.WriteU32(addr, h)

	case *wit.Borrow:
		h, err := handleOf(v, false, allocs, path)
		if err != nil {
			return err
		}
		return c.mem.WriteU32(addr, h)

	case wit.Type:
		return c.store(kind, v, addr, allocs, path)

	default:
		return errors.Unsupported(errors.PhaseEncode, "type definition "+witName(t))
	}
}

// storeSequence writes values as a tuple of types starting at addr.
func (c *Codec) storeSequence(types []wit.Type, values []any, addr uint32, allocs *alloc.List, path []string) error {
	offset := uint32(0)
	for i, t := range types {
		l := c.layout.Layout(t)
		offset = AlignTo(offset, l.Align)
		if err := c.store(t, values[i], addr+offset, allocs, extend(path, strconv.Itoa(i))); err != nil {
			return err
		}
		offset += l.Size
	}
	return nil
}

func (c *Codec) writeDiscriminant(addr uint32, numCases int, disc uint32) error {
	switch DiscriminantSize(numCases) {
	case 1:
		return c.mem.WriteU8(addr, uint8(disc))
	case 2:
		return c.mem.WriteU16(addr, uint16(disc))
	default:
		return c.mem.WriteU32(addr, disc)
	}
}

func (c *Codec) readDiscriminant(addr uint32, numCases int) (uint32, error) {
	switch DiscriminantSize(numCases) {
	case 1:
		v, err := c.mem.ReadU8(addr)
		return uint32(v), err
	case 2:
		v, err := c.mem.ReadU16(addr)
		return uint32(v), err
	default:
		return c.mem.ReadU32(addr)
	}
}
