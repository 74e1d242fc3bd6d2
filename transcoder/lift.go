package transcoder

import (
	"math"
	"strconv"

	"github.com/wippyai/wasm-boundary/errors"
	"github.com/wippyai/wasm-boundary/resource"
	"go.bytecodealliance.org/wit"
)

// Lift converts flat core values of t back into a Go value. Strings and
// lists are copied out of memory; nothing returned aliases it.
func (c *Codec) Lift(t wit.Type, flat []uint64) (any, error) {
	if want := len(c.layout.Flatten(t)); len(flat) < want {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			WitType(witName(t)).
			Detail("insufficient flat values: have %d, want %d", len(flat), want).
			Build()
	}
	v, _, err := c.lift(t, flat, nil)
	return v, err
}

// lift returns the value and the number of flat values consumed.
func (c *Codec) lift(t wit.Type, flat []uint64, path []string) (any, int, error) {
	switch typ := t.(type) {
	case wit.Bool:
		return flat[0] != 0, 1, nil
	case wit.U8:
		return uint8(flat[0]), 1, nil
	case wit.S8:
		return int8(flat[0]), 1, nil
	case wit.U16:
		return uint16(flat[0]), 1, nil
	case wit.S16:
		return int16(flat[0]), 1, nil
	case wit.U32:
		return uint32(flat[0]), 1, nil
	case wit.S32:
		return int32(flat[0]), 1, nil
	case wit.U64:
		return flat[0], 1, nil
	case wit.S64:
		return int64(flat[0]), 1, nil
	case wit.F32:
		return math.Float32frombits(CanonicalizeF32(uint32(flat[0]))), 1, nil
	case wit.F64:
		return math.Float64frombits(CanonicalizeF64(flat[0])), 1, nil
	case wit.Char:
		r, err := liftChar(uint32(flat[0]), path)
		return r, 1, err
	case wit.String:
		s, err := c.liftString(uint32(flat[0]), uint32(flat[1]), path)
		return s, 2, err
	case *wit.TypeDef:
		return c.liftTypeDef(typ, flat, path)
	default:
		return nil, 0, errors.Unsupported(errors.PhaseDecode, "WIT type "+witName(t))
	}
}

func (c *Codec) liftTypeDef(t *wit.TypeDef, flat []uint64, path []string) (any, int, error) {
	switch kind := t.Kind.(type) {
	case *wit.Record:
		out := make(map[string]any, len(kind.Fields))
		offset := 0
		for _, field := range kind.Fields {
			v, n, err := c.lift(field.Type, flat[offset:], extend(path, field.Name))
			if err != nil {
				return nil, 0, err
			}
			out[field.Name] = v
			offset += n
		}
		return out, offset, nil

	case *wit.Tuple:
		out := make([]any, len(kind.Types))
		offset := 0
		for i, et := range kind.Types {
			v, n, err := c.lift(et, flat[offset:], extend(path, strconv.Itoa(i)))
			if err != nil {
				return nil, 0, err
			}
			out[i] = v
			offset += n
		}
		return out, offset, nil

	case *wit.List:
		v, err := c.liftList(kind.Type, uint32(flat[0]), uint32(flat[1]), path)
		return v, 2, err

	case *wit.Variant, *wit.Option, *wit.Result:
		cases := casesOf(t)
		width := len(c.layout.Flatten(t))
		disc := flat[0]
		if disc >= uint64(len(cases)) {
			return nil, 0, errors.InvalidDiscriminant(errors.PhaseDecode, path, uint32(disc), uint32(len(cases)-1))
		}
		var payload any
		if pt := cases[disc].typ; pt != nil {
			// Narrowing a joined slot back to the case type is a truncation
			// of the same bits.
			v, _, err := c.lift(pt, flat[1:width], extend(path, cases[disc].name))
			if err != nil {
				return nil, 0, err
			}
			payload = v
		}
		return buildCase(t, cases, int(disc), payload), width, nil

	case *wit.Enum:
		idx := flat[0]
		if idx >= uint64(len(kind.Cases)) {
			return nil, 0, errors.InvalidEnum(errors.PhaseDecode, path, idx)
		}
		return uint32(idx), 1, nil

	case *wit.Flags:
		n := len(kind.Flags)
		switch {
		case n == 0:
			return uint64(0), 0, nil
		case n < 64:
			return flat[0] & (1<<n - 1), 1, nil
		case n == 64:
			return flat[0], 1, nil
		}
		words := make([]uint32, (n+31)/32)
		for i := range words {
			words[i] = uint32(flat[i])
		}
		return words, len(words), nil

	case *wit.Own, *wit.Borrow:
		return resource.Handle(uint32(flat[0])), 1, nil

	case wit.Type:
		return c.lift(kind, flat, path)

	default:
		return nil, 0, errors.Unsupported(errors.PhaseDecode, "type definition "+witName(t))
	}
}

func liftChar(u uint32, path []string) (rune, error) {
	r := rune(u)
	if u > math.MaxInt32 || !ValidateChar(r) {
		return 0, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(path...).
			Detail("invalid Unicode scalar value: 0x%X", u).
			Build()
	}
	return r, nil
}
