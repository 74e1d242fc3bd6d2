package transcoder

import (
	"math"
	"reflect"
	"strconv"

	"github.com/wippyai/wasm-boundary/alloc"
	"github.com/wippyai/wasm-boundary/errors"
	"go.bytecodealliance.org/wit"
)

// Lower converts v to the flat core values of t. Memory allocated for
// strings and lists is recorded in allocs; with a nil list the codec frees
// it on error and leaks it to the receiver on success.
func (c *Codec) Lower(t wit.Type, v any, allocs *alloc.List) ([]uint64, error) {
	var flat []uint64
	err := c.track(allocs, func(l *alloc.List) error {
		var err error
		flat, err = c.lower(t, v, make([]uint64, 0, len(c.layout.Flatten(t))), l, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return flat, nil
}

func (c *Codec) lower(t wit.Type, v any, flat []uint64, allocs *alloc.List, path []string) ([]uint64, error) {
	switch typ := t.(type) {
	case wit.Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "bool")
		}
		if b {
			return append(flat, 1), nil
		}
		return append(flat, 0), nil
	case wit.U8, wit.U16, wit.U32, wit.U64, wit.S8, wit.S16, wit.S32, wit.S64:
		bits, err := lowerInt(t, v, path)
		if err != nil {
			return nil, err
		}
		return append(flat, bits), nil
	case wit.F32:
		f, ok := toFloat(v)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "f32")
		}
		return append(flat, uint64(CanonicalizeF32(math.Float32bits(float32(f))))), nil
	case wit.F64:
		f, ok := toFloat(v)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "f64")
		}
		return append(flat, CanonicalizeF64(math.Float64bits(f))), nil
	case wit.Char:
		r, err := lowerChar(v, path)
		if err != nil {
			return nil, err
		}
		return append(flat, uint64(r)), nil
	case wit.String:
		s, ok := v.(string)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "string")
		}
		ptr, n, err := c.lowerString(s, allocs, path)
		if err != nil {
			return nil, err
		}
		return append(flat, uint64(ptr), uint64(n)), nil
	case *wit.TypeDef:
		return c.lowerTypeDef(typ, v, flat, allocs, path)
	default:
		return nil, errors.Unsupported(errors.PhaseEncode, "WIT type "+witName(t))
	}
}

func (c *Codec) lowerTypeDef(t *wit.TypeDef, v any, flat []uint64, allocs *alloc.List, path []string) ([]uint64, error) {
	switch kind := t.Kind.(type) {
	case *wit.Record:
		for _, field := range kind.Fields {
			fv, ok := recordField(v, field.Name)
			if !ok {
				return nil, errors.FieldMissing(errors.PhaseEncode, path, field.Name)
			}
			var err error
			flat, err = c.lower(field.Type, fv, flat, allocs, extend(path, field.Name))
			if err != nil {
				return nil, err
			}
		}
		return flat, nil

	case *wit.Tuple:
		elems, err := tupleElems(v, len(kind.Types), path)
		if err != nil {
			return nil, err
		}
		for i, et := range kind.Types {
			flat, err = c.lower(et, elems[i], flat, allocs, extend(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
		}
		return flat, nil

	case *wit.List:
		ptr, n, err := c.lowerList(kind.Type, v, allocs, path)
		if err != nil {
			return nil, err
		}
		return append(flat, uint64(ptr), uint64(n)), nil

	case *wit.Variant, *wit.Option, *wit.Result:
		cases := casesOf(t)
		disc, payload, err := selectCase(t, cases, v, path)
		if err != nil {
			return nil, err
		}
		flat = append(flat, uint64(disc))
		start := len(flat)
		if pt := cases[disc].typ; pt != nil {
			flat, err = c.lower(pt, payload, flat, allocs, extend(path, cases[disc].name))
			if err != nil {
				return nil, err
			}
		}
		// Pad to the joined width. Joined slots carry the case value's bits
		// unchanged: f32 in i32, and any 32-bit value zero-extended in i64.
		width := len(c.layout.Flatten(t)) - 1
		for len(flat)-start < width {
			flat = append(flat, 0)
		}
		return flat, nil

	case *wit.Enum:
		idx, err := enumIndex(kind, v, path)
		if err != nil {
			return nil, err
		}
		return append(flat, uint64(idx)), nil

	case *wit.Flags:
		if len(kind.Flags) == 0 {
			return flat, nil
		}
		words, err := flagWords(len(kind.Flags), v, path)
		if err != nil {
			return nil, err
		}
		if len(kind.Flags) > 32 && len(kind.Flags) <= 64 {
			return append(flat, uint64(words[0])|uint64(words[1])<<32), nil
		}
		for _, w := range words {
			flat = append(flat, uint64(w))
		}
		return flat, nil

	case *wit.Own:
		h, err := handleOf(v, true, allocs, path)
		if err != nil {
			return nil, err
		}
		return append(flat, uint64(h)), nil

	case *wit.Borrow:
		h, err := handleOf(v, false, allocs, path)
		if err != nil {
			return nil, err
		}
		return append(flat, uint64(h)), nil

	case wit.Type:
		return c.lower(kind, v, flat, allocs, path)

	default:
		return nil, errors.Unsupported(errors.PhaseEncode, "type definition "+witName(t))
	}
}

func lowerInt(t wit.Type, v any, path []string) (uint64, error) {
	n, ok := toInteger(v)
	if !ok {
		return 0, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), witName(t))
	}
	var (
		bits uint64
		fits bool
	)
	switch t.(type) {
	case wit.U8:
		bits, fits = n.unsigned(8)
	case wit.U16:
		bits, fits = n.unsigned(16)
	case wit.U32:
		bits, fits = n.unsigned(32)
	case wit.U64:
		bits, fits = n.unsigned(64)
	case wit.S8:
		var i int64
		i, fits = n.signed(8)
		bits = uint64(uint32(int32(i)))
	case wit.S16:
		var i int64
		i, fits = n.signed(16)
		bits = uint64(uint32(int32(i)))
	case wit.S32:
		var i int64
		i, fits = n.signed(32)
		bits = uint64(uint32(int32(i)))
	case wit.S64:
		var i int64
		i, fits = n.signed(64)
		bits = uint64(i)
	}
	if !fits {
		return 0, errors.Overflow(errors.PhaseEncode, path, v, witName(t))
	}
	return bits, nil
}

func lowerChar(v any, path []string) (rune, error) {
	var r rune
	switch x := v.(type) {
	case rune:
		r = x
	case string:
		rs := []rune(x)
		if len(rs) != 1 {
			return 0, errors.InvalidData(errors.PhaseEncode, path, "char string must hold exactly one code point")
		}
		r = rs[0]
	default:
		n, ok := toInteger(v)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "char")
		}
		i, ok := n.signed(32)
		if !ok {
			return 0, errors.Overflow(errors.PhaseEncode, path, v, "char")
		}
		r = rune(i)
	}
	if !ValidateChar(r) {
		return 0, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Path(path...).
			Detail("invalid Unicode scalar value: 0x%X", r).
			Build()
	}
	return r, nil
}

// tupleElems accepts []any or any slice or array of the right length.
func tupleElems(v any, n int, path []string) ([]any, error) {
	if elems, ok := v.([]any); ok {
		if len(elems) != n {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Path(path...).
				Detail("tuple has %d elements, want %d", len(elems), n).
				Build()
		}
		return elems, nil
	}
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "tuple")
	}
	if rv.Len() != n {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Path(path...).
			Detail("tuple has %d elements, want %d", rv.Len(), n).
			Build()
	}
	elems := make([]any, n)
	for i := range elems {
		elems[i] = rv.Index(i).Interface()
	}
	return elems, nil
}

// flagWords returns the flag set as little-endian u32 words. Up to 64 flags
// are given as an integer bitmask; wider sets as []uint32.
func flagWords(n int, v any, path []string) ([]uint32, error) {
	words := make([]uint32, max((n+31)/32, 2))
	if ws, ok := v.([]uint32); ok {
		if len(ws) > (n+31)/32 {
			return nil, errors.Overflow(errors.PhaseEncode, path, v, "flags")
		}
		copy(words, ws)
	} else {
		iv, ok := toInteger(v)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "flags")
		}
		mask, ok := iv.unsigned(64)
		if !ok {
			return nil, errors.Overflow(errors.PhaseEncode, path, v, "flags")
		}
		words[0], words[1] = uint32(mask), uint32(mask>>32)
	}
	for bit := n; bit < len(words)*32; bit++ {
		if words[bit/32]&(1<<(bit%32)) != 0 {
			return nil, errors.Overflow(errors.PhaseEncode, path, v, "flags")
		}
	}
	return words[:(n+31)/32], nil
}
