package transcoder

import (
	"math"
	"reflect"
)

const (
	// MaxFlatParams is the largest parameter list passed as flat values.
	// Longer lists are spilled to memory and passed by pointer.
	MaxFlatParams = 16

	// MaxFlatResults is the largest result list returned as flat values.
	// Longer lists are returned through a return pointer.
	MaxFlatResults = 1
)

const (
	CanonicalNaN32 = 0x7fc00000
	CanonicalNaN64 = 0x7ff8000000000000
)

const (
	MaxStringSize = 1 << 30 // 1 GB
	MaxListLength = 1 << 27 // 128M elements
	MaxAlloc      = 1 << 30 // 1 GB per allocation
)

func SafeMulU32(a, b uint32) (uint32, bool) {
	if b != 0 && a > math.MaxUint32/b {
		return 0, false
	}
	return a * b, true
}

func SafeAddU32(a, b uint32) (uint32, bool) {
	if a > math.MaxUint32-b {
		return 0, false
	}
	return a + b, true
}

func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// DiscriminantSize: 1 byte for up to 256 cases, 2 for up to 65536, else 4.
func DiscriminantSize(numCases int) uint32 {
	switch {
	case numCases <= 1<<8:
		return 1
	case numCases <= 1<<16:
		return 2
	default:
		return 4
	}
}

// CanonicalizeF32 maps every NaN to the canonical quiet NaN.
func CanonicalizeF32(bits uint32) uint32 {
	if f := math.Float32frombits(bits); f != f {
		return CanonicalNaN32
	}
	return bits
}

// CanonicalizeF64 maps every NaN to the canonical quiet NaN.
func CanonicalizeF64(bits uint64) uint64 {
	if f := math.Float64frombits(bits); f != f {
		return CanonicalNaN64
	}
	return bits
}

// ValidateChar rejects surrogates and values past the last code point.
func ValidateChar(r rune) bool {
	if r >= 0xD800 && r <= 0xDFFF {
		return false
	}
	return r >= 0 && r < 0x110000
}

// typeName returns "nil" for nil values, avoiding reflect.TypeOf(nil).
func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return reflect.TypeOf(value).String()
}

// integer is a Go integer decoded into sign and magnitude so that range
// checks into any target width are a single comparison.
type integer struct {
	mag  uint64
	neg  bool
	huge bool // integral float beyond 64 bits
}

// toInteger accepts any Go integer kind, named integer types included, and
// integral floats such as those produced by JSON decoding.
func toInteger(v any) (integer, bool) {
	switch x := v.(type) {
	case int:
		return fromInt64(int64(x)), true
	case int32:
		return fromInt64(int64(x)), true
	case int64:
		return fromInt64(x), true
	case uint32:
		return integer{mag: uint64(x)}, true
	case uint64:
		return integer{mag: x}, true
	case nil:
		return integer{}, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fromInt64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return integer{mag: rv.Uint()}, true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return integer{}, false
		}
		a := math.Abs(f)
		if a >= 1<<64 {
			return integer{neg: f < 0, huge: true}, true
		}
		return integer{mag: uint64(a), neg: f < 0 && a != 0}, true
	}
	return integer{}, false
}

func fromInt64(i int64) integer {
	if i < 0 {
		return integer{mag: uint64(-(i + 1)) + 1, neg: true}
	}
	return integer{mag: uint64(i)}
}

// unsigned returns the value if it fits in an unsigned integer of bits width.
func (n integer) unsigned(bits uint) (uint64, bool) {
	if n.neg || n.huge {
		return 0, false
	}
	if bits < 64 && n.mag > 1<<bits-1 {
		return 0, false
	}
	return n.mag, true
}

// signed returns the value if it fits in a signed integer of bits width.
func (n integer) signed(bits uint) (int64, bool) {
	if n.huge {
		return 0, false
	}
	limit := uint64(1) << (bits - 1)
	if n.neg {
		if n.mag > limit {
			return 0, false
		}
		return int64(-n.mag), true
	}
	if n.mag >= limit {
		return 0, false
	}
	return int64(n.mag), true
}

// toFloat accepts any Go float or integer kind.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case nil:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}
