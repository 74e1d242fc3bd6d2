package transcoder

import (
	"reflect"
	"strings"

	wasmboundary "github.com/wippyai/wasm-boundary"
	"github.com/wippyai/wasm-boundary/alloc"
	"github.com/wippyai/wasm-boundary/errors"
	"github.com/wippyai/wasm-boundary/resource"
	"go.bytecodealliance.org/wit"
)

// Codec lowers Go values into one linear memory and lifts them back out.
// Memory for strings, lists and spilled arguments comes from the allocator.
type Codec struct {
	mem       wasmboundary.Memory
	allocator wasmboundary.Allocator
	layout    *Calculator
}

// NewCodec binds a codec to a memory and its allocator.
func NewCodec(mem wasmboundary.Memory, a wasmboundary.Allocator) *Codec {
	return &Codec{mem: mem, allocator: a, layout: defaultCalculator}
}

// Memory returns the bound memory.
func (c *Codec) Memory() wasmboundary.Memory { return c.mem }

// Allocator returns the bound allocator.
func (c *Codec) Allocator() wasmboundary.Allocator { return c.allocator }

// Layout returns the layout of t.
func (c *Codec) Layout(t wit.Type) Layout { return c.layout.Layout(t) }

// track runs fn with allocs, or with a private list when allocs is nil. A
// private list is freed on error and forgotten on success.
func (c *Codec) track(allocs *alloc.List, fn func(*alloc.List) error) error {
	if allocs != nil {
		return fn(allocs)
	}
	allocs = alloc.NewList()
	defer allocs.Release()
	if err := fn(allocs); err != nil {
		allocs.FreeAll(c.allocator)
		return err
	}
	allocs.Forget()
	return nil
}

func extend(path []string, elem string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}

func witName(t wit.Type) string {
	if t == nil {
		return "<none>"
	}
	if td, ok := t.(*wit.TypeDef); ok {
		if td.Name != nil {
			return *td.Name
		}
		if k, ok := td.Kind.(wit.Type); ok {
			return witName(k)
		}
		return reflect.TypeOf(td.Kind).Elem().Name()
	}
	return reflect.TypeOf(t).Name()
}

// recordField returns the named field of a record value. Maps are keyed by
// field name; structs match a `wit` tag or the kebab-case field name.
func recordField(v any, name string) (any, bool) {
	switch m := v.(type) {
	case map[string]any:
		f, ok := m[name]
		return f, ok
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("wit")
		if tag == "-" {
			continue
		}
		if tag == name || (tag == "" && kebab(sf.Name) == name) {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

// kebab converts a Go identifier to WIT kebab-case: ReadTimeout -> read-timeout.
func kebab(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// selectCase picks the arm of a variant-like value.
//
//	option:  nil is none, anything else is some(v)
//	result:  map with a single "ok" or "err" key
//	variant: map with a single case-name key
func selectCase(t *wit.TypeDef, cases []variantCase, v any, path []string) (int, any, error) {
	if _, ok := t.Kind.(*wit.Option); ok {
		if v == nil {
			return 0, nil, nil
		}
		return 1, v, nil
	}

	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return 0, nil, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), witName(t))
	}
	for i, cs := range cases {
		if payload, ok := m[cs.name]; ok {
			return i, payload, nil
		}
	}
	for k := range m {
		return 0, nil, errors.New(errors.PhaseEncode, errors.KindInvalidVariant).
			Path(path...).
			Detail("unknown case %q", k).
			Build()
	}
	return 0, nil, nil
}

// buildCase is the inverse of selectCase.
func buildCase(t *wit.TypeDef, cases []variantCase, disc int, payload any) any {
	if _, ok := t.Kind.(*wit.Option); ok {
		if disc == 0 {
			return nil
		}
		return payload
	}
	return map[string]any{cases[disc].name: payload}
}

func enumIndex(e *wit.Enum, v any, path []string) (uint32, error) {
	if name, ok := v.(string); ok {
		for i, cs := range e.Cases {
			if cs.Name == name {
				return uint32(i), nil
			}
		}
		return 0, errors.InvalidEnum(errors.PhaseEncode, path, name)
	}
	n, ok := toInteger(v)
	if !ok {
		return 0, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "enum")
	}
	idx, ok := n.unsigned(32)
	if !ok || idx >= uint64(len(e.Cases)) {
		return 0, errors.InvalidEnum(errors.PhaseEncode, path, v)
	}
	return uint32(idx), nil
}

// handleOf extracts a resource handle. own<T> moves ownership out of a
// proxy, but only once the whole call has lowered: the take is queued on
// allocs and runs when the list is forgotten. borrow<T> only reads it.
func handleOf(v any, own bool, allocs *alloc.List, path []string) (uint32, error) {
	var (
		h   resource.Handle
		err error
	)
	switch x := v.(type) {
	case resource.Handle:
		h = x
	case interface {
		TakeHandle() (resource.Handle, error)
		Handle() (resource.Handle, error)
	}:
		h, err = x.Handle()
		if err == nil && own {
			if allocs == nil {
				_, err = x.TakeHandle()
			} else {
				allocs.OnForget(func() { _, _ = x.TakeHandle() })
			}
		}
	default:
		n, ok := toInteger(v)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "handle")
		}
		u, ok := n.unsigned(32)
		if !ok {
			return 0, errors.Overflow(errors.PhaseEncode, path, v, "handle")
		}
		h = resource.Handle(u)
	}
	if err != nil {
		return 0, err
	}
	if h == 0 {
		return 0, errors.InvalidHandle(errors.PhaseEncode, 0)
	}
	return uint32(h), nil
}
