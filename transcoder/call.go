package transcoder

import (
	"strconv"

	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/wasm-boundary/alloc"
	"github.com/wippyai/wasm-boundary/errors"
	"go.bytecodealliance.org/wit"
)

// FlattenTypes concatenates the flat types of a parameter or result list.
func FlattenTypes(types []wit.Type) []api.ValueType {
	var flat []api.ValueType
	for _, t := range types {
		flat = append(flat, Flatten(t)...)
	}
	return flat
}

// SequenceLayout returns the layout of types stored as one tuple.
func SequenceLayout(types []wit.Type) Layout {
	maxAlign := uint32(1)
	offset := uint32(0)
	for _, t := range types {
		l := LayoutOf(t)
		offset = AlignTo(offset, l.Align) + l.Size
		maxAlign = max(maxAlign, l.Align)
	}
	return Layout{Size: AlignTo(offset, maxAlign), Align: maxAlign}
}

// Signature is the core function type of a boundary function.
type Signature struct {
	Params  []api.ValueType
	Results []api.ValueType

	// SpillParams is set when parameters travel as a pointer to a tuple.
	SpillParams bool
	// RetPtr is set when results travel through a return area.
	RetPtr bool
}

// ImportSignature is the core type of a host function called by the guest.
// Spilled results are written to a return area whose pointer the guest
// appends to the parameters.
func ImportSignature(params, results []wit.Type) Signature {
	var sig Signature
	sig.Params = FlattenTypes(params)
	if len(sig.Params) > MaxFlatParams {
		sig.Params = []api.ValueType{api.ValueTypeI32}
		sig.SpillParams = true
	}
	sig.Results = FlattenTypes(results)
	if len(sig.Results) > MaxFlatResults {
		sig.Params = append(sig.Params, api.ValueTypeI32)
		sig.Results = nil
		sig.RetPtr = true
	}
	return sig
}

// ExportSignature is the core type of a guest function called by the host.
// Spilled results come back as a single pointer to the return area.
func ExportSignature(params, results []wit.Type) Signature {
	var sig Signature
	sig.Params = FlattenTypes(params)
	if len(sig.Params) > MaxFlatParams {
		sig.Params = []api.ValueType{api.ValueTypeI32}
		sig.SpillParams = true
	}
	sig.Results = FlattenTypes(results)
	if len(sig.Results) > MaxFlatResults {
		sig.Results = []api.ValueType{api.ValueTypeI32}
		sig.RetPtr = true
	}
	return sig
}

// LowerParams lowers call arguments. When the flat form exceeds
// MaxFlatParams the arguments are stored as one tuple in allocated memory
// and its pointer is passed instead.
func (c *Codec) LowerParams(types []wit.Type, values []any, allocs *alloc.List) ([]uint64, error) {
	if len(types) != len(values) {
		return nil, errors.InvalidInput(errors.PhaseEncode, "parameter count mismatch")
	}

	var flat []uint64
	err := c.track(allocs, func(l *alloc.List) error {
		if len(FlattenTypes(types)) <= MaxFlatParams {
			for i, t := range types {
				var err error
				flat, err = c.lower(t, values[i], flat, l, []string{"param" + strconv.Itoa(i)})
				if err != nil {
					return err
				}
			}
			return nil
		}

		layout := SequenceLayout(types)
		ptr, err := c.allocator.Alloc(layout.Size, layout.Align)
		if err != nil {
			return err
		}
		l.Add(ptr, layout.Size, layout.Align)
		if err := c.storeSequence(types, values, ptr, l, []string{"params"}); err != nil {
			return err
		}
		flat = []uint64{uint64(ptr)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flat, nil
}

// LiftParams is the callee side of LowerParams.
func (c *Codec) LiftParams(types []wit.Type, flat []uint64) ([]any, error) {
	if len(FlattenTypes(types)) > MaxFlatParams {
		if len(flat) < 1 {
			return nil, errors.InvalidData(errors.PhaseDecode, []string{"params"}, "missing spilled parameter pointer")
		}
		return c.loadSequence(types, uint32(flat[0]), []string{"params"})
	}
	return c.liftSequence(types, flat, "param")
}

// LiftResults lifts call results. When the flat form exceeds MaxFlatResults
// flat[0] is the return pointer and the results are read from memory.
func (c *Codec) LiftResults(types []wit.Type, flat []uint64) ([]any, error) {
	if len(FlattenTypes(types)) > MaxFlatResults {
		if len(flat) < 1 {
			return nil, errors.InvalidData(errors.PhaseDecode, []string{"results"}, "missing return pointer")
		}
		return c.loadSequence(types, uint32(flat[0]), []string{"results"})
	}
	return c.liftSequence(types, flat, "result")
}

// LowerResults lowers results that fit in MaxFlatResults flat values.
// Wider results need a return area; use StoreResults.
func (c *Codec) LowerResults(types []wit.Type, values []any, allocs *alloc.List) ([]uint64, error) {
	if len(types) != len(values) {
		return nil, errors.InvalidInput(errors.PhaseEncode, "result count mismatch")
	}
	if len(FlattenTypes(types)) > MaxFlatResults {
		return nil, errors.InvalidInput(errors.PhaseEncode, "results exceed flat limit, store through a return pointer")
	}
	var flat []uint64
	err := c.track(allocs, func(l *alloc.List) error {
		for i, t := range types {
			var err error
			flat, err = c.lower(t, values[i], flat, l, []string{"result" + strconv.Itoa(i)})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flat, nil
}

// StoreResults writes results into a caller-provided return area. Any
// strings or lists they contain are leaked to the caller.
func (c *Codec) StoreResults(types []wit.Type, values []any, retptr uint32, allocs *alloc.List) error {
	if len(types) != len(values) {
		return errors.InvalidInput(errors.PhaseEncode, "result count mismatch")
	}
	return c.track(allocs, func(l *alloc.List) error {
		return c.storeSequence(types, values, retptr, l, []string{"results"})
	})
}

func (c *Codec) liftSequence(types []wit.Type, flat []uint64, prefix string) ([]any, error) {
	out := make([]any, len(types))
	offset := 0
	for i, t := range types {
		want := len(c.layout.Flatten(t))
		if len(flat)-offset < want {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path(prefix + strconv.Itoa(i)).
				Detail("insufficient flat values").
				Build()
		}
		v, n, err := c.lift(t, flat[offset:], []string{prefix + strconv.Itoa(i)})
		if err != nil {
			return nil, err
		}
		out[i] = v
		offset += n
	}
	return out, nil
}
