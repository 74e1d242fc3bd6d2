package linker

import (
	"context"
	"slices"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boundary/errors"
	"github.com/wippyai/wasm-boundary/transcoder"
)

// PostReturnPrefix names the optional export a guest provides to release
// the return area of a call.
const PostReturnPrefix = "cabi_post_"

// Export is a guest function bound to its boundary signature.
type Export struct {
	mod     api.Module
	name    string
	fn      api.Function
	post    api.Function
	params  []wit.Type
	results []wit.Type
	sig     transcoder.Signature
}

// Lookup binds the guest export name to params and results. The core
// type of the export must match the flattened signature.
func Lookup(mod api.Module, name string, params, results []wit.Type) (*Export, error) {
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseHost, "export", name)
	}

	sig := transcoder.ExportSignature(params, results)
	def := fn.Definition()
	if !slices.Equal(def.ParamTypes(), sig.Params) || !slices.Equal(def.ResultTypes(), sig.Results) {
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Path(name).
			Detail("core type %v -> %v, want %v -> %v",
				def.ParamTypes(), def.ResultTypes(), sig.Params, sig.Results).
			Build()
	}

	return &Export{
		mod:     mod,
		name:    name,
		fn:      fn,
		post:    mod.ExportedFunction(PostReturnPrefix + name),
		params:  params,
		results: results,
		sig:     sig,
	}, nil
}

// Name returns the export name.
func (e *Export) Name() string {
	return e.name
}

// Call lowers args into the guest, runs the export and lifts its results.
// Strings and lists passed in belong to the guest once the call starts.
// A trap comes back as a host error; nothing in the guest is reclaimed.
func (e *Export) Call(ctx context.Context, args ...any) ([]any, error) {
	codec := Codec(ctx, e.mod)

	flat, err := codec.LowerParams(e.params, args, nil)
	if err != nil {
		return nil, err
	}

	out, err := e.fn.Call(ctx, flat...)
	if err != nil {
		Logger().Debug("guest call failed", zap.String("export", e.name), zap.Error(err))
		return nil, errors.Wrap(errors.PhaseHost, errors.KindProtocolViolation, err, "guest call "+e.name)
	}

	values, err := codec.LiftResults(e.results, out)
	if err != nil {
		return nil, err
	}

	if e.post != nil {
		if _, err := e.post.Call(ctx, out...); err != nil {
			return nil, errors.Wrap(errors.PhaseHost, errors.KindProtocolViolation, err, "post-return "+e.name)
		}
	}
	return values, nil
}

// Call looks up and calls a guest export in one step.
func Call(ctx context.Context, mod api.Module, name string, params, results []wit.Type, args ...any) ([]any, error) {
	e, err := Lookup(mod, name, params, results)
	if err != nil {
		return nil, err
	}
	return e.Call(ctx, args...)
}
