package linker

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	wasmboundary "github.com/wippyai/wasm-boundary"
	"github.com/wippyai/wasm-boundary/errors"
	"github.com/wippyai/wasm-boundary/transcoder"
)

// HostFunc implements a free function or a static resource function.
type HostFunc func(ctx context.Context, args []any) ([]any, error)

// hostFunc is one export of a host module, already in core form.
type hostFunc struct {
	name    string
	fn      api.GoModuleFunc
	params  []api.ValueType
	results []api.ValueType
}

// HostModule collects the functions a guest imports from one interface
// and instantiates them as a wazero host module.
//
// Every entry point traps the guest on failure: handle and protocol
// errors are programming errors on one side of the boundary and there is
// no way to continue the call.
type HostModule struct {
	name   string
	funcs  []hostFunc
	index  map[string]int
	nextID uint32
}

// NewHostModule starts a host module exported under name, for example
// "example:counter/api".
func NewHostModule(name string) *HostModule {
	return &HostModule{
		name:  name,
		index: make(map[string]int),
	}
}

// Name returns the module name.
func (m *HostModule) Name() string {
	return m.name
}

// Exports lists the exported function names in definition order.
func (m *HostModule) Exports() []string {
	names := make([]string, len(m.funcs))
	for i, f := range m.funcs {
		names[i] = f.name
	}
	return names
}

// Func exports a free function with the given WIT signature.
func (m *HostModule) Func(name string, params, results []wit.Type, fn HostFunc) *HostModule {
	m.define(name, params, results, func(ctx context.Context, _ api.Module, args []any) ([]any, error) {
		return fn(ctx, args)
	})
	return m
}

// define replaces an earlier export of the same name.
func (m *HostModule) define(name string, params, results []wit.Type, call func(context.Context, api.Module, []any) ([]any, error)) {
	f := bind(name, params, results, call)
	if i, ok := m.index[name]; ok {
		m.funcs[i] = f
		return
	}
	m.index[name] = len(m.funcs)
	m.funcs = append(m.funcs, f)
}

// defineRaw exports a function that already works on core values.
func (m *HostModule) defineRaw(name string, fn api.GoModuleFunc, params, results []api.ValueType) {
	f := hostFunc{name: name, fn: fn, params: params, results: results}
	if i, ok := m.index[name]; ok {
		m.funcs[i] = f
		return
	}
	m.index[name] = len(m.funcs)
	m.funcs = append(m.funcs, f)
}

// Instantiate registers the module with rt.
func (m *HostModule) Instantiate(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	builder := rt.NewHostModuleBuilder(m.name)
	for _, f := range m.funcs {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.params, f.results).
			Export(f.name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "instantiating host module "+m.name)
	}
	Logger().Debug("host module instantiated",
		zap.String("module", m.name),
		zap.Int("functions", len(m.funcs)))
	return mod, nil
}

// Codec returns a codec over the calling guest's memory and allocator.
func Codec(ctx context.Context, mod api.Module) *transcoder.Codec {
	var a wasmboundary.Allocator = missingRealloc{}
	if r, err := NewGuestRealloc(ctx, mod); err == nil {
		a = r.Allocator()
	}
	return transcoder.NewCodec(WrapMemory(mod.Memory()), a)
}

// bind wraps call in the canonical ABI for an imported function: lift
// the flat parameters, run call, then lower the results either onto the
// stack or into the guest's return area.
func bind(name string, params, results []wit.Type, call func(context.Context, api.Module, []any) ([]any, error)) hostFunc {
	sig := transcoder.ImportSignature(params, results)
	nparams := len(sig.Params)
	if sig.RetPtr {
		nparams--
	}

	fn := func(ctx context.Context, mod api.Module, stack []uint64) {
		codec := Codec(ctx, mod)

		args, err := codec.LiftParams(params, stack[:nparams])
		if err != nil {
			trap(name, err)
		}
		out, err := call(ctx, mod, args)
		if err != nil {
			trap(name, err)
		}

		if sig.RetPtr {
			if err := codec.StoreResults(results, out, uint32(stack[nparams]), nil); err != nil {
				trap(name, err)
			}
			return
		}
		flat, err := codec.LowerResults(results, out, nil)
		if err != nil {
			trap(name, err)
		}
		copy(stack, flat)
	}

	return hostFunc{
		name:    name,
		fn:      api.GoModuleFunc(fn),
		params:  sig.Params,
		results: sig.Results,
	}
}

// trap aborts the current guest call. wazero turns the panic into an
// error returned from the guest's entry point.
func trap(name string, err error) {
	Logger().Debug("host call trapped", zap.String("function", name), zap.Error(err))
	errors.Must(err)
}
