package linker

import (
	"context"
	"slices"

	"github.com/davidmdm/x/xsync"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-boundary/errors"
	"github.com/wippyai/wasm-boundary/resource"
	"github.com/wippyai/wasm-boundary/transcoder"
)

// Guest is an instantiated guest module with its bound exports cached by
// name. It is safe for concurrent use; calls into the module itself are
// not, as with any wazero module.
type Guest struct {
	mod     api.Module
	exports xsync.Map[string, *Export]
}

// NewGuest wraps an instantiated module.
func NewGuest(mod api.Module) *Guest {
	return &Guest{mod: mod}
}

// Module returns the underlying wazero module.
func (g *Guest) Module() api.Module {
	return g.mod
}

// Export binds name once and returns the cached binding afterwards. A
// later request with a different core signature is a type mismatch.
func (g *Guest) Export(name string, params, results []wit.Type) (*Export, error) {
	if e, ok := g.exports.Load(name); ok {
		sig := transcoder.ExportSignature(params, results)
		if !slices.Equal(sig.Params, e.sig.Params) || !slices.Equal(sig.Results, e.sig.Results) {
			return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
				Path(name).
				Detail("export already bound with a different signature").
				Build()
		}
		return e, nil
	}

	e, err := Lookup(g.mod, name, params, results)
	if err != nil {
		return nil, err
	}
	g.exports.Store(name, e)
	return e, nil
}

// Call runs a guest export through the cache.
func (g *Guest) Call(ctx context.Context, name string, params, results []wit.Type, args ...any) ([]any, error) {
	e, err := g.Export(name, params, results)
	if err != nil {
		return nil, err
	}
	return e.Call(ctx, args...)
}

// Proxy wraps h, an owned handle to a resource the guest exports under
// resourceName, in a proxy whose Close calls the guest's
// [resource-drop]<resourceName>. Moving the handle back into a call with
// TakeHandle or Move hands the drop on with it.
func (g *Guest) Proxy(ctx context.Context, resourceName string, h resource.Handle) (*resource.Proxy, error) {
	name := "[resource-drop]" + resourceName
	drop, err := g.Export(name, []wit.Type{ownType()}, nil)
	if err != nil {
		return nil, err
	}
	return resource.NewProxy(h, func(h resource.Handle) error {
		_, err := drop.Call(ctx, h)
		return err
	}), nil
}

