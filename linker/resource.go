package linker

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-boundary/errors"
	"github.com/wippyai/wasm-boundary/resource"
)

// ConstructorFunc builds the native object behind a new handle.
type ConstructorFunc func(ctx context.Context, args []any) (any, error)

// MethodFunc implements a resource method. self is the native object the
// borrowed handle refers to.
type MethodFunc func(ctx context.Context, self any, args []any) ([]any, error)

// ResourceBuilder defines the entry points of one exported resource type.
// Objects live in the builder's table tagged with the resource type id,
// so a handle of another resource type is rejected.
type ResourceBuilder struct {
	module *HostModule
	name   string
	table  *resource.Table
	typeID uint32
}

func ownType() wit.Type    { return &wit.TypeDef{Kind: &wit.Own{}} }
func borrowType() wit.Type { return &wit.TypeDef{Kind: &wit.Borrow{}} }

func u32Core() []api.ValueType { return []api.ValueType{api.ValueTypeI32} }

// Resource starts an exported resource type backed by table. The
// [resource-drop] entry point is defined right away.
func (m *HostModule) Resource(name string, table *resource.Table) *ResourceBuilder {
	m.nextID++
	r := &ResourceBuilder{module: m, name: name, table: table, typeID: m.nextID}

	m.defineRaw("[resource-drop]"+name, func(_ context.Context, _ api.Module, stack []uint64) {
		if err := table.Drop(resource.Handle(uint32(stack[0]))); err != nil {
			trap("[resource-drop]"+name, err)
		}
	}, u32Core(), nil)
	return r
}

// TypeID is the type tag of this resource's records in the table.
func (r *ResourceBuilder) TypeID() uint32 {
	return r.typeID
}

// Module returns the host module the resource belongs to.
func (r *ResourceBuilder) Module() *HostModule {
	return r.module
}

// Constructor exports [constructor]<name>. Each call registers a fresh
// object and returns its owned handle.
func (r *ResourceBuilder) Constructor(params []wit.Type, fn ConstructorFunc) *ResourceBuilder {
	r.module.define("[constructor]"+r.name, params, []wit.Type{ownType()},
		func(ctx context.Context, _ api.Module, args []any) ([]any, error) {
			obj, err := fn(ctx, args)
			if err != nil {
				return nil, err
			}
			h, err := r.table.RegisterTyped(r.typeID, obj)
			if err != nil {
				return nil, err
			}
			return []any{h}, nil
		})
	return r
}

// Method exports [method]<name>.<method>. The guest passes a borrowed
// handle to self ahead of params.
func (r *ResourceBuilder) Method(method string, params, results []wit.Type, fn MethodFunc) *ResourceBuilder {
	all := append([]wit.Type{borrowType()}, params...)
	r.module.define("[method]"+r.name+"."+method, all, results,
		func(ctx context.Context, _ api.Module, args []any) ([]any, error) {
			h := args[0].(resource.Handle)
			self, err := r.table.LookupTyped(h, r.typeID)
			if err != nil {
				return nil, err
			}
			if err := r.table.Borrow(h); err != nil {
				return nil, err
			}
			defer func() { _ = r.table.ReturnBorrow(h) }()
			return fn(ctx, self, args[1:])
		})
	return r
}

// Static exports [static]<name>.<fn>.
func (r *ResourceBuilder) Static(name string, params, results []wit.Type, fn HostFunc) *ResourceBuilder {
	r.module.define("[static]"+r.name+"."+name, params, results,
		func(ctx context.Context, _ api.Module, args []any) ([]any, error) {
			return fn(ctx, args)
		})
	return r
}

// Destructor releases the guest side of a guest-defined resource once its
// last owned handle is dropped. mod is the calling guest.
type Destructor func(ctx context.Context, mod api.Module, rep uint32) error

// DtorPrefix names the guest export that destroys a guest-defined resource.
const DtorPrefix = "[dtor]"

// GuestDtor calls the calling guest's [dtor]<name> export. A guest without
// one has nothing to release.
func GuestDtor(name string) Destructor {
	export := DtorPrefix + name
	return func(ctx context.Context, mod api.Module, rep uint32) error {
		fn := mod.ExportedFunction(export)
		if fn == nil {
			return nil
		}
		if _, err := fn.Call(ctx, uint64(rep)); err != nil {
			return errors.Wrap(errors.PhaseHost, errors.KindProtocolViolation, err, export)
		}
		return nil
	}
}

// GuestResource exports the intrinsics for a resource type the guest
// defines: [resource-new]<name> mints a handle for a guest rep,
// [resource-rep]<name> reads it back and [resource-drop]<name> releases
// the handle and runs the guest's [dtor]<name>.
func (m *HostModule) GuestResource(name string, table *resource.Table) *HostModule {
	return m.GuestResourceDtor(name, table, GuestDtor(name))
}

// GuestResourceDtor is GuestResource with an explicit destructor. dtor
// runs exactly once per owned handle, after the record is gone.
func (m *HostModule) GuestResourceDtor(name string, table *resource.Table, dtor Destructor) *HostModule {
	m.nextID++
	typeID := m.nextID

	m.defineRaw("[resource-new]"+name, func(_ context.Context, _ api.Module, stack []uint64) {
		h, err := table.NewFromRep(typeID, uint32(stack[0]))
		if err != nil {
			trap("[resource-new]"+name, err)
		}
		stack[0] = uint64(h)
	}, u32Core(), u32Core())

	rep := func(fn string, h resource.Handle) uint32 {
		if _, err := table.LookupTyped(h, typeID); err != nil {
			trap(fn, err)
		}
		r, err := table.Rep(h)
		if err != nil {
			trap(fn, err)
		}
		return r
	}

	m.defineRaw("[resource-rep]"+name, func(_ context.Context, _ api.Module, stack []uint64) {
		stack[0] = uint64(rep("[resource-rep]"+name, resource.Handle(uint32(stack[0]))))
	}, u32Core(), u32Core())

	m.defineRaw("[resource-drop]"+name, func(ctx context.Context, mod api.Module, stack []uint64) {
		fn := "[resource-drop]" + name
		h := resource.Handle(uint32(stack[0]))
		r := rep(fn, h)
		if err := table.Drop(h); err != nil {
			trap(fn, err)
		}
		if dtor == nil {
			return
		}
		if err := dtor(ctx, mod, r); err != nil {
			trap(fn, err)
		}
	}, u32Core(), nil)
	return m
}
