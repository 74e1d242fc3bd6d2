package linker

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-boundary/errors"
	"github.com/wippyai/wasm-boundary/poll"
	"github.com/wippyai/wasm-boundary/resource"
)

func pollableList() wit.Type {
	return &wit.TypeDef{Kind: &wit.List{Type: borrowType()}}
}

func handles(v any) ([]resource.Handle, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseHost, "pollable list")
	}
	out := make([]resource.Handle, len(items))
	for i, item := range items {
		out[i] = item.(resource.Handle)
	}
	return out, nil
}

// Poll exports the pollable entry points of host:
//
//	subscribe(handle) -> pollable
//	poll-oneoff(list<borrow<pollable>>) -> list<bool>
//	poll(list<borrow<pollable>>) -> list<u32>
//	[method]pollable.ready, [method]pollable.block, [resource-drop]pollable
func (m *HostModule) Poll(host *poll.Host) *HostModule {
	m.define("subscribe", []wit.Type{borrowType()}, []wit.Type{ownType()},
		func(_ context.Context, _ api.Module, args []any) ([]any, error) {
			p, err := host.Subscribe(args[0].(resource.Handle))
			if err != nil {
				return nil, err
			}
			return []any{p}, nil
		})

	m.define("poll-oneoff", []wit.Type{pollableList()}, []wit.Type{&wit.TypeDef{Kind: &wit.List{Type: wit.Bool{}}}},
		func(_ context.Context, _ api.Module, args []any) ([]any, error) {
			hs, err := handles(args[0])
			if err != nil {
				return nil, err
			}
			ready, err := host.PollOneoff(hs)
			if err != nil {
				return nil, err
			}
			return []any{ready}, nil
		})

	m.define("poll", []wit.Type{pollableList()}, []wit.Type{&wit.TypeDef{Kind: &wit.List{Type: wit.U32{}}}},
		func(ctx context.Context, _ api.Module, args []any) ([]any, error) {
			hs, err := handles(args[0])
			if err != nil {
				return nil, err
			}
			ready, err := host.Poll(ctx, hs)
			if err != nil {
				return nil, err
			}
			return []any{ready}, nil
		})

	m.define("[method]pollable.ready", []wit.Type{borrowType()}, []wit.Type{wit.Bool{}},
		func(_ context.Context, _ api.Module, args []any) ([]any, error) {
			ok, err := host.Ready(args[0].(resource.Handle))
			if err != nil {
				return nil, err
			}
			return []any{ok}, nil
		})

	m.define("[method]pollable.block", []wit.Type{borrowType()}, nil,
		func(ctx context.Context, _ api.Module, args []any) ([]any, error) {
			return nil, host.Block(ctx, args[0].(resource.Handle))
		})

	m.defineRaw("[resource-drop]pollable", func(_ context.Context, _ api.Module, stack []uint64) {
		if err := host.DropPollable(resource.Handle(uint32(stack[0]))); err != nil {
			trap("[resource-drop]pollable", err)
		}
	}, u32Core(), nil)
	return m
}
