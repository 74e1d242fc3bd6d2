// Package wasmboundary is the runtime half of a WebAssembly component boundary.
//
// Two independently managed code regions, a guest and a host, talk only
// through the canonical ABI: core wasm values plus linear memory. This
// library supplies what generated bindings on the Go side need at run time:
// resource handles with single-drop ownership, the cabi_realloc allocation
// contract, value marshaling, and an executor that turns blocking Go work
// into pollable readiness and back.
//
// # Architecture Overview
//
//	wasmboundary/        Root package with Memory, Allocator and Realloc contracts
//	├── errors/          Structured errors and the boundary error taxonomy
//	├── resource/        Handle table for exported resources, proxies for imported ones
//	├── alloc/           cabi_realloc contract, arena memory, buffer ownership tokens
//	├── transcoder/      Canonical ABI layout, flattening, lower and lift
//	├── async/           Executor, event generators, subscriptions, futures, streams
//	├── poll/            subscribe, poll_oneoff and drop_pollable entry points
//	├── linker/          wazero host modules, guest memory and guest export calls
//	└── config/          Environment configuration and logger construction
//
// # Quick Start
//
// Export a resource to a guest:
//
//	table := resource.NewTable()
//	host := linker.NewHostModule("example:counter/api")
//	host.Resource("counter", table).
//		Constructor(nil, func(ctx context.Context, args []any) (any, error) {
//			return &Counter{}, nil
//		}).
//		Method("incr", []wit.Type{wit.U32{}}, []wit.Type{wit.U32{}},
//			func(ctx context.Context, self any, args []any) ([]any, error) {
//				c := self.(*Counter)
//				c.n += args[0].(uint32)
//				return []any{c.n}, nil
//			})
//	if _, err := host.Instantiate(ctx, rt); err != nil {
//		return err
//	}
//
// Bridge a blocking call into the poll protocol. A result that is already
// available comes back directly; otherwise the guest gets a pollable and
// store writes the result before the pollable turns ready:
//
//	exec := async.Default()
//	lookup := async.Go(func() (string, error) {
//		return slowLookup(ctx)
//	})
//	value, waiting, err := async.Forward(exec, lookup, store)
//
// # Thread Safety
//
// Handle tables and executors serialize their own state with a mutex. The
// boundary itself assumes serialized traffic per instance; callers driving
// one instance from several goroutines must synchronize externally.
package wasmboundary
