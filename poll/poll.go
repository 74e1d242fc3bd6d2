package poll

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-boundary/async"
	"github.com/wippyai/wasm-boundary/errors"
	"github.com/wippyai/wasm-boundary/resource"
)

// Namespace is the interface name the pollable entry points are exported
// under.
const Namespace = "wasm-boundary:async/poll"

// Subscribable is a boundary value whose readiness can be waited on:
// futures, streams and event generators.
type Subscribable interface {
	Subscribe() *async.EventSubscription
}

// Host implements the pollable entry points over two handle tables: one
// holding subscribable values and one holding pollables.
type Host struct {
	resources *resource.Table
	pollables *resource.Table
}

// NewHost creates a host that subscribes to values in resources. The
// pollable table is owned by the host.
func NewHost(resources *resource.Table) *Host {
	return &Host{
		resources: resources,
		pollables: resource.NewTable(),
	}
}

// Pollables returns the table holding pollable handles.
func (h *Host) Pollables() *resource.Table {
	return h.pollables
}

// Subscribe looks up the subscribable value behind handle and returns a
// new pollable handle for it.
func (h *Host) Subscribe(handle resource.Handle) (resource.Handle, error) {
	v, err := h.resources.Lookup(handle)
	if err != nil {
		return 0, err
	}
	s, ok := v.(Subscribable)
	if !ok {
		return 0, errors.New(errors.PhaseAsync, errors.KindTypeMismatch).
			Handle(uint32(handle)).
			Detail("%T cannot be subscribed to", v).
			Build()
	}
	return h.Add(s.Subscribe())
}

// Add places an existing subscription in the pollable table.
func (h *Host) Add(sub *async.EventSubscription) (resource.Handle, error) {
	p, err := sub.IntoHandle(h.pollables)
	if err != nil {
		return 0, err
	}
	Logger().Debug("pollable created", zap.Uint32("pollable", uint32(p)))
	return p, nil
}

func (h *Host) lookup(p resource.Handle) (*async.EventSubscription, error) {
	return async.FromHandle(h.pollables, p)
}

func (h *Host) lookupAll(handles []resource.Handle) ([]*async.EventSubscription, error) {
	subs := make([]*async.EventSubscription, len(handles))
	for i, p := range handles {
		s, err := h.lookup(p)
		if err != nil {
			return nil, err
		}
		subs[i] = s
	}
	return subs, nil
}

// PollOneoff reports the readiness of each pollable, index-aligned with
// handles. It never blocks.
func (h *Host) PollOneoff(handles []resource.Handle) ([]bool, error) {
	subs, err := h.lookupAll(handles)
	if err != nil {
		return nil, err
	}
	ready := make([]bool, len(subs))
	for i, s := range subs {
		ready[i] = s.Ready()
	}
	return ready, nil
}

// Poll blocks until at least one pollable is ready and returns the indices
// of every ready one.
func (h *Host) Poll(ctx context.Context, handles []resource.Handle) ([]uint32, error) {
	subs, err := h.lookupAll(handles)
	if err != nil {
		return nil, err
	}
	if err := async.WaitAny(ctx, subs...); err != nil {
		return nil, err
	}

	ready := make([]uint32, 0, len(subs))
	for i, s := range subs {
		if s.Ready() {
			ready = append(ready, uint32(i))
		}
	}
	return ready, nil
}

// Ready reports whether a single pollable is ready.
func (h *Host) Ready(p resource.Handle) (bool, error) {
	s, err := h.lookup(p)
	if err != nil {
		return false, err
	}
	return s.Ready(), nil
}

// Block waits for a single pollable.
func (h *Host) Block(ctx context.Context, p resource.Handle) error {
	s, err := h.lookup(p)
	if err != nil {
		return err
	}
	return s.Block(ctx)
}

// DropPollable releases a pollable handle and closes its subscription.
func (h *Host) DropPollable(p resource.Handle) error {
	if _, err := h.lookup(p); err != nil {
		return err
	}
	Logger().Debug("pollable dropped", zap.Uint32("pollable", uint32(p)))
	return h.pollables.Drop(p)
}

// Close drops every outstanding pollable.
func (h *Host) Close() error {
	return h.pollables.Close()
}
