package resource

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-boundary/errors"
)

// DropFunc issues the remote drop for an imported handle, typically a call
// to the far side's [resource-drop] entry point.
type DropFunc func(Handle) error

// noCopy makes go vet's copylocks check reject copies of a Proxy.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// handleCell holds the handle separately from the Proxy so the leak
// cleanup can observe it without keeping the Proxy alive.
type handleCell struct {
	h atomic.Uint32
}

// Proxy is the local wrapper of an imported resource. An owned proxy
// issues exactly one remote drop when closed, unless its handle was moved
// away first. Proxies are used through pointers and never copied.
type Proxy struct {
	_     noCopy
	cell  *handleCell
	drop  DropFunc
	owned bool
}

// NewProxy wraps a handle returned by a creating call. The proxy owns the
// handle and will call drop for it exactly once.
func NewProxy(h Handle, drop DropFunc) *Proxy {
	p := newProxy(h, drop, true)
	if h != 0 {
		runtime.AddCleanup(p, reportLeak, p.cell)
	}
	return p
}

// NewBorrowedProxy wraps a handle the caller does not own.
func NewBorrowedProxy(h Handle) *Proxy {
	return newProxy(h, nil, false)
}

func newProxy(h Handle, drop DropFunc, owned bool) *Proxy {
	p := &Proxy{cell: &handleCell{}, drop: drop, owned: owned}
	p.cell.h.Store(uint32(h))
	return p
}

func reportLeak(cell *handleCell) {
	if h := cell.h.Load(); h != 0 {
		Logger().Warn("owned resource proxy collected without Close; remote drop never issued",
			zap.Uint32("handle", h))
	}
}

// Handle returns the wrapped handle, or a use_after_move error when the
// proxy is null or was moved from.
func (p *Proxy) Handle() (Handle, error) {
	if p == nil {
		return 0, errors.UseAfterMove("Handle")
	}
	h := p.cell.h.Load()
	if h == 0 {
		return 0, errors.UseAfterMove("Handle")
	}
	return Handle(h), nil
}

// MustHandle is Handle for generated call sites, where a moved-from proxy
// is a programming error that must fail fast.
func (p *Proxy) MustHandle() Handle {
	return errors.MustValue(p.Handle())
}

// Valid reports whether the proxy still holds a handle.
func (p *Proxy) Valid() bool {
	return p != nil && p.cell.h.Load() != 0
}

// Owned reports whether the proxy is responsible for the remote drop.
func (p *Proxy) Owned() bool {
	return p != nil && p.owned
}

// Move transfers the handle to a new proxy and zeroes the source. The new
// proxy keeps the source's ownership. Moving a null proxy yields a null
// proxy.
func (p *Proxy) Move() *Proxy {
	if p == nil {
		return newProxy(0, nil, false)
	}
	h := Handle(p.cell.h.Swap(0))
	if h == 0 {
		return newProxy(0, p.drop, p.owned)
	}
	if p.owned {
		return NewProxy(h, p.drop)
	}
	return NewBorrowedProxy(h)
}

// TakeHandle zeroes the proxy and returns the raw handle. Ownership passes
// to the caller, typically because the handle is being lowered as an
// own<T> argument.
func (p *Proxy) TakeHandle() (Handle, error) {
	if p == nil {
		return 0, errors.UseAfterMove("TakeHandle")
	}
	h := Handle(p.cell.h.Swap(0))
	if h == 0 {
		return 0, errors.UseAfterMove("TakeHandle")
	}
	return h, nil
}

// Borrow returns a non-owning view of the same handle. Closing the view
// never issues a drop. The view does not track later moves of p.
func (p *Proxy) Borrow() *Proxy {
	if p == nil {
		return NewBorrowedProxy(0)
	}
	return NewBorrowedProxy(Handle(p.cell.h.Load()))
}

// Close releases the proxy. An owned proxy that still holds its handle
// issues the remote drop; every other case is a no-op. Close is idempotent.
func (p *Proxy) Close() error {
	if p == nil {
		return nil
	}
	h := Handle(p.cell.h.Swap(0))
	if h == 0 || !p.owned || p.drop == nil {
		return nil
	}

	Logger().Debug("dropping imported resource", zap.Uint32("handle", uint32(h)))
	return p.drop(h)
}
