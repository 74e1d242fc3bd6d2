package resource

import (
	"fmt"
	"io"
	"sync"

	"github.com/davidmdm/x/xerr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boundary/errors"
)

// Table maps handles to the native objects this side exports across the
// boundary. It is the only arena for exported resources: anything that
// refers to another resource holds its handle, never the object.
//
// A handle is unique among live records and is reused only after its
// record has been dropped. All methods are safe for concurrent use;
// destructors and observers run outside the lock.
type Table struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{
		backend: NewLocalBackend(),
	}
}

// Register stores an owned object and returns its handle.
func (t *Table) Register(object any) (Handle, error) {
	return t.register(0, object, Own)
}

// RegisterTyped stores an owned object tagged with a resource type id.
func (t *Table) RegisterTyped(typeID uint32, object any) (Handle, error) {
	return t.register(typeID, object, Own)
}

// RegisterBorrowed stores an object the table does not own. Dropping the
// handle frees the slot but never destroys the object.
func (t *Table) RegisterBorrowed(typeID uint32, object any) (Handle, error) {
	return t.register(typeID, object, Borrowed)
}

func (t *Table) register(typeID uint32, object any, own Ownership) (Handle, error) {
	handle, err := t.backend.Create(typeID, object, own)
	if err != nil {
		return 0, err
	}

	Logger().Debug("resource registered",
		zap.Uint32("handle", uint32(handle)),
		zap.Uint32("type", typeID),
		zap.Stringer("ownership", own))

	t.notify(Event{
		Type:      EventCreated,
		Handle:    handle,
		TypeID:    typeID,
		Value:     object,
		Ownership: own,
	})
	return handle, nil
}

// Lookup returns the object behind handle. Lookup of 0, of an unknown
// handle, or of a dropped handle fails with an invalid_handle error.
func (t *Table) Lookup(handle Handle) (any, error) {
	s, ok := t.backend.Get(handle)
	if !ok {
		return nil, errors.InvalidHandle(errors.PhaseHandle, uint32(handle))
	}
	return s.Value, nil
}

// LookupTyped is Lookup restricted to one resource type. A handle of a
// different type is reported as invalid.
func (t *Table) LookupTyped(handle Handle, typeID uint32) (any, error) {
	s, ok := t.backend.Get(handle)
	if !ok || s.TypeID != typeID {
		return nil, errors.InvalidHandle(errors.PhaseHandle, uint32(handle))
	}
	return s.Value, nil
}

// TypeID returns the resource type id of a live handle.
func (t *Table) TypeID(handle Handle) (uint32, error) {
	s, ok := t.backend.Get(handle)
	if !ok {
		return 0, errors.InvalidHandle(errors.PhaseHandle, uint32(handle))
	}
	return s.TypeID, nil
}

// Drop removes the record and destroys an owned object exactly once.
// The returned error is either invalid_handle, protocol_violation for a
// record with outstanding borrows, or the object's own Close error.
func (t *Table) Drop(handle Handle) error {
	s, err := t.backend.Remove(handle)
	if err != nil {
		return err
	}

	var destroyErr error
	if s.Ownership == Own {
		destroyErr = destroy(s.Value)
	}

	Logger().Debug("resource dropped",
		zap.Uint32("handle", uint32(handle)),
		zap.Uint32("type", s.TypeID),
		zap.Error(destroyErr))

	t.notify(Event{
		Type:      EventDropped,
		Handle:    handle,
		TypeID:    s.TypeID,
		Value:     s.Value,
		Ownership: s.Ownership,
	})
	return destroyErr
}

// Take removes the record without destroying the object and hands the
// object to the caller. Used when an owned handle comes back across the
// boundary and ownership moves into native code.
func (t *Table) Take(handle Handle) (any, error) {
	s, err := t.backend.Remove(handle)
	if err != nil {
		return nil, err
	}

	t.notify(Event{
		Type:      EventTaken,
		Handle:    handle,
		TypeID:    s.TypeID,
		Value:     s.Value,
		Ownership: s.Ownership,
	})
	return s.Value, nil
}

// Borrow records a borrow lent across the boundary for the duration of a
// call. The record cannot be dropped until every borrow is returned.
func (t *Table) Borrow(handle Handle) error {
	if !t.backend.Borrow(handle) {
		return errors.InvalidHandle(errors.PhaseHandle, uint32(handle))
	}
	t.notify(Event{Type: EventBorrowed, Handle: handle})
	return nil
}

// ReturnBorrow ends a borrow started by Borrow.
func (t *Table) ReturnBorrow(handle Handle) error {
	if !t.backend.ReturnBorrow(handle) {
		if _, ok := t.backend.Get(handle); ok {
			return errors.ProtocolViolation(errors.PhaseHandle, "borrow returned for handle %d with no outstanding borrow", handle)
		}
		return errors.InvalidHandle(errors.PhaseHandle, uint32(handle))
	}
	t.notify(Event{Type: EventBorrowReturned, Handle: handle})
	return nil
}

// NewFromRep implements the resource.new intrinsic: the representation of a
// resource defined on the far side is wrapped in a fresh handle.
func (t *Table) NewFromRep(typeID uint32, rep uint32) (Handle, error) {
	handle, err := t.backend.NewFromRep(typeID, rep)
	if err != nil {
		return 0, err
	}
	t.notify(Event{Type: EventCreated, Handle: handle, TypeID: typeID, Value: rep})
	return handle, nil
}

// Rep implements the resource.rep intrinsic.
func (t *Table) Rep(handle Handle) (uint32, error) {
	rep, ok := t.backend.Rep(handle)
	if !ok {
		return 0, errors.InvalidHandle(errors.PhaseHandle, uint32(handle))
	}
	return rep, nil
}

// Len returns the number of live records.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Each iterates over live records in handle order. fn runs under the
// table read lock and must not call back into the table.
func (t *Table) Each(fn func(Handle, any) bool) {
	t.backend.Each(func(h Handle, s Slot) bool {
		return fn(h, s.Value)
	})
}

// Clear drops every live record and aggregates destructor errors.
func (t *Table) Clear() error {
	var handles []Handle
	t.backend.Each(func(h Handle, _ Slot) bool {
		handles = append(handles, h)
		return true
	})

	var errs []error
	for _, h := range handles {
		errs = append(errs, t.Drop(h))
	}
	return xerr.MultiErrOrderedFrom("clearing handle table", errs...)
}

// Close destroys every live owned object and rejects further registration.
// Closing twice is a no-op.
func (t *Table) Close() error {
	live := t.backend.Close()

	var errs []error
	for _, s := range live {
		if s.Ownership == Own {
			errs = append(errs, destroy(s.Value))
		}
	}
	return xerr.MultiErrOrderedFrom("closing handle table", errs...)
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			next := make([]Observer, 0, len(t.observers)-1)
			next = append(next, t.observers[:i]...)
			t.observers = append(next, t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	observers := t.observers
	t.obsMu.RUnlock()

	for _, o := range observers {
		o.OnResourceEvent(e)
	}
}

// destroy runs the object's destructor. A panicking destructor is turned
// into an error so that one bad object cannot strand the others on Close.
func destroy(value any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resource destructor panicked: %v", r)
		}
	}()

	switch v := value.(type) {
	case Dropper:
		v.Drop()
	case io.Closer:
		return v.Close()
	}
	return nil
}
