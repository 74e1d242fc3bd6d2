package resource

import (
	"github.com/wippyai/wasm-boundary/errors"
)

// TypedTable is a type-safe view of one resource type inside a Table.
// Several typed views may share one table; handles stay unique across them.
type TypedTable[T any] struct {
	table  *Table
	typeID uint32
}

// NewTypedTable creates a view of table for values of type T tagged typeID.
func NewTypedTable[T any](table *Table, typeID uint32) *TypedTable[T] {
	return &TypedTable[T]{table: table, typeID: typeID}
}

// TypeID returns the resource type id of this view.
func (t *TypedTable[T]) TypeID() uint32 {
	return t.typeID
}

// Table returns the shared table.
func (t *TypedTable[T]) Table() *Table {
	return t.table
}

// Register stores an owned value.
func (t *TypedTable[T]) Register(value T) (Handle, error) {
	return t.table.RegisterTyped(t.typeID, value)
}

// Lookup returns the value behind handle. A handle of another type, or a
// value that is not a T, is an invalid handle for this view.
func (t *TypedTable[T]) Lookup(handle Handle) (T, error) {
	var zero T
	v, err := t.table.LookupTyped(handle, t.typeID)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.InvalidHandle(errors.PhaseHandle, uint32(handle))
	}
	return typed, nil
}

// Drop destroys the value behind handle.
func (t *TypedTable[T]) Drop(handle Handle) error {
	if _, err := t.Lookup(handle); err != nil {
		return err
	}
	return t.table.Drop(handle)
}

// Take removes the record and returns the value without destroying it.
func (t *TypedTable[T]) Take(handle Handle) (T, error) {
	var zero T
	if _, err := t.Lookup(handle); err != nil {
		return zero, err
	}
	v, err := t.table.Take(handle)
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Len returns the number of live records of this type.
func (t *TypedTable[T]) Len() int {
	n := 0
	t.table.backend.Each(func(_ Handle, s Slot) bool {
		if s.TypeID == t.typeID {
			n++
		}
		return true
	})
	return n
}

// Each iterates over live records of this type.
func (t *TypedTable[T]) Each(fn func(Handle, T) bool) {
	t.table.backend.Each(func(h Handle, s Slot) bool {
		if s.TypeID != t.typeID {
			return true
		}
		v, ok := s.Value.(T)
		if !ok {
			return true
		}
		return fn(h, v)
	})
}
