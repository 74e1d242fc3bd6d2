// Package resource manages resource handles on both sides of the boundary.
//
// # Exported resources
//
// A Table maps non-zero integer handles to the native objects this side
// exposes. Handles are recycled through a LIFO free list, but never while
// the previous record is live:
//
//	table := resource.NewTable()
//
//	h, err := table.Register(file)   // owned record, fresh or recycled id
//	obj, err := table.Lookup(h)      // invalid_handle for 0, unknown or dropped ids
//	err = table.Drop(h)              // destroys obj exactly once
//
// Destruction calls Drop() on values implementing Dropper, or Close() on
// values implementing io.Closer. Take removes a record without destroying
// the object, for owned handles passed back across the boundary.
//
// Records can be borrowed for the duration of a call; Drop refuses with a
// protocol_violation while borrows are outstanding. NewFromRep and Rep are
// the resource.new and resource.rep intrinsics for resources defined on the
// far side.
//
// TypedTable gives a type-safe view over one resource type id:
//
//	files := resource.NewTypedTable[*os.File](table, FileTypeID)
//	f, err := files.Lookup(h)
//
// # Imported resources
//
// A Proxy wraps a handle received from the far side:
//
//	p := resource.NewProxy(h, dropRemote)
//	defer p.Close()                  // exactly one remote drop
//
//	q := p.Move()                    // p is now null; q owns the handle
//	v := q.Borrow()                  // non-owning view, never drops
//	_, err := p.Handle()             // use_after_move
//
// An owned proxy that is garbage collected without Close logs a warning;
// the remote drop is never issued from the collector.
package resource
