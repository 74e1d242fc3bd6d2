// Package linker connects the boundary runtime to wazero.
//
// A HostModule collects the entry points a guest imports from one
// interface and instantiates them as a wazero host module. Each entry
// point is bound through the canonical ABI: flat parameters are lifted
// with a transcoder.Codec over the calling guest's memory, the Go
// implementation runs, and results are lowered back onto the stack or
// stored into the guest's return area. Strings and lists handed to the
// guest are allocated with the guest's own cabi_realloc.
//
// Exported resources follow the usual naming:
//
//	[constructor]<name>       fresh object, owned handle out
//	[method]<name>.<m>        borrowed handle to self first
//	[static]<name>.<f>
//	[resource-drop]<name>     single drop, destroys the object
//
// Resources the guest defines are covered by GuestResource, which adds
// [resource-new]<name> and [resource-rep]<name>; dropping the last owned
// handle runs the guest's [dtor]<name>. Poll adds the pollable
// entry points from the poll package.
//
// The other direction goes through Export: Lookup binds a guest export to
// its boundary signature, and Call lowers the arguments with the guest's
// allocator, runs the export, lifts the results and invokes the guest's
// cabi_post_<name> when it has one. Guest caches those bindings, and
// Guest.Proxy wraps an owned handle to a guest resource so that closing it
// calls the guest's [resource-drop]<name>.
//
// Failures trap the guest. A host function panics with the boundary
// error and wazero reports it from the guest call that led there.
package linker
