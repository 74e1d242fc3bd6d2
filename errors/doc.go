// Package errors provides structured error types for the boundary runtime.
//
// Errors are categorized by Phase (which component raised them) and Kind.
// Four kinds form the boundary taxonomy:
//
//	invalid_handle      unknown or zero handle dereferenced
//	use_after_move      operation on a moved-from proxy
//	allocation_failure  fatal; the allocator bridge aborts instead of returning it
//	protocol_violation  unrecognized callback state, double registration
//
// These are local programming errors. Nothing carries them across the
// boundary: host entry points panic with them, which traps the guest call.
// Application failures travel as result values inside the marshaled payload.
//
// Match the taxonomy from any phase with the sentinels:
//
//	if errors.Is(err, errs.ErrInvalidHandle) { ... }
//
// Use the Builder for the rest:
//
//	err := errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
//		Path("user", "age").
//		WitType("u32").
//		Detail("cannot convert string to integer").
//		Build()
package errors
