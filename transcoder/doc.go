// Package transcoder moves values across the component boundary using the
// canonical ABI.
//
// A value of a WIT type has two wire forms: a flat list of core values
// (i32/i64/f32/f64) used for parameters and results, and an in-memory
// layout used for anything stored in linear memory.
//
//	┌───────────────────────────────────────────────────────────┐
//	│ Go value ←→ [Codec] ←→ flat core values / linear memory    │
//	└───────────────────────────────────────────────────────────┘
//
// # Memory Layout
//
//	Type            Size    Alignment
//	──────────────────────────────────
//	bool, u8, s8    1       1
//	u16, s16        2       2
//	u32, s32, f32   4       4
//	u64, s64, f64   8       8
//	char            4       4
//	string, list    8       4 (ptr + len)
//	own, borrow     4       4
//	record, tuple   fields in order, each at its own alignment
//	variant         discriminant, then payload at max case alignment
//	enum            discriminant (1, 2 or 4 bytes by case count)
//	flags           1, 2, 4 or 8 bytes; more than 64 as u32 words
//
// # Go Values
//
//	record          map[string]any, or a struct (wit tag or kebab-case name)
//	tuple           []any
//	variant         map[string]any with one case key
//	option          nil for none, the payload for some
//	result          map[string]any with an "ok" or "err" key
//	enum            case index (uint32) or case name when lowering
//	flags           uint64 bitmask, []uint32 past 64 flags
//	own, borrow     resource.Handle, or a proxy exposing Handle/TakeHandle
//
// # Flattening
//
// Variant payloads share flat slots. Where two cases disagree on the core
// type of a slot the slot is joined: i32 with f32 stays i32, any other
// mismatch widens to i64. Values keep their bits unchanged in a joined slot.
//
// # Ownership
//
// Strings and lists passed in (borrowed) are copied out with LiftString and
// LiftList; BorrowString gives a zero-copy view valid only during the call.
// Strings and lists passed out are allocated through the Allocator and
// recorded in an alloc.List. The caller forgets the list once the far side
// owns the memory and frees it on error. LeakString and AdoptString are the
// explicit transfer pair.
//
// # Calls
//
// Parameter lists flattening to more than MaxFlatParams values are spilled
// to one tuple in memory. Results flattening to more than MaxFlatResults
// values travel through a return area: LiftResults reads it, StoreResults
// writes it.
package transcoder
