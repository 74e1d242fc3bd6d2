// Package poll implements the pollable entry points of the boundary:
// subscribe, poll_oneoff and drop_pollable, plus the ready, block and
// ready-indices poll methods.
//
// Pollable handles live in a table of their own. Subscribing to a future,
// stream or generator in the resource table yields a fresh pollable each
// time; dropping the pollable closes it, so any callback still registered
// on it never runs.
//
// Errors are returned for testability. The linker package turns them into
// guest traps.
package poll
