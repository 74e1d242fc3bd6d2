// Package async bridges blocking work and readiness-based waiting across
// the component boundary.
//
// The model is cooperative. Producers hold an EventGenerator and call
// Activate when something is ready; consumers hold EventSubscriptions and
// register callbacks with an Executor. Nothing runs until the executor is
// driven with RunOnce, Run or RunFor.
//
//	native goroutine ──Activate──▶ EventGenerator
//	                                   │
//	                    Subscribe / Dup▼
//	guest pollable ◀── EventSubscription ──Register──▶ Executor ──▶ callback
//
// Registering an already-ready subscription does not run the callback
// inline; it runs on the next executor iteration. A subscription can be
// registered once at a time; Dup it to wait from more than one place.
// There is no cancellation of in-flight work. Closing a subscription
// before it fires is the only way to withdraw a callback.
//
// Future and Stream are the two boundary value carriers. Forward hands a
// native Future to the guest as a pollable; Await turns a guest pollable
// back into a native Future.
package async
