// Package core defines the shared vocabulary of the modelfan framework:
// role-based content, logical requests, per-target dispatch descriptors and
// the event stream a target produces while it runs.
//
// The central type is Dispatch. One Dispatch exists per (request, target)
// pair and carries everything a single pipeline invocation needs, including
// its prompt modifier and approval gate. Because that configuration travels
// on the object identifying the in-flight invocation, concurrent invocations
// can never observe each other's configuration.
package core
