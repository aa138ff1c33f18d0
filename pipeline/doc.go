// Package pipeline contains the underlying invocation pipeline that turns one
// dispatch into streamed model output and gated tool-call events.
//
// The pipeline exposes a single process-wide extension point, the render
// hook, which fires during prompt construction. Because that hook is shared
// by every concurrent invocation, per-invocation behavior must never be baked
// into it via closures: EnsureDispatchHook installs (once) a wrapper that
// looks up the render observer and prompt modifier from the dispatch it is
// handed, keeping every invocation's configuration on the invocation itself.
package pipeline
