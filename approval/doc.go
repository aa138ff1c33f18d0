// Package approval implements the suspend/resume coordination point that
// gates tool execution on an external decision. Every proposed tool call gets
// its own one-shot verdict channel; an external actor resolves proposals per
// target or for a whole request, and cancellation denies whatever is still
// outstanding so no invocation waits forever.
package approval
