package approval

import (
	"sync"

	"github.com/hupe1980/modelfan/logging"
)

// Verdict is the outcome an awaiting tool call receives.
type Verdict int

const (
	// Approve releases the tool call for execution.
	Approve Verdict = iota
	// Deny skips the tool call without executing it.
	Deny
)

// String returns the string representation of the verdict.
func (v Verdict) String() string {
	if v == Approve {
		return "approve"
	}
	return "deny"
}

const (
	// AllTargets scopes a decision to every target of the request.
	AllTargets = "all"
	// AllPendingCalls scopes a decision to every currently proposed call in scope.
	AllPendingCalls = "all-pending"
)

// Decision is an externally supplied resolution for one or more proposed tool
// calls. TargetID may name a single target or AllTargets; ToolCallID may name
// a single call or AllPendingCalls. A decision is consumed exactly once;
// re-delivery for already settled calls is a no-op.
type Decision struct {
	RequestID  string  `json:"request_id"`
	TargetID   string  `json:"target_id"`
	ToolCallID string  `json:"tool_call_id"`
	Verdict    Verdict `json:"verdict"`
}

// callKey identifies one proposal. Tool call ids come from the model provider
// and are only unique within a single request, so the request id is part of
// the key; concurrent requests may reuse the same call id without colliding.
type callKey struct {
	requestID  string
	toolCallID string
}

// proposal is one suspended tool call. The channel is buffered so resolution
// never blocks on a consumer that has already given up (cancelled context).
type proposal struct {
	requestID  string
	targetID   string
	toolCallID string
	verdict    chan Verdict
}

// Gate tracks proposed tool calls and releases them when decisions arrive.
// All methods are safe for concurrent use. The gate holds no per-target
// execution state; it only correlates call ids to verdict channels.
type Gate struct {
	mu      sync.Mutex
	pending map[callKey]*proposal
	logger  logging.Logger
}

// Options configures a Gate.
type Options struct {
	Logger logging.Logger
}

// NewGate constructs an empty gate.
func NewGate(optFns ...func(o *Options)) *Gate {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gate{
		pending: make(map[callKey]*proposal),
		logger:  opts.Logger,
	}
}

// Propose registers a pending tool call and returns the channel its verdict
// will arrive on. The invocation suspends by receiving from the channel
// (selecting against its own context). Proposing a call that is already
// pending for the same request returns the existing channel rather than a
// second future.
func (g *Gate) Propose(requestID, targetID, toolCallID string) <-chan Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := callKey{requestID: requestID, toolCallID: toolCallID}
	if p, ok := g.pending[key]; ok {
		return p.verdict
	}

	p := &proposal{
		requestID:  requestID,
		targetID:   targetID,
		toolCallID: toolCallID,
		verdict:    make(chan Verdict, 1),
	}
	g.pending[key] = p

	g.logger.Debug("approval.proposed", "request_id", requestID, "target_id", targetID, "tool_call_id", toolCallID)

	return p.verdict
}

// Resolve applies a decision and returns how many proposals it settled.
// Scoping: TargetID == AllTargets matches every target of the request;
// ToolCallID == AllPendingCalls matches every call currently proposed within
// the target scope. Proposals arriving after Resolve returns are untouched
// and need a fresh decision. Decisions for unknown or already settled calls
// resolve nothing and are not an error.
func (g *Gate) Resolve(d Decision) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	resolved := 0
	for key, p := range g.pending {
		if p.requestID != d.RequestID {
			continue
		}
		if d.TargetID != AllTargets && p.targetID != d.TargetID {
			continue
		}
		if d.ToolCallID != AllPendingCalls && p.toolCallID != d.ToolCallID {
			continue
		}
		p.verdict <- d.Verdict
		delete(g.pending, key)
		resolved++
	}

	g.logger.Info("approval.decision.applied",
		"request_id", d.RequestID, "target_id", d.TargetID,
		"tool_call_id", d.ToolCallID, "verdict", d.Verdict.String(), "resolved", resolved)

	return resolved
}

// Withdraw removes a proposal without delivering a verdict. Called by an
// awaiter that stops waiting (cancelled context) so the entry does not linger
// in the pending set. Withdrawing a call that was already settled or never
// proposed is a no-op.
func (g *Gate) Withdraw(requestID, toolCallID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := callKey{requestID: requestID, toolCallID: toolCallID}
	if _, ok := g.pending[key]; !ok {
		return false
	}
	delete(g.pending, key)

	g.logger.Debug("approval.withdrawn", "request_id", requestID, "tool_call_id", toolCallID)

	return true
}

// CancelRequest denies every proposal still outstanding for the request.
// Used when the logical request is cancelled so suspended invocations can
// unwind instead of waiting on a decision that will never come.
func (g *Gate) CancelRequest(requestID string) int {
	return g.Resolve(Decision{
		RequestID:  requestID,
		TargetID:   AllTargets,
		ToolCallID: AllPendingCalls,
		Verdict:    Deny,
	})
}

// PendingCount reports the number of unresolved proposals for a request.
func (g *Gate) PendingCount(requestID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, p := range g.pending {
		if p.requestID == requestID {
			n++
		}
	}
	return n
}
