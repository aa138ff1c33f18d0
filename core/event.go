package core

import "time"

// EventKind classifies the progress notifications a target emits while an
// invocation runs.
type EventKind string

const (
	// EventDelta carries a streamed fragment of assistant text.
	EventDelta EventKind = "delta"
	// EventToolPending reports a tool call awaiting an approval decision.
	EventToolPending EventKind = "tool_pending"
	// EventToolResolved reports the settled status of a previously pending tool call.
	EventToolResolved EventKind = "tool_resolved"
	// EventComplete is the successful terminal notification for one target.
	EventComplete EventKind = "complete"
	// EventError is the failed terminal notification for one target.
	EventError EventKind = "error"
)

// ToolCallStatus tracks a tool call through the approval state machine.
type ToolCallStatus string

const (
	// ToolCallPending means the call was proposed and awaits a decision.
	ToolCallPending ToolCallStatus = "pending"
	// ToolCallApproved means a decision allowed the call but it has not run yet.
	ToolCallApproved ToolCallStatus = "approved"
	// ToolCallDenied means a decision rejected the call.
	ToolCallDenied ToolCallStatus = "denied"
	// ToolCallExecuted means an approved call finished running.
	ToolCallExecuted ToolCallStatus = "executed"
	// ToolCallSkipped means a denied call was bypassed without running.
	ToolCallSkipped ToolCallStatus = "skipped"
)

// TargetEvent is the unit of progress reporting between a running target and
// the aggregator. Events for one target arrive in production order; no order
// is defined across targets. Treat values as immutable after emission.
type TargetEvent struct {
	ID         string         `json:"id"`
	RequestID  string         `json:"request_id"`
	TargetID   string         `json:"target_id"`
	Kind       EventKind      `json:"kind"`
	Text       string         `json:"text,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolArgs   string         `json:"tool_args,omitempty"`
	ToolStatus ToolCallStatus `json:"tool_status,omitempty"`
	Err        string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// IsTerminal reports whether the event ends its target's stream.
func (e TargetEvent) IsTerminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}

func newEvent(requestID, targetID string, kind EventKind) TargetEvent {
	return TargetEvent{
		ID:        NewID(),
		RequestID: requestID,
		TargetID:  targetID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeltaEvent builds a streamed text fragment event.
func NewDeltaEvent(requestID, targetID, text string) TargetEvent {
	e := newEvent(requestID, targetID, EventDelta)
	e.Text = text
	return e
}

// NewToolPendingEvent reports a proposed tool call awaiting approval.
func NewToolPendingEvent(requestID, targetID, toolCallID, toolName, toolArgs string) TargetEvent {
	e := newEvent(requestID, targetID, EventToolPending)
	e.ToolCallID = toolCallID
	e.ToolName = toolName
	e.ToolArgs = toolArgs
	e.ToolStatus = ToolCallPending
	return e
}

// NewToolResolvedEvent reports the settled status of a tool call.
func NewToolResolvedEvent(requestID, targetID, toolCallID string, status ToolCallStatus) TargetEvent {
	e := newEvent(requestID, targetID, EventToolResolved)
	e.ToolCallID = toolCallID
	e.ToolStatus = status
	return e
}

// NewCompleteEvent builds the successful terminal event for a target.
func NewCompleteEvent(requestID, targetID string) TargetEvent {
	return newEvent(requestID, targetID, EventComplete)
}

// NewErrorEvent builds the failed terminal event for a target.
func NewErrorEvent(requestID, targetID, message string) TargetEvent {
	e := newEvent(requestID, targetID, EventError)
	e.Err = message
	return e
}
