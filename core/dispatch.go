package core

import (
	"context"

	"github.com/hupe1980/modelfan/approval"
	"github.com/hupe1980/modelfan/logging"
)

// PromptModifier transforms the fully rendered message sequence for one
// target just before the model sees it. Modifiers must be pure with respect
// to the input slice: return a new slice rather than mutating in place.
type PromptModifier func(rendered []Content) []Content

// RenderObserver is notified with the rendered messages of one invocation
// before any modifier is applied.
type RenderObserver func(rendered []Content)

// Dispatch is the per-target dispatch descriptor for one logical request.
// Exactly one pipeline invocation owns a Dispatch; its fields are never
// mutated after Bind. The prompt modifier, render observer and approval gate
// live here, on the object that uniquely identifies the in-flight invocation,
// so a callback that receives "the current invocation's dispatch" always
// finds the correct configuration no matter how many sibling invocations are
// interleaved on the same pipeline entry point.
type Dispatch struct {
	RequestID string
	TargetID  string
	Message   string
	History   []Content // private copy, never shared between descriptors

	PromptModifier   PromptModifier
	OnRenderObserved RenderObserver
	Gate             *approval.Gate

	Context context.Context
	Emit    chan<- TargetEvent
	Logger  logging.Logger
}

// Bind derives the runnable descriptor from a Fanout product, attaching the
// runtime pieces the orchestrator owns. The receiver is left untouched; the
// returned copy is the one handed to the pipeline.
func (d *Dispatch) Bind(
	ctx context.Context,
	emit chan<- TargetEvent,
	gate *approval.Gate,
	modifier PromptModifier,
	observer RenderObserver,
	logger logging.Logger,
) *Dispatch {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Dispatch{
		RequestID:        d.RequestID,
		TargetID:         d.TargetID,
		Message:          d.Message,
		History:          d.History,
		PromptModifier:   modifier,
		OnRenderObserved: observer,
		Gate:             gate,
		Context:          ctx,
		Emit:             emit,
		Logger:           logger,
	}
}

// Done returns a channel closed when the dispatch context is cancelled.
func (d *Dispatch) Done() <-chan struct{} {
	if d.Context == nil {
		return nil
	}
	return d.Context.Done()
}

// Err returns the cancellation error (if any) from the dispatch context.
func (d *Dispatch) Err() error {
	if d.Context == nil {
		return nil
	}
	return d.Context.Err()
}

// EmitEvent sends a progress event for this dispatch, giving up when the
// dispatch context is cancelled. Cancelled targets stop forwarding output;
// their single terminal event is delivered by the adapter, not here.
func (d *Dispatch) EmitEvent(ev TargetEvent) error {
	select {
	case <-d.Done():
		return d.Err()
	case d.Emit <- ev:
		return nil
	}
}

// AwaitVerdict proposes the tool call on the gate and suspends until a
// decision arrives or the dispatch is cancelled. Cancellation yields Deny.
func (d *Dispatch) AwaitVerdict(toolCallID string) (approval.Verdict, error) {
	if d.Gate == nil {
		// No gate configured: side effects run ungated.
		return approval.Approve, nil
	}

	verdictCh := d.Gate.Propose(d.RequestID, d.TargetID, toolCallID)
	select {
	case <-d.Done():
		// The awaiter is gone; drop the proposal so it does not linger
		// in the gate's pending set.
		d.Gate.Withdraw(d.RequestID, toolCallID)
		return approval.Deny, d.Err()
	case v := <-verdictCh:
		return v, nil
	}
}
