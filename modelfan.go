package modelfan

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/modelfan/aggregate"
	"github.com/hupe1980/modelfan/approval"
	"github.com/hupe1980/modelfan/core"
	"github.com/hupe1980/modelfan/logging"
	"github.com/hupe1980/modelfan/model"
	"github.com/hupe1980/modelfan/orchestrator"
	"github.com/hupe1980/modelfan/pipeline"
	"github.com/hupe1980/modelfan/session"
	"github.com/hupe1980/modelfan/tool"
)

// Options configures the ModelFan instance.
type Options struct {
	// Instructions is the base system prompt shared by all targets. It may
	// reference {{.target_id}}.
	Instructions string

	// MaxTurns bounds the model/tool loop per target invocation.
	MaxTurns int

	// EnableStreaming requests incremental deltas from backends that
	// support it.
	EnableStreaming bool

	// EventBufferSize sets the channel buffer size for per-request event
	// processing. Larger buffers reduce blocking between targets.
	EventBufferSize int

	// Gate receives proposed tool calls. Defaults to a fresh gate.
	Gate *approval.Gate

	// SessionStore persists conversation history between Sends that name a
	// session. Defaults to an in-memory store.
	SessionStore session.Store

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// ModelFan is the high-level façade aggregating the shared pipeline, the
// approval gate and the orchestrator.
type ModelFan struct {
	pipeline *pipeline.ModelPipeline
	orch     *orchestrator.Orchestrator
	sessions session.Store

	mu             sync.RWMutex
	customizations map[string]string
}

// New creates a new ModelFan instance with optional overrides.
func New(optFns ...func(o *Options)) *ModelFan {
	opts := Options{
		Instructions:    "You are a helpful assistant.",
		MaxTurns:        8,
		EnableStreaming: true,
		EventBufferSize: 64,
		SessionStore:    session.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	p := pipeline.NewModelPipeline(func(o *pipeline.Options) {
		o.Instructions = opts.Instructions
		o.MaxTurns = opts.MaxTurns
		o.Stream = opts.EnableStreaming
		o.Logger = opts.Logger
	})

	orch := orchestrator.New(p, func(o *orchestrator.Options) {
		o.Gate = opts.Gate
		o.EventBufferSize = opts.EventBufferSize
		o.Logger = opts.Logger
	})

	return &ModelFan{
		pipeline:       p,
		orch:           orch,
		sessions:       opts.SessionStore,
		customizations: make(map[string]string),
	}
}

// RegisterTarget makes a backend addressable under the target id. The
// customization, when non-empty, is saved and prepended as extra system text
// for every Send that includes the target.
func (f *ModelFan) RegisterTarget(targetID string, m model.Model, customization string) {
	f.pipeline.RegisterModel(targetID, m)
	f.mu.Lock()
	defer f.mu.Unlock()
	if customization != "" {
		f.customizations[targetID] = customization
	} else {
		delete(f.customizations, targetID)
	}
}

// RegisterTool advertises a tool to every target. Calls proposed by any
// target suspend on the approval gate until resolved.
func (f *ModelFan) RegisterTool(t tool.Tool) { f.pipeline.RegisterTool(t) }

// Targets returns the registered target ids.
func (f *ModelFan) Targets() []string { return f.pipeline.Targets() }

// SendOptions carries per-call configuration of one Send.
type SendOptions struct {
	// History is prior conversation carried into every target's prompt.
	History []core.Content

	// SessionID names a stored conversation. Its recorded turns are
	// prepended to History, and the exchange is recorded back into the
	// session once all targets complete.
	SessionID string

	// PromptOverrides replaces saved customizations per target for this
	// call only. An entry with an empty value disables the target's saved
	// customization.
	PromptOverrides map[string]string

	// OnDelta streams incremental text as targets produce it.
	OnDelta func(targetID, text string)

	// OnUpdate fires with a snapshot after every aggregated event.
	OnUpdate func(resp *aggregate.AggregatedResponse)
}

// Send fans the message out to the given targets and blocks until every
// target reaches a terminal state. Targets not listed are not invoked.
func (f *ModelFan) Send(
	ctx context.Context,
	message string,
	targetIDs []string,
	optFns ...func(so *SendOptions),
) (*aggregate.AggregatedResponse, error) {
	var so SendOptions
	for _, fn := range optFns {
		fn(&so)
	}

	history := so.History
	if so.SessionID != "" && f.sessions != nil {
		stored, err := f.sessions.History(so.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session %s: %w", so.SessionID, err)
		}
		history = append(stored, so.History...)
	}

	req, err := core.NewRequest(message, history)
	if err != nil {
		return nil, err
	}

	modifiers := f.buildModifiers(targetIDs, so.PromptOverrides)

	resp, err := f.orch.Send(ctx, req, targetIDs, func(o *orchestrator.SendOptions) {
		o.PromptModifiers = modifiers
		o.OnDelta = so.OnDelta
		o.OnUpdate = so.OnUpdate
	})
	if err != nil {
		return nil, err
	}

	if so.SessionID != "" && f.sessions != nil {
		if err := f.sessions.AppendTurns(so.SessionID, exchangeTurns(message, resp)...); err != nil {
			return nil, fmt.Errorf("failed to record session %s: %w", so.SessionID, err)
		}
	}

	return resp, nil
}

// exchangeTurns converts one completed fan-out into session history: the user
// turn followed by one assistant turn per successful target, tagged with the
// producing target's id.
func exchangeTurns(message string, resp *aggregate.AggregatedResponse) []core.Content {
	turns := []core.Content{core.NewTextContent("user", message)}
	for _, id := range resp.TargetOrder {
		state, ok := resp.PerTarget[id]
		if !ok || state.Err != "" || state.Text == "" {
			continue
		}
		turns = append(turns, core.Content{
			Role: "assistant",
			Parts: []core.Part{core.TextPart{
				Text:     state.Text,
				Metadata: map[string]any{"target_id": id},
			}},
		})
	}
	return turns
}

// buildModifiers turns saved customizations and per-call overrides into
// prompt modifiers. The modifier for a target prepends the customization as
// system text ahead of the rendered sequence.
func (f *ModelFan) buildModifiers(targetIDs []string, overrides map[string]string) map[string]core.PromptModifier {
	f.mu.RLock()
	defer f.mu.RUnlock()

	modifiers := make(map[string]core.PromptModifier, len(targetIDs))
	for _, id := range targetIDs {
		text, saved := f.customizations[id]
		if override, ok := overrides[id]; ok {
			text, saved = override, true
		}
		if !saved || text == "" {
			continue
		}
		modifiers[id] = prependSystemText(text)
	}
	return modifiers
}

func prependSystemText(text string) core.PromptModifier {
	return func(rendered []core.Content) []core.Content {
		out := make([]core.Content, 0, len(rendered)+1)
		out = append(out, core.NewTextContent("system", text))
		out = append(out, rendered...)
		return out
	}
}

// Resolve applies a human decision to suspended tool calls and returns how
// many were settled.
func (f *ModelFan) Resolve(d approval.Decision) int { return f.orch.Resolve(d) }

// Approve resolves matching suspended calls with an approval. Use
// approval.AllTargets and approval.AllPendingCalls to widen the scope.
func (f *ModelFan) Approve(requestID, targetID, toolCallID string) int {
	return f.orch.Resolve(approval.Decision{
		RequestID:  requestID,
		TargetID:   targetID,
		ToolCallID: toolCallID,
		Verdict:    approval.Approve,
	})
}

// Deny resolves matching suspended calls with a denial.
func (f *ModelFan) Deny(requestID, targetID, toolCallID string) int {
	return f.orch.Resolve(approval.Decision{
		RequestID:  requestID,
		TargetID:   targetID,
		ToolCallID: toolCallID,
		Verdict:    approval.Deny,
	})
}

// Cancel aborts an in-flight request.
func (f *ModelFan) Cancel(requestID string) bool { return f.orch.Cancel(requestID) }

// Response returns the current aggregate snapshot for a request.
func (f *ModelFan) Response(requestID string) (*aggregate.AggregatedResponse, bool) {
	return f.orch.Response(requestID)
}

// Release drops a finished request's aggregate state.
func (f *ModelFan) Release(requestID string) { f.orch.Release(requestID) }
