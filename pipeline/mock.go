package pipeline

import (
	"sync"

	"github.com/hupe1980/modelfan/approval"
	"github.com/hupe1980/modelfan/core"
)

// Script describes what a MockPipeline does for one target: emit the deltas
// in order, optionally propose a gated tool call, optionally block until
// released, and finish with Err (nil means success).
type Script struct {
	Deltas   []string
	ToolCall *core.FunctionCall
	Block    <-chan struct{}
	Err      error
}

// MockPipeline is a scriptable Pipeline for tests and examples. It exercises
// the same contract as ModelPipeline: it calls the shared render hook at its
// prompt-construction step, emits events on the dispatch and suspends on the
// gate for scripted tool calls.
type MockPipeline struct {
	mu       sync.Mutex
	scripts  map[string]Script
	rendered map[string][][]core.Content
}

// NewMockPipeline constructs an empty mock; unscripted targets complete
// immediately with no output.
func NewMockPipeline() *MockPipeline {
	return &MockPipeline{
		scripts:  make(map[string]Script),
		rendered: make(map[string][][]core.Content),
	}
}

// SetScript installs the behavior for one target id.
func (p *MockPipeline) SetScript(targetID string, s Script) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[targetID] = s
}

// Rendered returns every message sequence the target's invocations produced
// after the shared hook ran, in invocation order.
func (p *MockPipeline) Rendered(targetID string) [][]core.Content {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]core.Content, len(p.rendered[targetID]))
	copy(out, p.rendered[targetID])
	return out
}

func (p *MockPipeline) script(targetID string) Script {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scripts[targetID]
}

func (p *MockPipeline) record(targetID string, msgs []core.Content) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rendered[targetID] = append(p.rendered[targetID], msgs)
}

// Invoke implements Pipeline.
func (p *MockPipeline) Invoke(d *core.Dispatch) error {
	s := p.script(d.TargetID)

	msgs := []core.Content{core.NewTextContent("user", d.Message)}
	msgs = CurrentRenderHook()(d, msgs)
	p.record(d.TargetID, msgs)

	if s.Block != nil {
		select {
		case <-d.Done():
			return d.Err()
		case <-s.Block:
		}
	}

	for _, delta := range s.Deltas {
		if err := d.EmitEvent(core.NewDeltaEvent(d.RequestID, d.TargetID, delta)); err != nil {
			return err
		}
	}

	if s.ToolCall != nil {
		call := *s.ToolCall
		if call.ID == "" {
			call.ID = core.NewID()
		}
		if err := d.EmitEvent(core.NewToolPendingEvent(d.RequestID, d.TargetID, call.ID, call.Name, call.Arguments)); err != nil {
			return err
		}
		verdict, err := d.AwaitVerdict(call.ID)
		if err != nil {
			return err
		}
		status := core.ToolCallSkipped
		if verdict == approval.Approve {
			status = core.ToolCallExecuted
		}
		if err := d.EmitEvent(core.NewToolResolvedEvent(d.RequestID, d.TargetID, call.ID, status)); err != nil {
			return err
		}
	}

	return s.Err
}
