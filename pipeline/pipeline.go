package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/modelfan/approval"
	"github.com/hupe1980/modelfan/core"
	"github.com/hupe1980/modelfan/internal/util"
	"github.com/hupe1980/modelfan/logging"
	"github.com/hupe1980/modelfan/model"
	"github.com/hupe1980/modelfan/tool"
)

// Pipeline is the shared entry point every target invocation goes through.
// Invoke renders the prompt (firing the shared render hook), streams deltas
// and tool-call events onto the dispatch's emit channel and returns when the
// target's turn loop finishes. The terminal event for the target is emitted
// by the caller based on the returned error, so a Pipeline emits progress,
// never completion.
type Pipeline interface {
	Invoke(d *core.Dispatch) error
}

// Options configures a ModelPipeline.
type Options struct {
	// Instructions is the system prompt template. It may reference
	// {{.target_id}} which is substituted per invocation.
	Instructions string
	// MaxTurns bounds the model/tool loop per invocation. 0 means the
	// default of 8.
	MaxTurns int
	// Stream requests incremental deltas from backends that support it.
	Stream bool
	// Logger receives pipeline diagnostics.
	Logger logging.Logger
}

// ModelPipeline drives a registered model.Model per target and runs the
// request -> model -> (gated tool loop) cycle. One ModelPipeline instance is
// shared by all concurrent invocations; everything invocation-specific
// arrives on the dispatch.
type ModelPipeline struct {
	mu     sync.RWMutex
	models map[string]model.Model
	tools  map[string]tool.Tool

	instructions string
	maxTurns     int
	stream       bool
	logger       logging.Logger
}

// NewModelPipeline constructs a pipeline with no registered targets.
func NewModelPipeline(optFns ...func(o *Options)) *ModelPipeline {
	opts := Options{
		Instructions: "You are a helpful assistant.",
		MaxTurns:     8,
		Stream:       true,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 8
	}
	return &ModelPipeline{
		models:       make(map[string]model.Model),
		tools:        make(map[string]tool.Tool),
		instructions: opts.Instructions,
		maxTurns:     opts.MaxTurns,
		stream:       opts.Stream,
		logger:       opts.Logger,
	}
}

// RegisterModel makes a backend invocable under the given target id.
// Re-registering an id replaces the previous backend.
func (p *ModelPipeline) RegisterModel(targetID string, m model.Model) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.models[targetID] = m
}

// RegisterTool advertises a tool to every target of every comparison.
func (p *ModelPipeline) RegisterTool(t tool.Tool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tools[t.Name()] = t
}

// Targets returns the registered target ids in unspecified order.
func (p *ModelPipeline) Targets() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.models))
	for id := range p.models {
		ids = append(ids, id)
	}
	return ids
}

// HasTarget reports whether the target id has a registered backend.
func (p *ModelPipeline) HasTarget(targetID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.models[targetID]
	return ok
}

func (p *ModelPipeline) lookupModel(targetID string) (model.Model, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.models[targetID]
	return m, ok
}

func (p *ModelPipeline) toolDefinitions() []model.ToolDefinition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(p.tools))
	for _, t := range p.tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

func (p *ModelPipeline) lookupTool(name string) (tool.Tool, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tools[name]
	return t, ok
}

// Invoke implements Pipeline for exactly one dispatch. Rendering happens
// once; subsequent turns extend the rendered sequence with tool calls and
// their responses.
func (p *ModelPipeline) Invoke(d *core.Dispatch) error {
	backend, ok := p.lookupModel(d.TargetID)
	if !ok {
		return fmt.Errorf("target %s has no registered model", d.TargetID)
	}

	instructions, err := util.RenderTemplate(p.instructions, map[string]any{"target_id": d.TargetID})
	if err != nil {
		return fmt.Errorf("failed to render instructions: %w", err)
	}

	msgs := make([]core.Content, 0, len(d.History)+2)
	msgs = append(msgs, core.NewTextContent("system", instructions))
	msgs = append(msgs, d.History...)
	msgs = append(msgs, core.NewTextContent("user", d.Message))

	// Prompt construction step: the shared hook sees this invocation's
	// dispatch and applies whatever configuration travels on it.
	msgs = CurrentRenderHook()(d, msgs)

	defs := p.toolDefinitions()

	for turn := 0; turn < p.maxTurns; turn++ {
		final, err := p.runModelTurn(d, backend, instructions, msgs, defs)
		if err != nil {
			return err
		}
		if final == nil {
			return fmt.Errorf("model %s produced no final response", d.TargetID)
		}

		calls := final.Content.GetFunctionCalls()
		if len(calls) == 0 {
			return nil
		}

		msgs = append(msgs, final.Content)
		responses, err := p.settleToolCalls(d, calls)
		if err != nil {
			return err
		}
		msgs = append(msgs, responses...)
	}

	return fmt.Errorf("target %s exceeded %d model turns", d.TargetID, p.maxTurns)
}

// runModelTurn streams one Generate call, forwarding text deltas, and
// returns the final (non-partial) response.
func (p *ModelPipeline) runModelTurn(
	d *core.Dispatch,
	backend model.Model,
	instructions string,
	msgs []core.Content,
	defs []model.ToolDefinition,
) (*model.Response, error) {
	start := time.Now()
	respCh, errCh := backend.Generate(d.Context, model.Request{
		Instructions: instructions,
		Contents:     msgs,
		Tools:        defs,
		Stream:       p.stream,
	})

	var final *model.Response
	for respCh != nil || errCh != nil {
		select {
		case <-d.Context.Done():
			return nil, d.Context.Err()

		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				if text := resp.Content.Text(); text != "" {
					if err := d.EmitEvent(core.NewDeltaEvent(d.RequestID, d.TargetID, text)); err != nil {
						return nil, err
					}
				}
				continue
			}
			r := resp
			final = &r

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("model %s: %w", d.TargetID, err)
			}
		}
	}

	p.logger.Debug("pipeline.model_turn",
		"request_id", d.RequestID, "target_id", d.TargetID,
		"model", backend.Info().Name, "duration_ms", time.Since(start).Milliseconds())

	// Non-streaming backends deliver all text in the final response.
	if final != nil && !p.stream {
		if text := final.Content.Text(); text != "" {
			if err := d.EmitEvent(core.NewDeltaEvent(d.RequestID, d.TargetID, text)); err != nil {
				return nil, err
			}
		}
	}

	return final, nil
}

// settleToolCalls proposes each call on the gate, waits for a verdict and
// builds the tool-role responses fed back into the next model turn. Denied
// calls are skipped without executing and report the denial to the model.
func (p *ModelPipeline) settleToolCalls(d *core.Dispatch, calls []core.FunctionCall) ([]core.Content, error) {
	responses := make([]core.Content, 0, len(calls))

	for _, call := range calls {
		if call.ID == "" {
			call.ID = core.NewID()
		}

		if err := d.EmitEvent(core.NewToolPendingEvent(d.RequestID, d.TargetID, call.ID, call.Name, call.Arguments)); err != nil {
			return nil, err
		}

		suspended := time.Now()
		verdict, err := d.AwaitVerdict(call.ID)
		if err != nil {
			return nil, err
		}

		var fr core.FunctionResponse
		var status core.ToolCallStatus
		if verdict == approval.Approve {
			result, execErr := p.executeTool(d, call)
			status = core.ToolCallExecuted
			fr = core.FunctionResponse{ID: call.ID, Name: call.Name, Response: result}
			if execErr != nil {
				fr.Error = execErr.Error()
			}
		} else {
			status = core.ToolCallSkipped
			fr = core.FunctionResponse{ID: call.ID, Name: call.Name, Error: "tool call denied"}
		}

		p.logger.Info("pipeline.tool_settled",
			"request_id", d.RequestID, "target_id", d.TargetID,
			"tool", call.Name, "tool_call_id", call.ID,
			"status", string(status), "suspended_ms", time.Since(suspended).Milliseconds())

		if err := d.EmitEvent(core.NewToolResolvedEvent(d.RequestID, d.TargetID, call.ID, status)); err != nil {
			return nil, err
		}

		responses = append(responses, core.Content{
			Role:  "tool",
			Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: fr}},
		})
	}

	return responses, nil
}

func (p *ModelPipeline) executeTool(d *core.Dispatch, call core.FunctionCall) (any, error) {
	t, ok := p.lookupTool(call.Name)
	if !ok {
		return nil, fmt.Errorf("tool %s not registered", call.Name)
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return nil, fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	return t.Call(contextOf(d), args)
}

func contextOf(d *core.Dispatch) context.Context {
	if d.Context != nil {
		return d.Context
	}
	return context.Background()
}
