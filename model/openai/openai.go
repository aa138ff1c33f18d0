// Package openai adapts the OpenAI Chat Completions API to the model.Model
// interface used by comparison targets. Streaming is the primary path: text
// and tool call fragments are forwarded as partial responses while the final
// response carries the fully assembled assistant turn and token usage.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/modelfan/core"
	"github.com/hupe1980/modelfan/model"
	"github.com/openai/openai-go"
)

// Options configure the OpenAI adapter. Fields mirror a minimal subset of
// Chat Completion parameters; extend via functional options without breaking
// callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req)
		if req.Stream {
			m.stream(ctx, params, out, errCh)
			return
		}
		m.complete(ctx, params, out, errCh)
	}()
	return out, errCh
}

func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            convertContents(req.Contents),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if req.Stream {
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params
}

// convertContents maps rendered messages onto chat completion messages. Tool
// responses are attached right after the assistant turn that issued the
// matching call; responses with no visible call are appended at the end in
// first-seen order.
func convertContents(contents []core.Content) []openai.ChatCompletionMessageParamUnion {
	results, order := indexToolResults(contents)

	var messages []openai.ChatCompletionMessageParamUnion
	for _, c := range contents {
		switch c.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(c.Text()))
		case "user":
			messages = append(messages, openai.UserMessage(c.Text()))
		case "assistant":
			messages = append(messages, assistantMessages(c, results)...)
		case "tool":
			// Folded in next to the call that produced them.
		default:
			if text := c.Text(); text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}
	for _, id := range order {
		if resp, ok := results[id]; ok {
			messages = append(messages, openai.ToolMessage(resp, id))
		}
	}
	return messages
}

// indexToolResults collects function responses by call id preserving
// first-seen order.
func indexToolResults(contents []core.Content) (map[string]string, []string) {
	results := map[string]string{}
	var order []string
	for _, c := range contents {
		if c.Role != "tool" {
			continue
		}
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok || fr.FunctionResponse.ID == "" {
				continue
			}
			if _, seen := results[fr.FunctionResponse.ID]; seen {
				continue
			}
			results[fr.FunctionResponse.ID] = responseText(fr.FunctionResponse.Response)
			order = append(order, fr.FunctionResponse.ID)
		}
	}
	return results, order
}

func responseText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// assistantMessages converts one assistant turn, pairing any tool calls with
// their recorded responses. Paired responses are consumed from results.
func assistantMessages(
	c core.Content,
	results map[string]string,
) []openai.ChatCompletionMessageParamUnion {
	var calls []openai.ChatCompletionMessageToolCallParam
	var callIDs []string
	for _, p := range c.Parts {
		fc, ok := p.(core.FunctionCallPart)
		if !ok {
			continue
		}
		calls = append(calls, openai.ChatCompletionMessageToolCallParam{
			ID:   fc.FunctionCall.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.FunctionCall.Name,
				Arguments: fc.FunctionCall.Arguments,
			},
		})
		callIDs = append(callIDs, fc.FunctionCall.ID)
	}

	if len(calls) == 0 {
		return []openai.ChatCompletionMessageParamUnion{openai.AssistantMessage(c.Text())}
	}

	out := []openai.ChatCompletionMessageParamUnion{{
		OfAssistant: &openai.ChatCompletionAssistantMessageParam{
			Role:      "assistant",
			ToolCalls: calls,
		},
	}}
	for _, id := range callIDs {
		if id == "" {
			continue
		}
		if resp, ok := results[id]; ok {
			out = append(out, openai.ToolMessage(resp, id))
			delete(results, id)
		}
	}
	return out
}

func convertTools(defs []model.ToolDefinition) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, len(defs))
	for i, def := range defs {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Function.Name,
				Description: openai.String(def.Function.Description),
				Parameters:  def.Function.Parameters,
			},
		}
	}
	return tools
}

// callDraft assembles one tool call from its streamed fragments.
type callDraft struct {
	id   string
	name string
	args string
}

// streamState assembles one assistant turn from chat completion chunks.
// Tool calls keep their first-seen order so the final response is stable
// across runs.
type streamState struct {
	text         strings.Builder
	calls        []*callDraft
	byIndex      map[int64]*callDraft
	finishReason string
	usage        *model.TokenUsage
}

func newStreamState() *streamState {
	return &streamState{byIndex: map[int64]*callDraft{}}
}

func (s *streamState) applyToolCall(index int64, id, name, argsFragment string) *callDraft {
	draft, ok := s.byIndex[index]
	if !ok {
		draft = &callDraft{}
		s.byIndex[index] = draft
		s.calls = append(s.calls, draft)
	}
	if id != "" {
		draft.id = id
	}
	if name != "" {
		draft.name = name
	}
	draft.args += argsFragment
	return draft
}

func (s *streamState) final() model.Response {
	parts := make([]core.Part, 0, len(s.calls)+1)
	if s.text.Len() > 0 {
		parts = append(parts, core.TextPart{Text: s.text.String()})
	}
	for _, c := range s.calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        c.id,
			Name:      c.name,
			Arguments: c.args,
		}})
	}
	return model.Response{
		Partial:      false,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: s.finishReason,
		Usage:        s.usage,
	}
}

// stream forwards fragments as partial responses and closes with the
// assembled final turn once the provider stream ends cleanly.
func (m *Model) stream(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	state := newStreamState()
	for stream.Next() {
		ck := stream.Current()
		if ck.Usage.TotalTokens > 0 {
			state.usage = &model.TokenUsage{
				PromptTokens:     int(ck.Usage.PromptTokens),
				CompletionTokens: int(ck.Usage.CompletionTokens),
				TotalTokens:      int(ck.Usage.TotalTokens),
			}
		}
		if len(ck.Choices) == 0 {
			continue
		}
		choice := ck.Choices[0]
		if choice.Delta.Content != "" {
			state.text.WriteString(choice.Delta.Content)
			out <- partialText(choice.Delta.Content)
		}
		for _, tc := range choice.Delta.ToolCalls {
			draft := state.applyToolCall(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
			out <- partialCall(draft)
		}
		if choice.FinishReason != "" {
			state.finishReason = choice.FinishReason
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
		return
	}
	out <- state.final()
}

func partialText(text string) model.Response {
	return model.Response{
		Partial: true,
		Content: core.Content{
			Role:  "assistant",
			Parts: []core.Part{core.TextPart{Text: text}},
		},
	}
}

func partialCall(c *callDraft) model.Response {
	return model.Response{
		Partial: true,
		Content: core.Content{
			Role: "assistant",
			Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        c.id,
				Name:      c.name,
				Arguments: c.args,
			}}},
		},
	}
}

// complete issues a single non-streaming completion.
func (m *Model) complete(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}
	choice := resp.Choices[0]
	parts := make([]core.Part, 0, len(choice.Message.ToolCalls)+1)
	if choice.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}
	out <- model.Response{
		ID:           resp.ID,
		Partial:      false,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: choice.FinishReason,
		Usage:        usageFromCompletion(resp.Usage),
	}
}

func usageFromCompletion(u openai.CompletionUsage) *model.TokenUsage {
	if u.TotalTokens == 0 {
		return nil
	}
	return &model.TokenUsage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
