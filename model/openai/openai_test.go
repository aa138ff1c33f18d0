package openai

import (
	"testing"

	"github.com/hupe1980/modelfan/core"
	"github.com/hupe1980/modelfan/model"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertContents_RoleMapping(t *testing.T) {
	msgs := convertContents([]core.Content{
		core.NewTextContent("system", "be brief"),
		core.NewTextContent("user", "hi"),
		core.NewTextContent("assistant", "hello"),
	})

	require.Len(t, msgs, 3)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	assert.NotNil(t, msgs[2].OfAssistant)
}

func TestConvertContents_ToolResponseFollowsCall(t *testing.T) {
	contents := []core.Content{
		core.NewTextContent("user", "what time is it"),
		{Role: "assistant", Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID: "call-1", Name: "current_time", Arguments: "{}",
		}}}},
		{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
			ID: "call-1", Name: "current_time", Response: "12:00",
		}}}},
	}

	msgs := convertContents(contents)

	require.Len(t, msgs, 3)
	require.NotNil(t, msgs[1].OfAssistant)
	require.Len(t, msgs[1].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "call-1", msgs[1].OfAssistant.ToolCalls[0].ID)
	require.NotNil(t, msgs[2].OfTool)
	assert.Equal(t, "call-1", msgs[2].OfTool.ToolCallID)
}

func TestConvertContents_StrayToolResponseAppended(t *testing.T) {
	contents := []core.Content{
		core.NewTextContent("user", "hi"),
		{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
			ID: "call-9", Name: "lookup", Response: 7,
		}}}},
	}

	msgs := convertContents(contents)

	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[1].OfTool)
	assert.Equal(t, "call-9", msgs[1].OfTool.ToolCallID)
}

func TestStreamState_AssemblesFragmentedToolCalls(t *testing.T) {
	s := newStreamState()
	s.applyToolCall(0, "call-1", "", "")
	s.applyToolCall(0, "", "search", `{"q":`)
	draft := s.applyToolCall(0, "", "", `"go"}`)
	assert.Equal(t, "call-1", draft.id)
	assert.Equal(t, "search", draft.name)
	assert.Equal(t, `{"q":"go"}`, draft.args)

	s.applyToolCall(1, "call-2", "lookup", "{}")
	s.finishReason = "tool_calls"

	final := s.final()
	assert.False(t, final.Partial)
	assert.Equal(t, "tool_calls", final.FinishReason)

	calls := final.Content.GetFunctionCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "call-1", calls[0].ID)
	assert.Equal(t, `{"q":"go"}`, calls[0].Arguments)
	assert.Equal(t, "call-2", calls[1].ID)
}

func TestStreamState_FinalKeepsAccumulatedText(t *testing.T) {
	s := newStreamState()
	s.text.WriteString("hel")
	s.text.WriteString("lo")
	s.finishReason = "stop"

	final := s.final()
	assert.Equal(t, "hello", final.Content.Text())
	assert.Empty(t, final.Content.GetFunctionCalls())
}

func TestConvertTools(t *testing.T) {
	tools := convertTools([]model.ToolDefinition{{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        "search",
			Description: "find things",
			Parameters:  map[string]any{"type": "object"},
		},
	}})

	require.Len(t, tools, 1)
	assert.Equal(t, "search", tools[0].Function.Name)
}

func TestUsageFromCompletion(t *testing.T) {
	assert.Nil(t, usageFromCompletion(openai.CompletionUsage{}))

	usage := usageFromCompletion(openai.CompletionUsage{
		PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15,
	})
	require.NotNil(t, usage)
	assert.Equal(t, 10, usage.PromptTokens)
	assert.Equal(t, 5, usage.CompletionTokens)
	assert.Equal(t, 15, usage.TotalTokens)
}

func TestInfo(t *testing.T) {
	m := NewModelFromClient(&openai.Client{}, func(o *Options) { o.Model = "gpt-4o" })

	info := m.Info()
	assert.Equal(t, "gpt-4o", info.Name)
	assert.Equal(t, "openai", info.Provider)
	assert.True(t, info.SupportsTools)
}
