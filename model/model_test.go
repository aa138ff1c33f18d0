package model

import (
	"context"
	"testing"

	"github.com/hupe1980/modelfan/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, respCh <-chan Response, errCh <-chan error) ([]Response, error) {
	t.Helper()
	var responses []Response
	var firstErr error
	for respCh != nil || errCh != nil {
		select {
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			responses = append(responses, r)
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return responses, firstErr
}

func TestMockModel_StreamingChunksThenFinal(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("hi", "abc")

	respCh, errCh := m.Generate(context.Background(), Request{
		Contents: []core.Content{core.NewTextContent("user", "hi")},
		Stream:   true,
	})
	responses, err := collect(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 4)

	var streamed string
	for _, r := range responses[:3] {
		assert.True(t, r.Partial)
		streamed += r.Content.Text()
	}
	assert.Equal(t, "abc", streamed)

	final := responses[3]
	assert.False(t, final.Partial)
	assert.Equal(t, "abc", final.Content.Text())
	assert.Equal(t, "stop", final.FinishReason)
}

func TestMockModel_NonStreamingSingleResponse(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("hi", "hello there")

	respCh, errCh := m.Generate(context.Background(), Request{
		Contents: []core.Content{core.NewTextContent("user", "hi")},
	})
	responses, err := collect(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "hello there", responses[0].Content.Text())
}

func TestMockModel_EmptyContentsFails(t *testing.T) {
	m := NewMockModel("mock", "mock")
	respCh, errCh := m.Generate(context.Background(), Request{})
	_, err := collect(t, respCh, errCh)
	assert.Error(t, err)
}

func TestMockModel_ScriptedToolCallThenAnswer(t *testing.T) {
	m := NewMockModel("mock", "mock")
	call := core.FunctionCall{ID: "call-1", Name: "search", Arguments: `{"q":"go"}`}
	m.AddToolCall("look it up", call)
	m.AddResponse("look it up", "found it")

	// First turn: the scripted call is surfaced instead of text.
	respCh, errCh := m.Generate(context.Background(), Request{
		Contents: []core.Content{core.NewTextContent("user", "look it up")},
	})
	responses, err := collect(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	calls := responses[0].Content.GetFunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Name)
	assert.Equal(t, "tool_calls", responses[0].FinishReason)

	// Follow-up turn containing the function response answers normally.
	respCh, errCh = m.Generate(context.Background(), Request{
		Contents: []core.Content{
			core.NewTextContent("user", "look it up"),
			{Role: "assistant", Parts: []core.Part{core.FunctionCallPart{FunctionCall: call}}},
			{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{
				FunctionResponse: core.FunctionResponse{ID: "call-1", Name: "search", Response: "result"},
			}}},
		},
	})
	responses, err = collect(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "found it", responses[0].Content.Text())
}

func TestMockModel_RecordsRequests(t *testing.T) {
	m := NewMockModel("mock", "mock")
	req := Request{Contents: []core.Content{core.NewTextContent("user", "hi")}}

	respCh, errCh := m.Generate(context.Background(), req)
	_, err := collect(t, respCh, errCh)
	require.NoError(t, err)

	recorded := m.Requests()
	require.Len(t, recorded, 1)
	assert.Equal(t, "hi", recorded[0].Contents[0].Text())
}

func TestMockModel_Info(t *testing.T) {
	m := NewMockModel("mock-3", "local")
	info := m.Info()
	assert.Equal(t, "mock-3", info.Name)
	assert.Equal(t, "local", info.Provider)
	assert.True(t, info.SupportsTools)
}
