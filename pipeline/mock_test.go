package pipeline

import (
	"errors"
	"testing"

	"github.com/hupe1980/modelfan/approval"
	"github.com/hupe1980/modelfan/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockPipeline_ScriptedDeltasAndError(t *testing.T) {
	resetRenderHook()
	defer resetRenderHook()

	p := NewMockPipeline()
	p.SetScript("a", Script{Deltas: []string{"one ", "two"}})
	p.SetScript("b", Script{Err: errors.New("backend down")})

	da, emitA := makeDispatch(t, "a", nil)
	require.NoError(t, p.Invoke(da))
	text, _ := drainText(emitA)
	assert.Equal(t, "one two", text)

	db, _ := makeDispatch(t, "b", nil)
	assert.EqualError(t, p.Invoke(db), "backend down")
}

func TestMockPipeline_UnscriptedTargetSucceedsQuietly(t *testing.T) {
	resetRenderHook()
	defer resetRenderHook()

	p := NewMockPipeline()
	d, emit := makeDispatch(t, "silent", nil)
	require.NoError(t, p.Invoke(d))
	text, events := drainText(emit)
	assert.Empty(t, text)
	assert.Empty(t, events)
}

func TestMockPipeline_RecordsRenderedMessages(t *testing.T) {
	resetRenderHook()
	defer resetRenderHook()
	EnsureDispatchHook()

	p := NewMockPipeline()
	d, _ := makeDispatch(t, "a", nil)
	d.PromptModifier = appendMarker("persona")
	require.NoError(t, p.Invoke(d))

	rendered := p.Rendered("a")
	require.Len(t, rendered, 1)
	assert.Equal(t, 1, countMarkers(rendered[0], "persona"))
}

func TestMockPipeline_GatedToolCall(t *testing.T) {
	resetRenderHook()
	defer resetRenderHook()

	p := NewMockPipeline()
	p.SetScript("a", Script{ToolCall: &core.FunctionCall{Name: "search", Arguments: "{}"}})

	gate := approval.NewGate()
	approveWhenProposed(t, gate, approval.Approve)

	d, emit := makeDispatch(t, "a", gate)
	require.NoError(t, p.Invoke(d))

	_, events := drainText(emit)
	require.Len(t, events, 2)
	assert.Equal(t, core.EventToolPending, events[0].Kind)
	assert.Equal(t, core.EventToolResolved, events[1].Kind)
	assert.Equal(t, core.ToolCallExecuted, events[1].ToolStatus)
}
