package pipeline

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/modelfan/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendMarker(marker string) core.PromptModifier {
	return func(rendered []core.Content) []core.Content {
		out := append([]core.Content(nil), rendered...)
		return append(out, core.NewTextContent("system", marker))
	}
}

func countMarkers(msgs []core.Content, marker string) int {
	n := 0
	for _, m := range msgs {
		if m.Text() == marker {
			n++
		}
	}
	return n
}

func TestEnsureDispatchHook_Idempotent(t *testing.T) {
	resetRenderHook()
	defer resetRenderHook()

	EnsureDispatchHook()
	EnsureDispatchHook()
	EnsureDispatchHook()

	d := &core.Dispatch{RequestID: "r", TargetID: "a", PromptModifier: appendMarker("mod")}
	out := CurrentRenderHook()(d, []core.Content{core.NewTextContent("user", "hi")})

	// A stacked wrapper would apply the modifier once per installation.
	assert.Equal(t, 1, countMarkers(out, "mod"))
	require.Len(t, out, 2)
}

func TestHook_ObserverSeesUnmodifiedRender(t *testing.T) {
	resetRenderHook()
	defer resetRenderHook()
	EnsureDispatchHook()

	var observed []core.Content
	d := &core.Dispatch{
		RequestID:        "r",
		TargetID:         "a",
		PromptModifier:   appendMarker("mod"),
		OnRenderObserved: func(rendered []core.Content) { observed = rendered },
	}

	out := CurrentRenderHook()(d, []core.Content{core.NewTextContent("user", "hi")})

	assert.Equal(t, 0, countMarkers(observed, "mod"))
	assert.Equal(t, 1, countMarkers(out, "mod"))
}

func TestHook_NilDispatchAndNilConfigPassThrough(t *testing.T) {
	resetRenderHook()
	defer resetRenderHook()
	EnsureDispatchHook()

	in := []core.Content{core.NewTextContent("user", "hi")}
	assert.Equal(t, in, CurrentRenderHook()(nil, in))
	assert.Equal(t, in, CurrentRenderHook()(&core.Dispatch{RequestID: "r", TargetID: "a"}, in))
}

func TestWrapRenderHook_RunsBeforeDispatchConfig(t *testing.T) {
	resetRenderHook()
	defer resetRenderHook()

	WrapRenderHook(func(next RenderHook) RenderHook {
		return func(d *core.Dispatch, rendered []core.Content) []core.Content {
			return append(next(d, rendered), core.NewTextContent("system", "wrapped"))
		}
	})
	EnsureDispatchHook()

	var observed []core.Content
	d := &core.Dispatch{
		RequestID:        "r",
		TargetID:         "a",
		OnRenderObserved: func(rendered []core.Content) { observed = rendered },
	}
	CurrentRenderHook()(d, []core.Content{core.NewTextContent("user", "hi")})

	// The earlier wrapper's output is what dispatch-carried config sees.
	assert.Equal(t, 1, countMarkers(observed, "wrapped"))
}

// Many concurrent invocations share the one installed hook; each must see
// exactly its own dispatch's modifier, never a sibling's.
func TestHook_PerDispatchConfigUnderConcurrency(t *testing.T) {
	resetRenderHook()
	defer resetRenderHook()
	EnsureDispatchHook()

	const targets = 8
	const rounds = 200

	var wg sync.WaitGroup
	for i := 0; i < targets; i++ {
		marker := fmt.Sprintf("target-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := &core.Dispatch{RequestID: "r", TargetID: marker, PromptModifier: appendMarker(marker)}
			for r := 0; r < rounds; r++ {
				out := CurrentRenderHook()(d, []core.Content{core.NewTextContent("user", "hi")})
				if len(out) != 2 || countMarkers(out, marker) != 1 {
					t.Errorf("dispatch %s saw foreign configuration: %+v", marker, out)
					return
				}
			}
		}()
	}
	wg.Wait()
}
