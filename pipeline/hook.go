package pipeline

import (
	"sync"

	"github.com/hupe1980/modelfan/core"
)

// RenderHook is the pipeline's single shared extension point. Every
// invocation calls it with its own dispatch and the rendered messages during
// prompt construction; the returned slice is what the model receives.
type RenderHook func(d *core.Dispatch, rendered []core.Content) []core.Content

var (
	hookMu        sync.RWMutex
	renderHook    RenderHook = passthroughHook
	dispatchAware bool
)

func passthroughHook(_ *core.Dispatch, rendered []core.Content) []core.Content {
	return rendered
}

// CurrentRenderHook returns the hook pipeline implementations must call at
// their prompt-construction step.
func CurrentRenderHook() RenderHook {
	hookMu.RLock()
	defer hookMu.RUnlock()
	return renderHook
}

// WrapRenderHook replaces the shared hook with wrap(previous). The wrapper
// itself is process-wide: it runs for every invocation of every target, so it
// must derive any per-invocation behavior from the dispatch argument, never
// from state captured at wrap time.
func WrapRenderHook(wrap func(next RenderHook) RenderHook) {
	hookMu.Lock()
	defer hookMu.Unlock()
	renderHook = wrap(renderHook)
}

// EnsureDispatchHook installs the dispatch-carried configuration wrapper:
// observe via d.OnRenderObserved, then transform via d.PromptModifier. It is
// idempotent; calling it again once installed is a no-op, so arbitrarily many
// dispatches can race to install it without stacking wrappers.
func EnsureDispatchHook() {
	hookMu.Lock()
	defer hookMu.Unlock()

	if dispatchAware {
		return
	}
	dispatchAware = true

	next := renderHook
	renderHook = func(d *core.Dispatch, rendered []core.Content) []core.Content {
		rendered = next(d, rendered)
		if d == nil {
			return rendered
		}
		if d.OnRenderObserved != nil {
			d.OnRenderObserved(rendered)
		}
		if d.PromptModifier != nil {
			rendered = d.PromptModifier(rendered)
		}
		return rendered
	}
}

// resetRenderHook restores the passthrough hook. Test helper.
func resetRenderHook() {
	hookMu.Lock()
	defer hookMu.Unlock()
	renderHook = passthroughHook
	dispatchAware = false
}
