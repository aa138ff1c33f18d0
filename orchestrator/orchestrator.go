package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/modelfan/aggregate"
	"github.com/hupe1980/modelfan/approval"
	"github.com/hupe1980/modelfan/core"
	"github.com/hupe1980/modelfan/logging"
	"github.com/hupe1980/modelfan/pipeline"
)

// ErrNoPipeline is returned by Send when the orchestrator has no pipeline to
// dispatch against.
var ErrNoPipeline = errors.New("orchestrator requires a pipeline")

// Options configures an Orchestrator.
type Options struct {
	// Gate receives every proposed tool call. Defaults to a fresh gate.
	Gate *approval.Gate
	// Aggregator collects per-target state. Defaults to a fresh aggregator.
	Aggregator *aggregate.Aggregator
	// EventBufferSize sizes the per-request event channel.
	EventBufferSize int
	// Logger receives orchestration diagnostics.
	Logger logging.Logger
}

// SendOptions carries the per-call configuration of one Send. Everything
// here ends up on the dispatch descriptors, so concurrent Sends with
// different options never observe each other's values.
type SendOptions struct {
	// PromptModifiers maps target id to that target's prompt modifier.
	// Targets without an entry run unmodified.
	PromptModifiers map[string]core.PromptModifier
	// OnRenderObserved fires with each target's rendered messages before
	// modification.
	OnRenderObserved core.RenderObserver
	// OnDelta streams incremental text as targets produce it.
	OnDelta func(targetID, text string)
	// OnUpdate fires with a snapshot after every aggregated event. The
	// final snapshot has IsComplete set.
	OnUpdate func(resp *aggregate.AggregatedResponse)
}

// Orchestrator fans one logical request out to many targets over a shared
// pipeline and aggregates their event streams.
type Orchestrator struct {
	pipeline   pipeline.Pipeline
	gate       *approval.Gate
	aggregator *aggregate.Aggregator
	bufSize    int
	logger     logging.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New constructs an orchestrator around the given pipeline. Any unset option
// is initialized with a fresh in-memory implementation.
func New(p pipeline.Pipeline, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		EventBufferSize: 64,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Gate == nil {
		opts.Gate = approval.NewGate()
	}
	if opts.Aggregator == nil {
		opts.Aggregator = aggregate.New()
	}
	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = 64
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Orchestrator{
		pipeline:   p,
		gate:       opts.Gate,
		aggregator: opts.Aggregator,
		bufSize:    opts.EventBufferSize,
		logger:     opts.Logger,
		active:     make(map[string]context.CancelFunc),
	}
}

// Gate returns the approval gate decisions are resolved against.
func (o *Orchestrator) Gate() *approval.Gate { return o.gate }

// Aggregator returns the aggregator holding per-request state.
func (o *Orchestrator) Aggregator() *aggregate.Aggregator { return o.aggregator }

// Send dispatches the request to every target id concurrently and blocks
// until all targets reach a terminal state. The returned response always has
// IsComplete set; per-target failures and cancellations are recorded in it
// rather than failing the call.
func (o *Orchestrator) Send(
	ctx context.Context,
	req *core.Request,
	targetIDs []string,
	optFns ...func(so *SendOptions),
) (*aggregate.AggregatedResponse, error) {
	if o.pipeline == nil {
		return nil, ErrNoPipeline
	}

	var so SendOptions
	for _, fn := range optFns {
		fn(&so)
	}

	descriptors, err := core.Fanout(req, targetIDs)
	if err != nil {
		return nil, err
	}
	if _, err := o.aggregator.Start(req.ID, req.Message, targetIDs); err != nil {
		return nil, err
	}

	pipeline.EnsureDispatchHook()

	runCtx, cancel := context.WithCancel(ctx)
	o.trackRequest(req.ID, cancel)
	defer o.untrackRequest(req.ID)

	start := time.Now()
	o.logger.Info("orchestrator.send", "request_id", req.ID, "targets", len(descriptors))

	events := make(chan core.TargetEvent, o.bufSize)

	var wg sync.WaitGroup
	for _, d := range descriptors {
		bound := d.Bind(runCtx, events, o.gate, so.PromptModifiers[d.TargetID], so.OnRenderObserved, o.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runTarget(bound, events)
		}()
	}

	go func() {
		wg.Wait()
		close(events)
	}()

	// Cancellation denies every suspended tool call so blocked targets
	// unwind instead of waiting for verdicts that will never come.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			if n := o.gate.CancelRequest(req.ID); n > 0 {
				o.logger.Info("orchestrator.gate_drained", "request_id", req.ID, "denied", n)
			}
		case <-watchDone:
		}
	}()

	var final *aggregate.AggregatedResponse
	for ev := range events {
		snap, ok := o.aggregator.Update(req.ID, ev)
		if !ok {
			continue
		}
		if ev.Kind == core.EventDelta && so.OnDelta != nil {
			so.OnDelta(ev.TargetID, ev.Text)
		}
		if so.OnUpdate != nil {
			so.OnUpdate(snap)
		}
		if snap.IsComplete {
			final = snap
		}
	}
	close(watchDone)
	cancel()

	if final == nil {
		// Every target sends exactly one terminal event, so the loop
		// above always observes completion; this guards a request
		// released mid-flight.
		if snap, ok := o.aggregator.Get(req.ID); ok {
			final = snap
		} else {
			final = &aggregate.AggregatedResponse{RequestID: req.ID, IsComplete: true}
		}
	}

	o.logger.Info("orchestrator.send_done",
		"request_id", req.ID,
		"successes", final.Stats.SuccessCount,
		"errors", final.Stats.ErrorCount,
		"duration_ms", time.Since(start).Milliseconds())

	return final, nil
}

// runTarget adapts one pipeline invocation into exactly one terminal event.
// Terminal delivery is a plain send: the event loop drains the channel until
// every target has reported, so cancelled targets still complete the
// aggregate.
func (o *Orchestrator) runTarget(d *core.Dispatch, events chan<- core.TargetEvent) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("target %s panicked: %v", d.TargetID, r)
			}
		}()
		err = o.pipeline.Invoke(d)
	}()

	if err != nil {
		o.logger.Warn("orchestrator.target_failed", "request_id", d.RequestID, "target_id", d.TargetID, "error", err)
		events <- core.NewErrorEvent(d.RequestID, d.TargetID, err.Error())
		return
	}
	events <- core.NewCompleteEvent(d.RequestID, d.TargetID)
}

// Resolve applies a human decision to suspended tool calls and returns how
// many were settled.
func (o *Orchestrator) Resolve(d approval.Decision) int {
	n := o.gate.Resolve(d)
	o.logger.Info("orchestrator.resolve",
		"request_id", d.RequestID, "target_id", d.TargetID,
		"tool_call_id", d.ToolCallID, "verdict", d.Verdict.String(), "settled", n)
	return n
}

// Cancel aborts an in-flight request. It reports whether the request was
// active. The request still completes through Send with its cancelled
// targets recorded as errors.
func (o *Orchestrator) Cancel(requestID string) bool {
	o.mu.Lock()
	cancel, ok := o.active[requestID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Response returns the current snapshot for a request, live or finished.
func (o *Orchestrator) Response(requestID string) (*aggregate.AggregatedResponse, bool) {
	return o.aggregator.Get(requestID)
}

// Release drops a finished request's aggregate state.
func (o *Orchestrator) Release(requestID string) {
	o.aggregator.Release(requestID)
}

func (o *Orchestrator) trackRequest(requestID string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[requestID] = cancel
}

func (o *Orchestrator) untrackRequest(requestID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, requestID)
}
