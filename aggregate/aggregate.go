package aggregate

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/modelfan/core"
	"github.com/hupe1980/modelfan/logging"
)

var (
	// ErrDuplicateRequest reports that aggregation is already tracked for the
	// request id. This is a programmer error, not a runtime condition.
	ErrDuplicateRequest = errors.New("request already tracked")
	// ErrNoTargets reports an attempt to start aggregation with no targets.
	ErrNoTargets = errors.New("no targets")
)

// ToolCall records one gated tool call observed for a target, in proposal order.
type ToolCall struct {
	ID     string              `json:"id"`
	Name   string              `json:"name"`
	Args   string              `json:"args,omitempty"`
	Status core.ToolCallStatus `json:"status"`
}

// TargetState is the per-target view inside an aggregated response.
type TargetState struct {
	TargetID   string     `json:"target_id"`
	Text       string     `json:"text"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Err        string     `json:"error,omitempty"`
	IsComplete bool       `json:"is_complete"`
	LastUpdate time.Time  `json:"last_update"`
}

// Stats counts terminal outcomes across a request's targets.
type Stats struct {
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
}

// AggregatedResponse merges the progress of every target of one logical
// request into a single completion signal. Pending and completed target sets
// are disjoint and their union is exactly the target set fixed at Start.
// IsComplete transitions to true exactly once; EndTime is stamped then.
//
// Values returned by the Aggregator are snapshots; callers never see a struct
// that a concurrent Update is still writing.
type AggregatedResponse struct {
	RequestID       string                  `json:"request_id"`
	OriginalMessage string                  `json:"original_message"`
	StartTime       time.Time               `json:"start_time"`
	EndTime         time.Time               `json:"end_time,omitzero"`
	TargetOrder     []string                `json:"target_order"`
	Pending         map[string]struct{}     `json:"-"`
	Completed       map[string]struct{}     `json:"-"`
	PerTarget       map[string]*TargetState `json:"per_target"`
	Stats           Stats                   `json:"stats"`
	IsComplete      bool                    `json:"is_complete"`
}

// snapshot deep-copies the response so callers can read it without racing
// subsequent updates.
func (r *AggregatedResponse) snapshot() *AggregatedResponse {
	cp := *r
	cp.TargetOrder = append([]string(nil), r.TargetOrder...)
	cp.Pending = make(map[string]struct{}, len(r.Pending))
	for id := range r.Pending {
		cp.Pending[id] = struct{}{}
	}
	cp.Completed = make(map[string]struct{}, len(r.Completed))
	for id := range r.Completed {
		cp.Completed[id] = struct{}{}
	}
	cp.PerTarget = make(map[string]*TargetState, len(r.PerTarget))
	for id, ts := range r.PerTarget {
		tsCopy := *ts
		tsCopy.ToolCalls = append([]ToolCall(nil), ts.ToolCalls...)
		cp.PerTarget[id] = &tsCopy
	}
	return &cp
}

// Aggregator tracks aggregated responses by request id. It is the single
// place request state is mutated; isolation between targets is by target id,
// not by arrival order.
type Aggregator struct {
	mu       sync.Mutex
	requests map[string]*AggregatedResponse
	disposed bool
	logger   logging.Logger
}

// Options configures an Aggregator.
type Options struct {
	Logger logging.Logger
}

// New constructs an empty Aggregator.
func New(optFns ...func(o *Options)) *Aggregator {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Aggregator{
		requests: make(map[string]*AggregatedResponse),
		logger:   opts.Logger,
	}
}

// Start begins tracking a logical request across the given targets. Every
// target starts pending. Fails with ErrDuplicateRequest when the id is
// already tracked and ErrNoTargets for an empty target set.
func (a *Aggregator) Start(requestID, message string, targetIDs []string) (*AggregatedResponse, error) {
	if len(targetIDs) == 0 {
		return nil, ErrNoTargets
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disposed {
		return nil, fmt.Errorf("aggregator disposed")
	}
	if _, exists := a.requests[requestID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRequest, requestID)
	}

	resp := &AggregatedResponse{
		RequestID:       requestID,
		OriginalMessage: message,
		StartTime:       time.Now().UTC(),
		TargetOrder:     append([]string(nil), targetIDs...),
		Pending:         make(map[string]struct{}, len(targetIDs)),
		Completed:       make(map[string]struct{}),
		PerTarget:       make(map[string]*TargetState, len(targetIDs)),
	}
	for _, id := range targetIDs {
		resp.Pending[id] = struct{}{}
		resp.PerTarget[id] = &TargetState{TargetID: id}
	}
	a.requests[requestID] = resp

	a.logger.Debug("aggregate.started", "request_id", requestID, "targets", len(targetIDs))

	return resp.snapshot(), nil
}

// Update applies one target event to the tracked request and returns a
// snapshot of the resulting state. The boolean reports whether the request is
// tracked: late events after disposal or cancellation are expected and return
// (nil, false) rather than an error. Terminal events move their target from
// pending to completed exactly once; a second terminal event for an already
// completed target changes nothing. The final terminal event flips IsComplete
// and stamps EndTime.
func (a *Aggregator) Update(requestID string, ev core.TargetEvent) (*AggregatedResponse, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	resp, ok := a.requests[requestID]
	if !ok {
		return nil, false
	}
	state, ok := resp.PerTarget[ev.TargetID]
	if !ok {
		// Event for a target that was never part of this request.
		a.logger.Warn("aggregate.unknown_target", "request_id", requestID, "target_id", ev.TargetID)
		return nil, false
	}

	state.LastUpdate = time.Now().UTC()

	switch ev.Kind {
	case core.EventDelta:
		if !state.IsComplete {
			state.Text += ev.Text
		}

	case core.EventToolPending:
		state.ToolCalls = append(state.ToolCalls, ToolCall{
			ID:     ev.ToolCallID,
			Name:   ev.ToolName,
			Args:   ev.ToolArgs,
			Status: core.ToolCallPending,
		})

	case core.EventToolResolved:
		for i := range state.ToolCalls {
			if state.ToolCalls[i].ID == ev.ToolCallID {
				state.ToolCalls[i].Status = ev.ToolStatus
				break
			}
		}

	case core.EventComplete, core.EventError:
		if state.IsComplete {
			// Exactly-once terminal accounting; duplicates are no-ops.
			break
		}
		state.IsComplete = true
		if ev.Kind == core.EventError {
			state.Err = ev.Err
			resp.Stats.ErrorCount++
		} else {
			resp.Stats.SuccessCount++
		}
		delete(resp.Pending, ev.TargetID)
		resp.Completed[ev.TargetID] = struct{}{}

		if len(resp.Pending) == 0 && !resp.IsComplete {
			resp.IsComplete = true
			resp.EndTime = time.Now().UTC()
			a.logger.Info("aggregate.completed",
				"request_id", requestID,
				"successes", resp.Stats.SuccessCount,
				"errors", resp.Stats.ErrorCount)
		}
	}

	return resp.snapshot(), true
}

// Get returns a snapshot of a tracked request.
func (a *Aggregator) Get(requestID string) (*AggregatedResponse, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	resp, ok := a.requests[requestID]
	if !ok {
		return nil, false
	}
	return resp.snapshot(), true
}

// Release stops tracking one request once its consumer is done with it.
func (a *Aggregator) Release(requestID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.requests, requestID)
}

// Dispose releases all tracked requests. Subsequent Updates report not-found
// and subsequent Starts fail; late events must not crash their caller.
func (a *Aggregator) Dispose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = make(map[string]*AggregatedResponse)
	a.disposed = true
}
