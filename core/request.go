package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidRequest reports malformed input to request construction: an empty
// message or a history entry missing its role or parts. Nothing is dispatched
// when construction fails.
var ErrInvalidRequest = errors.New("invalid request")

// NewID generates a new unique identifier for requests, dispatches and events.
func NewID() string { return uuid.NewString() }

// Request is one logical user request: a message plus prior conversation
// turns, dispatched to one or more targets under a shared id. It is immutable
// once created; descriptors receive private copies of the history.
type Request struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	History   []Content `json:"history,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRequest validates and snapshots a logical request. The history slice is
// deep-copied so later caller mutation cannot leak into the request.
func NewRequest(message string, history []Content) (*Request, error) {
	if message == "" {
		return nil, fmt.Errorf("%w: message must not be empty", ErrInvalidRequest)
	}
	for i, turn := range history {
		if turn.Role == "" {
			return nil, fmt.Errorf("%w: history entry %d has no role", ErrInvalidRequest, i)
		}
		if len(turn.Parts) == 0 {
			return nil, fmt.Errorf("%w: history entry %d has no parts", ErrInvalidRequest, i)
		}
	}
	return &Request{
		ID:        NewID(),
		Message:   message,
		History:   cloneHistory(history),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ValidateRequest reports whether the request would pass NewRequest's checks.
// It is a cheap precondition used before dispatch, not a substitute for the
// constructor's own failure path.
func ValidateRequest(req *Request) bool {
	if req == nil || req.Message == "" {
		return false
	}
	for _, turn := range req.History {
		if turn.Role == "" || len(turn.Parts) == 0 {
			return false
		}
	}
	return true
}

// Fanout produces one Dispatch per target id, all sharing the request's id
// and message but never the same in-memory mutable objects. Target ids must
// be non-empty and unique; descriptor order follows the input order.
func Fanout(req *Request, targetIDs []string) ([]*Dispatch, error) {
	if !ValidateRequest(req) {
		return nil, fmt.Errorf("%w: request failed validation", ErrInvalidRequest)
	}
	if len(targetIDs) == 0 {
		return nil, fmt.Errorf("%w: no targets selected", ErrInvalidRequest)
	}

	seen := make(map[string]struct{}, len(targetIDs))
	dispatches := make([]*Dispatch, 0, len(targetIDs))
	for _, id := range targetIDs {
		if id == "" {
			return nil, fmt.Errorf("%w: empty target id", ErrInvalidRequest)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate target id %q", ErrInvalidRequest, id)
		}
		seen[id] = struct{}{}

		dispatches = append(dispatches, &Dispatch{
			RequestID: req.ID,
			TargetID:  id,
			Message:   req.Message,
			History:   cloneHistory(req.History),
		})
	}
	return dispatches, nil
}

func cloneHistory(history []Content) []Content {
	if history == nil {
		return nil
	}
	cp := make([]Content, 0, len(history))
	for _, c := range history {
		cp = append(cp, c.clone())
	}
	return cp
}
