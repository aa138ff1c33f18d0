package aggregate

// WebviewResponse is the read-only projection handed to the presentation
// boundary. It contains no aggregator internals and no live references.
type WebviewResponse struct {
	RequestID  string            `json:"request_id"`
	Message    string            `json:"message"`
	Targets    []string          `json:"targets"`
	Responses  map[string]string `json:"responses"`
	Errors     map[string]string `json:"errors,omitempty"`
	IsComplete bool              `json:"is_complete"`
}

// ToWebviewFormat projects an aggregated response into its presentation
// shape. Pure function: no side effects, input untouched.
func ToWebviewFormat(resp *AggregatedResponse) WebviewResponse {
	out := WebviewResponse{
		RequestID:  resp.RequestID,
		Message:    resp.OriginalMessage,
		Targets:    append([]string(nil), resp.TargetOrder...),
		Responses:  make(map[string]string, len(resp.PerTarget)),
		Errors:     make(map[string]string),
		IsComplete: resp.IsComplete,
	}
	for id, state := range resp.PerTarget {
		out.Responses[id] = state.Text
		if state.Err != "" {
			out.Errors[id] = state.Err
		}
	}
	return out
}
