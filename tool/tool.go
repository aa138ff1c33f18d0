// Package tool implements the function / tool calling subsystem that lets
// compared models request structured capabilities (APIs, computations,
// side-effects) with schema validated arguments and consistent error
// handling. Execution of every tool call is gated by an approval decision
// before a Tool's Call method ever runs.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/modelfan/internal/util"
)

// Tool defines the interface for capabilities a model may invoke.
//
// Tools are registered with the pipeline and advertised to every target of a
// comparison. A tool call surfaced by any model is first proposed on the
// approval gate; only approved calls reach Call.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be thread-safe: concurrent targets may execute the same tool at once
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the models to help them decide when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for parameter validation and function calling.
	Parameters() map[string]interface{}

	// Call executes the tool with already-parsed arguments. The context is the
	// invoking dispatch's context, so cancellation of the logical request
	// cancels in-flight tool work.
	Call(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string      `json:"tool"`              // Name of the tool that failed
	Message string      `json:"message"`           // Error message
	Code    string      `json:"code"`              // Error code for categorization
	Details interface{} `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
