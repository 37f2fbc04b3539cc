package mcptools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"text2sql/internal/apperrors"
)

// ErrorResponse is the body of a tool result that reports a recoverable
// problem. It is returned as a successful call with IsError set so the
// client sees the details.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult builds a tool result carrying an ErrorResponse
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails is NewErrorResult with extra context
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	body, _ := json.Marshal(ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	})
	result := mcp.NewToolResultText(string(body))
	result.IsError = true
	return result
}

// errorCode maps an application error onto a stable tool error code
func errorCode(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrModelLoad):
		return "model_unavailable"
	case errors.Is(err, apperrors.ErrDatabaseConnection):
		return "database_unavailable"
	case errors.Is(err, apperrors.ErrTimeout):
		return "timeout"
	case errors.Is(err, apperrors.ErrSQLGeneration):
		return "generation_failed"
	default:
		return "internal_error"
	}
}
