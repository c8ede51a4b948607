package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/standardbeagle/corecache/internal/corerrors"
)

// MCP error codes, mirroring the JSON-RPC 2.0 codes the daemon's control
// protocol already uses (internal/daemon/protocol.go) plus the
// corecache-specific additions below.
const (
	ErrCodeIndexNotFound   = -32001
	ErrCodeEmbeddingFailed = -32002
	ErrCodeTimeout         = -32003

	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	ErrIndexNotFound   = errors.New("index not found")
	ErrEmbeddingFailed = errors.New("embedding generation failed")
	ErrToolNotFound    = errors.New("tool not found")
	ErrInvalidParams   = errors.New("invalid parameters")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an internal error into an MCPError. A
// corerrors.CoreError keeps its own message under ErrCodeInternalError;
// known sentinel errors and context cancellation or deadline get their
// own codes and a user-actionable message.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var coreErr *corerrors.CoreError
	if errors.As(err, &coreErr) {
		return &MCPError{Code: ErrCodeInternalError, Message: coreErr.Error()}
	}

	switch {
	case errors.Is(err, ErrIndexNotFound):
		return &MCPError{Code: ErrCodeIndexNotFound, Message: "Index not found. Run 'corecache index' first."}
	case errors.Is(err, ErrEmbeddingFailed):
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: "Embedding generation failed."}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "Invalid parameters."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a
// custom message.
func NewInvalidParamsError(message string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: message}
}
