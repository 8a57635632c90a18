// Package mcp implements the Model Context Protocol (MCP) tool surface for Codeloom.
package mcp

import (
	"context"
	"errors"
	"fmt"

	amerrors "github.com/codeloom/codeloom/internal/errors"
)

// Standard JSON-RPC error codes, used only when no CoreError code applies
// (transport-level failures: bad method name, malformed params).
const (
	RPCParseError     = -32700
	RPCInvalidRequest = -32600
	RPCMethodNotFound = -32601
	RPCInvalidParams  = -32602
	RPCInternalError  = -32603
)

// Sentinel errors for conditions raised inside this package that aren't
// already a *errors.CoreError.
var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidParams    = errors.New("invalid parameters")
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError is the wire representation of the response envelope's error
// object from spec.md §7: a stable Code, human Message, and the machine
// hints (Details/Hint/NextActions/Retryable) a caller can act on without
// re-parsing Message.
type MCPError struct {
	RPCCode     int               `json:"-"`
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Category    string            `json:"category,omitempty"`
	Severity    string            `json:"severity,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	Hint        string            `json:"hint,omitempty"`
	NextActions []string          `json:"next_actions,omitempty"`
	Retryable   bool              `json:"retryable,omitempty"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError converts any error into the §7 envelope. *errors.CoreError
// values carry through their code/category/severity verbatim; everything
// else (context cancellation, unrecognized tool/resource names, bare
// errors from third-party libraries) is mapped onto the closest taxonomy
// code so every tool response has a stable machine-readable shape.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var ce *amerrors.CoreError
	if errors.As(err, &ce) {
		return &MCPError{
			RPCCode:     RPCInternalError,
			Code:        string(ce.Code),
			Message:     ce.Message,
			Category:    string(ce.Category),
			Severity:    string(ce.Severity),
			Details:     ce.Details,
			Hint:        ce.Hint,
			NextActions: ce.NextActions,
			Retryable:   ce.Retryable,
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return coreToMCP(amerrors.New(amerrors.CodeTimeout, "request exceeded its deadline"))
	case errors.Is(err, context.Canceled):
		return coreToMCP(amerrors.New(amerrors.CodeTimeout, "request was canceled"))
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{RPCCode: RPCMethodNotFound, Code: string(amerrors.CodeInvalidRequest), Message: err.Error()}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{RPCCode: RPCInvalidParams, Code: string(amerrors.CodeInvalidRequest), Message: err.Error()}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{RPCCode: RPCMethodNotFound, Code: string(amerrors.CodeInvalidRequest), Message: err.Error()}
	default:
		return coreToMCP(amerrors.Wrap(amerrors.CodeInternal, err))
	}
}

func coreToMCP(ce *amerrors.CoreError) *MCPError {
	return &MCPError{
		RPCCode:     RPCInternalError,
		Code:        string(ce.Code),
		Message:     ce.Message,
		Category:    string(ce.Category),
		Severity:    string(ce.Severity),
		Details:     ce.Details,
		Hint:        ce.Hint,
		NextActions: ce.NextActions,
		Retryable:   ce.Retryable,
	}
}

// NewInvalidParamsError creates an error for invalid tool parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{RPCCode: RPCInvalidParams, Code: string(amerrors.CodeInvalidRequest), Message: msg}
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		RPCCode: RPCMethodNotFound,
		Code:    string(amerrors.CodeInvalidRequest),
		Message: fmt.Sprintf("tool %q not found", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		RPCCode: RPCMethodNotFound,
		Code:    string(amerrors.CodeInvalidRequest),
		Message: fmt.Sprintf("resource %q not found", uri),
	}
}
