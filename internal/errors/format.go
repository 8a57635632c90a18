package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForUser returns a user-friendly error message.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	ce, ok := err.(*CoreError)
	if !ok {
		return err.Error()
	}

	var sb strings.Builder
	sb.WriteString("Error: ")
	sb.WriteString(ce.Message)
	sb.WriteString("\n")

	if ce.Hint != "" {
		sb.WriteString("\nHint: ")
		sb.WriteString(ce.Hint)
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", ce.Code))

	if debug && ce.Cause != nil {
		sb.WriteString(fmt.Sprintf("\ncause: %s", ce.Cause.Error()))
	}

	return sb.String()
}

// FormatForCLI formats an error for CLI output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ce, ok := err.(*CoreError)
	if !ok {
		ce = Wrap(CodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ce.Message))

	if ce.Hint != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ce.Hint))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", ce.Code))

	return sb.String()
}

// jsonError is the response-envelope JSON representation of a CoreError,
// matching spec.md §7's error object fields.
type jsonError struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Category    string            `json:"category"`
	Severity    string            `json:"severity"`
	Details     map[string]string `json:"details,omitempty"`
	Hint        string            `json:"hint,omitempty"`
	NextActions []string          `json:"next_actions,omitempty"`
	Cause       string            `json:"cause,omitempty"`
	Retryable   bool              `json:"retryable"`
}

// FormatJSON returns the §7 error envelope as JSON.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	ce, ok := err.(*CoreError)
	if !ok {
		ce = Wrap(CodeInternal, err)
	}

	je := jsonError{
		Code:        string(ce.Code),
		Message:     ce.Message,
		Category:    string(ce.Category),
		Severity:    string(ce.Severity),
		Details:     ce.Details,
		Hint:        ce.Hint,
		NextActions: ce.NextActions,
		Retryable:   ce.Retryable,
	}

	if ce.Cause != nil {
		je.Cause = ce.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog formats an error as slog-ready key-value attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	ce, ok := err.(*CoreError)
	if !ok {
		return map[string]any{"error": err.Error()}
	}

	result := map[string]any{
		"error_code": string(ce.Code),
		"message":    ce.Message,
		"category":   string(ce.Category),
		"severity":   string(ce.Severity),
		"retryable":  ce.Retryable,
	}

	if ce.Cause != nil {
		result["cause"] = ce.Cause.Error()
	}

	if ce.Hint != "" {
		result["hint"] = ce.Hint
	}

	for k, v := range ce.Details {
		result["detail_"+k] = v
	}

	return result
}
