package codec

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/n0madic/go-appforge/internal/types"
)

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes an error envelope. The request ID, when known, is echoed
// so a user-facing failure can be matched with the server log.
func WriteError(w http.ResponseWriter, status int, code, message, requestID string) {
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "code", code, "error", message, "request_id", requestID)
	} else {
		slog.Warn("request rejected", "status", status, "code", code, "error", message, "request_id", requestID)
	}
	WriteJSON(w, status, types.ErrorResponse{Error: types.ErrorDetail{
		Message:   message,
		Code:      code,
		RequestID: requestID,
	}})
}

// FormatUpstreamError formats an error from the upstream response.
func FormatUpstreamError(statusCode int, rawBody []byte) string {
	status := fmt.Sprintf("%d", statusCode)
	if text := http.StatusText(statusCode); text != "" {
		status = fmt.Sprintf("%d %s", statusCode, text)
	}
	if msg := ExtractUpstreamErrorMessage(rawBody); msg != "" {
		return fmt.Sprintf("Upstream returned HTTP %s: %s", status, msg)
	}
	if preview := compactBodyPreview(rawBody, 280); preview != "" {
		return fmt.Sprintf("Upstream returned HTTP %s with unparsed body: %s", status, preview)
	}
	return fmt.Sprintf("Upstream returned HTTP %s with empty error body", status)
}

// FormatUpstreamErrorWithHeaders includes request ID headers in the error.
func FormatUpstreamErrorWithHeaders(statusCode int, rawBody []byte, headers http.Header) string {
	msg := FormatUpstreamError(statusCode, rawBody)
	reqID := extractUpstreamRequestID(headers)
	if reqID == "" {
		return msg
	}
	return fmt.Sprintf("%s (request_id: %s)", msg, reqID)
}

// errorMessagePaths are tried in order against an error body. They cover the
// OpenAI-compatible envelope, GitHub's REST errors and common ad-hoc shapes.
var errorMessagePaths = []string{
	"error.message",
	"message",
	"detail",
	"error_description",
	"title",
	"reason",
	"error",
	"errors.0.message",
	"errors.0",
}

// ExtractUpstreamErrorMessage extracts the error message from an upstream error body.
func ExtractUpstreamErrorMessage(rawBody []byte) string {
	trimmed := strings.TrimSpace(string(rawBody))
	if trimmed == "" || !gjson.Valid(trimmed) {
		return ""
	}
	for _, path := range errorMessagePaths {
		v := gjson.Get(trimmed, path)
		if v.Type != gjson.String {
			continue
		}
		if msg := strings.TrimSpace(v.String()); msg != "" {
			return msg
		}
	}
	return ""
}

func compactBodyPreview(rawBody []byte, maxLen int) string {
	trimmed := strings.TrimSpace(string(rawBody))
	if trimmed == "" {
		return ""
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	if len(clean) <= maxLen {
		return clean
	}
	return clean[:maxLen] + "..."
}

func extractUpstreamRequestID(headers http.Header) string {
	if headers == nil {
		return ""
	}
	for _, key := range []string{"x-request-id", "x-github-request-id", "request-id", "cf-ray"} {
		if v := strings.TrimSpace(headers.Get(key)); v != "" {
			return v
		}
	}
	return ""
}
