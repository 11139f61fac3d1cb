package transcription

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrQuotaExceeded marks a backend account without remaining quota.
	ErrQuotaExceeded = errors.New("transcription quota exceeded")
	// ErrAuth marks rejected backend credentials.
	ErrAuth = errors.New("transcription authentication failed")
	// ErrRequestRejected marks a request the backend refused as malformed or
	// oversized; sending it again cannot succeed.
	ErrRequestRejected = errors.New("transcription request rejected")
	// ErrRetriesExhausted marks a request that failed on every attempt.
	ErrRetriesExhausted = errors.New("transcription retries exhausted")
	// ErrAllChunksFailed marks a run in which no chunk could be transcribed.
	ErrAllChunksFailed = errors.New("all chunks failed to transcribe")
)

// ErrorKind classifies an expected remote failure.
type ErrorKind string

const (
	ErrorAuth      ErrorKind = "auth"
	ErrorQuota     ErrorKind = "quota"
	ErrorRateLimit ErrorKind = "rate_limit"
	ErrorRejected  ErrorKind = "rejected"
	ErrorGeneric   ErrorKind = "generic"
)

// RemoteError is an expected failure reported by a backend.
type RemoteError struct {
	Backend    string
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s error (HTTP %d): %s", e.Backend, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", e.Backend, e.Kind, e.Message)
}

// Unwrap maps terminal kinds onto their sentinels.
func (e *RemoteError) Unwrap() error {
	switch e.Kind {
	case ErrorQuota:
		return ErrQuotaExceeded
	case ErrorAuth:
		return ErrAuth
	case ErrorRejected:
		return ErrRequestRejected
	default:
		return nil
	}
}

// Terminal reports whether the account itself is unusable, so no further
// request can succeed.
func (e *RemoteError) Terminal() bool {
	return e.Kind == ErrorQuota || e.Kind == ErrorAuth
}

// Retryable reports whether sending the same request again may succeed.
func (e *RemoteError) Retryable() bool {
	return e.Kind == ErrorRateLimit || e.Kind == ErrorGeneric
}

var quotaMarkers = []string{"insufficient_quota", "quota", "billing"}

// ClassifyResponse converts a non-2xx backend response into a RemoteError.
// 4xx answers other than 408 and 429 are rejections of the request itself.
func ClassifyResponse(backend string, status int, body []byte) *RemoteError {
	message := errorMessage(body)
	lower := strings.ToLower(string(body))
	kind := ErrorGeneric
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrorAuth
	case status == http.StatusPaymentRequired:
		kind = ErrorQuota
	case status == http.StatusTooManyRequests:
		kind = ErrorRateLimit
		for _, marker := range quotaMarkers {
			if strings.Contains(lower, marker) {
				kind = ErrorQuota
				break
			}
		}
	case strings.Contains(lower, "rate limit"):
		kind = ErrorRateLimit
	case status == http.StatusRequestTimeout:
	case status >= 400 && status < 500:
		kind = ErrorRejected
	}
	return &RemoteError{Backend: backend, Kind: kind, StatusCode: status, Message: message}
}

// errorMessage extracts a readable message from OpenAI-style error bodies
// ({"error":{"message":...}} or {"error":"..."}), falling back to raw text.
func errorMessage(body []byte) string {
	var structured struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &structured); err == nil && len(structured.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(structured.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if err := json.Unmarshal(structured.Error, &flat); err == nil && flat != "" {
			return flat
		}
	}
	text := strings.TrimSpace(string(body))
	const limit = 512
	if len(text) > limit {
		text = text[:limit] + "..."
	}
	if text == "" {
		return "empty response body"
	}
	return text
}
