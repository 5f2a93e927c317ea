package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorClass says why an attempt failed. It drives logging and the final
// error mapping only; the orchestrator falls through on every class.
type ErrorClass string

const (
	ClassQuota     ErrorClass = "quota"
	ClassTransient ErrorClass = "transient"
	ClassFatal     ErrorClass = "fatal"
)

// ErrNoProviders is returned when a chain has no adapters
var ErrNoProviders = errors.New("no AI providers configured for this operation")

var quotaMarkers = []string{"quota", "exceed", "rate", "insufficient"}

// Classify buckets an upstream HTTP failure
func Classify(status int, message string) ErrorClass {
	if status == http.StatusTooManyRequests || IsQuotaMessage(message) {
		return ClassQuota
	}
	if status >= 500 {
		return ClassTransient
	}
	return ClassFatal
}

// IsQuotaMessage matches rate/usage limit wording, case-insensitively
func IsQuotaMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ProviderError is a classified failure of one attempt
type ProviderError struct {
	Provider   string
	Model      string
	HTTPStatus int // 0 when no response was received
	Message    string
	LatencyMs  int
	Class      ErrorClass
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s/%s %s error (status %d): %s", e.Provider, e.Model, e.Class, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s/%s %s error: %s", e.Provider, e.Model, e.Class, e.Message)
}

// httpError builds a ProviderError from a non-2xx upstream response
func httpError(provider, model string, status int, body []byte, latencyMs int) *ProviderError {
	msg := upstreamMessage(body)
	return &ProviderError{
		Provider:   provider,
		Model:      model,
		HTTPStatus: status,
		Message:    msg,
		LatencyMs:  latencyMs,
		Class:      Classify(status, msg),
	}
}

// transportError covers timeouts and network failures, which are transient
// regardless of their wording
func transportError(provider, model string, err error, latencyMs int) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Model:     model,
		Message:   err.Error(),
		LatencyMs: latencyMs,
		Class:     ClassTransient,
	}
}

// contentError is a 2xx response we could not use
func contentError(provider, model string, status int, msg string, latencyMs int) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Model:      model,
		HTTPStatus: status,
		Message:    msg,
		LatencyMs:  latencyMs,
		Class:      ClassFatal,
	}
}

// upstreamMessage pulls error.message out of the usual JSON error bodies
// (Gemini, OpenAI, Anthropic all nest it the same way)
func upstreamMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error.Message != "" {
			return payload.Error.Message
		}
		if payload.Message != "" {
			return payload.Message
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 500 {
		msg = msg[:500]
	}
	if msg == "" {
		msg = "empty error body"
	}
	return msg
}

// ExhaustedError is returned when every adapter of a chain failed
type ExhaustedError struct {
	Attempts []*ProviderError
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return fmt.Sprintf("all %d providers failed: %s", len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap exposes the individual attempt errors to errors.Is/As
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a
	}
	return errs
}

// QuotaLimited reports whether the chain ended on a quota-like failure
func (e *ExhaustedError) QuotaLimited() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	return e.Attempts[len(e.Attempts)-1].Class == ClassQuota
}
