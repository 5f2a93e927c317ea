// Package normalize turns free-form model output into validated structs.
//
// Parse is strict and returns a *ParseError. Normalize never fails: when
// parsing or validation fails it returns the caller's synthetic fallback and
// reports the result as degraded.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

const fence = "```"

// Schema is implemented by every operation payload. Canonical returns a
// copy with whitespace and casing cleaned up; Validate checks required fields.
type Schema[T any] interface {
	Canonical() T
	Validate() error
}

// ParseError says which step rejected the raw text
type ParseError struct {
	Stage string // "extract", "decode" or "validate"
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("normalize %s: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExtractJSON isolates the JSON object in a model response: the first fenced
// block if there is one, else the text with stray fences removed, narrowed
// to the first '{' .. last '}' when it does not already start with '{'.
func ExtractJSON(raw string) string {
	s := stripFences(strings.TrimSpace(raw))

	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}

	return strings.TrimSpace(s)
}

// CleanText is ExtractJSON's counterpart for plain-text operations
func CleanText(raw string) string {
	return strings.TrimSpace(stripFences(strings.TrimSpace(raw)))
}

// stripFences returns the body of the first fence pair, or s without any
// unmatched fence markers
func stripFences(s string) string {
	open := strings.Index(s, fence)
	if open < 0 {
		return s
	}

	rest := s[open+len(fence):]
	end := strings.Index(rest, fence)
	if end < 0 {
		return strings.TrimSpace(strings.ReplaceAll(s, fence, ""))
	}

	body := rest[:end]
	// Drop a language tag such as ```json on the opening line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isFenceTag(body[:nl]) {
		body = body[nl+1:]
	}
	return strings.TrimSpace(body)
}

func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// Parse extracts, decodes and validates raw into T
func Parse[T Schema[T]](raw string) (T, error) {
	var zero T

	text := ExtractJSON(raw)
	if text == "" {
		return zero, &ParseError{Stage: "extract", Err: fmt.Errorf("no content")}
	}
	if !strings.HasPrefix(text, "{") {
		return zero, &ParseError{Stage: "extract", Err: fmt.Errorf("no JSON object found")}
	}

	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return zero, &ParseError{Stage: "decode", Err: err}
	}

	v = v.Canonical()
	if err := v.Validate(); err != nil {
		return zero, &ParseError{Stage: "validate", Err: err}
	}

	return v, nil
}

// Normalize is Parse with a total fallback. The bool is true when the
// fallback was used.
func Normalize[T Schema[T]](raw string, fallback func() T) (T, bool) {
	v, err := Parse[T](raw)
	if err == nil {
		return v, false
	}

	log.WithError(err).WithField("raw_length", len(raw)).Warn("unparseable AI response, using fallback content")
	return fallback(), true
}
