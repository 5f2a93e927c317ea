package providers

import (
	"context"
	"encoding/base64"
	"strings"
)

// InferenceRequest is one logical generation request. It is built once per
// operation and handed to each adapter of the chain in turn.
type InferenceRequest struct {
	System      string           `json:"system,omitempty"`
	Prompt      string           `json:"prompt"`
	Config      GenerationConfig `json:"config"`
	Attachments []Attachment     `json:"attachments,omitempty"`
}

// GenerationConfig represents generation parameters
type GenerationConfig struct {
	Temperature  *float32 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	JSONResponse bool     `json:"json_response,omitempty"`
}

// Attachment is an inline binary input (image or audio), base64 encoded
type Attachment struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// IsImage reports whether the attachment is an image
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// IsAudio reports whether the attachment is audio
func (a Attachment) IsAudio() bool {
	return strings.HasPrefix(a.MimeType, "audio/")
}

// Bytes decodes the attachment payload
func (a Attachment) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Data)
}

// DataURI renders the attachment as a data: URI
func (a Attachment) DataURI() string {
	return "data:" + a.MimeType + ";base64," + a.Data
}

// ParseAttachment accepts raw base64 or a data: URI. The fallback mime type
// is used when the input carries none.
func ParseAttachment(input, fallbackMime string) Attachment {
	if rest, ok := strings.CutPrefix(input, "data:"); ok {
		if meta, data, found := strings.Cut(rest, ","); found {
			mime := strings.TrimSuffix(meta, ";base64")
			if mime == "" {
				mime = fallbackMime
			}
			return Attachment{MimeType: mime, Data: data}
		}
	}
	return Attachment{MimeType: fallbackMime, Data: input}
}

// RawResponse is the text an adapter extracted from a successful call
type RawResponse struct {
	Text      string `json:"text"`
	LatencyMs int    `json:"latency_ms"`
}

// Adapter wraps one upstream provider/model/key combination. Attempt makes
// exactly one upstream call and never retries; failures are returned as
// *ProviderError.
type Adapter interface {
	Attempt(ctx context.Context, req *InferenceRequest) (*RawResponse, error)
	Name() string
	Model() string
}
