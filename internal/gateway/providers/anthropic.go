package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

// AnthropicAdapter handles Anthropic Claude API requests
type AnthropicAdapter struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// AnthropicRequest represents a request to Anthropic's Messages API
type AnthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []AnthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
}

// AnthropicMessage represents a message in Anthropic format
type AnthropicMessage struct {
	Role    string                  `json:"role"`
	Content []AnthropicContentBlock `json:"content"`
}

// AnthropicContentBlock is a text or image block
type AnthropicContentBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *AnthropicSource `json:"source,omitempty"`
}

// AnthropicSource carries a base64 image
type AnthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// AnthropicResponse represents a response from Anthropic's API
type AnthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []AnthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
}

// NewAnthropicAdapter creates a new Anthropic adapter
func NewAnthropicAdapter(apiKey, model, baseURL string, httpClient *http.Client) *AnthropicAdapter {
	return &AnthropicAdapter{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Attempt makes one Messages API call. Anthropic has no JSON response mode,
// so JSON prompts come back as free text for the normalizer.
func (a *AnthropicAdapter) Attempt(ctx context.Context, req *InferenceRequest) (*RawResponse, error) {
	startTime := time.Now()
	elapsed := func() int { return int(time.Since(startTime).Milliseconds()) }

	anthropicReq, err := a.convertRequest(req)
	if err != nil {
		return nil, contentError(a.Name(), a.model, 0, err.Error(), 0)
	}

	reqBody, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, contentError(a.Name(), a.model, 0, fmt.Sprintf("encode request: %v", err), 0)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, contentError(a.Name(), a.model, 0, fmt.Sprintf("build request: %v", err), 0)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(a.Name(), a.model, err, elapsed())
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, transportError(a.Name(), a.model, err, elapsed())
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, httpError(a.Name(), a.model, httpResp.StatusCode, respBody, elapsed())
	}

	var anthropicResp AnthropicResponse
	if err := json.Unmarshal(respBody, &anthropicResp); err != nil {
		return nil, contentError(a.Name(), a.model, httpResp.StatusCode, fmt.Sprintf("failed to parse response: %v", err), elapsed())
	}

	var content strings.Builder
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(content.String()) == "" {
		return nil, contentError(a.Name(), a.model, httpResp.StatusCode, "empty response: stop reason "+anthropicResp.StopReason, elapsed())
	}

	return &RawResponse{Text: content.String(), LatencyMs: elapsed()}, nil
}

// convertRequest converts to Anthropic format
func (a *AnthropicAdapter) convertRequest(req *InferenceRequest) (AnthropicRequest, error) {
	anthropicReq := AnthropicRequest{
		Model:       a.model,
		MaxTokens:   4096,
		Temperature: req.Config.Temperature,
		System:      req.System,
	}

	if req.Config.MaxTokens > 0 {
		anthropicReq.MaxTokens = req.Config.MaxTokens
	}

	var blocks []AnthropicContentBlock
	for _, att := range req.Attachments {
		if !att.IsImage() {
			return anthropicReq, fmt.Errorf("unsupported attachment type %s", att.MimeType)
		}
		blocks = append(blocks, AnthropicContentBlock{
			Type:   "image",
			Source: &AnthropicSource{Type: "base64", MediaType: att.MimeType, Data: att.Data},
		})
	}
	blocks = append(blocks, AnthropicContentBlock{Type: "text", Text: req.Prompt})

	anthropicReq.Messages = []AnthropicMessage{{Role: "user", Content: blocks}}

	return anthropicReq, nil
}

// Name returns the provider name
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// Model returns the model this adapter targets
func (a *AnthropicAdapter) Model() string {
	return a.model
}
