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

// GeminiAdapter calls Google's generateContent endpoint for one model/key
type GeminiAdapter struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// GeminiRequest represents a request to Gemini's API
type GeminiRequest struct {
	Contents          []GeminiContent         `json:"contents"`
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiContent represents content in Gemini format
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart is either text or inline binary data
type GeminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GeminiInlineData `json:"inline_data,omitempty"`
}

// GeminiInlineData carries a base64 attachment
type GeminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// GeminiGenerationConfig represents generation parameters
type GeminiGenerationConfig struct {
	Temperature      *float32 `json:"temperature,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

// GeminiResponse represents a response from Gemini API
type GeminiResponse struct {
	Candidates []GeminiCandidate `json:"candidates"`
}

// GeminiCandidate represents a candidate response
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// NewGeminiAdapter creates a Gemini adapter
func NewGeminiAdapter(apiKey, model, baseURL string, httpClient *http.Client) *GeminiAdapter {
	return &GeminiAdapter{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Attempt makes one generateContent call
func (a *GeminiAdapter) Attempt(ctx context.Context, req *InferenceRequest) (*RawResponse, error) {
	startTime := time.Now()
	elapsed := func() int { return int(time.Since(startTime).Milliseconds()) }

	url := fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, a.model)

	reqBody, err := json.Marshal(a.convertRequest(req))
	if err != nil {
		return nil, contentError(a.Name(), a.model, 0, fmt.Sprintf("encode request: %v", err), 0)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, contentError(a.Name(), a.model, 0, fmt.Sprintf("build request: %v", err), 0)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(a.Name(), a.model, err, elapsed())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(a.Name(), a.model, err, elapsed())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, httpError(a.Name(), a.model, resp.StatusCode, body, elapsed())
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, contentError(a.Name(), a.model, resp.StatusCode, fmt.Sprintf("failed to parse response: %v", err), elapsed())
	}

	text := geminiResp.text()
	if strings.TrimSpace(text) == "" {
		reason := "no candidates"
		if len(geminiResp.Candidates) > 0 {
			reason = "finish reason " + geminiResp.Candidates[0].FinishReason
		}
		return nil, contentError(a.Name(), a.model, resp.StatusCode, "empty response: "+reason, elapsed())
	}

	return &RawResponse{Text: text, LatencyMs: elapsed()}, nil
}

// convertRequest converts to Gemini format
func (a *GeminiAdapter) convertRequest(req *InferenceRequest) GeminiRequest {
	parts := []GeminiPart{{Text: req.Prompt}}
	for _, att := range req.Attachments {
		parts = append(parts, GeminiPart{InlineData: &GeminiInlineData{MimeType: att.MimeType, Data: att.Data}})
	}

	geminiReq := GeminiRequest{
		Contents: []GeminiContent{{Role: "user", Parts: parts}},
	}

	if req.System != "" {
		geminiReq.SystemInstruction = &GeminiContent{Parts: []GeminiPart{{Text: req.System}}}
	}

	cfg := req.Config
	if cfg.Temperature != nil || cfg.MaxTokens > 0 || cfg.JSONResponse {
		geminiReq.GenerationConfig = &GeminiGenerationConfig{Temperature: cfg.Temperature}
		if cfg.MaxTokens > 0 {
			maxTokens := cfg.MaxTokens
			geminiReq.GenerationConfig.MaxOutputTokens = &maxTokens
		}
		if cfg.JSONResponse {
			geminiReq.GenerationConfig.ResponseMimeType = "application/json"
		}
	}

	return geminiReq
}

// text joins the parts of the first candidate
func (r GeminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// Name returns the provider name
func (a *GeminiAdapter) Name() string {
	return "gemini"
}

// Model returns the model this adapter targets
func (a *GeminiAdapter) Model() string {
	return a.model
}
