package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAdapter handles OpenAI chat completion requests
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

// newOpenAIClient builds a go-openai client, optionally against another base URL
func newOpenAIClient(apiKey, baseURL string, httpClient *http.Client) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

// NewOpenAIAdapter creates a new OpenAI chat adapter
func NewOpenAIAdapter(apiKey, model, baseURL string, httpClient *http.Client) *OpenAIAdapter {
	return &OpenAIAdapter{
		client: newOpenAIClient(apiKey, baseURL, httpClient),
		model:  model,
	}
}

// Attempt makes one chat completion request
func (a *OpenAIAdapter) Attempt(ctx context.Context, req *InferenceRequest) (*RawResponse, error) {
	startTime := time.Now()
	elapsed := func() int { return int(time.Since(startTime).Milliseconds()) }

	openaiReq, err := a.convertRequest(req)
	if err != nil {
		return nil, contentError(a.Name(), a.model, 0, err.Error(), 0)
	}

	resp, err := a.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		return nil, openAIError(a.Name(), a.model, err, elapsed())
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, contentError(a.Name(), a.model, http.StatusOK, "empty response", elapsed())
	}

	return &RawResponse{Text: resp.Choices[0].Message.Content, LatencyMs: elapsed()}, nil
}

// convertRequest builds the go-openai request; images travel as data URIs
func (a *OpenAIAdapter) convertRequest(req *InferenceRequest) (openai.ChatCompletionRequest, error) {
	openaiReq := openai.ChatCompletionRequest{
		Model:     a.model,
		MaxTokens: req.Config.MaxTokens,
	}
	if req.Config.Temperature != nil {
		openaiReq.Temperature = *req.Config.Temperature
	}
	if req.Config.JSONResponse {
		openaiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	if req.System != "" {
		openaiReq.Messages = append(openaiReq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.Attachments) == 0 {
		user.Content = req.Prompt
	} else {
		user.MultiContent = []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.Prompt}}
		for _, att := range req.Attachments {
			if !att.IsImage() {
				return openaiReq, fmt.Errorf("unsupported attachment type %s", att.MimeType)
			}
			user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: att.DataURI()},
			})
		}
	}
	openaiReq.Messages = append(openaiReq.Messages, user)

	return openaiReq, nil
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Model returns the model this adapter targets
func (a *OpenAIAdapter) Model() string {
	return a.model
}

// WhisperAdapter transcribes the first audio attachment of a request
type WhisperAdapter struct {
	client *openai.Client
	model  string
}

// NewWhisperAdapter creates a speech-to-text adapter
func NewWhisperAdapter(apiKey, model, baseURL string, httpClient *http.Client) *WhisperAdapter {
	return &WhisperAdapter{
		client: newOpenAIClient(apiKey, baseURL, httpClient),
		model:  model,
	}
}

// Attempt makes one transcription request
func (a *WhisperAdapter) Attempt(ctx context.Context, req *InferenceRequest) (*RawResponse, error) {
	startTime := time.Now()
	elapsed := func() int { return int(time.Since(startTime).Milliseconds()) }

	var audio *Attachment
	for i := range req.Attachments {
		if req.Attachments[i].IsAudio() {
			audio = &req.Attachments[i]
			break
		}
	}
	if audio == nil {
		return nil, contentError(a.Name(), a.model, 0, "no audio attachment", 0)
	}

	data, err := audio.Bytes()
	if err != nil {
		return nil, contentError(a.Name(), a.model, 0, fmt.Sprintf("decode audio: %v", err), 0)
	}

	resp, err := a.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    a.model,
		FilePath: "audio." + audioExtension(audio.MimeType),
		Reader:   bytes.NewReader(data),
		Prompt:   req.Prompt,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return nil, openAIError(a.Name(), a.model, err, elapsed())
	}

	if strings.TrimSpace(resp.Text) == "" {
		return nil, contentError(a.Name(), a.model, http.StatusOK, "empty transcription", elapsed())
	}

	return &RawResponse{Text: resp.Text, LatencyMs: elapsed()}, nil
}

// Name returns the provider name
func (a *WhisperAdapter) Name() string {
	return "whisper"
}

// Model returns the model this adapter targets
func (a *WhisperAdapter) Model() string {
	return a.model
}

func audioExtension(mime string) string {
	switch strings.TrimPrefix(strings.SplitN(mime, ";", 2)[0], "audio/") {
	case "mpeg", "mp3":
		return "mp3"
	case "wav", "x-wav":
		return "wav"
	case "ogg":
		return "ogg"
	case "mp4", "m4a", "x-m4a":
		return "m4a"
	default:
		return "webm"
	}
}

// openAIError maps go-openai errors onto ProviderError
func openAIError(provider, model string, err error, latencyMs int) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   provider,
			Model:      model,
			HTTPStatus: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			LatencyMs:  latencyMs,
			Class:      Classify(apiErr.HTTPStatusCode, apiErr.Message),
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &ProviderError{
			Provider:   provider,
			Model:      model,
			HTTPStatus: reqErr.HTTPStatusCode,
			Message:    reqErr.Error(),
			LatencyMs:  latencyMs,
			Class:      Classify(reqErr.HTTPStatusCode, reqErr.Error()),
		}
	}

	return transportError(provider, model, err, latencyMs)
}
