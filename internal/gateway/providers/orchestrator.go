package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/retrolearn/retrolearn/internal/shared/models"
	log "github.com/sirupsen/logrus"
)

// DefaultAttemptTimeout bounds a single upstream call
const DefaultAttemptTimeout = 30 * time.Second

// UsageRecorder receives one record per attempt. Record must not block.
type UsageRecorder interface {
	Record(entry models.UsageRecord)
}

// CallMeta attributes a run to a user and operation
type CallMeta struct {
	UserID       string
	FunctionName string
}

// Result is the outcome of the first successful attempt
type Result struct {
	Text     string
	Provider string
	Model    string
	Fallback bool
	Attempts int
}

// Orchestrator tries a chain of adapters in order until one succeeds
type Orchestrator struct {
	recorder       UsageRecorder
	attemptTimeout time.Duration
	now            func() time.Time
}

// NewOrchestrator creates an orchestrator that logs every attempt to recorder
func NewOrchestrator(recorder UsageRecorder, attemptTimeout time.Duration) *Orchestrator {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	return &Orchestrator{
		recorder:       recorder,
		attemptTimeout: attemptTimeout,
		now:            time.Now,
	}
}

// Run attempts each adapter strictly in order. The first success is returned
// immediately; failures of any class fall through to the next adapter. When
// the chain is exhausted the error is an *ExhaustedError.
func (o *Orchestrator) Run(ctx context.Context, chain []Adapter, req *InferenceRequest, meta CallMeta) (*Result, error) {
	if len(chain) == 0 {
		return nil, ErrNoProviders
	}

	logger := log.WithFields(log.Fields{
		"function": meta.FunctionName,
		"user_id":  meta.UserID,
	})

	failures := make([]*ProviderError, 0, len(chain))
	for i, adapter := range chain {
		fallback := i > 0

		raw, latencyMs, err := o.attempt(ctx, adapter, req)
		if err == nil {
			o.record(meta, adapter, fallback, nil, latencyMs)
			logger.WithFields(log.Fields{
				"provider":   adapter.Name(),
				"model":      adapter.Model(),
				"fallback":   fallback,
				"latency_ms": latencyMs,
			}).Info("AI call succeeded")

			return &Result{
				Text:     raw.Text,
				Provider: adapter.Name(),
				Model:    adapter.Model(),
				Fallback: fallback,
				Attempts: i + 1,
			}, nil
		}

		perr := asProviderError(adapter, err, latencyMs)
		o.record(meta, adapter, fallback, perr, latencyMs)
		failures = append(failures, perr)

		entry := logger.WithFields(log.Fields{
			"provider":    adapter.Name(),
			"model":       adapter.Model(),
			"class":       perr.Class,
			"http_status": perr.HTTPStatus,
			"latency_ms":  latencyMs,
		})
		switch perr.Class {
		case ClassFatal:
			entry.WithError(perr).Error("AI call failed")
		default:
			entry.WithError(perr).Warn("AI call failed, trying next provider")
		}
	}

	return nil, &ExhaustedError{Attempts: failures}
}

// attempt runs one adapter under the per-attempt deadline and measures it
func (o *Orchestrator) attempt(ctx context.Context, adapter Adapter, req *InferenceRequest) (*RawResponse, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()

	start := o.now()
	raw, err := adapter.Attempt(attemptCtx, req)
	latencyMs := int(o.now().Sub(start).Milliseconds())

	if err == nil && raw == nil {
		err = fmt.Errorf("adapter returned no response")
	}
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = &ProviderError{
			Provider:  adapter.Name(),
			Model:     adapter.Model(),
			Message:   fmt.Sprintf("timed out after %s", o.attemptTimeout),
			LatencyMs: latencyMs,
			Class:     ClassTransient,
		}
	}

	return raw, latencyMs, err
}

// record is the single place usage records are produced
func (o *Orchestrator) record(meta CallMeta, adapter Adapter, fallback bool, perr *ProviderError, latencyMs int) {
	if o.recorder == nil {
		return
	}

	latency := latencyMs
	entry := models.UsageRecord{
		ID:             uuid.NewString(),
		FunctionName:   meta.FunctionName,
		APIProvider:    adapter.Name(),
		APIModel:       adapter.Model(),
		IsFallback:     fallback,
		Status:         models.UsageStatusSuccess,
		ResponseTimeMs: &latency,
		CreatedAt:      o.now().UTC(),
	}
	if meta.UserID != "" {
		userID := meta.UserID
		entry.UserID = &userID
	}
	if perr != nil {
		msg := perr.Message
		entry.Status = models.UsageStatusError
		entry.ErrorMessage = &msg
	}

	o.recorder.Record(entry)
}

// asProviderError normalizes whatever an adapter returned
func asProviderError(adapter Adapter, err error, latencyMs int) *ProviderError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	return &ProviderError{
		Provider:  adapter.Name(),
		Model:     adapter.Model(),
		Message:   err.Error(),
		LatencyMs: latencyMs,
		Class:     ClassFatal,
	}
}
