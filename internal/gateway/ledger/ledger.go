// Package ledger records every AI provider attempt without ever blocking or
// failing the operation that made it.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/retrolearn/retrolearn/internal/shared/models"
	log "github.com/sirupsen/logrus"
)

// DefaultWriteTimeout bounds a single ledger insert
const DefaultWriteTimeout = 5 * time.Second

// Sink persists usage records
type Sink interface {
	InsertUsageRecord(ctx context.Context, rec *models.UsageRecord) error
}

// Ledger is a fire-and-forget front for a Sink
type Ledger struct {
	sink    Sink
	timeout time.Duration
	wg      sync.WaitGroup
}

// New creates a ledger writing to sink
func New(sink Sink) *Ledger {
	return &Ledger{sink: sink, timeout: DefaultWriteTimeout}
}

// Record writes entry in the background. Failures are logged and dropped.
func (l *Ledger) Record(entry models.UsageRecord) {
	if l == nil || l.sink == nil {
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.write(entry); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"function": entry.FunctionName,
				"provider": entry.APIProvider,
				"model":    entry.APIModel,
				"status":   entry.Status,
			}).Warn("usage ledger: failed to record attempt")
		}
	}()
}

// write isolates the sink call, including panics, from the caller
func (l *Ledger) write(entry models.UsageRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	return l.sink.InsertUsageRecord(ctx, &entry)
}

// Wait blocks until all pending writes have finished
func (l *Ledger) Wait() {
	l.wg.Wait()
}

// Summarize aggregates records into totals, success rate, average latency,
// fallback rate and per-provider volume
func Summarize(records []models.UsageRecord) models.UsageStats {
	stats := models.UsageStats{ByProvider: make(map[string]models.ProviderStats)}

	var latencySum, latencyCount, fallbacks int
	for _, rec := range records {
		stats.TotalCalls++

		ps := stats.ByProvider[rec.APIProvider]
		ps.Calls++
		if rec.Status == models.UsageStatusSuccess {
			stats.Successes++
			ps.Successes++
		} else {
			stats.Errors++
			ps.Errors++
		}
		stats.ByProvider[rec.APIProvider] = ps

		if rec.IsFallback {
			fallbacks++
		}
		if rec.ResponseTimeMs != nil {
			latencySum += *rec.ResponseTimeMs
			latencyCount++
		}
	}

	if stats.TotalCalls > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.TotalCalls)
		stats.FallbackRate = float64(fallbacks) / float64(stats.TotalCalls)
	}
	if latencyCount > 0 {
		stats.AvgLatencyMs = float64(latencySum) / float64(latencyCount)
	}

	return stats
}
