package ledger

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/retrolearn/retrolearn/internal/shared/models"
)

type memorySink struct {
	mu      sync.Mutex
	rows    []models.UsageRecord
	err     error
	panics  bool
	blockCh chan struct{}
}

func (s *memorySink) InsertUsageRecord(ctx context.Context, rec *models.UsageRecord) error {
	if s.blockCh != nil {
		<-s.blockCh
	}
	if s.panics {
		panic("sink exploded")
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *rec)
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func TestRecordLandsOnce(t *testing.T) {
	sink := &memorySink{}
	l := New(sink)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(models.UsageRecord{FunctionName: "explore-topic", Status: models.UsageStatusSuccess})
		}()
	}
	wg.Wait()
	l.Wait()

	if got := sink.count(); got != 50 {
		t.Fatalf("expected 50 rows, got %d", got)
	}
}

func TestRecordDoesNotBlockCaller(t *testing.T) {
	sink := &memorySink{blockCh: make(chan struct{})}
	l := New(sink)

	done := make(chan struct{})
	go func() {
		l.Record(models.UsageRecord{FunctionName: "f"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a slow sink")
	}

	close(sink.blockCh)
	l.Wait()
	if sink.count() != 1 {
		t.Fatalf("expected write to land after unblocking")
	}
}

func TestRecordSwallowsSinkFailures(t *testing.T) {
	for name, sink := range map[string]*memorySink{
		"error": {err: errors.New("connection refused")},
		"panic": {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			l := New(sink)
			l.Record(models.UsageRecord{FunctionName: "f"})
			l.Wait()
			if sink.count() != 0 {
				t.Fatalf("nothing should be stored")
			}
		})
	}
}

func TestNilLedgerIsNoop(t *testing.T) {
	var l *Ledger
	l.Record(models.UsageRecord{})
}

func TestSummarize(t *testing.T) {
	ms := func(v int) *int { return &v }
	records := []models.UsageRecord{
		{APIProvider: "gemini", Status: models.UsageStatusError, ResponseTimeMs: ms(100)},
		{APIProvider: "gemini", Status: models.UsageStatusSuccess, IsFallback: true, ResponseTimeMs: ms(300)},
		{APIProvider: "openai", Status: models.UsageStatusSuccess, ResponseTimeMs: ms(200)},
		{APIProvider: "openai", Status: models.UsageStatusSuccess},
	}

	stats := Summarize(records)
	if stats.TotalCalls != 4 || stats.Successes != 3 || stats.Errors != 1 {
		t.Fatalf("unexpected totals %+v", stats)
	}
	if math.Abs(stats.SuccessRate-0.75) > 1e-9 {
		t.Errorf("SuccessRate = %v", stats.SuccessRate)
	}
	if math.Abs(stats.FallbackRate-0.25) > 1e-9 {
		t.Errorf("FallbackRate = %v", stats.FallbackRate)
	}
	if math.Abs(stats.AvgLatencyMs-200) > 1e-9 {
		t.Errorf("AvgLatencyMs = %v", stats.AvgLatencyMs)
	}
	if stats.ByProvider["gemini"].Errors != 1 || stats.ByProvider["openai"].Calls != 2 {
		t.Errorf("unexpected per-provider stats %+v", stats.ByProvider)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	stats := Summarize(nil)
	if stats.TotalCalls != 0 || stats.SuccessRate != 0 || stats.ByProvider == nil {
		t.Errorf("unexpected empty stats %+v", stats)
	}
}
