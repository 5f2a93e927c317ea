package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/retrolearn/retrolearn/internal/gateway/providers"
	"github.com/retrolearn/retrolearn/internal/shared/config"
)

// deadlineAdapter records the deadline of the context it is called with
type deadlineAdapter struct {
	deadline time.Time
}

func (a *deadlineAdapter) Attempt(ctx context.Context, req *providers.InferenceRequest) (*providers.RawResponse, error) {
	a.deadline, _ = ctx.Deadline()
	return &providers.RawResponse{Text: topicJSON}, nil
}

func (a *deadlineAdapter) Name() string  { return "gemini" }
func (a *deadlineAdapter) Model() string { return "gemini-model" }

func TestRouterTimeoutBoundsProviderCalls(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		atMost  time.Duration
		atLeast time.Duration
	}{
		// The 1s attempt timeout of the test orchestrator is the tighter bound.
		{"budget longer than attempt", time.Minute, 2 * time.Second, 500 * time.Millisecond},
		{"budget shorter than attempt", 200 * time.Millisecond, 200 * time.Millisecond, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.router = NewRouter(env.mw, env.functions, tt.timeout)
			adapter := &deadlineAdapter{}
			env.chains[config.OpExploreTopic] = []providers.Adapter{adapter}

			start := time.Now()
			rec, body := env.do(t, http.MethodPost, "/explore-topic", map[string]string{"topic": "Go"})
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %v", rec.Code, body)
			}
			if adapter.deadline.IsZero() {
				t.Fatal("provider call had no deadline")
			}
			remaining := adapter.deadline.Sub(start)
			if remaining > tt.atMost || remaining < tt.atLeast {
				t.Errorf("deadline %s after start, want between %s and %s", remaining, tt.atLeast, tt.atMost)
			}
		})
	}
}
