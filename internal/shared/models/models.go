package models

import "time"

// Usage record statuses
const (
	UsageStatusSuccess = "success"
	UsageStatusError   = "error"
)

// Note processing statuses
const (
	NoteStatusPending   = "pending"
	NoteStatusCompleted = "completed"
	NoteStatusFailed    = "failed"
)

// Quiz statuses
const (
	QuizStatusGenerating = "generating"
	QuizStatusReady      = "ready"
	QuizStatusFailed     = "failed"
)

// UsageRecord is one AI provider attempt. Rows are only ever inserted.
type UsageRecord struct {
	ID             string    `json:"id"`
	UserID         *string   `json:"user_id"`
	FunctionName   string    `json:"function_name"`
	APIProvider    string    `json:"api_provider"`
	APIModel       string    `json:"api_model"`
	IsFallback     bool      `json:"is_fallback"`
	Status         string    `json:"status"`
	ErrorMessage   *string   `json:"error_message"`
	ResponseTimeMs *int      `json:"response_time_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// Note represents a user's study note
type Note struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Title            string    `json:"title"`
	OriginalContent  string    `json:"original_content"`
	ProcessedContent *string   `json:"processed_content"`
	Summary          *string   `json:"summary"`
	KeyPoints        []string  `json:"key_points"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Quiz represents a generated quiz
type Quiz struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	NoteID    *string   `json:"note_id"`
	Title     string    `json:"title"`
	Topic     string    `json:"topic"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Question is one multiple-choice quiz question
type Question struct {
	ID            string  `json:"id"`
	QuizID        string  `json:"quiz_id"`
	Position      int     `json:"position"`
	QuestionText  string  `json:"question_text"`
	OptionA       string  `json:"option_a"`
	OptionB       string  `json:"option_b"`
	OptionC       string  `json:"option_c"`
	OptionD       string  `json:"option_d"`
	CorrectAnswer string  `json:"correct_answer"`
	Explanation   *string `json:"explanation"`
}

// UsageStats aggregates a window of usage records
type UsageStats struct {
	TotalCalls   int                      `json:"total_calls"`
	Successes    int                      `json:"successes"`
	Errors       int                      `json:"errors"`
	SuccessRate  float64                  `json:"success_rate"`
	AvgLatencyMs float64                  `json:"avg_latency_ms"`
	FallbackRate float64                  `json:"fallback_rate"`
	ByProvider   map[string]ProviderStats `json:"by_provider"`
}

// ProviderStats is the per-provider slice of UsageStats
type ProviderStats struct {
	Calls     int `json:"calls"`
	Successes int `json:"successes"`
	Errors    int `json:"errors"`
}
