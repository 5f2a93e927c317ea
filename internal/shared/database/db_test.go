package database

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/retrolearn/retrolearn/internal/shared/models"
)

// setupTestDB connects to TEST_DATABASE_URL, skipping when it is unset.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := New(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestUsageRecordsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	userID := uuid.NewString()

	latency := 120
	msg := "quota exceeded"
	records := []models.UsageRecord{
		{UserID: &userID, FunctionName: "explore-topic", APIProvider: "gemini", APIModel: "gemini-2.5-flash", Status: models.UsageStatusError, ErrorMessage: &msg, ResponseTimeMs: &latency},
		{UserID: &userID, FunctionName: "explore-topic", APIProvider: "gemini", APIModel: "gemini-2.5-flash-lite", IsFallback: true, Status: models.UsageStatusSuccess, ResponseTimeMs: &latency},
	}
	for i := range records {
		if err := db.InsertUsageRecord(ctx, &records[i]); err != nil {
			t.Fatalf("InsertUsageRecord: %v", err)
		}
	}

	got, err := db.RecentUsageRecords(ctx, userID, 10)
	if err != nil {
		t.Fatalf("RecentUsageRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}

	limited, err := db.RecentUsageRecords(ctx, userID, 1)
	if err != nil {
		t.Fatalf("RecentUsageRecords: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestNoteLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	userID := uuid.NewString()

	note := &models.Note{UserID: userID, Title: "Cells", OriginalContent: "Mitochondria...", Status: models.NoteStatusPending}
	if err := db.CreateNote(ctx, note); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	if _, err := db.GetNote(ctx, note.ID, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other user, got %v", err)
	}

	processed := "# Cells"
	summary := "Cells have parts."
	note.ProcessedContent = &processed
	note.Summary = &summary
	note.KeyPoints = []string{"mitochondria", "nucleus"}
	if err := db.CompleteNote(ctx, note); err != nil {
		t.Fatalf("CompleteNote: %v", err)
	}

	got, err := db.GetNote(ctx, note.ID, userID)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Status != models.NoteStatusCompleted || len(got.KeyPoints) != 2 {
		t.Fatalf("unexpected note %+v", got)
	}

	if err := db.SetNoteStatus(ctx, uuid.NewString(), models.NoteStatusFailed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing note, got %v", err)
	}
}

func TestSaveQuestionsMarksQuizReady(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	quiz := &models.Quiz{UserID: uuid.NewString(), Title: "Photosynthesis", Topic: "Photosynthesis", Status: models.QuizStatusGenerating}
	if err := db.CreateQuiz(ctx, quiz); err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}

	questions := []models.Question{
		{Position: 1, QuestionText: "Q1", OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", CorrectAnswer: "A"},
		{Position: 2, QuestionText: "Q2", OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", CorrectAnswer: "D"},
	}
	if err := db.SaveQuestions(ctx, quiz.ID, questions); err != nil {
		t.Fatalf("SaveQuestions: %v", err)
	}
	for _, q := range questions {
		if q.ID == "" || q.QuizID != quiz.ID {
			t.Errorf("question not stamped: %+v", q)
		}
	}
}
