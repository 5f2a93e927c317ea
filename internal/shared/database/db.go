package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/retrolearn/retrolearn/internal/shared/models"
)

// ErrNotFound is returned when a row does not exist or is not owned by the caller
var ErrNotFound = errors.New("record not found")

type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id               UUID PRIMARY KEY,
	user_id          UUID,
	function_name    TEXT NOT NULL,
	api_provider     TEXT NOT NULL,
	api_model        TEXT NOT NULL,
	is_fallback      BOOLEAN NOT NULL DEFAULT FALSE,
	status           TEXT NOT NULL CHECK (status IN ('success', 'error')),
	error_message    TEXT,
	response_time_ms INTEGER,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS usage_records_user_created_idx ON usage_records (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS notes (
	id                UUID PRIMARY KEY,
	user_id           UUID NOT NULL,
	title             TEXT NOT NULL DEFAULT '',
	original_content  TEXT NOT NULL DEFAULT '',
	processed_content TEXT,
	summary           TEXT,
	key_points        TEXT[] NOT NULL DEFAULT '{}',
	status            TEXT NOT NULL DEFAULT 'pending',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS quizzes (
	id         UUID PRIMARY KEY,
	user_id    UUID NOT NULL,
	note_id    UUID REFERENCES notes (id) ON DELETE SET NULL,
	title      TEXT NOT NULL,
	topic      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'generating',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS questions (
	id             UUID PRIMARY KEY,
	quiz_id        UUID NOT NULL REFERENCES quizzes (id) ON DELETE CASCADE,
	position       INTEGER NOT NULL,
	question_text  TEXT NOT NULL,
	option_a       TEXT NOT NULL,
	option_b       TEXT NOT NULL,
	option_c       TEXT NOT NULL,
	option_d       TEXT NOT NULL,
	correct_answer CHAR(1) NOT NULL CHECK (correct_answer IN ('A', 'B', 'C', 'D')),
	explanation    TEXT
);
`

// Migrate creates the tables this service writes to if they are missing
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// InsertUsageRecord appends one provider attempt to the usage ledger
func (db *DB) InsertUsageRecord(ctx context.Context, rec *models.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO usage_records (
			id, user_id, function_name, api_provider, api_model, is_fallback,
			status, error_message, response_time_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := db.conn.ExecContext(ctx,
		query,
		rec.ID,
		rec.UserID,
		rec.FunctionName,
		rec.APIProvider,
		rec.APIModel,
		rec.IsFallback,
		rec.Status,
		rec.ErrorMessage,
		rec.ResponseTimeMs,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// RecentUsageRecords returns the newest records for a user, newest first
func (db *DB) RecentUsageRecords(ctx context.Context, userID string, limit int) ([]models.UsageRecord, error) {
	query := `
		SELECT id, user_id, function_name, api_provider, api_model, is_fallback,
		       status, error_message, response_time_ms, created_at
		FROM usage_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := db.conn.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var rec models.UsageRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.FunctionName,
			&rec.APIProvider,
			&rec.APIModel,
			&rec.IsFallback,
			&rec.Status,
			&rec.ErrorMessage,
			&rec.ResponseTimeMs,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CreateNote inserts a note
func (db *DB) CreateNote(ctx context.Context, note *models.Note) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	note.CreatedAt, note.UpdatedAt = now, now
	if note.KeyPoints == nil {
		note.KeyPoints = []string{}
	}

	query := `
		INSERT INTO notes (
			id, user_id, title, original_content, processed_content, summary,
			key_points, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := db.conn.ExecContext(ctx,
		query,
		note.ID,
		note.UserID,
		note.Title,
		note.OriginalContent,
		note.ProcessedContent,
		note.Summary,
		pq.Array(note.KeyPoints),
		note.Status,
		note.CreatedAt,
		note.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// GetNote retrieves a note owned by userID
func (db *DB) GetNote(ctx context.Context, id, userID string) (*models.Note, error) {
	query := `
		SELECT id, user_id, title, original_content, processed_content, summary,
		       key_points, status, created_at, updated_at
		FROM notes
		WHERE id = $1 AND user_id = $2
	`

	var note models.Note
	err := db.conn.QueryRowContext(ctx, query, id, userID).Scan(
		&note.ID,
		&note.UserID,
		&note.Title,
		&note.OriginalContent,
		&note.ProcessedContent,
		&note.Summary,
		pq.Array(&note.KeyPoints),
		&note.Status,
		&note.CreatedAt,
		&note.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &note, nil
}

// CompleteNote stores the processed content and marks the note completed
func (db *DB) CompleteNote(ctx context.Context, note *models.Note) error {
	note.Status = models.NoteStatusCompleted
	note.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE notes
		SET title = $2, processed_content = $3, summary = $4, key_points = $5,
		    status = $6, updated_at = $7
		WHERE id = $1
	`

	res, err := db.conn.ExecContext(ctx,
		query,
		note.ID,
		note.Title,
		note.ProcessedContent,
		note.Summary,
		pq.Array(note.KeyPoints),
		note.Status,
		note.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	return requireRow(res)
}

// SetNoteStatus moves a note to a new status
func (db *DB) SetNoteStatus(ctx context.Context, id, status string) error {
	query := `UPDATE notes SET status = $2, updated_at = NOW() WHERE id = $1`
	res, err := db.conn.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update note status: %w", err)
	}
	return requireRow(res)
}

// CreateQuiz inserts a quiz header row
func (db *DB) CreateQuiz(ctx context.Context, quiz *models.Quiz) error {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	quiz.CreatedAt, quiz.UpdatedAt = now, now

	query := `
		INSERT INTO quizzes (id, user_id, note_id, title, topic, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := db.conn.ExecContext(ctx,
		query,
		quiz.ID,
		quiz.UserID,
		quiz.NoteID,
		quiz.Title,
		quiz.Topic,
		quiz.Status,
		quiz.CreatedAt,
		quiz.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

// SaveQuestions inserts a quiz's questions and marks the quiz ready, atomically
func (db *DB) SaveQuestions(ctx context.Context, quizID string, questions []models.Question) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO questions (
			id, quiz_id, position, question_text, option_a, option_b, option_c,
			option_d, correct_answer, explanation
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return fmt.Errorf("prepare questions insert: %w", err)
	}
	defer stmt.Close()

	for i := range questions {
		q := &questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		q.QuizID = quizID
		if _, err := stmt.ExecContext(ctx,
			q.ID,
			q.QuizID,
			q.Position,
			q.QuestionText,
			q.OptionA,
			q.OptionB,
			q.OptionC,
			q.OptionD,
			q.CorrectAnswer,
			q.Explanation,
		); err != nil {
			return fmt.Errorf("insert question %d: %w", q.Position, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE quizzes SET status = $2, updated_at = NOW() WHERE id = $1`,
		quizID, models.QuizStatusReady)
	if err != nil {
		return fmt.Errorf("update quiz status: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	return tx.Commit()
}

// SetQuizStatus moves a quiz to a new status
func (db *DB) SetQuizStatus(ctx context.Context, id, status string) error {
	query := `UPDATE quizzes SET status = $2, updated_at = NOW() WHERE id = $1`
	res, err := db.conn.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update quiz status: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
