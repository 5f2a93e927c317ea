package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/retrolearn/retrolearn/internal/gateway/cache"
	"github.com/retrolearn/retrolearn/internal/gateway/ledger"
	"github.com/retrolearn/retrolearn/internal/gateway/normalize"
	"github.com/retrolearn/retrolearn/internal/gateway/providers"
	"github.com/retrolearn/retrolearn/internal/shared/config"
	"github.com/retrolearn/retrolearn/internal/shared/database"
	"github.com/retrolearn/retrolearn/internal/shared/models"
	log "github.com/sirupsen/logrus"
)

const (
	maxBodyBytes      = 25 << 20
	defaultStatsLimit = 100
	maxStatsLimit     = 1000
	transcribeQuota   = "transcribe"
)

// Store is the persistence the operations need, normally *database.DB
type Store interface {
	CreateNote(ctx context.Context, note *models.Note) error
	GetNote(ctx context.Context, id, userID string) (*models.Note, error)
	CompleteNote(ctx context.Context, note *models.Note) error
	SetNoteStatus(ctx context.Context, id, status string) error
	CreateQuiz(ctx context.Context, quiz *models.Quiz) error
	SaveQuestions(ctx context.Context, quizID string, questions []models.Question) error
	SetQuizStatus(ctx context.Context, id, status string) error
	RecentUsageRecords(ctx context.Context, userID string, limit int) ([]models.UsageRecord, error)
}

// ChainSource builds the adapter chain for an operation
type ChainSource interface {
	Chain(operation string) []providers.Adapter
}

// Runner executes a chain, normally *providers.Orchestrator
type Runner interface {
	Run(ctx context.Context, chain []providers.Adapter, req *providers.InferenceRequest, meta providers.CallMeta) (*providers.Result, error)
}

// QuotaCounter tracks per-user daily quotas, normally *redis.Client
type QuotaCounter interface {
	ConsumeDailyQuota(ctx context.Context, name, userID string, limit int, now time.Time) (bool, int, error)
	RefundDailyQuota(ctx context.Context, name, userID string, now time.Time) error
}

// FunctionsHandler serves the AI-backed study operations
type FunctionsHandler struct {
	store         Store
	chains        ChainSource
	runner        Runner
	cache         *cache.Cache
	quota         QuotaCounter
	transcribeCap int
	now           func() time.Time
}

func NewFunctionsHandler(store Store, chains ChainSource, runner Runner, resultCache *cache.Cache, quota QuotaCounter, transcribeDailyLimit int) *FunctionsHandler {
	return &FunctionsHandler{
		store:         store,
		chains:        chains,
		runner:        runner,
		cache:         resultCache,
		quota:         quota,
		transcribeCap: transcribeDailyLimit,
		now:           time.Now,
	}
}

// Routes mounts the operations on r
func (h *FunctionsHandler) Routes(r chi.Router) {
	r.Post("/process-note", h.HandleProcessNote)
	r.Post("/generate-quiz", h.HandleGenerateQuiz)
	r.Post("/explore-topic", h.HandleExploreTopic)
	r.Post("/summarize-note", h.HandleSummarizeNote)
	r.Post("/transcribe-audio", h.HandleTranscribeAudio)
	r.Get("/usage-stats", h.HandleUsageStats)
}

type processNoteRequest struct {
	NoteID  string   `json:"note_id"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Images  []string `json:"images"`
}

// HandleProcessNote handles POST /process-note
func (h *FunctionsHandler) HandleProcessNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	// The operation completes even if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	var req processNoteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var note *models.Note
	// A reprocess that fails leaves an already completed note as it was.
	keepOnFailure := false
	if req.NoteID != "" {
		existing, err := h.store.GetNote(ctx, req.NoteID, userID)
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "note not found")
			return
		}
		if err != nil {
			log.WithError(err).Error("failed to load note")
			writeError(w, http.StatusInternalServerError, "failed to load note")
			return
		}
		note = existing
		keepOnFailure = note.Status == models.NoteStatusCompleted
		if req.Content == "" {
			req.Content = note.OriginalContent
		}
		if req.Title == "" {
			req.Title = note.Title
		}
	} else {
		if strings.TrimSpace(req.Content) == "" && len(req.Images) == 0 {
			writeError(w, http.StatusBadRequest, "content or images are required")
			return
		}
		note = &models.Note{
			UserID:          userID,
			Title:           req.Title,
			OriginalContent: req.Content,
			Status:          models.NoteStatusPending,
		}
		if err := h.store.CreateNote(ctx, note); err != nil {
			log.WithError(err).Error("failed to create note")
			writeError(w, http.StatusInternalServerError, "failed to create note")
			return
		}
	}

	infReq := &providers.InferenceRequest{
		System: tutorSystemPrompt,
		Prompt: processNotePrompt(req.Title, req.Content, len(req.Images)),
		Config: providers.GenerationConfig{Temperature: temperature(0.3), JSONResponse: true},
	}
	for _, img := range req.Images {
		infReq.Attachments = append(infReq.Attachments, providers.ParseAttachment(img, "image/jpeg"))
	}

	result, err := h.runner.Run(ctx, h.chains.Chain(config.OpProcessNote), infReq, providers.CallMeta{
		UserID:       userID,
		FunctionName: config.OpProcessNote,
	})
	if err != nil {
		if !keepOnFailure {
			h.failNote(ctx, note.ID)
		}
		writeUpstreamError(w, err, false)
		return
	}

	processed, degraded := normalize.Normalize(result.Text, func() normalize.ProcessedNote {
		return normalize.FallbackNote(req.Title, req.Content)
	})

	if note.Title == "" {
		note.Title = processed.Title
	}
	note.ProcessedContent = &processed.Content
	note.Summary = &processed.Summary
	note.KeyPoints = processed.KeyPoints
	if err := h.store.CompleteNote(ctx, note); err != nil {
		log.WithError(err).WithField("note_id", note.ID).Error("failed to save processed note")
		if !keepOnFailure {
			h.failNote(ctx, note.ID)
		}
		writeError(w, http.StatusInternalServerError, "failed to save processed note")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"note":     note,
		"provider": result.Provider,
		"degraded": degraded,
	})
}

func (h *FunctionsHandler) failNote(ctx context.Context, id string) {
	if err := h.store.SetNoteStatus(ctx, id, models.NoteStatusFailed); err != nil {
		log.WithError(err).WithField("note_id", id).Error("failed to mark note failed")
	}
}

type generateQuizRequest struct {
	Topic   string `json:"topic"`
	NoteID  string `json:"note_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// HandleGenerateQuiz handles POST /generate-quiz
func (h *FunctionsHandler) HandleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx := context.WithoutCancel(r.Context())

	var req generateQuizRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var noteID *string
	if req.NoteID != "" {
		note, err := h.store.GetNote(ctx, req.NoteID, userID)
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "note not found")
			return
		}
		if err != nil {
			log.WithError(err).Error("failed to load note")
			writeError(w, http.StatusInternalServerError, "failed to load note")
			return
		}
		noteID = &note.ID
		if req.Topic == "" {
			req.Topic = note.Title
		}
		if req.Content == "" {
			req.Content = note.OriginalContent
			if note.ProcessedContent != nil && *note.ProcessedContent != "" {
				req.Content = *note.ProcessedContent
			}
		}
	}

	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" && strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "topic or content is required")
		return
	}
	if req.Topic == "" {
		req.Topic = "your notes"
	}
	if req.Title == "" {
		req.Title = req.Topic + " Quiz"
	}

	quiz := &models.Quiz{
		UserID: userID,
		NoteID: noteID,
		Title:  req.Title,
		Topic:  req.Topic,
		Status: models.QuizStatusGenerating,
	}
	if err := h.store.CreateQuiz(ctx, quiz); err != nil {
		log.WithError(err).Error("failed to create quiz")
		writeError(w, http.StatusInternalServerError, "failed to create quiz")
		return
	}

	result, err := h.runner.Run(ctx, h.chains.Chain(config.OpGenerateQuiz), &providers.InferenceRequest{
		System: tutorSystemPrompt,
		Prompt: generateQuizPrompt(req.Topic, req.Content),
		Config: providers.GenerationConfig{Temperature: temperature(0.7), JSONResponse: true},
	}, providers.CallMeta{UserID: userID, FunctionName: config.OpGenerateQuiz})
	if err != nil {
		h.failQuiz(ctx, quiz.ID)
		writeUpstreamError(w, err, false)
		return
	}

	generated, degraded := normalize.Normalize(result.Text, func() normalize.Quiz {
		return normalize.FallbackQuiz(req.Topic)
	})

	questions := make([]models.Question, len(generated.Questions))
	for i, q := range generated.Questions {
		questions[i] = models.Question{
			Position:      i + 1,
			QuestionText:  q.QuestionText,
			OptionA:       q.OptionA,
			OptionB:       q.OptionB,
			OptionC:       q.OptionC,
			OptionD:       q.OptionD,
			CorrectAnswer: q.CorrectAnswer,
		}
		if q.Explanation != "" {
			explanation := q.Explanation
			questions[i].Explanation = &explanation
		}
	}

	if err := h.store.SaveQuestions(ctx, quiz.ID, questions); err != nil {
		log.WithError(err).WithField("quiz_id", quiz.ID).Error("failed to save quiz questions")
		h.failQuiz(ctx, quiz.ID)
		writeError(w, http.StatusInternalServerError, "failed to save quiz questions")
		return
	}
	quiz.Status = models.QuizStatusReady

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"quiz":      quiz,
		"questions": questions,
		"provider":  result.Provider,
		"degraded":  degraded,
	})
}

func (h *FunctionsHandler) failQuiz(ctx context.Context, id string) {
	if err := h.store.SetQuizStatus(ctx, id, models.QuizStatusFailed); err != nil {
		log.WithError(err).WithField("quiz_id", id).Error("failed to mark quiz failed")
	}
}

type exploreTopicRequest struct {
	Topic string `json:"topic"`
}

// HandleExploreTopic handles POST /explore-topic
func (h *FunctionsHandler) HandleExploreTopic(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx := context.WithoutCancel(r.Context())

	var req exploreTopicRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	key := cache.Key(config.OpExploreTopic, strings.ToLower(req.Topic))
	if entry, hit := h.cacheGet(ctx, key); hit {
		var topic normalize.TopicExploration
		if err := json.Unmarshal(entry.Payload, &topic); err == nil {
			writeTopic(w, topic, entry.Provider, true, false)
			return
		}
	}

	result, err := h.runner.Run(ctx, h.chains.Chain(config.OpExploreTopic), &providers.InferenceRequest{
		System: tutorSystemPrompt,
		Prompt: exploreTopicPrompt(req.Topic),
		Config: providers.GenerationConfig{Temperature: temperature(0.7), JSONResponse: true},
	}, providers.CallMeta{UserID: userID, FunctionName: config.OpExploreTopic})
	if err != nil {
		writeUpstreamError(w, err, false)
		return
	}

	topic, degraded := normalize.Normalize(result.Text, func() normalize.TopicExploration {
		return normalize.FallbackTopic(req.Topic)
	})
	if !degraded {
		if payload, err := json.Marshal(topic); err == nil {
			h.cacheSet(ctx, key, &cache.Entry{Payload: payload, Provider: result.Provider, Model: result.Model})
		}
	}

	writeTopic(w, topic, result.Provider, false, degraded)
}

func writeTopic(w http.ResponseWriter, topic normalize.TopicExploration, provider string, cached, degraded bool) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"overview":      topic.Overview,
		"tips":          topic.Tips,
		"learningSteps": topic.LearningSteps,
		"provider":      provider,
		"cached":        cached,
		"degraded":      degraded,
	})
}

type summarizeNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// HandleSummarizeNote handles POST /summarize-note
func (h *FunctionsHandler) HandleSummarizeNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx := context.WithoutCancel(r.Context())

	var req summarizeNoteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	key := cache.Key(config.OpSummarizeNote, req.Title, req.Content)
	if entry, hit := h.cacheGet(ctx, key); hit {
		var summary string
		if err := json.Unmarshal(entry.Payload, &summary); err == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"success":  true,
				"summary":  summary,
				"provider": entry.Provider,
				"cached":   true,
			})
			return
		}
	}

	result, err := h.runner.Run(ctx, h.chains.Chain(config.OpSummarizeNote), &providers.InferenceRequest{
		System: tutorSystemPrompt,
		Prompt: summarizeNotePrompt(req.Title, req.Content),
		Config: providers.GenerationConfig{Temperature: temperature(0.3)},
	}, providers.CallMeta{UserID: userID, FunctionName: config.OpSummarizeNote})
	if err != nil {
		writeUpstreamError(w, err, false)
		return
	}

	summary := normalize.CleanText(result.Text)
	degraded := summary == ""
	if degraded {
		summary = normalize.FallbackSummary(req.Content)
	} else if payload, err := json.Marshal(summary); err == nil {
		h.cacheSet(ctx, key, &cache.Entry{Payload: payload, Provider: result.Provider, Model: result.Model})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"summary":  summary,
		"provider": result.Provider,
		"cached":   false,
		"degraded": degraded,
	})
}

type transcribeAudioRequest struct {
	Audio    string `json:"audio"`
	MimeType string `json:"mime_type"`
}

// HandleTranscribeAudio handles POST /transcribe-audio
func (h *FunctionsHandler) HandleTranscribeAudio(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx := context.WithoutCancel(r.Context())

	var req transcribeAudioRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Audio) == "" {
		writeError(w, http.StatusBadRequest, "audio is required")
		return
	}
	mime := req.MimeType
	if mime == "" {
		mime = "audio/webm"
	}
	attachment := providers.ParseAttachment(req.Audio, mime)
	if _, err := attachment.Bytes(); err != nil {
		writeError(w, http.StatusBadRequest, "audio must be base64 encoded")
		return
	}

	day := h.now()
	consumed := false
	if h.quota != nil && h.transcribeCap > 0 {
		exceeded, used, err := h.quota.ConsumeDailyQuota(ctx, transcribeQuota, userID, h.transcribeCap, day)
		if err != nil {
			log.WithError(err).Warn("transcription quota check failed, allowing request")
		} else if exceeded {
			writeError(w, http.StatusTooManyRequests, "daily transcription limit reached")
			return
		} else {
			consumed = true
			w.Header().Set("X-Quota-Remaining", strconv.Itoa(h.transcribeCap-used))
		}
	}

	result, err := h.runner.Run(ctx, h.chains.Chain(config.OpTranscribeAudio), &providers.InferenceRequest{
		Prompt:      transcribePrompt,
		Config:      providers.GenerationConfig{Temperature: temperature(0)},
		Attachments: []providers.Attachment{attachment},
	}, providers.CallMeta{UserID: userID, FunctionName: config.OpTranscribeAudio})
	if err != nil {
		// Only delivered transcriptions count against the daily cap.
		if consumed {
			if err := h.quota.RefundDailyQuota(ctx, transcribeQuota, userID, day); err != nil {
				log.WithError(err).WithField("user_id", userID).Warn("failed to refund transcription quota")
			}
			w.Header().Del("X-Quota-Remaining")
		}
		writeUpstreamError(w, err, true)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"text":     normalize.CleanText(result.Text),
		"provider": result.Provider,
	})
}

// HandleUsageStats handles GET /usage-stats
func (h *FunctionsHandler) HandleUsageStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := defaultStatsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxStatsLimit)
	}

	records, err := h.store.RecentUsageRecords(r.Context(), userID, limit)
	if err != nil {
		log.WithError(err).Error("failed to load usage records")
		writeError(w, http.StatusInternalServerError, "failed to load usage records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   ledger.Summarize(records),
		"records": records,
	})
}

func (h *FunctionsHandler) cacheGet(ctx context.Context, key string) (*cache.Entry, bool) {
	entry, hit, err := h.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("cache read failed")
		return nil, false
	}
	return entry, hit
}

func (h *FunctionsHandler) cacheSet(ctx context.Context, key string, entry *cache.Entry) {
	if err := h.cache.Set(ctx, key, entry); err != nil {
		log.WithError(err).Warn("cache write failed")
	}
}

// writeUpstreamError maps an orchestrator failure to a response. Quota
// exhaustion is only surfaced as 429 where the caller should slow down.
func writeUpstreamError(w http.ResponseWriter, err error, surfaceQuota bool) {
	var exhausted *providers.ExhaustedError
	if surfaceQuota && errors.As(err, &exhausted) && exhausted.QuotaLimited() {
		writeError(w, http.StatusTooManyRequests, "AI usage limit reached, please try again later")
		return
	}
	if errors.Is(err, providers.ErrNoProviders) {
		writeError(w, http.StatusInternalServerError, "no AI providers are configured")
		return
	}
	writeError(w, http.StatusInternalServerError, "AI service is temporarily unavailable, please try again")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

func temperature(v float32) *float32 {
	return &v
}
