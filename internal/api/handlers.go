package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tobiasmeyr/memovox/internal/auth"
	"github.com/tobiasmeyr/memovox/internal/cursor"
	"github.com/tobiasmeyr/memovox/internal/job"
	"github.com/tobiasmeyr/memovox/internal/observe"
	"github.com/tobiasmeyr/memovox/internal/session"
)

// allowedExtensions are the audio file extensions accepted by upload-init.
var allowedExtensions = map[string]bool{
	"wav": true, "mp3": true, "ogg": true,
	"flac": true, "m4a": true, "webm": true,
}

// decodeBody decodes a JSON request body into v with the configured size cap.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// identity returns the authenticated caller. The auth middleware guarantees
// presence on /v1 routes; a missing identity is a programming error surfaced
// as 401.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing identity")
	}
	return id, ok
}

// ── POST /auth/anonymous ────────────────────────────────────────────────────

type anonymousRequest struct {
	DeviceModel string `json:"deviceModel"`
}

type anonymousResponse struct {
	Token        string `json:"token"`
	UserID       string `json:"userId"`
	DeviceID     string `json:"deviceId"`
	ExpiresInSec int64  `json:"expiresInSec"`
}

func (s *Server) handleAnonymous(w http.ResponseWriter, r *http.Request) {
	var req anonymousRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	reg, err := s.auth.RegisterAnonymous(r.Context(), req.DeviceModel)
	if err != nil {
		observe.Logger(r.Context()).Error("anonymous registration", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, anonymousResponse{
		Token:        reg.Token,
		UserID:       reg.UserID,
		DeviceID:     reg.DeviceID,
		ExpiresInSec: int64(time.Until(reg.ExpiresAt).Seconds()),
	})
}

// ── POST /v1/upload-init ────────────────────────────────────────────────────

type uploadInitRequest struct {
	FileExt     string `json:"fileExt"`
	ContentType string `json:"contentType"`
	SessionID   string `json:"sessionId"`
}

type uploadInitResponse struct {
	SessionID string `json:"sessionId"`
	UploadURL string `json:"uploadUrl"`
	AudioURL  string `json:"audioUrl"`
}

func (s *Server) handleUploadInit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}
	var req uploadInitRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	ext := strings.ToLower(strings.TrimPrefix(req.FileExt, "."))
	if !allowedExtensions[ext] {
		badRequest(w, "unsupported audio extension")
		return
	}

	sess, ok := s.resolveSession(w, r, id, req.SessionID)
	if !ok {
		return
	}

	key := id.UserID + "/" + sess.ID + "/" + uuid.NewString() + "." + ext
	target, err := s.blobs.PresignUpload(r.Context(), key, req.ContentType)
	if err != nil {
		observe.Logger(r.Context()).Error("presign upload", "error", err)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, uploadInitResponse{
		SessionID: sess.ID,
		UploadURL: target.UploadURL,
		AudioURL:  target.AudioURL,
	})
}

// ── POST /v1/transcripts ────────────────────────────────────────────────────

type submitRequest struct {
	SessionID   string  `json:"sessionId"`
	AudioURL    string  `json:"audioUrl"`
	Text        string  `json:"text"`
	Language    string  `json:"language"`
	Confidence  float64 `json:"confidence"`
	WantSummary bool    `json:"wantSummary"`
}

type submitResponse struct {
	OK           bool   `json:"ok"`
	SessionID    string `json:"sessionId"`
	TranscriptID string `json:"transcriptId"`
	Status       string `json:"status"`
}

func (s *Server) handleSubmitTranscript(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		badRequest(w, "Idempotency-Key header is required")
		return
	}

	var req submitRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	input := job.Input{AudioURL: req.AudioURL, Text: req.Text}
	if !input.Valid() {
		badRequest(w, "exactly one of audioUrl or text is required")
		return
	}

	// Fast path: this key was already used. Return the existing job verbatim
	// without touching the pipeline.
	if existing, err := s.jobs.GetByIdempotencyKey(r.Context(), key); err == nil {
		writeJSON(w, http.StatusOK, submitResponse{
			OK:           true,
			SessionID:    existing.SessionID,
			TranscriptID: existing.ID,
			Status:       string(existing.Status),
		})
		return
	} else if !errors.Is(err, job.ErrNotFound) {
		observe.Logger(r.Context()).Error("idempotency lookup", "error", err)
		internalError(w)
		return
	}

	sess, ok := s.resolveSession(w, r, id, req.SessionID)
	if !ok {
		return
	}

	j := &job.Job{
		ID:             job.NewID(),
		SessionID:      sess.ID,
		UserID:         id.UserID,
		IdempotencyKey: key,
		Input:          input,
		WantSummary:    req.WantSummary,
		Status:         job.StatusPending,
		Language:       req.Language,
		Confidence:     req.Confidence,
	}
	if err := s.jobs.Create(r.Context(), j); err != nil {
		if errors.Is(err, job.ErrDuplicateKey) {
			// Lost the insert race; the winner's row is authoritative.
			winner, gerr := s.jobs.GetByIdempotencyKey(r.Context(), key)
			if gerr != nil {
				observe.Logger(r.Context()).Error("re-read after duplicate key", "error", gerr)
				internalError(w)
				return
			}
			writeJSON(w, http.StatusOK, submitResponse{
				OK:           true,
				SessionID:    winner.SessionID,
				TranscriptID: winner.ID,
				Status:       string(winner.Status),
			})
			return
		}
		observe.Logger(r.Context()).Error("create job", "error", err)
		internalError(w)
		return
	}

	inputKind := "text"
	if input.HasAudio() {
		inputKind = "audio"
	}
	s.metrics.JobsSubmitted.Add(r.Context(), 1,
		metric.WithAttributes(attribute.String("input", inputKind)))

	_ = s.sessions.Touch(r.Context(), sess.ID)

	// Fire-and-forget: the client polls for progress. A full queue is not a
	// submission failure — the job is durable and the recovery sweep will
	// pick it up.
	if err := s.pipeline.Submit(r.Context(), j.ID); err != nil {
		observe.Logger(r.Context()).Warn("enqueue job", "job_id", j.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, submitResponse{
		OK:           true,
		SessionID:    j.SessionID,
		TranscriptID: j.ID,
		Status:       string(j.Status),
	})
}

// ── GET /v1/transcripts/{id} ────────────────────────────────────────────────

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	j, err := s.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			notFound(w, "transcript not found")
			return
		}
		observe.Logger(r.Context()).Error("get job", "error", err)
		internalError(w)
		return
	}
	// Foreign jobs are indistinguishable from missing ones.
	if j.UserID != id.UserID {
		notFound(w, "transcript not found")
		return
	}

	writeJSON(w, http.StatusOK, transcriptView(j))
}

// transcriptSummary mirrors job.Summary with wire-format field names.
type transcriptSummary struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

// transcriptProjection is the status-shaped job view. Stage-specific fields
// appear only in the statuses that produced them.
type transcriptProjection struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`

	TranscriptText string             `json:"transcriptText,omitempty"`
	Language       string             `json:"language,omitempty"`
	Confidence     float64            `json:"confidence,omitempty"`
	Summary        *transcriptSummary `json:"summary,omitempty"`
	Error          string             `json:"error,omitempty"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// transcriptView shapes the job projection by status: COMPLETE exposes the
// transcript and summary, FAILED exposes the error, and in-flight statuses
// expose identifiers only.
func transcriptView(j *job.Job) transcriptProjection {
	p := transcriptProjection{
		ID:        j.ID,
		SessionID: j.SessionID,
		Status:    string(j.Status),
	}
	switch j.Status {
	case job.StatusComplete:
		p.TranscriptText = j.TranscriptText
		p.Language = j.Language
		p.Confidence = j.Confidence
		if j.Summary != nil {
			p.Summary = &transcriptSummary{Model: j.Summary.Model, Text: j.Summary.Text}
		}
		created, updated := j.CreatedAt, j.UpdatedAt
		p.CreatedAt, p.UpdatedAt = &created, &updated
	case job.StatusFailed:
		p.Error = j.Error
	}
	return p
}

// ── GET /v1/sessions ────────────────────────────────────────────────────────

type sessionView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type listSessionsResponse struct {
	Sessions   []sessionView `json:"sessions"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	page, err := s.sessions.ListByUser(r.Context(), id.UserID,
		r.URL.Query().Get("cursor"), s.pageSize(r))
	if err != nil {
		if errors.Is(err, cursor.ErrInvalid) {
			badRequest(w, "invalid cursor")
			return
		}
		observe.Logger(r.Context()).Error("list sessions", "error", err)
		internalError(w)
		return
	}

	resp := listSessionsResponse{
		Sessions:   make([]sessionView, 0, len(page.Sessions)),
		NextCursor: page.NextCursor,
	}
	for _, sess := range page.Sessions {
		resp.Sessions = append(resp.Sessions, sessionView{
			ID:        sess.ID,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── GET /v1/sessions/{id} ───────────────────────────────────────────────────

type getSessionResponse struct {
	Session     sessionView            `json:"session"`
	Transcripts []transcriptProjection `json:"transcripts"`
	NextCursor  string                 `json:"nextCursor,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			notFound(w, "session not found")
			return
		}
		observe.Logger(r.Context()).Error("get session", "error", err)
		internalError(w)
		return
	}
	if sess.UserID != id.UserID {
		notFound(w, "session not found")
		return
	}

	page, err := s.jobs.ListBySession(r.Context(), sess.ID,
		r.URL.Query().Get("cursor"), s.pageSize(r))
	if err != nil {
		if errors.Is(err, cursor.ErrInvalid) {
			badRequest(w, "invalid cursor")
			return
		}
		observe.Logger(r.Context()).Error("list session jobs", "error", err)
		internalError(w)
		return
	}

	resp := getSessionResponse{
		Session: sessionView{
			ID:        sess.ID,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		},
		Transcripts: make([]transcriptProjection, 0, len(page.Jobs)),
		NextCursor:  page.NextCursor,
	}
	for _, j := range page.Jobs {
		resp.Transcripts = append(resp.Transcripts, transcriptView(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── GET /v1/search ──────────────────────────────────────────────────────────

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		badRequest(w, "query parameter q is required")
		return
	}

	results, err := s.search.Query(r.Context(), id.UserID, q, s.pageSize(r))
	if err != nil {
		observe.Logger(r.Context()).Error("semantic search", "error", err)
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// ── PUT /v1/uploads/{key...} ────────────────────────────────────────────────

// handleUpload stores an object directly. Registered only for blob backends
// without real pre-signing (the filesystem backend), whose upload URLs point
// back at this route.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identity(w, r); !ok {
		return
	}

	putter, ok := s.blobs.(BlobPutter)
	if !ok {
		notFound(w, "direct upload not supported")
		return
	}
	if err := putter.Put(r.Context(), r.PathValue("key"), r.Body); err != nil {
		observe.Logger(r.Context()).Error("store upload", "error", err)
		badRequest(w, "could not store upload")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ── helpers ─────────────────────────────────────────────────────────────────

// resolveSession returns the caller's session: the named one when sessionID
// is set (foreign and unknown ids both read as not found), or a freshly
// created one otherwise.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request, id auth.Identity, sessionID string) (*session.Session, bool) {
	if sessionID != "" {
		sess, err := s.sessions.Get(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				notFound(w, "session not found")
				return nil, false
			}
			observe.Logger(r.Context()).Error("get session", "error", err)
			internalError(w)
			return nil, false
		}
		if sess.UserID != id.UserID {
			notFound(w, "session not found")
			return nil, false
		}
		return sess, true
	}

	now := time.Now().UTC()
	sess := &session.Session{
		ID:        session.NewID(),
		UserID:    id.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Create(r.Context(), sess); err != nil {
		observe.Logger(r.Context()).Error("create session", "error", err)
		internalError(w)
		return nil, false
	}
	return sess, true
}

// pageSize reads the limit query parameter, clamped to [1, 100].
func (s *Server) pageSize(r *http.Request) int {
	limit := s.pageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	return limit
}
