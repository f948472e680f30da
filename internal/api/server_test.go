package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tobiasmeyr/memovox/internal/auth"
	authmock "github.com/tobiasmeyr/memovox/internal/auth/mock"
	"github.com/tobiasmeyr/memovox/internal/health"
	"github.com/tobiasmeyr/memovox/internal/job"
	jobmock "github.com/tobiasmeyr/memovox/internal/job/mock"
	"github.com/tobiasmeyr/memovox/internal/search"
	searchmock "github.com/tobiasmeyr/memovox/internal/search/mock"
	"github.com/tobiasmeyr/memovox/internal/session"
	sessionmock "github.com/tobiasmeyr/memovox/internal/session/mock"
	storagemock "github.com/tobiasmeyr/memovox/internal/storage/mock"
	embmock "github.com/tobiasmeyr/memovox/pkg/provider/embeddings/mock"
)

// submitRecorder is a Submitter that records enqueued job ids.
type submitRecorder struct {
	mu  sync.Mutex
	IDs []string
	Err error
}

func (s *submitRecorder) Submit(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.IDs = append(s.IDs, jobID)
	return nil
}

func (s *submitRecorder) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.IDs)
}

// testServer bundles the API with its mocks and a registered identity.
type testServer struct {
	handler  http.Handler
	jobs     *jobmock.Store
	sessions *sessionmock.Store
	blobs    *storagemock.Blobs
	pipeline *submitRecorder
	idx      *searchmock.Index

	token  string
	userID string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	authSvc, err := auth.NewService([]byte("test-secret"), time.Hour, authmock.NewDeviceStore())
	if err != nil {
		t.Fatal(err)
	}
	reg, err := authSvc.RegisterAnonymous(context.Background(), "test-device")
	if err != nil {
		t.Fatal(err)
	}

	ts := &testServer{
		jobs:     jobmock.NewStore(),
		sessions: sessionmock.NewStore(),
		blobs:    storagemock.NewBlobs(),
		pipeline: &submitRecorder{},
		idx:      searchmock.NewIndex(),
		token:    reg.Token,
		userID:   reg.UserID,
	}

	srv, err := NewServer(Config{
		Auth:     authSvc,
		Jobs:     ts.jobs,
		Sessions: ts.sessions,
		Blobs:    ts.blobs,
		Pipeline: ts.pipeline,
		Search:   search.NewService(&embmock.Provider{}, ts.idx),
		Health:   health.New("test"),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts.handler = srv.Handler()
	return ts
}

// do sends an authenticated JSON request and returns the recorder.
func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
	return v
}

// seedSession creates a session owned by the test user.
func (ts *testServer) seedSession(t *testing.T) *session.Session {
	t.Helper()
	sess := &session.Session{ID: session.NewID(), UserID: ts.userID}
	if err := ts.sessions.Create(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	return sess
}

// ── auth ────────────────────────────────────────────────────────────────────

func TestAnonymous_IssuesIdentity(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	req := httptest.NewRequest("POST", "/auth/anonymous",
		bytes.NewBufferString(`{"deviceModel":"pixel-9"}`))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	resp := decode[anonymousResponse](t, rec)
	if resp.Token == "" || resp.UserID == "" || resp.DeviceID == "" {
		t.Errorf("incomplete response: %+v", resp)
	}
	if resp.ExpiresInSec <= 0 {
		t.Errorf("expiresInSec = %d, want positive", resp.ExpiresInSec)
	}
}

func TestV1Routes_RequireBearer(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	paths := []struct{ method, path string }{
		{"POST", "/v1/upload-init"},
		{"POST", "/v1/transcripts"},
		{"GET", "/v1/transcripts/some-id"},
		{"GET", "/v1/sessions"},
		{"GET", "/v1/sessions/some-id"},
		{"GET", "/v1/search?q=x"},
	}
	for _, tc := range paths {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Version != "test" {
		t.Errorf("body = %+v", body)
	}
}

// ── upload-init ─────────────────────────────────────────────────────────────

func TestUploadInit_CreatesSessionLazily(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/v1/upload-init",
		map[string]any{"fileExt": "wav", "contentType": "audio/wav"}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	resp := decode[uploadInitResponse](t, rec)
	if resp.SessionID == "" {
		t.Error("no session created")
	}
	if resp.UploadURL == "" || resp.AudioURL == "" {
		t.Errorf("incomplete upload target: %+v", resp)
	}
	if _, err := ts.sessions.Get(context.Background(), resp.SessionID); err != nil {
		t.Errorf("session not persisted: %v", err)
	}
}

func TestUploadInit_ReusesExistingSession(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	sess := ts.seedSession(t)

	rec := ts.do(t, "POST", "/v1/upload-init",
		map[string]any{"fileExt": ".mp3", "contentType": "audio/mpeg", "sessionId": sess.ID}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[uploadInitResponse](t, rec)
	if resp.SessionID != sess.ID {
		t.Errorf("sessionId = %q, want %q", resp.SessionID, sess.ID)
	}
}

func TestUploadInit_RejectsBadExtension(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/v1/upload-init",
		map[string]any{"fileExt": "exe", "contentType": "application/octet-stream"}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadInit_ForeignSessionReadsAsNotFound(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	foreign := &session.Session{ID: session.NewID(), UserID: "someone-else"}
	if err := ts.sessions.Create(context.Background(), foreign); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, "POST", "/v1/upload-init",
		map[string]any{"fileExt": "wav", "contentType": "audio/wav", "sessionId": foreign.ID}, nil)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// ── transcript submission ───────────────────────────────────────────────────

func submitHeaders(key string) map[string]string {
	return map[string]string{"Idempotency-Key": key}
}

func TestSubmit_CreatesPendingJobAndEnqueues(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/v1/transcripts",
		map[string]any{"audioUrl": "mock://memo.wav", "wantSummary": true, "language": "en"},
		submitHeaders("key-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	resp := decode[submitResponse](t, rec)
	if !resp.OK || resp.Status != "PENDING" {
		t.Errorf("response = %+v", resp)
	}
	if resp.TranscriptID == "" || resp.SessionID == "" {
		t.Errorf("missing identifiers: %+v", resp)
	}

	j, err := ts.jobs.Get(context.Background(), resp.TranscriptID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if j.Status != job.StatusPending || !j.WantSummary || j.Input.AudioURL != "mock://memo.wav" {
		t.Errorf("job = %+v", j)
	}
	if ts.pipeline.Count() != 1 || ts.pipeline.IDs[0] != resp.TranscriptID {
		t.Errorf("pipeline submissions = %v", ts.pipeline.IDs)
	}
}

func TestSubmit_MissingIdempotencyKey(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(t, "POST", "/v1/transcripts",
		map[string]any{"text": "hello"}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if ts.pipeline.Count() != 0 {
		t.Error("job enqueued despite validation failure")
	}
}

func TestSubmit_InputExclusivity(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"neither", map[string]any{"wantSummary": true}},
		{"both", map[string]any{"audioUrl": "mock://a.wav", "text": "hello"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, "POST", "/v1/transcripts", tc.body, submitHeaders("key-"+tc.name))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
	if ts.pipeline.Count() != 0 {
		t.Error("jobs were created for invalid bodies")
	}
}

func TestSubmit_IdempotentReplay(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	first := decode[submitResponse](t, ts.do(t, "POST", "/v1/transcripts",
		map[string]any{"text": "hello world"}, submitHeaders("key-replay")))

	// Same key, different body: the original job is returned verbatim.
	rec := ts.do(t, "POST", "/v1/transcripts",
		map[string]any{"audioUrl": "mock://other.wav"}, submitHeaders("key-replay"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	second := decode[submitResponse](t, rec)

	if second.TranscriptID != first.TranscriptID || second.SessionID != first.SessionID {
		t.Errorf("replay = %+v, want %+v", second, first)
	}
	if ts.pipeline.Count() != 1 {
		t.Errorf("pipeline submissions = %d, want 1 (replay must not re-enqueue)", ts.pipeline.Count())
	}
}

func TestSubmit_ReplayAfterCompletionReturnsCurrentStatus(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	first := decode[submitResponse](t, ts.do(t, "POST", "/v1/transcripts",
		map[string]any{"text": "finish me"}, submitHeaders("key-done")))

	if err := ts.jobs.Transition(context.Background(), first.TranscriptID,
		job.StatusPending, job.StatusComplete, job.Mutation{}); err != nil {
		t.Fatal(err)
	}

	second := decode[submitResponse](t, ts.do(t, "POST", "/v1/transcripts",
		map[string]any{"text": "finish me"}, submitHeaders("key-done")))

	if second.Status != "COMPLETE" {
		t.Errorf("status = %q, want COMPLETE", second.Status)
	}
	if ts.pipeline.Count() != 1 {
		t.Error("completed job was re-enqueued")
	}
}

func TestSubmit_EnqueueFailureStillReturns200(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.pipeline.Err = context.Canceled

	rec := ts.do(t, "POST", "/v1/transcripts",
		map[string]any{"text": "durable"}, submitHeaders("key-queue-full"))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (job is durable, recovery picks it up)", rec.Code)
	}
}

// ── transcript polling ──────────────────────────────────────────────────────

func TestGetTranscript_StatusShapes(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := decode[submitResponse](t, ts.do(t, "POST", "/v1/transcripts",
		map[string]any{"audioUrl": "mock://shape.wav", "wantSummary": true},
		submitHeaders("key-shape")))

	// PENDING: identifiers only.
	rec := ts.do(t, "GET", "/v1/transcripts/"+created.TranscriptID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	pending := decode[map[string]any](t, rec)
	if pending["status"] != "PENDING" {
		t.Errorf("status = %v", pending["status"])
	}
	for _, field := range []string{"transcriptText", "summary", "error"} {
		if _, present := pending[field]; present {
			t.Errorf("PENDING projection leaks %q", field)
		}
	}

	// COMPLETE: transcript and summary included.
	text, lang, conf := "full text", "en", 0.9
	mut := job.Mutation{
		TranscriptText: &text, Language: &lang, Confidence: &conf,
		Summary: &job.Summary{Model: "x", Text: "bar"},
	}
	ctx := context.Background()
	if err := ts.jobs.Transition(ctx, created.TranscriptID, job.StatusPending, job.StatusTranscribing, job.Mutation{}); err != nil {
		t.Fatal(err)
	}
	if err := ts.jobs.Transition(ctx, created.TranscriptID, job.StatusTranscribing, job.StatusSummarizing, job.Mutation{}); err != nil {
		t.Fatal(err)
	}
	if err := ts.jobs.Transition(ctx, created.TranscriptID, job.StatusSummarizing, job.StatusComplete, mut); err != nil {
		t.Fatal(err)
	}

	complete := decode[transcriptProjection](t, ts.do(t, "GET", "/v1/transcripts/"+created.TranscriptID, nil, nil))
	if complete.Status != "COMPLETE" || complete.TranscriptText != "full text" {
		t.Errorf("projection = %+v", complete)
	}
	if complete.Summary == nil || complete.Summary.Text != "bar" {
		t.Errorf("summary = %+v", complete.Summary)
	}
}

func TestGetTranscript_FailedIncludesError(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	created := decode[submitResponse](t, ts.do(t, "POST", "/v1/transcripts",
		map[string]any{"audioUrl": "mock://fail.wav"}, submitHeaders("key-fail")))

	msg := "transcription failed: timeout"
	ctx := context.Background()
	if err := ts.jobs.Transition(ctx, created.TranscriptID, job.StatusPending, job.StatusTranscribing, job.Mutation{}); err != nil {
		t.Fatal(err)
	}
	if err := ts.jobs.Transition(ctx, created.TranscriptID, job.StatusTranscribing, job.StatusFailed, job.Mutation{Error: &msg}); err != nil {
		t.Fatal(err)
	}

	failed := decode[transcriptProjection](t, ts.do(t, "GET", "/v1/transcripts/"+created.TranscriptID, nil, nil))
	if failed.Status != "FAILED" || failed.Error != msg {
		t.Errorf("projection = %+v", failed)
	}
	if failed.TranscriptText != "" {
		t.Error("FAILED projection leaks transcript text")
	}
}

func TestGetTranscript_UnknownAndForeign(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	// Unknown id.
	if rec := ts.do(t, "GET", "/v1/transcripts/nope", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}

	// Foreign job.
	foreign := &job.Job{
		ID: job.NewID(), SessionID: "s", UserID: "someone-else",
		IdempotencyKey: "foreign-key", Input: job.Input{Text: "x"},
		Status: job.StatusPending,
	}
	if err := ts.jobs.Create(context.Background(), foreign); err != nil {
		t.Fatal(err)
	}
	if rec := ts.do(t, "GET", "/v1/transcripts/"+foreign.ID, nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("foreign job status = %d, want 404", rec.Code)
	}
}

// ── sessions ────────────────────────────────────────────────────────────────

func TestListSessions_NewestFirst(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	for range 3 {
		ts.seedSession(t)
	}

	rec := ts.do(t, "GET", "/v1/sessions", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[listSessionsResponse](t, rec)
	if len(resp.Sessions) != 3 {
		t.Fatalf("sessions = %d, want 3", len(resp.Sessions))
	}
	for i := 1; i < len(resp.Sessions); i++ {
		if resp.Sessions[i].CreatedAt.After(resp.Sessions[i-1].CreatedAt) {
			t.Error("sessions not ordered newest first")
		}
	}
}

func TestListSessions_Pagination(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	for range 5 {
		ts.seedSession(t)
	}

	first := decode[listSessionsResponse](t, ts.do(t, "GET", "/v1/sessions?limit=2", nil, nil))
	if len(first.Sessions) != 2 || first.NextCursor == "" {
		t.Fatalf("first page = %d sessions, cursor %q", len(first.Sessions), first.NextCursor)
	}

	second := decode[listSessionsResponse](t, ts.do(t, "GET",
		"/v1/sessions?limit=2&cursor="+first.NextCursor, nil, nil))
	if len(second.Sessions) != 2 {
		t.Fatalf("second page = %d sessions", len(second.Sessions))
	}
	if second.Sessions[0].ID == first.Sessions[0].ID {
		t.Error("pages overlap")
	}
}

func TestListSessions_InvalidCursorIsBadRequest(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.seedSession(t)

	rec := ts.do(t, "GET", "/v1/sessions?cursor=!!", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetSession_InvalidCursorIsBadRequest(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	sess := ts.seedSession(t)

	rec := ts.do(t, "GET", "/v1/sessions/"+sess.ID+"?cursor=!!", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetSession_IncludesTranscripts(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	sess := ts.seedSession(t)

	ts.do(t, "POST", "/v1/transcripts",
		map[string]any{"sessionId": sess.ID, "text": "memo one"}, submitHeaders("key-s1"))
	ts.do(t, "POST", "/v1/transcripts",
		map[string]any{"sessionId": sess.ID, "text": "memo two"}, submitHeaders("key-s2"))

	rec := ts.do(t, "GET", "/v1/sessions/"+sess.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[getSessionResponse](t, rec)
	if resp.Session.ID != sess.ID {
		t.Errorf("session id = %q", resp.Session.ID)
	}
	if len(resp.Transcripts) != 2 {
		t.Errorf("transcripts = %d, want 2", len(resp.Transcripts))
	}
}

func TestGetSession_UnknownAndForeign(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	if rec := ts.do(t, "GET", "/v1/sessions/nope", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}

	foreign := &session.Session{ID: session.NewID(), UserID: "someone-else"}
	if err := ts.sessions.Create(context.Background(), foreign); err != nil {
		t.Fatal(err)
	}
	if rec := ts.do(t, "GET", "/v1/sessions/"+foreign.ID, nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("foreign session status = %d, want 404", rec.Code)
	}
}

// ── search ──────────────────────────────────────────────────────────────────

func TestSearch_RequiresQuery(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	if rec := ts.do(t, "GET", "/v1/search", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSearch_ReturnsOwnedResults(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	svc := search.NewService(&embmock.Provider{}, ts.idx)
	ctx := context.Background()
	if err := svc.IndexTranscript(ctx, "job-1", "s1", ts.userID, "grocery run", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := svc.IndexTranscript(ctx, "job-2", "s2", "someone-else", "grocery run", time.Now()); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, "GET", "/v1/search?q=groceries", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Results []search.Result `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].JobID != "job-1" {
		t.Errorf("results = %+v, want only the caller's memo", resp.Results)
	}
}
