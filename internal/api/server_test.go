package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examboard/internal/websocket"
	"examboard/pkg/interfaces"
	"examboard/pkg/types"
)

type fakeSessions struct {
	mu      sync.Mutex
	created []*types.ExamSession
}

func (f *fakeSessions) CreateSession(_ context.Context, subject, student string) (*types.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &types.ExamSession{
		ID:       fmt.Sprintf("sess-%d", len(f.created)+1),
		ExamCode: "A1B2C3",
		Subject:  subject,
		Student:  student,
		Status:   types.SessionStatusActive,
	}
	f.created = append(f.created, s)
	return s, nil
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (*types.ExamSession, error) {
	for _, s := range f.created {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, interfaces.ErrSessionNotFound
}

func (f *fakeSessions) TerminateSession(context.Context, string) error { return nil }

func (f *fakeSessions) ListActiveSessions(context.Context) ([]*types.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.ExamSession(nil), f.created...), nil
}

type fakeFiles struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeFiles() *fakeFiles { return &fakeFiles{blobs: make(map[string][]byte)} }

func (f *fakeFiles) key(sub, name string) string { return sub + "/" + name }

func (f *fakeFiles) List(context.Context) (map[string][]types.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]types.FileRecord{
		types.DirUploads: {}, types.DirQuestions: {}, types.DirResults: {},
	}
	for key := range f.blobs {
		parts := strings.SplitN(key, "/", 2)
		out[parts[0]] = append(out[parts[0]], types.FileRecord{
			Filename:     parts[1],
			Subdirectory: parts[0],
			Source:       types.SourceDatabase,
		})
	}
	return out, nil
}

func (f *fakeFiles) Save(_ context.Context, sub, name string, contents []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[f.key(sub, name)] = contents
	return nil
}

func (f *fakeFiles) Read(_ context.Context, sub, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contents, ok := f.blobs[f.key(sub, name)]
	if !ok {
		return nil, interfaces.ErrFileNotFound
	}
	return contents, nil
}

func (f *fakeFiles) Delete(_ context.Context, sub, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.key(sub, name)
	if _, ok := f.blobs[key]; !ok {
		return interfaces.ErrFileNotFound
	}
	delete(f.blobs, key)
	return nil
}

type fakeAdmins struct {
	creds map[string]string
}

func (f *fakeAdmins) CreateAdmin(_ context.Context, username, password string) error {
	if _, ok := f.creds[username]; ok {
		return interfaces.ErrAdminExists
	}
	f.creds[username] = password
	return nil
}

func (f *fakeAdmins) VerifyPassword(_ context.Context, username, password string) error {
	if f.creds[username] != password || password == "" {
		return interfaces.ErrUnauthorized
	}
	return nil
}

type fakeIssuer struct{}

func (fakeIssuer) IssueToken(username string) (string, error) { return "token-for-" + username, nil }

type fakeNotifier struct {
	mu       sync.Mutex
	uploads  []string
	sessions int
}

func (f *fakeNotifier) BroadcastFileUploaded(filename, sub string) {
	f.mu.Lock()
	f.uploads = append(f.uploads, sub+"/"+filename)
	f.mu.Unlock()
}

func (f *fakeNotifier) BroadcastSessionsUpdated() {
	f.mu.Lock()
	f.sessions++
	f.mu.Unlock()
}

type fakeHealth struct{ err error }

func (f *fakeHealth) HealthCheck(context.Context) error { return f.err }

type testEnv struct {
	server   *Server
	files    *fakeFiles
	admins   *fakeAdmins
	notify   *fakeNotifier
	health   *fakeHealth
	sessions *fakeSessions
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		files:    newFakeFiles(),
		admins:   &fakeAdmins{creds: map[string]string{"admin": "hunter2"}},
		notify:   &fakeNotifier{},
		health:   &fakeHealth{},
		sessions: &fakeSessions{},
	}
	env.server = NewServer(
		env.sessions, env.files, env.admins, fakeIssuer{}, env.notify,
		env.health, websocket.NewRegistry(), nil, zerolog.Nop(),
	)
	return env
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestPortalAdminIssuesToken(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, http.MethodPost, "/portal_admin",
		credentialsRequest{Username: "admin", Password: "hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "token-for-admin", resp.Token)
}

func TestPortalAdminRejectsBadCredentials(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, http.MethodPost, "/portal_admin",
		credentialsRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, env.server, http.MethodPost, "/portal_admin", credentialsRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, env.server, http.MethodGet, "/portal_admin", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCheckPassword(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, http.MethodPost, "/check_password",
		credentialsRequest{Username: "admin", Password: "hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp["valid"])

	rec = doJSON(t, env.server, http.MethodPost, "/check_password",
		credentialsRequest{Username: "admin", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewAdmin(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, http.MethodPost, "/new_admin",
		credentialsRequest{Username: "second", Password: "pw"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, env.server, http.MethodPost, "/new_admin",
		credentialsRequest{Username: "second", Password: "pw"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateAndListSessions(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, http.MethodPost, "/create_session",
		createSessionRequest{Subject: "Calculus", Student: "jordan"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, env.notify.sessions)

	rec = doJSON(t, env.server, http.MethodGet, "/get_active_sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sessions []*types.ExamSession `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "Calculus", resp.Sessions[0].Subject)
}

func TestCreateSessionRequiresSubject(t *testing.T) {
	env := newTestServer(t)
	rec := doJSON(t, env.server, http.MethodPost, "/create_session", createSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadAndBroadcast(t *testing.T) {
	env := newTestServer(t)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("subdirectory", types.DirQuestions))
	part, err := form.CreateFormFile("file", "quiz.pdf")
	require.NoError(t, err)
	part.Write([]byte("questions"))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []byte("questions"), env.files.blobs["questions/quiz.pdf"])
	assert.Equal(t, []string{"questions/quiz.pdf"}, env.notify.uploads)
}

func TestUploadRejectsUnknownSubdirectory(t *testing.T) {
	env := newTestServer(t)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	form.WriteField("subdirectory", "secrets")
	part, _ := form.CreateFormFile("file", "x.pdf")
	part.Write([]byte("x"))
	form.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.notify.uploads)
}

func TestFilesListing(t *testing.T) {
	env := newTestServer(t)
	env.files.Save(context.Background(), types.DirUploads, "final.pdf", []byte("x"))

	rec := doJSON(t, env.server, http.MethodGet, "/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var inventory map[string][]types.FileRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inventory))
	require.Len(t, inventory[types.DirUploads], 1)
	assert.Equal(t, "final.pdf", inventory[types.DirUploads][0].Filename)
}

func TestReadAndViewResult(t *testing.T) {
	env := newTestServer(t)
	env.files.Save(context.Background(), types.DirResults, "graded.pdf", []byte("marks"))

	req := httptest.NewRequest(http.MethodGet, "/read?subdirectory=results&filename=graded.pdf", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "marks", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/view_result?filename=graded.pdf", nil)
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "marks", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/view_result?filename=missing.pdf", nil)
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteFile(t *testing.T) {
	env := newTestServer(t)
	env.files.Save(context.Background(), types.DirUploads, "old.pdf", []byte("x"))

	rec := doJSON(t, env.server, http.MethodPost, "/delete",
		deleteRequest{Subdirectory: types.DirUploads, Filename: "old.pdf"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env.server, http.MethodPost, "/delete",
		deleteRequest{Subdirectory: types.DirUploads, Filename: "old.pdf"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The DELETE verb is accepted too.
	env.files.Save(context.Background(), types.DirUploads, "old.pdf", []byte("x"))
	rec = doJSON(t, env.server, http.MethodDelete, "/delete",
		deleteRequest{Subdirectory: types.DirUploads, Filename: "old.pdf"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)

	env.health.err = fmt.Errorf("disk gone")
	rec = doJSON(t, env.server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/files", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
