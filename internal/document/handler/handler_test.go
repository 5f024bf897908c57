package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/collabdocs/collabdocs/backend/go-services/internal/document/repository"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/document/service"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/models"
	"github.com/collabdocs/collabdocs/backend/go-services/internal/users"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/apperr"
	"github.com/collabdocs/collabdocs/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// subjectToken treats the raw bearer value as the subject.
type subjectToken string

func (t subjectToken) Claims(v interface{}) error {
	b, _ := json.Marshal(map[string]interface{}{"sub": string(t)})
	return json.Unmarshal(b, v)
}

type subjectVerifier struct{}

func (subjectVerifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	if raw == "bad" {
		return nil, errors.New("bad token")
	}
	return subjectToken(raw), nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Total   int64           `json:"total"`
	Changes []string        `json:"changes"`
}

type apiDoc struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	CurrentVersion int    `json:"currentVersion"`
	Collaborators  []struct {
		User       string `json:"user"`
		Permission string `json:"permission"`
	} `json:"collaborators"`
}

type testAPI struct {
	g     *gin.Engine
	users *users.MemoryUserRepository
}

func newAPI(t *testing.T) *testAPI {
	return newAPIWith(t, service.Options{})
}

func newAPIWith(t *testing.T, opts service.Options) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ur := users.NewMemoryUserRepository()
	opts.Users = ur
	svc := service.New(repository.NewMemoryRepo(), opts)
	g := gin.New()
	ver := subjectVerifier{}
	RegisterDocumentRoutes(g, svc, middleware.AuthMiddleware(ver), middleware.OptionalAuth(ver))
	return &testAPI{g: g, users: ur}
}

func (a *testAPI) do(t *testing.T, method, path, user, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	w := httptest.NewRecorder()
	a.g.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decodeDoc(t *testing.T, env envelope) apiDoc {
	t.Helper()
	var d apiDoc
	require.NoError(t, json.Unmarshal(env.Data, &d))
	return d
}

func (a *testAPI) createDoc(t *testing.T, user, body string) apiDoc {
	t.Helper()
	code, env := a.do(t, http.MethodPost, "/api/documents", user, body)
	require.Equal(t, http.StatusCreated, code)
	require.True(t, env.Success)
	return decodeDoc(t, env)
}

func TestDocumentHandler_CRUD(t *testing.T) {
	a := newAPI(t)
	d := a.createDoc(t, "alice", `{"title":"Notes","content":"hi"}`)
	require.NotEmpty(t, d.ID)
	assert.Equal(t, 1, d.CurrentVersion)

	code, env := a.do(t, http.MethodGet, "/api/documents/"+d.ID, "alice", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "hi", decodeDoc(t, env).Content)

	code, env = a.do(t, http.MethodGet, "/api/documents?page=1&limit=5", "alice", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, env.Total)

	code, env = a.do(t, http.MethodPut, "/api/documents/"+d.ID, "alice", `{"content":"hello","title":"Notes 2"}`)
	require.Equal(t, http.StatusOK, code)
	assert.ElementsMatch(t, []string{"Title updated", "Content updated"}, env.Changes)
	assert.Equal(t, 2, decodeDoc(t, env).CurrentVersion)

	code, _ = a.do(t, http.MethodDelete, "/api/documents/"+d.ID, "alice", "")
	require.Equal(t, http.StatusOK, code)

	code, env = a.do(t, http.MethodGet, "/api/documents/"+d.ID, "alice", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}

func TestDocumentHandler_Validation(t *testing.T) {
	a := newAPI(t)
	code, env := a.do(t, http.MethodPost, "/api/documents", "alice", `{"content":"no title"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)

	code, _ = a.do(t, http.MethodPost, "/api/documents", "", `{"title":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(t, http.MethodPost, "/api/documents", "bad", `{"title":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	d := a.createDoc(t, "alice", `{"title":"t","content":"c"}`)
	code, env = a.do(t, http.MethodPut, "/api/documents/"+d.ID, "alice", `{"content":"c"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "no changes detected", env.Message)

	code, _ = a.do(t, http.MethodPost, "/api/documents/"+d.ID+"/share", "alice", `{"email":"nope","permission":"view"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(t, http.MethodPost, "/api/documents/"+d.ID+"/share", "alice", `{"email":"a@b.c","permission":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(t, http.MethodGet, "/api/documents/search?q=", "alice", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDocumentHandler_PublicReadIsAnonymous(t *testing.T) {
	a := newAPI(t)
	pub := a.createDoc(t, "alice", `{"title":"pub","isPublic":true}`)
	priv := a.createDoc(t, "alice", `{"title":"priv"}`)

	code, _ := a.do(t, http.MethodGet, "/api/documents/"+pub.ID, "", "")
	assert.Equal(t, http.StatusOK, code)
	code, env := a.do(t, http.MethodGet, "/api/documents/"+priv.ID, "", "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "access denied", env.Message)
}

func TestDocumentHandler_ShareFlow(t *testing.T) {
	a := newAPI(t)
	bob, err := a.users.Create(context.Background(), &models.User{Name: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)
	d := a.createDoc(t, "alice", `{"title":"t","content":"c"}`)

	code, _ := a.do(t, http.MethodPut, "/api/documents/"+d.ID, bob.ID, `{"content":"x"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := a.do(t, http.MethodPost, "/api/documents/"+d.ID+"/share", "alice", `{"email":"bob@example.com","permission":"edit"}`)
	require.Equal(t, http.StatusOK, code)
	shared := decodeDoc(t, env)
	require.Len(t, shared.Collaborators, 1)
	assert.Equal(t, bob.ID, shared.Collaborators[0].User)

	code, _ = a.do(t, http.MethodPost, "/api/documents/"+d.ID+"/share", bob.ID, `{"email":"bob@example.com","permission":"view"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(t, http.MethodPost, "/api/documents/"+d.ID+"/share", "alice", `{"email":"ghost@example.com","permission":"view"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(t, http.MethodPut, "/api/documents/"+d.ID, bob.ID, `{"content":"x"}`)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(t, http.MethodDelete, "/api/documents/"+d.ID+"/share/"+bob.ID, "alice", "")
	require.Equal(t, http.StatusOK, code)
	code, _ = a.do(t, http.MethodGet, "/api/documents/"+d.ID, bob.ID, "")
	assert.Equal(t, http.StatusForbidden, code)
}

func TestDocumentHandler_VersionsAndRestore(t *testing.T) {
	a := newAPI(t)
	d := a.createDoc(t, "alice", `{"title":"t","content":"one"}`)
	code, _ := a.do(t, http.MethodPut, "/api/documents/"+d.ID, "alice", `{"content":"two"}`)
	require.Equal(t, http.StatusOK, code)

	code, env := a.do(t, http.MethodGet, "/api/documents/"+d.ID+"/versions", "alice", "")
	require.Equal(t, http.StatusOK, code)
	var versions []struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &versions))
	require.Len(t, versions, 1)

	code, _ = a.do(t, http.MethodPost, "/api/documents/"+d.ID+"/restore/"+versions[0].ID, "alice", `{"expectedVersion":1}`)
	assert.Equal(t, http.StatusConflict, code)

	code, env = a.do(t, http.MethodPost, "/api/documents/"+d.ID+"/restore/"+versions[0].ID, "alice", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Document restored to version 1", env.Message)
	restored := decodeDoc(t, env)
	assert.Equal(t, "one", restored.Content)
	assert.Equal(t, 3, restored.CurrentVersion)

	code, _ = a.do(t, http.MethodPost, "/api/documents/"+d.ID+"/restore/missing", "alice", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDocumentHandler_ExportUnavailableWithoutStorage(t *testing.T) {
	a := newAPI(t)
	d := a.createDoc(t, "alice", `{"title":"t"}`)
	code, env := a.do(t, http.MethodPost, "/api/documents/"+d.ID+"/export", "alice", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, env.Success)
}

// memExporter keeps exports in memory.
type memExporter struct {
	mu      sync.Mutex
	objects map[string]string
}

func (m *memExporter) UploadFile(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = string(b)
	return nil
}

func (m *memExporter) DownloadFile(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	if !ok {
		return nil, apperr.NotFound("export not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (m *memExporter) GetPresignedURL(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://files.local/" + key, nil
}

func TestDocumentHandler_ExportAndDownload(t *testing.T) {
	a := newAPIWith(t, service.Options{Exporter: &memExporter{objects: map[string]string{}}})
	d := a.createDoc(t, "alice", `{"title":"Plan","content":"# plan"}`)

	code, env := a.do(t, http.MethodPost, "/api/documents/"+d.ID+"/export", "alice", "")
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)

	req := httptest.NewRequest(http.MethodGet, "/api/documents/"+d.ID+"/export/1", nil)
	req.Header.Set("Authorization", "Bearer alice")
	w := httptest.NewRecorder()
	a.g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# plan", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="Plan-v1.md"`)

	code, _ = a.do(t, http.MethodGet, "/api/documents/"+d.ID+"/export/1", "mallory", "")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(t, http.MethodGet, "/api/documents/"+d.ID+"/export/5", "alice", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = a.do(t, http.MethodGet, "/api/documents/"+d.ID+"/export/latest", "alice", "")
	assert.Equal(t, http.StatusBadRequest, code)
}
