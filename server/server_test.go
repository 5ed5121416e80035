package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/mindvault/internal/auth"
	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/internal/types"
	"github.com/xhad/mindvault/pkg/content"
)

const testSecret = "server-test-secret"

type fakeSearcher struct {
	result    models.AnswerResult
	err       error
	calls     int
	principal models.Principal
	query     string
}

func (f *fakeSearcher) Answer(_ context.Context, p models.Principal, q string) (models.AnswerResult, error) {
	f.calls++
	f.principal = p
	f.query = q
	return f.result, f.err
}

type fakeContent struct {
	created content.CreateRequest
	deleted string
	kind    string
	err     error
	items   []models.ContentItem
	tags    []models.Tag
}

func (f *fakeContent) Create(_ context.Context, p models.Principal, req content.CreateRequest) (models.ContentItem, error) {
	f.created = req
	if f.err != nil {
		return models.ContentItem{}, f.err
	}
	return models.ContentItem{ID: "c1", OwnerID: p.OwnerID, Title: req.Title, Kind: models.Kind(req.Kind)}, nil
}

func (f *fakeContent) List(_ context.Context, _ models.Principal, kind string) ([]models.ContentItem, error) {
	f.kind = kind
	return f.items, f.err
}

func (f *fakeContent) Delete(_ context.Context, _ models.Principal, id string) error {
	f.deleted = id
	return f.err
}

func (f *fakeContent) Tags(context.Context, models.Principal) ([]models.Tag, error) {
	return f.tags, f.err
}

type fakeShares struct {
	status content.ShareStatus
	vault  content.PublicVault
	err    error
	token  string
}

func (f *fakeShares) Toggle(_ context.Context, _ models.Principal, share bool) (content.ShareStatus, error) {
	f.status.Shared = share
	return f.status, f.err
}

func (f *fakeShares) Status(context.Context, models.Principal) (content.ShareStatus, error) {
	return f.status, f.err
}

func (f *fakeShares) PublicVault(_ context.Context, token string) (content.PublicVault, error) {
	f.token = token
	return f.vault, f.err
}

type harness struct {
	server  *Server
	search  *fakeSearcher
	content *fakeContent
	shares  *fakeShares
}

func newHarness(config Config) *harness {
	h := &harness{
		search:  &fakeSearcher{},
		content: &fakeContent{},
		shares:  &fakeShares{},
	}
	if config.AllowedOrigins == nil {
		config.AllowedOrigins = []string{"http://app.test"}
	}
	h.server = New(config, h.search, h.content, h.shares, auth.NewVerifier(testSecret, "token"), nil)
	return h
}

func token(t *testing.T, owner, username string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": owner, "username": username}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (h *harness) do(t *testing.T, method, path, body, tok string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: tok})
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSearch_Success(t *testing.T) {
	h := newHarness(Config{})
	h.search.result = models.AnswerResult{
		AnswerText:     "Based on your saved notes, you have notes on Rust ownership.",
		MatchedContent: []models.ContentItem{{ID: "c1", OwnerID: "u1", Title: "Rust ownership notes", Kind: models.KindDocument}},
	}

	rec := h.do(t, http.MethodPost, "/api/v1/search", `{"search": "what did I save about rust?", "ownerId": "u2"}`, token(t, "u1", "ada"))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Based on your saved notes, you have notes on Rust ownership.", body["result"])
	assert.Equal(t, "Search completed successfully", body["message"])
	require.Len(t, body["content"], 1)

	assert.Equal(t, models.Principal{OwnerID: "u1", Username: "ada"}, h.search.principal)
	assert.Equal(t, "what did I save about rust?", h.search.query)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSearch_AliasRoute(t *testing.T) {
	h := newHarness(Config{})
	rec := h.do(t, http.MethodPost, "/api/v1/search/ai_search", `{"search": "rust"}`, token(t, "u1", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.search.calls)
}

func TestSearch_RequiresAuth(t *testing.T) {
	h := newHarness(Config{})

	rec := h.do(t, http.MethodPost, "/api/v1/search", `{"search": "rust"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/search", `{"search": "rust"}`, "forged.token.value")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Zero(t, h.search.calls)
}

func TestSearch_BearerHeader(t *testing.T) {
	h := newHarness(Config{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"search": "rust"}`))
	req.Header.Set("Authorization", "Bearer "+token(t, "u9", ""))
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u9", h.search.principal.OwnerID)
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid query", types.InvalidQuery("query is empty"), http.StatusBadRequest, "invalid_query"},
		{"embedding", types.EmbeddingError(errors.New("down")), http.StatusServiceUnavailable, "service_unavailable"},
		{"vector index", types.VectorIndexError(errors.New("down")), http.StatusServiceUnavailable, "service_unavailable"},
		{"answer", types.AnswerError(errors.New("quota")), http.StatusServiceUnavailable, "service_unavailable"},
		{"content store", types.ContentStoreError(errors.New("down")), http.StatusServiceUnavailable, "service_unavailable"},
		{"unexpected", errors.New("nil pointer"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(Config{})
			h.search.err = tt.err

			rec := h.do(t, http.MethodPost, "/api/v1/search", `{"search": "rust"}`, token(t, "u1", ""))
			assert.Equal(t, tt.status, rec.Code)

			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["error"])
			assert.NotContains(t, body["message"], "down")
		})
	}
}

func TestSearch_BadJSON(t *testing.T) {
	h := newHarness(Config{})
	rec := h.do(t, http.MethodPost, "/api/v1/search", `{"search": `, token(t, "u1", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, h.search.calls)
}

func TestSearch_RateLimitedPerOwner(t *testing.T) {
	h := newHarness(Config{SearchRateLimit: 0.001, SearchBurst: 1})

	rec := h.do(t, http.MethodPost, "/api/v1/search", `{"search": "a"}`, token(t, "u1", ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/search", `{"search": "b"}`, token(t, "u1", ""))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/search", `{"search": "c"}`, token(t, "u2", ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 2, h.search.calls)
}

func TestContentRoutes(t *testing.T) {
	h := newHarness(Config{})
	tok := token(t, "u1", "")

	rec := h.do(t, http.MethodPost, "/api/v1/content", `{"type": "document", "title": "Rust ownership notes", "tags": ["rust"]}`, tok)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, content.CreateRequest{Kind: "document", Title: "Rust ownership notes", Tags: []string{"rust"}}, h.content.created)

	rec = h.do(t, http.MethodGet, "/api/v1/content?kind=video", "", tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video", h.content.kind)

	rec = h.do(t, http.MethodGet, "/api/v1/content/tags", "", tok)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/v1/content/c42", "", tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c42", h.content.deleted)

	h.content.err = types.ErrContentNotFound
	rec = h.do(t, http.MethodDelete, "/api/v1/content/missing", "", tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h.content.err = types.InvalidContent("title must be between 3 and 500 characters")
	rec = h.do(t, http.MethodPost, "/api/v1/content", `{"type": "document", "title": "x"}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["message"], "title must be")
}

func TestShareRoutes(t *testing.T) {
	h := newHarness(Config{})
	tok := token(t, "u1", "ada")

	rec := h.do(t, http.MethodPost, "/api/v1/share/toggle", `{"share": true}`, tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.shares.status.Shared)

	// status is an authenticated route, not a share link
	rec = h.do(t, http.MethodGet, "/api/v1/share/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, h.shares.token)

	h.shares.vault = content.PublicVault{Username: "ada", Content: []models.ContentItem{}}
	rec = h.do(t, http.MethodGet, "/api/v1/share/abc-123", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", h.shares.token)
	assert.Equal(t, "ada", decodeBody(t, rec)["username"])

	h.shares.err = types.ErrShareNotFound
	rec = h.do(t, http.MethodGet, "/api/v1/share/expired", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(Config{})
	rec := h.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(Config{})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	req.Header.Set("Origin", "http://app.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)

	assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestWebSocketAsk(t *testing.T) {
	h := newHarness(Config{})
	h.search.result = models.AnswerResult{
		AnswerText:     "You saved notes on Rust ownership.",
		MatchedContent: []models.ContentItem{{ID: "c1", OwnerID: "u1"}},
	}

	srv := httptest.NewServer(h.server)
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token(t, "u1", ""))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/search/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: "ask", Content: "rust?"}))

	var status, answer Message
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "status", status.Type)
	require.NoError(t, conn.ReadJSON(&answer))
	assert.Equal(t, "response", answer.Type)
	assert.Equal(t, "You saved notes on Rust ownership.", answer.Content)
	assert.Equal(t, "u1", h.search.principal.OwnerID)

	h.search.err = types.InvalidQuery("query is empty")
	require.NoError(t, conn.WriteJSON(Message{Type: "ask", Content: ""}))
	require.NoError(t, conn.ReadJSON(&status))
	var failure Message
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, "error", failure.Type)
	assert.Contains(t, failure.Content, "rephrase")
}

// blockingSearcher holds every question until its context ends.
type blockingSearcher struct {
	started   chan struct{}
	cancelled chan struct{}
}

func (b *blockingSearcher) Answer(ctx context.Context, _ models.Principal, _ string) (models.AnswerResult, error) {
	close(b.started)
	<-ctx.Done()
	close(b.cancelled)
	return models.AnswerResult{}, ctx.Err()
}

func TestWebSocketDisconnectCancelsAsk(t *testing.T) {
	search := &blockingSearcher{started: make(chan struct{}), cancelled: make(chan struct{})}
	s := New(Config{AllowedOrigins: []string{"http://app.test"}}, search, &fakeContent{}, &fakeShares{},
		auth.NewVerifier(testSecret, "token"), nil)

	srv := httptest.NewServer(s)
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token(t, "u1", ""))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/search/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: "ask", Content: "rust?"}))

	select {
	case <-search.started:
	case <-time.After(2 * time.Second):
		t.Fatal("search never started")
	}

	require.NoError(t, conn.Close())

	select {
	case <-search.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("search still running after the client disconnected")
	}
}

func TestWebSocketRequiresAuth(t *testing.T) {
	h := newHarness(Config{})
	srv := httptest.NewServer(h.server)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/search/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, originAllowed([]string{"http://app.test"}, ""))
	assert.True(t, originAllowed([]string{"http://app.test"}, "http://APP.test"))
	assert.False(t, originAllowed([]string{"http://app.test"}, "http://evil.test"))
	assert.True(t, originAllowed([]string{"*"}, "http://evil.test"))
}
