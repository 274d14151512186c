package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcatalog/internal/book"
	"bookcatalog/internal/catalog"
	"bookcatalog/internal/dedup"
	"bookcatalog/internal/httpx"
	"bookcatalog/internal/platform/logger"
	"bookcatalog/internal/store"
)

func noProtect(h http.Handler) http.Handler { return h }

func newTestMux(svc *Service) *http.ServeMux {
	mux := http.NewServeMux()
	NewHTTPHandler(svc).Register(mux, noProtect)
	return mux
}

type envelope struct {
	Success bool                    `json:"success"`
	Data    json.RawMessage         `json:"data"`
	Meta    map[string]any          `json:"meta"`
	Error   httpx.ErrorResponseBody `json:"error"`
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestHTTPHandler_Resolve(t *testing.T) {
	mux := newTestMux(newTestService(&fakeCatalog{}, store.NewMemory()))

	w, env := do(t, mux, http.MethodPost, "/v1/books/resolve", `{"key":"OL42W"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, true, env.Meta["created"])
	var rec book.Record
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "/works/OL42W", rec.ExternalKey)

	w, env = do(t, mux, http.MethodPost, "/v1/books/resolve", `{"key":"/works/OL42W"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, env.Meta["created"])
}

func TestHTTPHandler_ResolveErrors(t *testing.T) {
	tests := []struct {
		name   string
		cat    Catalog
		body   string
		status int
		code   string
	}{
		{"bad json", &fakeCatalog{}, `{`, http.StatusBadRequest, "INVALID_JSON"},
		{"missing key", &fakeCatalog{}, `{}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", &fakeCatalog{err: catalog.ErrNotFound}, `{"key":"OL1W"}`, http.StatusNotFound, "NOT_FOUND"},
		{"catalog down", &fakeCatalog{err: catalog.ErrTransient}, `{"key":"OL1W"}`, http.StatusBadGateway, "CATALOG_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(newTestService(tt.cat, store.NewMemory()))
			w, env := do(t, mux, http.MethodPost, "/v1/books/resolve", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

type failingPersister struct{}

func (failingPersister) Persist(context.Context, book.Candidate) (book.Record, error) {
	return book.Record{}, errors.Join(book.ErrPersistenceExhausted, errors.New("db down"))
}

func TestHTTPHandler_ResolvePersistenceExhausted(t *testing.T) {
	mem := store.NewMemory()
	svc := NewService(&fakeCatalog{}, mem, dedup.NewCoordinator(), failingPersister{}, logger.NewNop())

	w, env := do(t, newTestMux(svc), http.MethodPost, "/v1/books/resolve", `{"key":"OL1W"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "PERSISTENCE_EXHAUSTED", env.Error.Code)
}

func TestHTTPHandler_Create(t *testing.T) {
	mux := newTestMux(newTestService(&fakeCatalog{}, store.NewMemory()))

	w, env := do(t, mux, http.MethodPost, "/v1/books", `{"title":"Dune","author":"Frank Herbert","isbn":"978-0-441-01359-3","genres":["Science fiction"]}`)
	require.Equal(t, http.StatusCreated, w.Code, env.Error.Message)
	var rec book.Record
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "9780441013593", rec.ISBN)

	w, _ = do(t, mux, http.MethodPost, "/v1/books", `{"title":"Dune again","author":"X","isbn":"9780441013593"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, mux, http.MethodPost, "/v1/books", `{"title":"","author":"X","isbn":"12"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, env.Error.Details, 2)
}

func TestHTTPHandler_Search(t *testing.T) {
	mux := newTestMux(newTestService(&fakeCatalog{}, store.NewMemory()))

	w, env := do(t, mux, http.MethodGet, "/v1/catalog/search?q=dune&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), env.Meta["count"])
	assert.NotContains(t, string(env.Data), "local_id")

	w, env = do(t, mux, http.MethodGet, "/v1/catalog/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}
