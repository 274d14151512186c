package resolver

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcatalog/internal/catalog"
	"bookcatalog/internal/platform/logger"
	"bookcatalog/internal/platform/openlibrary"
	"bookcatalog/internal/store"
)

// stubSource serves canned Open Library answers to a real catalog.Client.
type stubSource struct {
	work      openlibrary.Document
	workErr   error
	search    *openlibrary.SearchResult
	searchErr error
}

func (s *stubSource) GetWork(context.Context, string) (openlibrary.Document, error) {
	return s.work, s.workErr
}

func (s *stubSource) GetAuthor(context.Context, string) (openlibrary.Document, error) {
	return nil, openlibrary.ErrNotFound
}

func (s *stubSource) Search(context.Context, string, []string, int) (*openlibrary.SearchResult, error) {
	return s.search, s.searchErr
}

func TestService_ResolveByKey_ThroughCatalogClient(t *testing.T) {
	ctx := context.Background()

	t.Run("unrelated search hit is not found and stores nothing", func(t *testing.T) {
		mem := store.NewMemory()
		src := &stubSource{
			workErr: openlibrary.ErrNotFound,
			search: &openlibrary.SearchResult{NumFound: 1, Docs: []openlibrary.Document{
				{"key": "/works/OL999W", "title": "Unrelated"},
			}},
		}
		svc := newTestService(catalog.NewClient(src, logger.NewNop()), mem)

		_, err := svc.ResolveByKey(ctx, "OL42W")
		assert.ErrorIs(t, err, catalog.ErrNotFound)
		assert.Zero(t, mem.Len())

		w, env := do(t, newTestMux(svc), http.MethodPost, "/v1/books/resolve", `{"key":"OL42W"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", env.Error.Code)
	})

	t.Run("matching search hit is stored under the requested key", func(t *testing.T) {
		mem := store.NewMemory()
		src := &stubSource{
			workErr: errors.New("connection reset"),
			search: &openlibrary.SearchResult{Docs: []openlibrary.Document{
				{"key": "/works/OL999W", "title": "Unrelated"},
				{"key": "/works/OL42W", "title": "Dune", "author_name": []any{"Frank Herbert"}},
			}},
		}
		svc := newTestService(catalog.NewClient(src, logger.NewNop()), mem)

		res, err := svc.ResolveByKey(ctx, "OL42W")
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.Equal(t, "/works/OL42W", res.Record.ExternalKey)
		assert.Equal(t, "Dune", res.Record.Title)
	})

	t.Run("catalog outage is transient", func(t *testing.T) {
		mem := store.NewMemory()
		src := &stubSource{workErr: errors.New("connection reset"), searchErr: errors.New("connection reset")}
		svc := newTestService(catalog.NewClient(src, logger.NewNop()), mem)

		_, err := svc.ResolveByKey(ctx, "OL42W")
		assert.ErrorIs(t, err, catalog.ErrTransient)
		assert.NotErrorIs(t, err, catalog.ErrNotFound)
		assert.Zero(t, mem.Len())

		w, env := do(t, newTestMux(svc), http.MethodPost, "/v1/books/resolve", `{"key":"OL42W"}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "CATALOG_UNAVAILABLE", env.Error.Code)
	})
}
