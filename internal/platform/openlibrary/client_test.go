package openlibrary

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Options{BaseURL: srv.URL, UserAgent: "test-agent", RPS: 1000, MaxRetries: retries, Timeout: time.Second})
	c.backoff = time.Millisecond
	return c
}

func TestClient_GetWork(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes document", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/works/OL42W.json", r.URL.Path)
			assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte(`{"key":"/works/OL42W","title":"Dune","covers":[123]}`))
		}, 0)

		doc, err := c.GetWork(ctx, "/works/OL42W")
		require.NoError(t, err)
		assert.Equal(t, "Dune", doc["title"])
	})

	t.Run("404 is not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, 2)

		_, err := c.GetWork(ctx, "OL1W")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"title":"ok"}`))
		}, 2)

		doc, err := c.GetWork(ctx, "OL1W")
		require.NoError(t, err)
		assert.Equal(t, "ok", doc["title"])
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("gives up after retries", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}, 1)

		_, err := c.GetWork(ctx, "OL1W")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrNotFound))
		assert.Contains(t, err.Error(), "after 1 retries")
	})

	t.Run("null body yields empty document", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`null`))
		}, 0)

		doc, err := c.GetWork(ctx, "OL1W")
		require.NoError(t, err)
		assert.Empty(t, doc)
	})
}

func TestClient_Search(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Equal(t, "OL42W", r.URL.Query().Get("q"))
		assert.Equal(t, "key,title", r.URL.Query().Get("fields"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"numFound":2,"docs":[{"key":"/works/OL42W","title":"Dune"},"junk"]}`))
	}, 0)

	res, err := c.Search(context.Background(), "OL42W", []string{"key", "title"}, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, res.NumFound)
	require.Len(t, res.Docs, 1)
	assert.Equal(t, "/works/OL42W", res.Docs[0]["key"])
}

func TestClient_GetAuthor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/authors/OL23A.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"Frank Herbert"}`))
	}, 0)

	doc, err := c.GetAuthor(context.Background(), "/authors/OL23A")
	require.NoError(t, err)
	assert.Equal(t, "Frank Herbert", doc["name"])
}

func TestClient_BreakerIgnoresNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, 0)

	for i := 0; i < 10; i++ {
		_, err := c.GetWork(context.Background(), "OL1W")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, "closed", c.BreakerState())
}

func TestCoverURL(t *testing.T) {
	assert.Equal(t, "https://covers.openlibrary.org/b/id/123-L.jpg", CoverURL(123))
}
