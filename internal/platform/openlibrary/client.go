package openlibrary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when Open Library answers 404 for a document.
var ErrNotFound = errors.New("openlibrary: document not found")

const CoversBaseURL = "https://covers.openlibrary.org"

// Document is a loosely typed Open Library JSON document. Any field may be
// absent, null or of an unexpected shape.
type Document map[string]any

// SearchResult matches search.json. Docs stay loosely typed for the same
// reason as Document.
type SearchResult struct {
	NumFound int        `json:"numFound"`
	Docs     []Document `json:"docs"`
}

type Options struct {
	BaseURL    string
	UserAgent  string
	RPS        int
	MaxRetries int
	Timeout    time.Duration
}

type Client struct {
	httpClient *http.Client
	userAgent  string
	baseURL    string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	breaker    *gobreaker.CircuitBreaker[Document]
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://openlibrary.org"
	}
	if opts.RPS <= 0 {
		opts.RPS = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		userAgent:  opts.UserAgent,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(opts.RPS)), 1),
		maxRetries: opts.MaxRetries,
		backoff:    time.Second,
		breaker:    newBreaker(),
	}
}

func newBreaker() *gobreaker.CircuitBreaker[Document] {
	return gobreaker.NewCircuitBreaker[Document](gobreaker.Settings{
		Name:        "openlibrary",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A missing document is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
	})
}

// BreakerState reports the circuit breaker state for readiness checks.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// GetWork fetches /works/{id}.json. id may carry the /works/ prefix.
func (c *Client) GetWork(ctx context.Context, id string) (Document, error) {
	id = strings.TrimPrefix(id, "/works/")
	return c.getDocument(ctx, fmt.Sprintf("%s/works/%s.json", c.baseURL, url.PathEscape(id)))
}

// GetAuthor fetches /authors/{key}.json. authorKey is usually "/authors/OL..." or just "OL...".
func (c *Client) GetAuthor(ctx context.Context, authorKey string) (Document, error) {
	key := strings.TrimPrefix(authorKey, "/authors/")
	return c.getDocument(ctx, fmt.Sprintf("%s/authors/%s.json", c.baseURL, url.PathEscape(key)))
}

// Search queries search.json restricted to the given fields.
func (c *Client) Search(ctx context.Context, query string, fields []string, limit int) (*SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	if len(fields) > 0 {
		params.Set("fields", strings.Join(fields, ","))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	doc, err := c.getDocument(ctx, c.baseURL+"/search.json?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return decodeSearch(doc), nil
}

// CoverURL builds the large cover image URL for a cover id.
func CoverURL(coverID int64) string {
	return fmt.Sprintf("%s/b/id/%d-L.jpg", CoversBaseURL, coverID)
}

func decodeSearch(doc Document) *SearchResult {
	res := &SearchResult{}
	if n, ok := doc["numFound"].(float64); ok {
		res.NumFound = int(n)
	}
	raw, _ := doc["docs"].([]any)
	for _, item := range raw {
		if d, ok := item.(map[string]any); ok {
			res.Docs = append(res.Docs, Document(d))
		}
	}
	return res
}

func (c *Client) getDocument(ctx context.Context, u string) (Document, error) {
	return c.breaker.Execute(func() (Document, error) {
		var doc Document
		if err := c.get(ctx, u, &doc); err != nil {
			return nil, err
		}
		return doc, nil
	})
}

func (c *Client) get(ctx context.Context, url string, target interface{}) error {
	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			// Backoff: 1s, 2s, 4s...
			backoff := time.Duration(1<<uint(i-1)) * c.backoff
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		retry, err := c.do(ctx, url, target)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) do(ctx context.Context, url string, target interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return false, fmt.Errorf("decode %s: %w", url, err)
	}
	return false, nil
}
