package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"bookcatalog/internal/book"
	"bookcatalog/internal/metrics"
	"bookcatalog/internal/platform/logger"
	"bookcatalog/internal/platform/openlibrary"
)

// ErrNotFound is returned when neither the key lookup nor the alternate
// search produced a work. It is an expected outcome, not a failure.
var ErrNotFound = errors.New("book not found in catalog")

// ErrTransient wraps transport failures that a later request may not see.
var ErrTransient = errors.New("catalog unavailable")

var searchFields = []string{
	"key", "title", "author_name", "author_key", "isbn", "first_publish_year",
	"language", "publisher", "subject", "cover_i",
}

var alternateFields = append(append([]string{}, searchFields...), "redirects")

// Source is the raw Open Library transport.
type Source interface {
	GetWork(ctx context.Context, id string) (openlibrary.Document, error)
	GetAuthor(ctx context.Context, authorKey string) (openlibrary.Document, error)
	Search(ctx context.Context, query string, fields []string, limit int) (*openlibrary.SearchResult, error)
}

// Client turns Open Library documents into book candidates. Every candidate
// gets a fresh LocalID; the client never knows what is stored locally.
type Client struct {
	src   Source
	log   *logger.Logger
	newID func() string
}

func NewClient(src Source, log *logger.Logger) *Client {
	return &Client{
		src:   src,
		log:   log.With("component", "catalog"),
		newID: uuid.NewString,
	}
}

// FetchByKey resolves a canonical work key. A transport failure or an empty
// work document falls back once to a search on the bare id.
func (c *Client) FetchByKey(ctx context.Context, key string) (book.Candidate, error) {
	return c.fetchByKey(ctx, key, true)
}

func (c *Client) fetchByKey(ctx context.Context, key string, allowAlternate bool) (book.Candidate, error) {
	doc, err := c.src.GetWork(ctx, StripNamespace(key))
	switch {
	case err == nil && len(doc) > 0:
		metrics.RecordCatalogFetch("key", "ok")
		return c.fromWork(ctx, key, doc), nil
	case err == nil, errors.Is(err, openlibrary.ErrNotFound):
		metrics.RecordCatalogFetch("key", "empty")
		c.log.Debug("work document empty", "key", key)
	default:
		metrics.RecordCatalogFetch("key", "error")
		c.log.Warn("work fetch failed", "key", key, "error", err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return book.Candidate{}, ctxErr
	}
	if !allowAlternate {
		return book.Candidate{}, ErrNotFound
	}
	return c.searchAlternate(ctx, key)
}

func (c *Client) searchAlternate(ctx context.Context, key string) (book.Candidate, error) {
	query := StripNamespace(key)
	res, err := c.src.Search(ctx, query, alternateFields, 5)
	if err != nil {
		metrics.RecordCatalogFetch("search", "error")
		c.log.Warn("alternate search failed", "key", key, "error", err)
		return book.Candidate{}, fmt.Errorf("%w: search %q: %w", ErrTransient, query, err)
	}

	doc, docKey, ok := pickSearchDoc(res, key)
	if !ok {
		metrics.RecordCatalogFetch("search", "empty")
		c.log.Debug("alternate search had no matching work", "key", key, "docs", len(res.Docs))
		return book.Candidate{}, ErrNotFound
	}
	metrics.RecordCatalogFetch("search", "ok")

	// A redirect hit points at the work that replaced key; its full document
	// is richer than the search projection. The guard stops this lookup from
	// falling back to search again.
	if docKey != key {
		if cand, err := c.fetchByKey(ctx, docKey, false); err == nil {
			return cand, nil
		}
	}
	return c.fromSearchDoc(ctx, doc, true), nil
}

// pickSearchDoc returns the doc whose key is want, else a doc that lists want
// among its redirects. Docs for other works are never a match.
func pickSearchDoc(res *openlibrary.SearchResult, want string) (openlibrary.Document, string, bool) {
	if res == nil {
		return nil, "", false
	}
	var (
		redirected    openlibrary.Document
		redirectedKey string
	)
	for _, doc := range res.Docs {
		raw, err := stringField(doc, "key")
		if err != nil {
			continue
		}
		key := NormalizeKey(raw)
		if key == want {
			return doc, key, true
		}
		if redirected == nil && redirectsTo(doc, want) {
			redirected, redirectedKey = doc, key
		}
	}
	return redirected, redirectedKey, redirected != nil
}

func redirectsTo(doc openlibrary.Document, want string) bool {
	redirects, err := stringList(doc, "redirects")
	if err != nil {
		return false
	}
	for _, r := range redirects {
		if NormalizeKey(r) == want {
			return true
		}
	}
	return false
}

// Search maps search.json docs into candidates. Nothing is persisted.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]book.Candidate, error) {
	res, err := c.src.Search(ctx, query, searchFields, limit)
	if err != nil {
		metrics.RecordCatalogFetch("search", "error")
		return nil, fmt.Errorf("%w: search: %w", ErrTransient, err)
	}
	metrics.RecordCatalogFetch("search", "ok")

	out := make([]book.Candidate, 0, len(res.Docs))
	for _, doc := range res.Docs {
		out = append(out, c.fromSearchDoc(ctx, doc, false))
	}
	return out, nil
}

func (c *Client) fromWork(ctx context.Context, key string, doc openlibrary.Document) book.Candidate {
	cand := book.Candidate{
		LocalID:     c.newID(),
		ExternalKey: key,
		Title:       DefaultTitle,
		Author:      DefaultAuthor,
		Genres:      []string{},
	}

	if title, err := stringField(doc, "title"); err == nil {
		cand.Title = title
	} else {
		c.degrade(key, "title", err)
	}

	if authorKey, err := firstAuthorKey(doc); err == nil {
		cand.Author = c.authorName(ctx, authorKey)
	} else {
		c.degrade(key, "author", err)
	}

	if id, err := firstCoverID(doc, "covers"); err == nil {
		u := openlibrary.CoverURL(id)
		cand.CoverURL = &u
	} else {
		c.degrade(key, "cover", err)
	}

	if desc, err := textValue(doc, "description"); err == nil {
		cand.Description = &desc
	} else {
		c.degrade(key, "description", err)
	}

	if subjects, err := stringList(doc, "subjects"); err == nil {
		cand.Genres = capGenres(subjects)
	} else {
		c.degrade(key, "genres", err)
	}

	if year, err := yearFromDate(doc, "first_publish_date"); err == nil {
		cand.PublicationYear = &year
	} else {
		c.degrade(key, "publication_year", err)
	}

	if lang, err := languageCode(doc); err == nil {
		cand.Language = lang
	} else {
		c.degrade(key, "language", err)
	}

	if publishers, err := stringList(doc, "publishers"); err == nil {
		cand.Publisher = publishers[0]
	} else {
		c.degrade(key, "publisher", err)
	}

	if isbns, err := stringList(doc, "isbn_13"); err == nil {
		cand.ISBN = preferISBN13(isbns)
	} else if isbns, err := stringList(doc, "isbn_10"); err == nil {
		cand.ISBN = preferISBN13(isbns)
	} else {
		c.degrade(key, "isbn", err)
	}

	return cand
}

// fromSearchDoc projects a search doc. Without lookupAuthor a doc lacking
// author_name gets the key label, so a result page costs one request.
func (c *Client) fromSearchDoc(ctx context.Context, doc openlibrary.Document, lookupAuthor bool) book.Candidate {
	key := ""
	if raw, err := stringField(doc, "key"); err == nil {
		key = NormalizeKey(raw)
	}

	cand := book.Candidate{
		LocalID:     c.newID(),
		ExternalKey: key,
		Title:       DefaultTitle,
		Author:      DefaultAuthor,
		Genres:      []string{},
	}

	if title, err := stringField(doc, "title"); err == nil {
		cand.Title = title
	} else {
		c.degrade(key, "title", err)
	}

	if names, err := stringList(doc, "author_name"); err == nil {
		cand.Author = names[0]
	} else if keys, err := stringList(doc, "author_key"); err != nil {
		c.degrade(key, "author", err)
	} else if lookupAuthor {
		cand.Author = c.authorName(ctx, keys[0])
	} else {
		cand.Author = authorLabel(NormalizeAuthorKey(keys[0]))
	}

	if id, err := firstCoverID(doc, "cover_i"); err == nil {
		u := openlibrary.CoverURL(id)
		cand.CoverURL = &u
	} else {
		c.degrade(key, "cover", err)
	}

	if subjects, err := stringList(doc, "subject"); err == nil {
		cand.Genres = capGenres(subjects)
	} else {
		c.degrade(key, "genres", err)
	}

	if year, err := yearFromNumber(doc, "first_publish_year"); err == nil {
		cand.PublicationYear = &year
	} else {
		c.degrade(key, "publication_year", err)
	}

	if langs, err := stringList(doc, "language"); err == nil {
		cand.Language = langs[0]
	} else {
		c.degrade(key, "language", err)
	}

	if publishers, err := stringList(doc, "publisher"); err == nil {
		cand.Publisher = publishers[0]
	} else {
		c.degrade(key, "publisher", err)
	}

	if isbns, err := stringList(doc, "isbn"); err == nil {
		cand.ISBN = preferISBN13(isbns)
	} else {
		c.degrade(key, "isbn", err)
	}

	return cand
}

// authorName looks the author up. Any failure yields a label derived from
// the key instead of an error.
func (c *Client) authorName(ctx context.Context, rawKey string) string {
	key := NormalizeAuthorKey(rawKey)
	fallback := authorLabel(key)

	doc, err := c.src.GetAuthor(ctx, key)
	if err != nil {
		metrics.RecordCatalogFetch("author", "error")
		c.log.Warn("author lookup failed", "author_key", key, "error", err)
		return fallback
	}
	metrics.RecordCatalogFetch("author", "ok")

	if name, err := stringField(doc, "name"); err == nil {
		return name
	}
	if name, err := stringField(doc, "personal_name"); err == nil {
		return name
	}
	c.log.Warn("author document has no name", "author_key", key)
	metrics.RecordFieldDegradation("author")
	return fallback
}

func authorLabel(authorKey string) string {
	return "Author " + StripNamespace(authorKey)
}

// degrade records a field that fell back to its default. Absent fields are
// routine; malformed ones are worth a warning.
func (c *Client) degrade(key, field string, err error) {
	if errors.Is(err, errAbsent) {
		return
	}
	metrics.RecordFieldDegradation(field)
	c.log.Warn("catalog field degraded to default", "key", key, "field", field, "error", err)
}
