package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bookcatalog/internal/book"
	"bookcatalog/internal/catalog"
	"bookcatalog/internal/dedup"
	"bookcatalog/internal/metrics"
	"bookcatalog/internal/platform/logger"
)

// ErrInvalidKey is returned for a blank catalog key.
var ErrInvalidKey = errors.New("catalog key is required")

// Catalog is the part of catalog.Client the service needs.
type Catalog interface {
	FetchByKey(ctx context.Context, key string) (book.Candidate, error)
	Search(ctx context.Context, query string, limit int) ([]book.Candidate, error)
}

// Persister writes a candidate that is known to be absent.
type Persister interface {
	Persist(ctx context.Context, c book.Candidate) (book.Record, error)
}

type Service struct {
	catalog   Catalog
	finder    book.Finder
	locks     *dedup.Coordinator
	persister Persister
	log       *logger.Logger
	newID     func() string
}

func NewService(cat Catalog, finder book.Finder, locks *dedup.Coordinator, p Persister, log *logger.Logger) *Service {
	return &Service{
		catalog:   cat,
		finder:    finder,
		locks:     locks,
		persister: p,
		log:       log.With("component", "resolver"),
		newID:     uuid.NewString,
	}
}

// Result is a persisted record and whether this call created it.
type Result struct {
	Record  book.Record
	Created bool
}

// LockKey picks the dedup key for a candidate. It must be the same for every
// caller targeting the same work even though each caller generated its own
// LocalID, so the external key wins, then the isbn.
func LockKey(c book.Candidate) string {
	switch {
	case c.ExternalKey != "":
		return "ext:" + c.ExternalKey
	case c.ISBN != "":
		return "isbn:" + c.ISBN
	default:
		return "id:" + c.LocalID
	}
}

// ResolveByKey returns the local record for a catalog work, fetching and
// persisting it on first use. Besides catalog.ErrNotFound and
// book.ErrPersistenceExhausted, an unreachable catalog yields an error
// wrapping catalog.ErrTransient.
func (s *Service) ResolveByKey(ctx context.Context, raw string) (Result, error) {
	key, recognized := catalog.CanonicalKey(raw)
	if key == "" {
		return Result{}, ErrInvalidKey
	}
	if !recognized {
		s.log.Warn("unrecognized catalog key, treating as opaque", "key", key)
	}

	if rec, err := s.finder.FindByExternalKey(ctx, key); err == nil {
		metrics.RecordResolution("existing")
		return Result{Record: rec}, nil
	} else if !errors.Is(err, book.ErrNotFound) {
		s.log.Warn("existing record lookup failed", "key", key, "error", err)
	}

	cand, err := s.catalog.FetchByKey(ctx, key)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			metrics.RecordResolution("not_found")
			s.log.Info("book not found in catalog", "key", key)
			return Result{}, catalog.ErrNotFound
		}
		metrics.RecordResolution("failed")
		s.log.Warn("catalog fetch failed", "key", key, "error", err)
		return Result{}, fmt.Errorf("fetch %s: %w", key, err)
	}
	// A search fallback may have resolved to a different work.
	if cand.ExternalKey == "" {
		cand.ExternalKey = key
	}
	return s.Materialize(ctx, cand)
}

// Materialize returns the record for cand, inserting it only if neither its
// LocalID nor its keys are already stored. Checks run once without the lock
// and again while holding it.
func (s *Service) Materialize(ctx context.Context, cand book.Candidate) (Result, error) {
	if rec, ok := s.existing(ctx, cand); ok {
		metrics.RecordResolution("existing")
		return Result{Record: rec}, nil
	}

	res, err := dedup.WithLock(ctx, s.locks, LockKey(cand), func(ctx context.Context) (Result, error) {
		if rec, ok := s.existing(ctx, cand); ok {
			return Result{Record: rec}, nil
		}
		rec, err := s.persister.Persist(ctx, cand)
		if err != nil {
			return Result{}, err
		}
		return Result{Record: rec, Created: rec.ID == cand.LocalID}, nil
	})
	if err != nil {
		metrics.RecordResolution("failed")
		return Result{}, err
	}

	if res.Created {
		metrics.RecordResolution("created")
		s.log.Info("book materialized", "id", res.Record.ID, "external_key", res.Record.ExternalKey)
	} else {
		metrics.RecordResolution("existing")
	}
	return res, nil
}

// existing runs the id, external key and isbn checks. Lookup errors count
// as misses; the pipeline surfaces real storage failures.
func (s *Service) existing(ctx context.Context, c book.Candidate) (book.Record, bool) {
	rec, err := book.Lookup(ctx, s.finder, c.LocalID, c.ExternalKey, c.ISBN)
	if err != nil {
		if !errors.Is(err, book.ErrNotFound) {
			s.log.Warn("existence check failed", "local_id", c.LocalID, "error", err)
		}
		return book.Record{}, false
	}
	return rec, true
}

// Search proxies a free-text catalog search. Nothing is persisted.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]book.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []book.Candidate{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.catalog.Search(ctx, query, limit)
}

// ManualInput is a book entered by hand rather than resolved from the catalog.
type ManualInput struct {
	Title           string
	Author          string
	ISBN            string
	ExternalKey     string
	CoverURL        *string
	Description     *string
	Genres          []string
	Language        string
	PublicationYear *int
	Publisher       string
}

// CreateManual persists a hand-entered book through the same dedup path, so
// an isbn or catalog key that already exists returns the stored record.
func (s *Service) CreateManual(ctx context.Context, in ManualInput) (Result, error) {
	cand := book.Candidate{
		LocalID:         s.newID(),
		ExternalKey:     catalog.NormalizeKey(in.ExternalKey),
		Title:           strings.TrimSpace(in.Title),
		Author:          strings.TrimSpace(in.Author),
		ISBN:            catalog.CleanISBN(strings.TrimSpace(in.ISBN)),
		CoverURL:        in.CoverURL,
		Description:     in.Description,
		Genres:          in.Genres,
		Language:        in.Language,
		PublicationYear: in.PublicationYear,
		Publisher:       in.Publisher,
	}
	if cand.Title == "" {
		cand.Title = catalog.DefaultTitle
	}
	if cand.Author == "" {
		cand.Author = catalog.DefaultAuthor
	}
	if cand.Genres == nil {
		cand.Genres = []string{}
	}
	return s.Materialize(ctx, cand)
}
