package store

import (
	"context"
	"errors"
	"time"

	"bookcatalog/internal/book"
	"bookcatalog/internal/platform/logger"
	"bookcatalog/internal/upsert"
)

// RepositorySave goes through the regular store port, cache included.
type RepositorySave struct {
	store book.Store
}

func NewRepositorySave(s book.Store) *RepositorySave {
	return &RepositorySave{store: s}
}

func (s *RepositorySave) Name() string { return "repository" }

func (s *RepositorySave) Attempt(ctx context.Context, c book.Candidate) upsert.Outcome {
	rec, err := s.store.Insert(ctx, c)
	return outcomeOf(rec, err)
}

// Evicter drops cached copies of a record.
type Evicter interface {
	Evict(ctx context.Context, rec book.Record) error
}

// ForcedFlush is the last resort: a raw insert on a fresh gorm session,
// committed immediately, followed by cache eviction so later reads see the
// database rather than an old cached copy.
type ForcedFlush struct {
	repo  *GormRepo
	cache Evicter
	log   *logger.Logger
}

// NewForcedFlush builds the strategy. cache may be nil.
func NewForcedFlush(repo *GormRepo, cache Evicter, log *logger.Logger) *ForcedFlush {
	return &ForcedFlush{repo: repo, cache: cache, log: log}
}

func (s *ForcedFlush) Name() string { return "forced_flush" }

func (s *ForcedFlush) Attempt(ctx context.Context, c book.Candidate) upsert.Outcome {
	rec, err := s.repo.ForceInsert(ctx, c)
	if s.cache != nil {
		target := rec
		if err != nil {
			target = c.ToRecord(time.Time{})
		}
		if eerr := s.cache.Evict(ctx, target); eerr != nil {
			s.log.Warn("cache eviction after forced flush failed", "id", target.ID, "error", eerr)
		}
	}
	return outcomeOf(rec, err)
}

func outcomeOf(rec book.Record, err error) upsert.Outcome {
	switch {
	case err == nil:
		return upsert.OK(rec)
	case errors.Is(err, book.ErrConflict):
		return upsert.Conflict(book.Record{}, err)
	default:
		return upsert.Transient(err)
	}
}
