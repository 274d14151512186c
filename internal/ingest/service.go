package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookcatalog/internal/book"
	"bookcatalog/internal/catalog"
	"bookcatalog/internal/platform/logger"
	"bookcatalog/internal/resolver"
)

type Config struct {
	Subjects []string
	// Limit caps the works taken from each subject search.
	Limit int
}

// Resolver is the part of resolver.Service the warm-up needs.
type Resolver interface {
	Search(ctx context.Context, query string, limit int) ([]book.Candidate, error)
	ResolveByKey(ctx context.Context, key string) (resolver.Result, error)
}

type Service struct {
	resolver   Resolver
	ingestRepo Repository
	cfg        Config
	log        *logger.Logger
	now        func() time.Time
}

func NewService(r Resolver, ingestRepo Repository, cfg Config, log *logger.Logger) *Service {
	if cfg.Limit <= 0 {
		cfg.Limit = 20
	}
	return &Service{
		resolver:   r,
		ingestRepo: ingestRepo,
		cfg:        cfg,
		log:        log.With("component", "ingest"),
		now:        time.Now,
	}
}

// Run searches every configured subject and resolves each work it finds, so
// later lookups hit the local store. A work that fails to resolve is counted
// and skipped; a failed subject search or a cancelled context ends the run.
func (s *Service) Run(ctx context.Context) (run *Run, err error) {
	run = &Run{
		ID:        uuid.NewString(),
		Status:    StatusRunning,
		Subjects:  s.cfg.Subjects,
		StartedAt: s.now(),
	}
	if run.Subjects == nil {
		run.Subjects = []string{}
	}
	if err := s.ingestRepo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	defer func() {
		now := s.now()
		run.FinishedAt = &now
		if err != nil && run.Error == "" {
			run.Error = err.Error()
		}

		if run.Error != "" {
			run.Status = StatusFailed
		} else {
			run.Status = StatusCompleted
		}
		// the request context may already be done
		if updateErr := s.ingestRepo.UpdateRun(context.WithoutCancel(ctx), run); updateErr != nil {
			s.log.Error("failed to update ingest run", "run_id", run.ID, "error", updateErr)
		}
		s.log.Info("ingest run finished",
			"run_id", run.ID,
			"status", run.Status,
			"works_seen", run.WorksSeen,
			"books_created", run.BooksCreated,
			"books_existing", run.BooksExisting,
			"books_failed", run.BooksFailed,
		)
	}()

	if len(s.cfg.Subjects) == 0 {
		s.log.Info("no warm-up subjects configured, skipping")
		return run, nil
	}

	seen := make(map[string]bool)
	for _, subject := range s.cfg.Subjects {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return run, err
		}

		cands, err := s.resolver.Search(ctx, "subject:"+subject, s.cfg.Limit)
		if err != nil {
			run.Error = fmt.Sprintf("search failed for %s: %v", subject, err)
			return run, err
		}

		for _, c := range cands {
			if c.ExternalKey == "" || seen[c.ExternalKey] {
				continue
			}
			seen[c.ExternalKey] = true
			run.WorksSeen++

			res, err := s.resolver.ResolveByKey(ctx, c.ExternalKey)
			switch {
			case err == nil && res.Created:
				run.BooksCreated++
			case err == nil:
				run.BooksExisting++
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				run.BooksFailed++
				return run, err
			case errors.Is(err, catalog.ErrNotFound):
				run.BooksFailed++
				s.log.Info("work vanished from catalog", "key", c.ExternalKey)
			default:
				run.BooksFailed++
				s.log.Warn("failed to resolve work", "key", c.ExternalKey, "subject", subject, "error", err)
			}
		}
	}

	return run, nil
}
