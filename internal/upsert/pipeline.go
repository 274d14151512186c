package upsert

import (
	"context"
	"errors"
	"fmt"

	"bookcatalog/internal/book"
	"bookcatalog/internal/metrics"
	"bookcatalog/internal/platform/logger"
)

type Kind int

const (
	KindOK Kind = iota
	// KindConflict means the storage already holds a record for the candidate.
	// Record is set when the strategy could read it back.
	KindConflict
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindConflict:
		return "conflict"
	default:
		return "transient"
	}
}

type Outcome struct {
	Kind   Kind
	Record book.Record
	Err    error
}

func OK(rec book.Record) Outcome { return Outcome{Kind: KindOK, Record: rec} }

func Conflict(rec book.Record, err error) Outcome {
	return Outcome{Kind: KindConflict, Record: rec, Err: err}
}

func Transient(err error) Outcome { return Outcome{Kind: KindTransient, Err: err} }

// Strategy is one way of writing a candidate. Each attempt either commits
// fully or leaves nothing behind.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, c book.Candidate) Outcome
}

// Pipeline tries its strategies in order until one persists the candidate
// or storage shows a record written by someone else.
type Pipeline struct {
	strategies []Strategy
	finder     book.Finder
	log        *logger.Logger
}

func NewPipeline(finder book.Finder, log *logger.Logger, strategies ...Strategy) *Pipeline {
	return &Pipeline{
		strategies: strategies,
		finder:     finder,
		log:        log.With("component", "upsert"),
	}
}

// Persist must be called under the dedup lock for the candidate and after the
// in-lock existence check missed. It returns book.ErrPersistenceExhausted when
// every strategy failed and no record became visible.
func (p *Pipeline) Persist(ctx context.Context, c book.Candidate) (book.Record, error) {
	var errs []error
	for _, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		out := s.Attempt(ctx, c)
		metrics.RecordStrategyAttempt(s.Name(), out.Kind.String())

		switch out.Kind {
		case KindOK:
			return out.Record, nil
		case KindConflict:
			if out.Record.ID != "" {
				p.log.Debug("strategy hit existing record", "strategy", s.Name(), "id", out.Record.ID)
				return out.Record, nil
			}
		}

		if out.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), out.Err))
		}
		p.log.Warn("upsert strategy failed", "strategy", s.Name(), "outcome", out.Kind.String(),
			"local_id", c.LocalID, "external_key", c.ExternalKey, "error", out.Err)

		if rec, err := p.recheck(ctx, c); err == nil {
			p.log.Info("record became visible after failed strategy", "strategy", s.Name(), "id", rec.ID)
			return rec, nil
		}
	}

	p.log.Error("could not save after all strategies",
		"local_id", c.LocalID, "external_key", c.ExternalKey, "attempts", len(p.strategies))
	return book.Record{}, errors.Join(append([]error{book.ErrPersistenceExhausted}, errs...)...)
}

func (p *Pipeline) recheck(ctx context.Context, c book.Candidate) (book.Record, error) {
	return book.Lookup(ctx, p.finder, c.LocalID, c.ExternalKey, c.ISBN)
}
