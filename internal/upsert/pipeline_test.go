package upsert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcatalog/internal/book"
	"bookcatalog/internal/platform/logger"
)

type mapFinder struct {
	mu   sync.Mutex
	recs []book.Record
	err  error
}

func (f *mapFinder) add(r book.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, r)
}

func (f *mapFinder) find(match func(book.Record) bool) (book.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return book.Record{}, f.err
	}
	for _, r := range f.recs {
		if match(r) {
			return r, nil
		}
	}
	return book.Record{}, book.ErrNotFound
}

func (f *mapFinder) FindByID(_ context.Context, id string) (book.Record, error) {
	return f.find(func(r book.Record) bool { return r.ID == id })
}

func (f *mapFinder) FindByExternalKey(_ context.Context, key string) (book.Record, error) {
	return f.find(func(r book.Record) bool { return r.ExternalKey == key })
}

func (f *mapFinder) FindByISBN(_ context.Context, isbn string) (book.Record, error) {
	return f.find(func(r book.Record) bool { return r.ISBN == isbn })
}

type stubStrategy struct {
	name  string
	calls int
	fn    func(c book.Candidate) Outcome
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(_ context.Context, c book.Candidate) Outcome {
	s.calls++
	return s.fn(c)
}

func candidate() book.Candidate {
	return book.Candidate{LocalID: "local-1", ExternalKey: "/works/OL42W", Title: "Dune", Author: "Frank Herbert"}
}

func TestPipeline_FirstStrategyWins(t *testing.T) {
	f := &mapFinder{}
	first := &stubStrategy{name: "direct", fn: func(c book.Candidate) Outcome {
		rec := c.ToRecord(time.Now())
		f.add(rec)
		return OK(rec)
	}}
	second := &stubStrategy{name: "repo", fn: func(book.Candidate) Outcome { t.Fatal("must not run"); return Outcome{} }}

	rec, err := NewPipeline(f, logger.NewNop(), first, second).Persist(context.Background(), candidate())
	require.NoError(t, err)
	assert.Equal(t, "local-1", rec.ID)
	assert.Equal(t, 1, first.calls)
	assert.Zero(t, second.calls)
}

func TestPipeline_ConflictReturnsExistingRecord(t *testing.T) {
	existing := book.Record{ID: "older", ExternalKey: "/works/OL42W", Title: "Dune"}

	t.Run("record carried by the outcome", func(t *testing.T) {
		f := &mapFinder{}
		direct := &stubStrategy{name: "direct", fn: func(book.Candidate) Outcome {
			return Conflict(existing, book.ErrConflict)
		}}
		repo := &stubStrategy{name: "repo", fn: func(book.Candidate) Outcome { return Transient(errors.New("unused")) }}

		rec, err := NewPipeline(f, logger.NewNop(), direct, repo).Persist(context.Background(), candidate())
		require.NoError(t, err)
		assert.Equal(t, "older", rec.ID)
		assert.Zero(t, repo.calls)
	})

	t.Run("record found by the re-check", func(t *testing.T) {
		f := &mapFinder{}
		f.add(existing)
		direct := &stubStrategy{name: "direct", fn: func(book.Candidate) Outcome {
			return Conflict(book.Record{}, book.ErrConflict)
		}}
		repo := &stubStrategy{name: "repo", fn: func(book.Candidate) Outcome { return Transient(errors.New("unused")) }}

		rec, err := NewPipeline(f, logger.NewNop(), direct, repo).Persist(context.Background(), candidate())
		require.NoError(t, err)
		assert.Equal(t, "older", rec.ID)
		assert.Zero(t, repo.calls)
	})
}

func TestPipeline_FallsThroughOnTransientFailure(t *testing.T) {
	f := &mapFinder{}
	direct := &stubStrategy{name: "direct", fn: func(book.Candidate) Outcome { return Transient(errors.New("conn reset")) }}
	repo := &stubStrategy{name: "repo", fn: func(book.Candidate) Outcome { return Transient(errors.New("stale session")) }}
	flush := &stubStrategy{name: "flush", fn: func(c book.Candidate) Outcome { return OK(c.ToRecord(time.Now())) }}

	rec, err := NewPipeline(f, logger.NewNop(), direct, repo, flush).Persist(context.Background(), candidate())
	require.NoError(t, err)
	assert.Equal(t, "local-1", rec.ID)
	assert.Equal(t, []int{1, 1, 1}, []int{direct.calls, repo.calls, flush.calls})
}

func TestPipeline_RecheckFindsConcurrentWrite(t *testing.T) {
	f := &mapFinder{}
	direct := &stubStrategy{name: "direct", fn: func(book.Candidate) Outcome {
		// another instance commits while this attempt fails
		f.add(book.Record{ID: "other-instance", ExternalKey: "/works/OL42W"})
		return Transient(errors.New("serialization failure"))
	}}
	repo := &stubStrategy{name: "repo", fn: func(book.Candidate) Outcome { return Transient(errors.New("unused")) }}

	rec, err := NewPipeline(f, logger.NewNop(), direct, repo).Persist(context.Background(), candidate())
	require.NoError(t, err)
	assert.Equal(t, "other-instance", rec.ID)
	assert.Zero(t, repo.calls)
}

func TestPipeline_Exhausted(t *testing.T) {
	f := &mapFinder{}
	e1, e2, e3 := errors.New("e1"), errors.New("e2"), errors.New("e3")
	s1 := &stubStrategy{name: "direct", fn: func(book.Candidate) Outcome { return Transient(e1) }}
	s2 := &stubStrategy{name: "repo", fn: func(book.Candidate) Outcome { return Transient(e2) }}
	s3 := &stubStrategy{name: "flush", fn: func(book.Candidate) Outcome { return Transient(e3) }}

	_, err := NewPipeline(f, logger.NewNop(), s1, s2, s3).Persist(context.Background(), candidate())
	require.Error(t, err)
	assert.ErrorIs(t, err, book.ErrPersistenceExhausted)
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
	assert.ErrorIs(t, err, e3)
}

func TestPipeline_ExhaustedWhenProbeFails(t *testing.T) {
	f := &mapFinder{err: errors.New("db down")}
	s1 := &stubStrategy{name: "direct", fn: func(book.Candidate) Outcome { return Transient(errors.New("db down")) }}

	_, err := NewPipeline(f, logger.NewNop(), s1).Persist(context.Background(), candidate())
	assert.ErrorIs(t, err, book.ErrPersistenceExhausted)
}

func TestPipeline_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &mapFinder{}
	s1 := &stubStrategy{name: "direct", fn: func(book.Candidate) Outcome {
		cancel()
		return Transient(context.Canceled)
	}}
	s2 := &stubStrategy{name: "repo", fn: func(book.Candidate) Outcome { return Transient(errors.New("unused")) }}

	_, err := NewPipeline(f, logger.NewNop(), s1, s2).Persist(ctx, candidate())
	assert.ErrorIs(t, err, book.ErrPersistenceExhausted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s2.calls)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "ok", KindOK.String())
	assert.Equal(t, "conflict", KindConflict.String())
	assert.Equal(t, "transient", KindTransient.String())
}
