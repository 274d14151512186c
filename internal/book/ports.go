package book

import (
	"context"
	"errors"
)

// Finder looks up persisted records. Every method returns ErrNotFound on a miss.
type Finder interface {
	FindByID(ctx context.Context, id string) (Record, error)
	FindByExternalKey(ctx context.Context, key string) (Record, error)
	FindByISBN(ctx context.Context, isbn string) (Record, error)
}

// Store is the storage port of the resolution pipeline. Insert must return
// ErrConflict (possibly wrapped) when a uniqueness constraint rejects the row
// so callers can tell a lost race apart from an I/O failure.
type Store interface {
	Finder
	Insert(ctx context.Context, c Candidate) (Record, error)
}

// Lookup queries the finder by id, external key and isbn in that order and
// returns the first record found. Empty keys are skipped. A non-NotFound error
// from any lookup is returned only if nothing was found.
func Lookup(ctx context.Context, f Finder, id, externalKey, isbn string) (Record, error) {
	var firstErr error
	find := func(key string, fn func(context.Context, string) (Record, error)) (Record, bool) {
		if key == "" {
			return Record{}, false
		}
		rec, err := fn(ctx, key)
		if err == nil {
			return rec, true
		}
		if firstErr == nil && !isNotFound(err) {
			firstErr = err
		}
		return Record{}, false
	}

	if rec, ok := find(id, f.FindByID); ok {
		return rec, nil
	}
	if rec, ok := find(externalKey, f.FindByExternalKey); ok {
		return rec, nil
	}
	if rec, ok := find(isbn, f.FindByISBN); ok {
		return rec, nil
	}
	if firstErr != nil {
		return Record{}, firstErr
	}
	return Record{}, ErrNotFound
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
