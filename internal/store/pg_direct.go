package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookcatalog/internal/book"
	"bookcatalog/internal/upsert"
)

const bookColumns = `id, external_key, title, author, isbn, cover_url, description,
	genres, language, publication_year, publisher, created_at, updated_at`

// PGDirect inserts through a raw pgx transaction, bypassing gorm and the
// cache. The existence check and the insert share the transaction.
type PGDirect struct {
	db *pgxpool.Pool
}

func NewPGDirect(db *pgxpool.Pool) *PGDirect {
	return &PGDirect{db: db}
}

func (s *PGDirect) Name() string { return "pg_direct" }

func (s *PGDirect) Attempt(ctx context.Context, c book.Candidate) upsert.Outcome {
	rec, err := s.insert(ctx, c)
	switch {
	case err == nil:
		return upsert.OK(rec)
	case errors.Is(err, book.ErrConflict):
		return upsert.Conflict(rec, err)
	default:
		return upsert.Transient(err)
	}
}

func (s *PGDirect) insert(ctx context.Context, c book.Candidate) (book.Record, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return book.Record{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const existsSQL = `
		SELECT ` + bookColumns + `
		FROM books
		WHERE id = $1
			OR ($2 <> '' AND external_key = $2)
			OR ($3 <> '' AND isbn = $3)
		LIMIT 1`
	existing, err := scanBook(tx.QueryRow(ctx, existsSQL, c.LocalID, c.ExternalKey, c.ISBN))
	if err == nil {
		return existing, book.ErrConflict
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return book.Record{}, fmt.Errorf("existence check: %w", err)
	}

	rec := c.ToRecord(time.Now().UTC())
	const insert = `
		INSERT INTO books (` + bookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT DO NOTHING
		RETURNING ` + bookColumns
	created, err := scanBook(tx.QueryRow(ctx, insert,
		rec.ID, rec.ExternalKey, rec.Title, rec.Author, rec.ISBN, rec.CoverURL, rec.Description,
		rec.Genres, rec.Language, rec.PublicationYear, rec.Publisher, rec.CreatedAt, rec.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return book.Record{}, book.ErrConflict
		}
		if isUniqueViolation(err) {
			return book.Record{}, fmt.Errorf("insert: %w", book.ErrConflict)
		}
		return book.Record{}, fmt.Errorf("insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return book.Record{}, fmt.Errorf("commit: %w", book.ErrConflict)
		}
		return book.Record{}, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func scanBook(row pgx.Row) (book.Record, error) {
	var rec book.Record
	err := row.Scan(
		&rec.ID,
		&rec.ExternalKey,
		&rec.Title,
		&rec.Author,
		&rec.ISBN,
		&rec.CoverURL,
		&rec.Description,
		&rec.Genres,
		&rec.Language,
		&rec.PublicationYear,
		&rec.Publisher,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if rec.Genres == nil {
		rec.Genres = []string{}
	}
	return rec, err
}
