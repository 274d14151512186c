package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"bookcatalog/internal/book"
	"bookcatalog/internal/platform/logger"
)

// gormWriter sends gorm's log lines to the service logger. LogLevel is Warn,
// so every line gorm emits is a slow query or an error.
type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.SugaredLogger.Warnf(format, args...)
}

// OpenGorm connects gorm to Postgres. TranslateError maps unique violations
// to gorm.ErrDuplicatedKey.
func OpenGorm(dsn string, log *logger.Logger) (*gorm.DB, error) {
	gormLog := gormLogger.New(
		gormWriter{log: log.With("component", "gorm")},
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return db, nil
}

// genreList is stored as a JSONB array.
type genreList []string

func (g genreList) Value() (driver.Value, error) {
	if g == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(g))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (g *genreList) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*g = genreList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("genres: unsupported type %T", value)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	if out == nil {
		out = []string{}
	}
	*g = out
	return nil
}

type bookModel struct {
	ID              string    `gorm:"primaryKey"`
	ExternalKey     string    `gorm:"not null;default:''"`
	Title           string    `gorm:"not null"`
	Author          string    `gorm:"not null"`
	ISBN            string    `gorm:"column:isbn;not null;default:''"`
	CoverURL        *string   `gorm:"column:cover_url"`
	Description     *string   `gorm:"column:description"`
	Genres          genreList `gorm:"type:jsonb;not null"`
	Language        string    `gorm:"not null;default:''"`
	PublicationYear *int      `gorm:"column:publication_year"`
	Publisher       string    `gorm:"not null;default:''"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (bookModel) TableName() string { return "books" }

func modelFromCandidate(c book.Candidate, now time.Time) bookModel {
	rec := c.ToRecord(now)
	return bookModel{
		ID:              rec.ID,
		ExternalKey:     rec.ExternalKey,
		Title:           rec.Title,
		Author:          rec.Author,
		ISBN:            rec.ISBN,
		CoverURL:        rec.CoverURL,
		Description:     rec.Description,
		Genres:          genreList(rec.Genres),
		Language:        rec.Language,
		PublicationYear: rec.PublicationYear,
		Publisher:       rec.Publisher,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

func (m bookModel) toRecord() book.Record {
	genres := []string(m.Genres)
	if genres == nil {
		genres = []string{}
	}
	return book.Record{
		ID:              m.ID,
		ExternalKey:     m.ExternalKey,
		Title:           m.Title,
		Author:          m.Author,
		ISBN:            m.ISBN,
		CoverURL:        m.CoverURL,
		Description:     m.Description,
		Genres:          genres,
		Language:        m.Language,
		PublicationYear: m.PublicationYear,
		Publisher:       m.Publisher,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// GormRepo is the book.Store backed by gorm.
type GormRepo struct {
	db *gorm.DB
}

func NewGormRepo(db *gorm.DB) *GormRepo {
	return &GormRepo{db: db}
}

func (r *GormRepo) FindByID(ctx context.Context, id string) (book.Record, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormRepo) FindByExternalKey(ctx context.Context, key string) (book.Record, error) {
	if key == "" {
		return book.Record{}, book.ErrNotFound
	}
	return r.first(ctx, "external_key = ?", key)
}

func (r *GormRepo) FindByISBN(ctx context.Context, isbn string) (book.Record, error) {
	if isbn == "" {
		return book.Record{}, book.ErrNotFound
	}
	return r.first(ctx, "isbn = ?", isbn)
}

func (r *GormRepo) first(ctx context.Context, where string, arg any) (book.Record, error) {
	var m bookModel
	err := r.db.WithContext(ctx).Where(where, arg).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return book.Record{}, book.ErrNotFound
		}
		return book.Record{}, fmt.Errorf("find book: %w", err)
	}
	return m.toRecord(), nil
}

func (r *GormRepo) Insert(ctx context.Context, c book.Candidate) (book.Record, error) {
	m := modelFromCandidate(c, time.Now().UTC())
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return book.Record{}, fmt.Errorf("insert book: %w", book.ErrConflict)
		}
		return book.Record{}, fmt.Errorf("insert book: %w", err)
	}
	return m.toRecord(), nil
}

const forceInsertSQL = `
	INSERT INTO books (id, external_key, title, author, isbn, cover_url, description,
		genres, language, publication_year, publisher, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?::jsonb, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING`

// ForceInsert writes the candidate with raw SQL on a fresh session that
// carries no conditions or transaction from the repository, and commits it
// before returning. A row rejected by a unique index yields book.ErrConflict.
func (r *GormRepo) ForceInsert(ctx context.Context, c book.Candidate) (book.Record, error) {
	m := modelFromCandidate(c, time.Now().UTC())
	genres, err := m.Genres.Value()
	if err != nil {
		return book.Record{}, err
	}

	session := r.db.Session(&gorm.Session{NewDB: true, SkipDefaultTransaction: true})
	err = session.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(forceInsertSQL,
			m.ID, m.ExternalKey, m.Title, m.Author, m.ISBN, m.CoverURL, m.Description,
			genres, m.Language, m.PublicationYear, m.Publisher, m.CreatedAt, m.UpdatedAt,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return book.ErrConflict
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, book.ErrConflict) || isUniqueViolation(err) {
			return book.Record{}, fmt.Errorf("force insert book: %w", book.ErrConflict)
		}
		return book.Record{}, fmt.Errorf("force insert book: %w", err)
	}
	return m.toRecord(), nil
}
