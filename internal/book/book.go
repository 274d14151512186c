package book

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record matches a lookup.
	ErrNotFound = errors.New("book not found")
	// ErrConflict is returned by Insert when a uniqueness constraint
	// (id, external key or isbn) rejects the row.
	ErrConflict = errors.New("book already exists")
	// ErrPersistenceExhausted is returned when every persistence strategy
	// failed and no record became visible afterwards.
	ErrPersistenceExhausted = errors.New("could not persist book")
)

// Candidate is a book that has not been persisted yet. Its LocalID is chosen
// before anyone knows whether a matching record already exists.
type Candidate struct {
	LocalID         string
	ExternalKey     string
	Title           string
	Author          string
	ISBN            string
	CoverURL        *string
	Description     *string
	Genres          []string
	Language        string
	PublicationYear *int
	Publisher       string
}

// Record is the persisted form of a book.
type Record struct {
	ID              string    `json:"id"`
	ExternalKey     string    `json:"external_key,omitempty"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn,omitempty"`
	CoverURL        *string   `json:"cover_url,omitempty"`
	Description     *string   `json:"description,omitempty"`
	Genres          []string  `json:"genres"`
	Language        string    `json:"language,omitempty"`
	PublicationYear *int      `json:"publication_year,omitempty"`
	Publisher       string    `json:"publisher,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ToRecord converts the candidate into the record it would become when
// inserted at the given time.
func (c Candidate) ToRecord(now time.Time) Record {
	genres := c.Genres
	if genres == nil {
		genres = []string{}
	}
	return Record{
		ID:              c.LocalID,
		ExternalKey:     c.ExternalKey,
		Title:           c.Title,
		Author:          c.Author,
		ISBN:            c.ISBN,
		CoverURL:        c.CoverURL,
		Description:     c.Description,
		Genres:          append([]string(nil), genres...),
		Language:        c.Language,
		PublicationYear: c.PublicationYear,
		Publisher:       c.Publisher,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
