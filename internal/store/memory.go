package store

import (
	"context"
	"sync"
	"time"

	"bookcatalog/internal/book"
)

// Memory is an in-process book.Store with the same uniqueness rules as the
// books table. It backs tests and STORE_DRIVER=memory.
type Memory struct {
	mu     sync.RWMutex
	byID   map[string]book.Record
	byKey  map[string]string
	byISBN map[string]string
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		byID:   make(map[string]book.Record),
		byKey:  make(map[string]string),
		byISBN: make(map[string]string),
		now:    time.Now,
	}
}

func (m *Memory) FindByID(_ context.Context, id string) (book.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return book.Record{}, book.ErrNotFound
	}
	return rec, nil
}

func (m *Memory) FindByExternalKey(_ context.Context, key string) (book.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexed(m.byKey, key)
}

func (m *Memory) FindByISBN(_ context.Context, isbn string) (book.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexed(m.byISBN, isbn)
}

func (m *Memory) indexed(idx map[string]string, key string) (book.Record, error) {
	if key == "" {
		return book.Record{}, book.ErrNotFound
	}
	id, ok := idx[key]
	if !ok {
		return book.Record{}, book.ErrNotFound
	}
	return m.byID[id], nil
}

func (m *Memory) Insert(_ context.Context, c book.Candidate) (book.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[c.LocalID]; ok {
		return book.Record{}, book.ErrConflict
	}
	if _, ok := m.byKey[c.ExternalKey]; ok && c.ExternalKey != "" {
		return book.Record{}, book.ErrConflict
	}
	if _, ok := m.byISBN[c.ISBN]; ok && c.ISBN != "" {
		return book.Record{}, book.ErrConflict
	}

	rec := c.ToRecord(m.now().UTC())
	m.byID[rec.ID] = rec
	if rec.ExternalKey != "" {
		m.byKey[rec.ExternalKey] = rec.ID
	}
	if rec.ISBN != "" {
		m.byISBN[rec.ISBN] = rec.ID
	}
	return rec, nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
