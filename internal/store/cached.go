package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"bookcatalog/internal/book"
	"bookcatalog/internal/platform/logger"
)

const cachePrefix = "bookcatalog:book:"

// Cached is a cache-aside book.Store. Only hits are cached: a miss must
// always reach the database, otherwise the dedup re-checks could read a
// stale "absent" after another writer committed.
type Cached struct {
	next book.Store
	rdb  redis.UniversalClient
	ttl  time.Duration
	log  *logger.Logger
}

func NewCached(next book.Store, rdb redis.UniversalClient, ttl time.Duration, log *logger.Logger) *Cached {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl, log: log.With("component", "book_cache")}
}

func idKey(id string) string     { return cachePrefix + "id:" + id }
func extKey(key string) string   { return cachePrefix + "ext:" + key }
func isbnKey(isbn string) string { return cachePrefix + "isbn:" + isbn }

func recordKeys(rec book.Record) []string {
	keys := []string{idKey(rec.ID)}
	if rec.ExternalKey != "" {
		keys = append(keys, extKey(rec.ExternalKey))
	}
	if rec.ISBN != "" {
		keys = append(keys, isbnKey(rec.ISBN))
	}
	return keys
}

func (c *Cached) FindByID(ctx context.Context, id string) (book.Record, error) {
	return c.lookup(ctx, idKey(id), func() (book.Record, error) { return c.next.FindByID(ctx, id) })
}

func (c *Cached) FindByExternalKey(ctx context.Context, key string) (book.Record, error) {
	if key == "" {
		return book.Record{}, book.ErrNotFound
	}
	return c.lookup(ctx, extKey(key), func() (book.Record, error) { return c.next.FindByExternalKey(ctx, key) })
}

func (c *Cached) FindByISBN(ctx context.Context, isbn string) (book.Record, error) {
	if isbn == "" {
		return book.Record{}, book.ErrNotFound
	}
	return c.lookup(ctx, isbnKey(isbn), func() (book.Record, error) { return c.next.FindByISBN(ctx, isbn) })
}

func (c *Cached) Insert(ctx context.Context, cand book.Candidate) (book.Record, error) {
	rec, err := c.next.Insert(ctx, cand)
	if err != nil {
		return book.Record{}, err
	}
	c.set(ctx, rec)
	return rec, nil
}

// Evict drops every cache entry that could point at rec or at the candidate
// keys it was written under.
func (c *Cached) Evict(ctx context.Context, rec book.Record) error {
	if err := c.rdb.Del(ctx, recordKeys(rec)...).Err(); err != nil {
		return fmt.Errorf("evict book cache: %w", err)
	}
	return nil
}

func (c *Cached) lookup(ctx context.Context, key string, load func() (book.Record, error)) (book.Record, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rec book.Record
		uerr := json.Unmarshal(val, &rec)
		if uerr == nil {
			return rec, nil
		}
		c.log.Warn("dropping undecodable cache entry", "key", key, "error", uerr)
		_ = c.rdb.Del(ctx, key).Err()
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("book cache read failed", "key", key, "error", err)
	}

	rec, err := load()
	if err != nil {
		return book.Record{}, err
	}
	c.set(ctx, rec)
	return rec, nil
}

func (c *Cached) set(ctx context.Context, rec book.Record) {
	val, err := json.Marshal(rec)
	if err != nil {
		c.log.Warn("book cache encode failed", "id", rec.ID, "error", err)
		return
	}
	pipe := c.rdb.Pipeline()
	for _, k := range recordKeys(rec) {
		pipe.Set(ctx, k, val, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("book cache write failed", "id", rec.ID, "error", err)
	}
}
