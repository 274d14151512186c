package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"bookcatalog/internal/book"
	"bookcatalog/internal/catalog"
	"bookcatalog/internal/config"
	"bookcatalog/internal/dedup"
	"bookcatalog/internal/httpx"
	"bookcatalog/internal/ingest"
	"bookcatalog/internal/platform/logger"
	"bookcatalog/internal/platform/openlibrary"
	"bookcatalog/internal/resolver"
	"bookcatalog/internal/store"
	"bookcatalog/internal/upsert"
)

const maxBodyBytes = 1 << 20

type app struct {
	handler  http.Handler
	closers  []func()
	resolver *resolver.Service
	warmer   *ingest.Service
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires storage, the catalog client and the HTTP surface. The
// returned app owns every connection it opened.
func buildApp(ctx context.Context, cfg config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	ol := openlibrary.NewClient(openlibrary.Options{
		BaseURL:    cfg.OpenLibraryBaseURL,
		UserAgent:  cfg.OpenLibraryUserAgent,
		RPS:        cfg.OpenLibraryRPS,
		MaxRetries: cfg.OpenLibraryMaxRetries,
		Timeout:    cfg.OpenLibraryTimeout,
	})
	cat := catalog.NewClient(ol, log)

	var (
		st         book.Store
		strategies []upsert.Strategy
		ingestRepo ingest.Repository
		ping       func(context.Context) error
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := store.NewMemory()
		st = mem
		strategies = []upsert.Strategy{store.NewRepositorySave(mem)}
		ingestRepo = ingest.NewMemoryRepo()
		log.Warn("using in-memory store, data is lost on restart")

	default:
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		ping = pool.Ping

		gdb, err := store.OpenGorm(cfg.DBDSN, log)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			a.closers = append(a.closers, func() { _ = sqlDB.Close() })
		}
		repo := store.NewGormRepo(gdb)
		st = repo

		var evicter store.Evicter
		if cfg.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
			a.closers = append(a.closers, func() { _ = rdb.Close() })
			cached := store.NewCached(repo, rdb, cfg.RedisTTL, log)
			st = cached
			evicter = cached
			log.Info("redis read-through cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL)
		}

		strategies = []upsert.Strategy{
			store.NewPGDirect(pool),
			store.NewRepositorySave(st),
			store.NewForcedFlush(repo, evicter, log),
		}
		ingestRepo = ingest.NewPostgresRepo(pool)
	}

	pipeline := upsert.NewPipeline(st, log, strategies...)
	a.resolver = resolver.NewService(cat, st, dedup.NewCoordinator(), pipeline, log)
	a.warmer = ingest.NewService(a.resolver, ingestRepo, ingest.Config{
		Subjects: cfg.WarmSubjects,
		Limit:    cfg.WarmLimit,
	}, log)

	router := http.NewServeMux()
	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
			defer cancel()
			if err := ping(ctx); err != nil {
				httpx.JSONError(w, r, http.StatusServiceUnavailable, "NOT_READY", "db not ready", nil)
				return
			}
		}
		httpx.JSONSuccess(w, r, http.StatusOK, map[string]string{
			"status":          "ready",
			"store":           cfg.StoreDriver,
			"catalog_breaker": ol.BreakerState(),
		}, nil)
	})
	router.Handle("GET /metrics", promhttp.Handler())

	resolver.NewHTTPHandler(a.resolver).Register(router, httpx.AuthMiddleware(cfg.JWTSecret))
	ingest.NewHTTPHandler(a.warmer).Register(router, httpx.InternalSecretMiddleware(cfg.InternalSecret))

	rl := httpx.NewRateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst)
	a.closers = append(a.closers, rl.Stop)

	a.handler = httpx.Chain(router,
		httpx.RequestIDMiddleware,
		httpx.AccessLogMiddleware(log),
		httpx.RecoveryMiddleware(log),
		httpx.SecurityHeadersMiddleware,
		httpx.CORSMiddleware(cfg.CORSOrigins),
		httpx.RequestSizeLimitMiddleware(maxBodyBytes),
		rl.Middleware,
	)
	return a, nil
}

func openPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("cannot create db pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.DBTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cannot ping database (%s): %w", config.RedactDSN(cfg.DBDSN), err)
	}
	return pool, nil
}
