package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"bookcatalog/internal/catalog"
	"bookcatalog/internal/config"
	"bookcatalog/internal/dedup"
	"bookcatalog/internal/platform/logger"
	"bookcatalog/internal/platform/openlibrary"
	"bookcatalog/internal/resolver"
	"bookcatalog/internal/store"
	"bookcatalog/internal/upsert"
)

// seed resolves a list of Open Library work keys into the local store.
//
//	go run ./cmd/seed -file keys.txt
//	go run ./cmd/seed OL45804W OL27448W
func main() {
	var (
		file        = flag.String("file", "", "File with one work key per line ('-' for stdin)")
		concurrency = flag.Int("concurrency", 4, "Keys resolved in parallel")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	keys := flag.Args()
	if *file != "" {
		var r io.Reader = os.Stdin
		if *file != "-" {
			f, err := os.Open(*file)
			if err != nil {
				log.Fatal("failed to open key file", "file", *file, "error", err)
			}
			defer f.Close()
			r = f
		}
		fromFile, err := readKeys(r)
		if err != nil {
			log.Fatal("failed to read key file", "file", *file, "error", err)
		}
		keys = append(keys, fromFile...)
	}
	if len(keys) == 0 {
		log.Fatal("no keys given, pass them as arguments or with -file")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal("failed to connect to database", "dsn", config.RedactDSN(cfg.DBDSN), "error", err)
	}
	defer pool.Close()

	gdb, err := store.OpenGorm(cfg.DBDSN, log)
	if err != nil {
		log.Fatal("failed to open gorm", "error", err)
	}
	repo := store.NewGormRepo(gdb)

	ol := openlibrary.NewClient(openlibrary.Options{
		BaseURL:    cfg.OpenLibraryBaseURL,
		UserAgent:  cfg.OpenLibraryUserAgent,
		RPS:        cfg.OpenLibraryRPS,
		MaxRetries: cfg.OpenLibraryMaxRetries,
		Timeout:    cfg.OpenLibraryTimeout,
	})
	pipeline := upsert.NewPipeline(repo, log,
		store.NewPGDirect(pool),
		store.NewRepositorySave(repo),
		store.NewForcedFlush(repo, nil, log),
	)
	svc := resolver.NewService(catalog.NewClient(ol, log), repo, dedup.NewCoordinator(), pipeline, log)

	var created, existing, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*concurrency, 1))
	for _, key := range keys {
		g.Go(func() error {
			res, err := svc.ResolveByKey(gctx, key)
			switch {
			case err == nil && res.Created:
				created.Add(1)
			case err == nil:
				existing.Add(1)
			case errors.Is(err, context.Canceled):
				return err
			default:
				failed.Add(1)
				log.Warn("failed to resolve key", "key", key, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("seed interrupted", "error", err)
	}

	log.Info("seed finished",
		"keys", len(keys),
		"created", created.Load(),
		"existing", existing.Load(),
		"failed", failed.Load(),
	)
}

// readKeys returns the non-blank lines of r. Lines starting with # are skipped.
func readKeys(r io.Reader) ([]string, error) {
	var keys []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	return keys, sc.Err()
}
