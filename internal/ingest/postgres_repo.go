package ingest

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
}

type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) CreateRun(ctx context.Context, run *Run) error {
	const sql = `
		INSERT INTO ingest_runs (id, started_at, status, subjects)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.Exec(ctx, sql, run.ID, run.StartedAt, run.Status, run.Subjects)
	return err
}

func (r *PostgresRepo) UpdateRun(ctx context.Context, run *Run) error {
	const sql = `
		UPDATE ingest_runs SET
			finished_at = $1,
			status = $2,
			works_seen = $3,
			books_created = $4,
			books_existing = $5,
			books_failed = $6,
			error = NULLIF($7, '')
		WHERE id = $8`

	_, err := r.db.Exec(ctx, sql, run.FinishedAt, run.Status, run.WorksSeen, run.BooksCreated,
		run.BooksExisting, run.BooksFailed, run.Error, run.ID)
	return err
}

// MemoryRepo keeps runs in process for STORE_DRIVER=memory.
type MemoryRepo struct {
	mu   sync.Mutex
	runs map[string]Run
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{runs: make(map[string]Run)}
}

func (r *MemoryRepo) CreateRun(_ context.Context, run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

func (r *MemoryRepo) UpdateRun(_ context.Context, run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

func (r *MemoryRepo) Get(id string) (Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	return run, ok
}
