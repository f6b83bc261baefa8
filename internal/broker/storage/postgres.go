package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/broker/storage/migrations"
)

// PostgresResultStore keeps results in the job_results table. Expired rows are
// invisible to Fetch and removed by PurgeExpired.
type PostgresResultStore struct {
	db *sql.DB
}

type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	Migrate      bool
}

func OpenPostgresResultStore(ctx context.Context, cfg PostgresConfig) (*PostgresResultStore, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	if cfg.Migrate {
		if err := Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return NewPostgresResultStore(db), nil
}

func NewPostgresResultStore(db *sql.DB) *PostgresResultStore {
	return &PostgresResultStore{db: db}
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations.Files)
	goose.SetTableName("inferq_schema_migrations")
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Reserve inserts the job ID, taking over a row only once it has expired.
func (s *PostgresResultStore) Reserve(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	const query = `
		INSERT INTO job_ids (job_id, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (job_id) DO UPDATE SET expires_at = EXCLUDED.expires_at
		WHERE job_ids.expires_at <= now()`

	res, err := s.db.ExecContext(ctx, query, jobID, time.Now().UTC().Add(ttl))
	if err != nil {
		return false, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresResultStore) Release(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_ids WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresResultStore) Publish(ctx context.Context, result core.Result, ttl time.Duration) error {
	const query = `
		INSERT INTO job_results (job_id, label, score, error_kind, produced_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO UPDATE SET
			label = EXCLUDED.label,
			score = EXCLUDED.score,
			error_kind = EXCLUDED.error_kind,
			produced_at = EXCLUDED.produced_at,
			expires_at = EXCLUDED.expires_at`

	expiresAt := time.Now().UTC().Add(ttl)
	_, err := s.db.ExecContext(ctx, query,
		result.JobID, result.Label, result.Score, string(result.ErrorKind), result.ProducedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresResultStore) Fetch(ctx context.Context, jobID string) (core.Result, error) {
	const query = `
		SELECT job_id, label, score, error_kind, produced_at
		FROM job_results
		WHERE job_id = $1 AND expires_at > now()`

	var (
		result core.Result
		kind   string
	)
	err := s.db.QueryRowContext(ctx, query, jobID).
		Scan(&result.JobID, &result.Label, &result.Score, &kind, &result.ProducedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Result{}, core.ErrResultNotFound
	}
	if err != nil {
		return core.Result{}, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	result.ErrorKind = core.ErrorKind(kind)
	result.ProducedAt = result.ProducedAt.UTC()
	return result, nil
}

func (s *PostgresResultStore) Delete(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_results WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

// PurgeExpired removes expired results and job ID reservations. The count
// covers results only.
func (s *PostgresResultStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_results WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_ids WHERE expires_at <= $1`, now.UTC()); err != nil {
		return int(n), fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return int(n), nil
}

func (s *PostgresResultStore) Close() error {
	return s.db.Close()
}
