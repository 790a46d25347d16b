// Package db persists scan jobs, completed risk scores, and the creator
// blacklist to Postgres.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/token-risk-guard/internal/blacklist"
	"github.com/rawblock/token-risk-guard/pkg/models"
)

// PostgresStore wraps a pgx connection pool: no ORM, explicit SQL,
// transactional upserts for multi-row writes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for Token Risk Guard")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes the schema.sql file.
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/db/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}

	_, err = s.pool.Exec(context.Background(), string(schemaBytes))
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Token Risk Guard schema initialized")
	return nil
}

// SaveJob upserts a ScanJob's current state.
func (s *PostgresStore) SaveJob(ctx context.Context, job models.ScanJob) error {
	sql := `
		INSERT INTO jobs (request_id, chain, token_address, user_id, tier, priority, state, attempts, enqueued_at, started_at, completed_at, result_ref, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (request_id) DO UPDATE SET
			state = EXCLUDED.state,
			attempts = EXCLUDED.attempts,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			result_ref = EXCLUDED.result_ref,
			last_error = EXCLUDED.last_error;
	`
	_, err := s.pool.Exec(ctx, sql,
		job.RequestID, job.Chain, job.TokenAddress, job.UserID, job.Tier, job.Priority,
		job.State, job.Attempts, job.EnqueuedAt, job.StartedAt, job.CompletedAt, job.ResultRef, job.LastError)
	if err != nil {
		return fmt.Errorf("failed to upsert job: %v", err)
	}
	return nil
}

// GetJob fetches a job by request ID.
func (s *PostgresStore) GetJob(ctx context.Context, requestID string) (models.ScanJob, bool, error) {
	sql := `
		SELECT request_id, chain, token_address, user_id, tier, priority, state, attempts, enqueued_at, started_at, completed_at, result_ref, last_error
		FROM jobs WHERE request_id = $1
	`
	var job models.ScanJob
	err := s.pool.QueryRow(ctx, sql, requestID).Scan(
		&job.RequestID, &job.Chain, &job.TokenAddress, &job.UserID, &job.Tier, &job.Priority,
		&job.State, &job.Attempts, &job.EnqueuedAt, &job.StartedAt, &job.CompletedAt, &job.ResultRef, &job.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ScanJob{}, false, nil
		}
		return models.ScanJob{}, false, fmt.Errorf("failed to query job: %v", err)
	}
	return job, true, nil
}

// FindRecentJob looks up an open (queued or running) job for (chain,
// tokenAddress) enqueued within window, for the pipeline's dedup-window
// check. Completed jobs are not deduplicated against; the whole-scan
// score cache covers repeat lookups of a finished result.
func (s *PostgresStore) FindRecentJob(ctx context.Context, chain models.Chain, tokenAddress string, window time.Duration) (models.ScanJob, bool, error) {
	sql := `
		SELECT request_id, chain, token_address, user_id, tier, priority, state, attempts, enqueued_at, started_at, completed_at, result_ref, last_error
		FROM jobs
		WHERE chain = $1 AND token_address = $2 AND state IN ('QUEUED', 'RUNNING') AND enqueued_at >= $3
		ORDER BY enqueued_at DESC
		LIMIT 1
	`
	var job models.ScanJob
	err := s.pool.QueryRow(ctx, sql, chain, tokenAddress, time.Now().Add(-window)).Scan(
		&job.RequestID, &job.Chain, &job.TokenAddress, &job.UserID, &job.Tier, &job.Priority,
		&job.State, &job.Attempts, &job.EnqueuedAt, &job.StartedAt, &job.CompletedAt, &job.ResultRef, &job.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ScanJob{}, false, nil
		}
		return models.ScanJob{}, false, fmt.Errorf("failed to query recent job: %v", err)
	}
	return job, true, nil
}

// SaveRiskScore persists a completed RiskScore and its metrics/overrides
// in one begin/insert/commit transaction.
func (s *PostgresStore) SaveRiskScore(ctx context.Context, score models.RiskScore) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertScoreSQL := `
		INSERT INTO scores (request_id, schema_version, chain, token_address, final_score, scorable, category, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (request_id) DO UPDATE SET
			final_score = EXCLUDED.final_score, scorable = EXCLUDED.scorable,
			category = EXCLUDED.category, evaluated_at = EXCLUDED.evaluated_at;
	`
	_, err = tx.Exec(ctx, insertScoreSQL, score.RequestID, score.SchemaVersion, score.Chain, score.TokenAddress,
		score.FinalScore, score.Scorable, score.Category, score.EvaluatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert scores: %v", err)
	}

	insertMetricSQL := `
		INSERT INTO score_metrics (request_id, name, raw_value, score, weight, confidence, explanation)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	for _, m := range score.Metrics {
		_, err = tx.Exec(ctx, insertMetricSQL, score.RequestID, m.Name, m.RawValue, m.Score, m.Weight, m.Confidence, m.Explanation)
		if err != nil {
			return fmt.Errorf("failed to insert score_metrics: %v", err)
		}
	}

	insertOverrideSQL := `
		INSERT INTO score_overrides (request_id, kind, triggering_metrics, forced_category)
		VALUES ($1, $2, $3, $4);
	`
	for _, o := range score.Overrides {
		_, err = tx.Exec(ctx, insertOverrideSQL, score.RequestID, o.Kind, o.TriggeringMetrics, o.ForcedCategory)
		if err != nil {
			return fmt.Errorf("failed to insert score_overrides: %v", err)
		}
	}

	return tx.Commit(ctx)
}

// GetRiskScore fetches a persisted RiskScore by request ID, including its
// per-metric breakdown and any triggered overrides.
func (s *PostgresStore) GetRiskScore(ctx context.Context, requestID string) (models.RiskScore, bool, error) {
	sql := `
		SELECT request_id, schema_version, chain, token_address, final_score, scorable, category, evaluated_at
		FROM scores WHERE request_id = $1
	`
	var score models.RiskScore
	err := s.pool.QueryRow(ctx, sql, requestID).Scan(
		&score.RequestID, &score.SchemaVersion, &score.Chain, &score.TokenAddress,
		&score.FinalScore, &score.Scorable, &score.Category, &score.EvaluatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RiskScore{}, false, nil
		}
		return models.RiskScore{}, false, fmt.Errorf("failed to query score: %v", err)
	}

	metricRows, err := s.pool.Query(ctx, `
		SELECT name, raw_value, score, weight, confidence, explanation
		FROM score_metrics WHERE request_id = $1 ORDER BY id
	`, requestID)
	if err != nil {
		return models.RiskScore{}, false, fmt.Errorf("failed to query score_metrics: %v", err)
	}
	defer metricRows.Close()
	for metricRows.Next() {
		var m models.MetricResult
		if err := metricRows.Scan(&m.Name, &m.RawValue, &m.Score, &m.Weight, &m.Confidence, &m.Explanation); err != nil {
			return models.RiskScore{}, false, fmt.Errorf("failed to scan score_metrics row: %v", err)
		}
		score.Metrics = append(score.Metrics, m)
	}

	overrideRows, err := s.pool.Query(ctx, `
		SELECT kind, triggering_metrics, forced_category
		FROM score_overrides WHERE request_id = $1 ORDER BY id
	`, requestID)
	if err != nil {
		return models.RiskScore{}, false, fmt.Errorf("failed to query score_overrides: %v", err)
	}
	defer overrideRows.Close()
	for overrideRows.Next() {
		var o models.Override
		if err := overrideRows.Scan(&o.Kind, &o.TriggeringMetrics, &o.ForcedCategory); err != nil {
			return models.RiskScore{}, false, fmt.Errorf("failed to scan score_overrides row: %v", err)
		}
		score.Overrides = append(score.Overrides, o)
	}

	return score, true, nil
}

// PurgeExpiredJobs deletes jobs older than retention (scores are kept
// indefinitely).
func (s *PostgresStore) PurgeExpiredJobs(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE enqueued_at < $1`, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired jobs: %v", err)
	}
	return tag.RowsAffected(), nil
}

// ListBlacklist satisfies blacklist.Source, loading the current creator
// blacklist snapshot.
func (s *PostgresStore) ListBlacklist(ctx context.Context) ([]blacklist.Entry, error) {
	sql := `SELECT creator_address, label, prior_rug_count, added_at FROM creator_blacklist`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to query creator_blacklist: %v", err)
	}
	defer rows.Close()

	var entries []blacklist.Entry
	for rows.Next() {
		var e blacklist.Entry
		if err := rows.Scan(&e.CreatorAddress, &e.Label, &e.PriorRugCount, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan creator_blacklist row: %v", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetPool exposes the connection pool for subsystems that need direct
// access (e.g. a future migration runner).
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}
