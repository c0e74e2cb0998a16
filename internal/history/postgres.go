// File: internal/history/postgres.go
package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// schemaSQL creates the append-only history table. Records are immutable;
// there is deliberately no UPDATE or DELETE anywhere in this package.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS execution_records (
    id          TEXT PRIMARY KEY,
    category    TEXT NOT NULL,
    overall     TEXT NOT NULL,
    attempt     INT NOT NULL,
    latency_ms  BIGINT NOT NULL,
    query       JSONB NOT NULL,
    path        JSONB NOT NULL,
    results     JSONB NOT NULL,
    degraded    JSONB,
    recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS execution_records_category_recorded_at
    ON execution_records (category, recorded_at DESC);
`

// PostgresRecorder persists execution records in PostgreSQL.
type PostgresRecorder struct {
	pool DBPool
	log  *zap.Logger
}

var _ Recorder = (*PostgresRecorder)(nil)

// NewPostgresRecorder verifies the connection and ensures the schema exists.
func NewPostgresRecorder(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresRecorder, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure history schema: %w", err)
	}
	return &PostgresRecorder{
		pool: pool,
		log:  logger.Named("history"),
	}, nil
}

// Record appends one record.
func (r *PostgresRecorder) Record(ctx context.Context, rec schemas.ExecutionRecord) error {
	queryJSON, err := json.Marshal(rec.Query)
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}
	pathJSON, err := json.Marshal(rec.Path)
	if err != nil {
		return fmt.Errorf("failed to marshal path: %w", err)
	}
	resultsJSON, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	degradedJSON, err := json.Marshal(rec.DegradedSteps)
	if err != nil {
		return fmt.Errorf("failed to marshal degraded steps: %w", err)
	}

	const insertSQL = `
        INSERT INTO execution_records
            (id, category, overall, attempt, latency_ms, query, path, results, degraded, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
    `
	_, err = r.pool.Exec(ctx, insertSQL,
		rec.ID, string(rec.Category), string(rec.Overall), rec.Attempt, rec.LatencyMS,
		queryJSON, pathJSON, resultsJSON, degradedJSON, rec.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution record: %w", err)
	}
	return nil
}

// QueryHistory returns up to limit records for a category, most recent first.
func (r *PostgresRecorder) QueryHistory(ctx context.Context, category schemas.IntentCategory, limit int) ([]schemas.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const selectSQL = `
        SELECT id, category, overall, attempt, latency_ms, query, path, results, degraded, recorded_at
        FROM execution_records
        WHERE category = $1
        ORDER BY recorded_at DESC
        LIMIT $2;
    `
	rows, err := r.pool.Query(ctx, selectSQL, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution records: %w", err)
	}
	defer rows.Close()

	var records []schemas.ExecutionRecord
	for rows.Next() {
		var (
			rec          schemas.ExecutionRecord
			categoryStr  string
			overallStr   string
			queryJSON    []byte
			pathJSON     []byte
			resultsJSON  []byte
			degradedJSON []byte
		)
		err := rows.Scan(
			&rec.ID, &categoryStr, &overallStr, &rec.Attempt, &rec.LatencyMS,
			&queryJSON, &pathJSON, &resultsJSON, &degradedJSON, &rec.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record row: %w", err)
		}

		rec.Category = schemas.IntentCategory(categoryStr)
		rec.Overall = schemas.OverallStatus(overallStr)
		if err := json.Unmarshal(queryJSON, &rec.Query); err != nil {
			return nil, fmt.Errorf("failed to unmarshal query for record %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(pathJSON, &rec.Path); err != nil {
			return nil, fmt.Errorf("failed to unmarshal path for record %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal(resultsJSON, &rec.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results for record %s: %w", rec.ID, err)
		}
		if len(degradedJSON) > 0 && string(degradedJSON) != "null" {
			if err := json.Unmarshal(degradedJSON, &rec.DegradedSteps); err != nil {
				return nil, fmt.Errorf("failed to unmarshal degraded steps for record %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}
