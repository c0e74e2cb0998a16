// File: internal/history/postgres_test.go
package history

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	return pool
}

func expectSchema(pool pgxmock.PgxPoolIface) {
	pool.ExpectPing()
	pool.ExpectExec("CREATE TABLE IF NOT EXISTS execution_records").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
}

func sampleRecord() schemas.ExecutionRecord {
	return schemas.ExecutionRecord{
		ID:       "rec-1",
		Query:    schemas.Query{RawText: "create experiment demo", ConversationID: "c1"},
		Category: schemas.CategoryActionExecution,
		Path: schemas.ExecutionPath{
			Type:       schemas.PathAPIExecution,
			Steps:      []schemas.Step{{Kind: schemas.StepCapability, CapabilityID: "create_experiment"}},
			Confidence: 0.85,
		},
		Results: []schemas.StepResult{
			{StepIndex: 0, Status: schemas.StepSuccess, Output: "{}", DurationMS: 42},
		},
		Overall:    schemas.OverallSuccess,
		Attempt:    0,
		LatencyMS:  42,
		RecordedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewPostgresRecorderPingFails(t *testing.T) {
	pool := newMockPool(t)
	defer pool.Close()

	pool.ExpectPing().WillReturnError(errors.New("connection refused"))

	_, err := NewPostgresRecorder(context.Background(), pool, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping")
}

func TestPostgresRecordInsertsOneRow(t *testing.T) {
	pool := newMockPool(t)
	defer pool.Close()
	expectSchema(pool)

	rec := sampleRecord()
	pool.ExpectExec(flexibleSQLMatcher("INSERT INTO execution_records")).
		WithArgs(
			rec.ID, string(rec.Category), string(rec.Overall), rec.Attempt, rec.LatencyMS,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), rec.RecordedAt.UTC(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	r, err := NewPostgresRecorder(context.Background(), pool, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, r.Record(context.Background(), rec))
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgresRecordPropagatesInsertError(t *testing.T) {
	pool := newMockPool(t)
	defer pool.Close()
	expectSchema(pool)

	pool.ExpectExec(flexibleSQLMatcher("INSERT INTO execution_records")).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(errors.New("disk full"))

	r, err := NewPostgresRecorder(context.Background(), pool, zap.NewNop())
	require.NoError(t, err)

	err = r.Record(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPostgresQueryHistoryRoundTrip(t *testing.T) {
	pool := newMockPool(t)
	defer pool.Close()
	expectSchema(pool)

	rec := sampleRecord()
	queryJSON, err := json.Marshal(rec.Query)
	require.NoError(t, err)
	pathJSON, err := json.Marshal(rec.Path)
	require.NoError(t, err)
	resultsJSON, err := json.Marshal(rec.Results)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{
		"id", "category", "overall", "attempt", "latency_ms",
		"query", "path", "results", "degraded", "recorded_at",
	}).AddRow(
		rec.ID, string(rec.Category), string(rec.Overall), rec.Attempt, rec.LatencyMS,
		queryJSON, pathJSON, resultsJSON, []byte("null"), rec.RecordedAt,
	)
	pool.ExpectQuery(flexibleSQLMatcher("SELECT id, category, overall, attempt, latency_ms")).
		WithArgs(string(schemas.CategoryActionExecution), 10).
		WillReturnRows(rows)

	r, err := NewPostgresRecorder(context.Background(), pool, zap.NewNop())
	require.NoError(t, err)

	got, err := r.QueryHistory(context.Background(), schemas.CategoryActionExecution, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, rec.Category, got[0].Category)
	assert.Equal(t, rec.Path.Type, got[0].Path.Type)
	require.Len(t, got[0].Results, 1)
	assert.Equal(t, schemas.StepSuccess, got[0].Results[0].Status)
	assert.Empty(t, got[0].DegradedSteps)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPostgresQueryHistoryNoRows(t *testing.T) {
	pool := newMockPool(t)
	defer pool.Close()
	expectSchema(pool)

	pool.ExpectQuery(flexibleSQLMatcher("SELECT id, category, overall, attempt, latency_ms")).
		WithArgs(string(schemas.CategoryAnalysis), 5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "category", "overall", "attempt", "latency_ms",
			"query", "path", "results", "degraded", "recorded_at",
		}))

	r, err := NewPostgresRecorder(context.Background(), pool, zap.NewNop())
	require.NoError(t, err)

	got, err := r.QueryHistory(context.Background(), schemas.CategoryAnalysis, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, pool.ExpectationsWereMet())
}
