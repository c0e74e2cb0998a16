// File: internal/history/recorder_test.go
package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
)

func record(id string, cat schemas.IntentCategory, overall schemas.OverallStatus) schemas.ExecutionRecord {
	return schemas.ExecutionRecord{
		ID:         id,
		Category:   cat,
		Overall:    overall,
		RecordedAt: time.Now(),
	}
}

func TestQueryHistoryEmptyIsNotAnError(t *testing.T) {
	r := NewMemoryRecorder(zap.NewNop())

	got, err := r.QueryHistory(context.Background(), schemas.CategoryAnalysis, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryHistoryMostRecentFirst(t *testing.T) {
	r := NewMemoryRecorder(zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Record(ctx, record(fmt.Sprintf("r%d", i), schemas.CategoryActionExecution, schemas.OverallSuccess)))
	}

	got, err := r.QueryHistory(ctx, schemas.CategoryActionExecution, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "r4", got[0].ID)
	assert.Equal(t, "r3", got[1].ID)
	assert.Equal(t, "r2", got[2].ID)
}

func TestQueryHistoryIsIdempotent(t *testing.T) {
	r := NewMemoryRecorder(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, record("r1", schemas.CategoryAnalysis, schemas.OverallFailed)))
	require.NoError(t, r.Record(ctx, record("r2", schemas.CategoryAnalysis, schemas.OverallSuccess)))

	first, err := r.QueryHistory(ctx, schemas.CategoryAnalysis, 10)
	require.NoError(t, err)
	second, err := r.QueryHistory(ctx, schemas.CategoryAnalysis, 10)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(first, second))
}

func TestQueryHistoryIsolatesCategories(t *testing.T) {
	r := NewMemoryRecorder(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, record("a", schemas.CategoryAnalysis, schemas.OverallSuccess)))
	require.NoError(t, r.Record(ctx, record("b", schemas.CategoryActionExecution, schemas.OverallSuccess)))

	got, err := r.QueryHistory(ctx, schemas.CategoryAnalysis, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestConcurrentAppendsAllSurvive(t *testing.T) {
	r := NewMemoryRecorder(zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = r.Record(ctx, record(fmt.Sprintf("g%d-r%d", g, i), schemas.CategoryHybrid, schemas.OverallSuccess))
			}
		}(g)
	}
	wg.Wait()

	got, err := r.QueryHistory(ctx, schemas.CategoryHybrid, 0)
	require.NoError(t, err)
	assert.Len(t, got, 200)
}
