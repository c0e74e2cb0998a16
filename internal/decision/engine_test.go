// File: internal/decision/engine_test.go
package decision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/luminark/rudder/api/schemas"
	"github.com/luminark/rudder/internal/classifier"
	"github.com/luminark/rudder/internal/config"
	"github.com/luminark/rudder/internal/history"
	"github.com/luminark/rudder/internal/orchestrator"
	"github.com/luminark/rudder/internal/stubs"
)

// slowRegistry delays every execution call, long enough to trip the per-step
// timeout in the fallback test.
type slowRegistry struct {
	*stubs.Registry
	delay time.Duration
}

func (s *slowRegistry) Execute(ctx context.Context, capabilityID string, params map[string]string) (schemas.CallResult, error) {
	select {
	case <-time.After(s.delay):
		return s.Registry.Execute(ctx, capabilityID, params)
	case <-ctx.Done():
		return schemas.CallResult{}, ctx.Err()
	}
}

func newTestEngine(t *testing.T, registry schemas.ConnectorRegistry, recorder history.Recorder) *Engine {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Orchestrator.DefaultBudget = 5 * time.Second
	cfg.Catalog.CallRateLimit = 0 // No throttling in tests.

	engine, err := New(cfg, zaptest.NewLogger(t), stubs.NewLLM(), stubs.NewRetriever(), registry, recorder)
	require.NoError(t, err)
	require.NoError(t, engine.Refresh(context.Background()))
	return engine
}

func query(text, conv string, turn int) schemas.Query {
	return schemas.Query{RawText: text, ConversationID: conv, TurnIndex: turn, Timestamp: time.Now()}
}

func TestDecideRejectsEmptyQuery(t *testing.T) {
	engine := newTestEngine(t, stubs.NewRegistry(nil), history.NewMemoryRecorder(zaptest.NewLogger(t).Named("history")))

	_, err := engine.Decide(context.Background(), query("", "c1", 0))
	require.Error(t, err)
	var vErr *classifier.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestDecideExecutesMatchingCapability(t *testing.T) {
	recorder := history.NewMemoryRecorder(zaptest.NewLogger(t))
	engine := newTestEngine(t, stubs.NewRegistry(nil), recorder)

	decision, err := engine.Decide(context.Background(), query("Create a new experiment called demo", "c1", 0))
	require.NoError(t, err)

	assert.Equal(t, schemas.PathAPIExecution, decision.Record.Path.Type)
	assert.Equal(t, schemas.OverallSuccess, decision.Record.Overall)
	require.NotEmpty(t, decision.Record.Path.Steps)
	assert.Equal(t, "create_experiment", decision.Record.Path.Steps[0].CapabilityID)
	assert.Equal(t, "demo", decision.Record.Path.Steps[0].Parameters["name"])
	assert.NotEmpty(t, decision.Response)
	assert.Empty(t, decision.Clarification)

	// The attempt landed in history.
	records, err := recorder.QueryHistory(context.Background(), decision.Intent.Category, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, decision.Record.ID, records[0].ID)
}

func TestDecideEmptyCatalogFallsBackToDirectLLM(t *testing.T) {
	recorder := history.NewMemoryRecorder(zaptest.NewLogger(t))
	engine := newTestEngine(t, stubs.NewRegistry([]schemas.Capability{}), recorder)

	decision, err := engine.Decide(context.Background(), query("Create a new experiment called demo", "c1", 0))
	require.NoError(t, err)

	assert.Equal(t, schemas.PathDirectLLM, decision.Record.Path.Type)
	assert.Equal(t, schemas.OverallSuccess, decision.Record.Overall)
	assert.NotEmpty(t, decision.Response)
}

func TestDecideFallsBackWhenCapabilityTimesOut(t *testing.T) {
	recorder := history.NewMemoryRecorder(zaptest.NewLogger(t))
	registry := &slowRegistry{Registry: stubs.NewRegistry(nil), delay: 3 * time.Second}
	engine := newTestEngine(t, registry, recorder)

	decision, err := engine.Decide(context.Background(), query("Create a new experiment called demo", "c1", 0))
	require.NoError(t, err)

	// The api_execution attempt timed out; the returned record is the
	// direct_llm fallback, and both attempts are in history.
	assert.Equal(t, schemas.PathDirectLLM, decision.Record.Path.Type)
	assert.Equal(t, schemas.OverallSuccess, decision.Record.Overall)

	records, err := recorder.QueryHistory(context.Background(), decision.Intent.Category, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	first := records[1] // Most recent first; the timed-out attempt is older.
	assert.Equal(t, schemas.PathAPIExecution, first.Path.Type)
	assert.Equal(t, schemas.OverallFailed, first.Overall)
	require.NotEmpty(t, first.Results)
	assert.Equal(t, schemas.StepTimedOut, first.Results[0].Status)
}

func TestDecideCarriesContextAcrossTurns(t *testing.T) {
	recorder := history.NewMemoryRecorder(zaptest.NewLogger(t))
	engine := newTestEngine(t, stubs.NewRegistry(nil), recorder)
	ctx := context.Background()

	first, err := engine.Decide(ctx, query("Create a new experiment called demo", "conv-1", 0))
	require.NoError(t, err)
	require.Equal(t, schemas.OverallSuccess, first.Record.Overall)
	assert.Equal(t, "demo", first.Context.Entities["name"])

	second, err := engine.Decide(ctx, query("now delete it", "conv-1", 1))
	require.NoError(t, err)
	assert.Empty(t, second.Clarification, "the reference resolves from the previous turn")
	require.Equal(t, schemas.PathAPIExecution, second.Record.Path.Type)
	require.NotEmpty(t, second.Record.Path.Steps)
	assert.Equal(t, "delete_experiment", second.Record.Path.Steps[0].CapabilityID)
	assert.Equal(t, "demo", second.Record.Path.Steps[0].Parameters["experiment"])
}

func TestDecideAsksForClarificationOnUnresolvedReference(t *testing.T) {
	recorder := history.NewMemoryRecorder(zaptest.NewLogger(t))
	engine := newTestEngine(t, stubs.NewRegistry(nil), recorder)

	decision, err := engine.Decide(context.Background(), query("delete it", "fresh-conv", 0))
	require.NoError(t, err)
	assert.NotEmpty(t, decision.Clarification)
	// With nothing to bind, no connector action may run; the turn still
	// answers through a safe path.
	assert.NotEqual(t, schemas.PathAPIExecution, decision.Record.Path.Type)
}

func TestDecideSurfacesAllPathsExhausted(t *testing.T) {
	recorder := history.NewMemoryRecorder(zaptest.NewLogger(t))
	cfg := config.NewDefaultConfig()
	cfg.Catalog.CallRateLimit = 0

	engine, err := New(cfg, zaptest.NewLogger(t),
		stubs.NewLLM(), stubs.NewRetriever(), stubs.NewRegistry([]schemas.Capability{}), recorder,
		WithStepExecutor(failingExecutor{}),
	)
	require.NoError(t, err)
	require.NoError(t, engine.Refresh(context.Background()))

	_, err = engine.Decide(context.Background(), query("list experiments", "c1", 0))
	require.Error(t, err)
	var exhausted *orchestrator.AllPathsExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.NotEmpty(t, exhausted.Attempts)
}

type failingExecutor struct{}

func (failingExecutor) ExecuteStep(ctx context.Context, q schemas.Query, step schemas.Step, depOutputs []string) (string, error) {
	return "", context.DeadlineExceeded
}
