// File: internal/orchestrator/orchestrator.go
// Description: Executes a chosen path's steps with bounded concurrency and
// per-step timeouts, falling back to the next candidate path on failure.

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
	"github.com/luminark/rudder/internal/catalog"
	"github.com/luminark/rudder/internal/config"
)

// Recorder is the slice of the outcome recorder the orchestrator needs.
// Every attempt is persisted regardless of outcome.
type Recorder interface {
	Record(ctx context.Context, rec schemas.ExecutionRecord) error
}

// Orchestrator executes execution paths. It is injected with its
// collaborators via interfaces, keeping it decoupled and testable.
type Orchestrator struct {
	cfg      config.OrchestratorConfig
	logger   *zap.Logger
	exec     StepExecutor
	catalog  *catalog.Catalog
	recorder Recorder
}

// New creates an Orchestrator. All dependencies are required.
func New(
	cfg config.OrchestratorConfig,
	logger *zap.Logger,
	exec StepExecutor,
	cat *catalog.Catalog,
	recorder Recorder,
) (*Orchestrator, error) {
	if logger == nil || exec == nil || cat == nil || recorder == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.Named("orchestrator"),
		exec:     exec,
		catalog:  cat,
		recorder: recorder,
	}, nil
}

// Execute runs one attempt at one path within the timeout budget and returns
// its record. The record is not persisted here; ExecuteWithFallback owns
// persistence so single attempts stay composable in tests.
func (o *Orchestrator) Execute(ctx context.Context, q schemas.Query, category schemas.IntentCategory, path schemas.ExecutionPath, budget time.Duration, attempt int) schemas.ExecutionRecord {
	if budget <= 0 {
		budget = o.cfg.DefaultBudget
	}
	start := time.Now()
	rec := schemas.ExecutionRecord{
		ID:       uuid.NewString(),
		Query:    q,
		Category: category,
		Path:     path,
		Attempt:  attempt,
	}

	if err := validatePath(path); err != nil {
		o.logger.Error("Rejecting malformed path",
			zap.String("path_type", string(path.Type)),
			zap.Error(err),
		)
		rec.Overall = schemas.OverallFailed
		rec.Results = []schemas.StepResult{{Status: schemas.StepFailed, ErrorDetail: err.Error()}}
		rec.LatencyMS = time.Since(start).Milliseconds()
		rec.RecordedAt = time.Now()
		return rec
	}

	deadline := start.Add(budget)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	run := o.newPathRun(runCtx, q, path, deadline)
	rec.Results = run.run()
	rec.Overall, rec.DegradedSteps = summarize(path, rec.Results)
	rec.LatencyMS = time.Since(start).Milliseconds()
	rec.RecordedAt = time.Now()

	o.logger.Info("Path attempt finished",
		zap.String("record_id", rec.ID),
		zap.String("path_type", string(path.Type)),
		zap.Int("attempt", attempt),
		zap.String("overall", string(rec.Overall)),
		zap.Int64("latency_ms", rec.LatencyMS),
	)
	return rec
}

// ExecuteWithFallback walks the ranked candidate list. A failed attempt
// triggers the next candidate, up to the configured maximum number of
// fallbacks; every attempt is persisted. When all tried paths fail it returns
// the last record together with an *AllPathsExhaustedError carrying the full
// attempt list and any partial output.
func (o *Orchestrator) ExecuteWithFallback(ctx context.Context, q schemas.Query, category schemas.IntentCategory, paths []schemas.ExecutionPath, budget time.Duration) (schemas.ExecutionRecord, error) {
	if len(paths) == 0 {
		return schemas.ExecutionRecord{}, fmt.Errorf("no candidate paths to execute")
	}

	maxAttempts := o.cfg.MaxFallbacks + 1
	if maxAttempts > len(paths) {
		maxAttempts = len(paths)
	}

	attempts := make([]schemas.ExecutionRecord, 0, maxAttempts)
	for i := 0; i < maxAttempts; i++ {
		rec := o.Execute(ctx, q, category, paths[i], budget, i)
		o.persist(ctx, rec)
		attempts = append(attempts, rec)

		if rec.Overall == schemas.OverallSuccess {
			return rec, nil
		}
		if ctx.Err() != nil {
			break
		}
		if i+1 < maxAttempts {
			o.logger.Warn("Attempt failed, falling back to next candidate",
				zap.Int("attempt", i),
				zap.String("failed_path", string(paths[i].Type)),
				zap.String("next_path", string(paths[i+1].Type)),
			)
		}
	}

	last := attempts[len(attempts)-1]
	return last, &AllPathsExhaustedError{
		Attempts:      attempts,
		PartialOutput: bestPartialOutput(attempts),
	}
}

// persist writes one attempt's record. Failures are data too, so a recorder
// outage is logged rather than masking the execution outcome.
func (o *Orchestrator) persist(ctx context.Context, rec schemas.ExecutionRecord) {
	if err := o.recorder.Record(ctx, rec); err != nil {
		o.logger.Error("Failed to persist execution record",
			zap.String("record_id", rec.ID),
			zap.Error(err),
		)
	}
}

// summarize derives the path-level outcome. Every required step must succeed;
// optional steps that failed, timed out, or were skipped degrade the response
// without failing it.
func summarize(path schemas.ExecutionPath, results []schemas.StepResult) (schemas.OverallStatus, []int) {
	overall := schemas.OverallSuccess
	var degraded []int
	for i, res := range results {
		if res.Status == schemas.StepSuccess {
			continue
		}
		if path.Steps[i].Optional {
			degraded = append(degraded, i)
			continue
		}
		overall = schemas.OverallFailed
	}
	return overall, degraded
}

// bestPartialOutput picks the longest successful step output across the
// attempts, preferring later attempts.
func bestPartialOutput(attempts []schemas.ExecutionRecord) string {
	best := ""
	for _, rec := range attempts {
		for _, res := range rec.Results {
			if res.Status == schemas.StepSuccess && len(res.Output) >= len(best) && res.Output != "" {
				best = res.Output
			}
		}
	}
	return best
}
