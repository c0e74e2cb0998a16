// File: internal/orchestrator/run.go
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/luminark/rudder/api/schemas"
)

// pathRun is the mutable state of one attempt at one path. Steps run
// concurrently under a semaphore; all status transitions happen under mu.
type pathRun struct {
	orc  *Orchestrator
	q    schemas.Query
	path schemas.ExecutionPath

	ctx      context.Context // Carries the path budget deadline.
	deadline time.Time
	sem      *semaphore.Weighted
	wg       sync.WaitGroup

	mu          sync.Mutex
	statuses    []schemas.StepStatus
	results     []schemas.StepResult
	outputs     []string
	pendingDeps []int
	blocked     []bool  // A required dependency finished without success.
	dependents  [][]int // Reverse edges of DependsOn.
}

// validatePath rejects out-of-range dependency indices and cycles. The
// selector only builds acyclic plans, but the orchestrator re-checks because
// a path that cannot topologically sort would deadlock the run.
func validatePath(path schemas.ExecutionPath) error {
	n := len(path.Steps)
	if n == 0 {
		return fmt.Errorf("path has no steps")
	}
	indegree := make([]int, n)
	for i, step := range path.Steps {
		for _, d := range step.DependsOn {
			if d < 0 || d >= n {
				return fmt.Errorf("step %d depends on out-of-range step %d", i, d)
			}
			if d == i {
				return fmt.Errorf("step %d depends on itself", i)
			}
			indegree[i]++
		}
	}

	// Kahn's algorithm; if not every step is visited the graph has a cycle.
	dependents := reverseEdges(path)
	queue := make([]int, 0, n)
	for i, deg := range indegree {
		if deg == 0 {
			queue = append(queue, i)
		}
	}
	visited := 0
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		visited++
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	if visited != n {
		return fmt.Errorf("dependency graph contains a cycle")
	}
	return nil
}

func reverseEdges(path schemas.ExecutionPath) [][]int {
	dependents := make([][]int, len(path.Steps))
	for i, step := range path.Steps {
		for _, d := range step.DependsOn {
			dependents[d] = append(dependents[d], i)
		}
	}
	return dependents
}

func (o *Orchestrator) newPathRun(ctx context.Context, q schemas.Query, path schemas.ExecutionPath, deadline time.Time) *pathRun {
	n := len(path.Steps)
	r := &pathRun{
		orc:         o,
		q:           q,
		path:        path,
		ctx:         ctx,
		deadline:    deadline,
		sem:         semaphore.NewWeighted(int64(o.cfg.MaxConcurrency)),
		statuses:    make([]schemas.StepStatus, n),
		results:     make([]schemas.StepResult, n),
		outputs:     make([]string, n),
		pendingDeps: make([]int, n),
		blocked:     make([]bool, n),
		dependents:  reverseEdges(path),
	}
	for i, step := range path.Steps {
		r.statuses[i] = schemas.StepPending
		r.pendingDeps[i] = len(step.DependsOn)
	}
	return r
}

// run executes every step to a terminal state and returns the results.
func (r *pathRun) run() []schemas.StepResult {
	// Seed from the static structure only; steps with dependencies are
	// dispatched by complete() as their last dependency finishes.
	for i, step := range r.path.Steps {
		if len(step.DependsOn) == 0 {
			r.dispatch(i)
		}
	}
	r.wg.Wait()

	// Anything not terminal at this point never became dispatchable before
	// the budget ran out.
	r.mu.Lock()
	leftovers := make([]int, 0)
	for i, st := range r.statuses {
		if !st.Terminal() {
			leftovers = append(leftovers, i)
		}
	}
	r.mu.Unlock()
	for _, i := range leftovers {
		r.complete(i, schemas.StepResult{StepIndex: i, Status: schemas.StepSkipped})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.StepResult, len(r.results))
	copy(out, r.results)
	return out
}

// dispatch schedules one ready step under the concurrency semaphore.
func (r *pathRun) dispatch(idx int) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			// Path budget expired before the step could start.
			r.complete(idx, schemas.StepResult{StepIndex: idx, Status: schemas.StepSkipped})
			return
		}
		defer r.sem.Release(1)
		r.execute(idx)
	}()
}

// execute runs a single step bounded by its computed timeout.
func (r *pathRun) execute(idx int) {
	step := r.path.Steps[idx]

	r.mu.Lock()
	if r.statuses[idx].Terminal() {
		r.mu.Unlock()
		return
	}
	r.statuses[idx] = schemas.StepRunning
	depOutputs := make([]string, len(step.DependsOn))
	for i, d := range step.DependsOn {
		depOutputs[i] = r.outputs[d]
	}
	r.mu.Unlock()

	timeout := r.stepTimeout(step)
	if timeout <= 0 {
		r.complete(idx, schemas.StepResult{StepIndex: idx, Status: schemas.StepTimedOut, ErrorDetail: "path budget exhausted"})
		return
	}
	stepCtx, cancel := context.WithTimeout(r.ctx, timeout)
	defer cancel()

	start := time.Now()
	output, err := r.orc.exec.ExecuteStep(stepCtx, r.q, step, depOutputs)
	duration := time.Since(start).Milliseconds()

	res := schemas.StepResult{StepIndex: idx, DurationMS: duration}
	switch {
	case err == nil:
		res.Status = schemas.StepSuccess
		res.Output = output
	case stepCtx.Err() != nil:
		res.Status = schemas.StepTimedOut
		res.ErrorDetail = (&StepExecutionError{StepIndex: idx, Kind: step.Kind, Err: err}).Error()
	default:
		res.Status = schemas.StepFailed
		res.ErrorDetail = (&StepExecutionError{StepIndex: idx, Kind: step.Kind, Err: err}).Error()
	}
	r.complete(idx, res)
}

// stepTimeout bounds a step by the smaller of the remaining path budget and
// the capability's average latency scaled by the safety factor. The configured
// floor keeps pathological latency metadata from starving a step outright.
func (r *pathRun) stepTimeout(step schemas.Step) time.Duration {
	remaining := time.Until(r.deadline)
	if remaining <= 0 {
		return 0
	}
	timeout := remaining
	if step.Kind == schemas.StepCapability {
		if cap, ok := r.orc.catalog.Get(step.CapabilityID); ok && cap.AvgLatencyMS > 0 {
			scaled := time.Duration(float64(cap.AvgLatencyMS)*r.orc.cfg.SafetyFactor) * time.Millisecond
			if scaled < r.orc.cfg.MinStepTimeout {
				scaled = r.orc.cfg.MinStepTimeout
			}
			if scaled < timeout {
				timeout = scaled
			}
		}
	}
	return timeout
}

// complete records a terminal result and advances the dependency graph. A
// required dependency that did not succeed marks its dependents blocked; once
// all of a blocked step's dependencies are terminal it cascades to skipped.
// Failed optional dependencies do not block: dependents run with that input
// missing and the attempt is reported as degraded instead.
func (r *pathRun) complete(idx int, res schemas.StepResult) {
	r.mu.Lock()
	if r.statuses[idx].Terminal() {
		r.mu.Unlock()
		return
	}
	r.statuses[idx] = res.Status
	r.results[idx] = res
	if res.Status == schemas.StepSuccess {
		r.outputs[idx] = res.Output
	}

	var ready, skipped []int
	optionalMiss := r.path.Steps[idx].Optional &&
		(res.Status == schemas.StepFailed || res.Status == schemas.StepTimedOut)
	for _, d := range r.dependents[idx] {
		r.pendingDeps[d]--
		if res.Status != schemas.StepSuccess && !optionalMiss {
			r.blocked[d] = true
		}
		if r.pendingDeps[d] == 0 {
			if r.blocked[d] {
				skipped = append(skipped, d)
			} else {
				ready = append(ready, d)
			}
		}
	}
	r.mu.Unlock()

	for _, d := range skipped {
		r.complete(d, schemas.StepResult{StepIndex: d, Status: schemas.StepSkipped})
	}
	for _, d := range ready {
		r.dispatch(d)
	}
}
