// File: internal/selector/selector_test.go
package selector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
	"github.com/luminark/rudder/internal/catalog"
	"github.com/luminark/rudder/internal/config"
	"github.com/luminark/rudder/internal/history"
	"github.com/luminark/rudder/internal/stubs"
)

func newTestSelector(t *testing.T, caps []schemas.Capability, rec history.Recorder) *Selector {
	t.Helper()
	cat := catalog.New(stubs.NewRegistry(caps), zap.NewNop())
	require.NoError(t, cat.Refresh(context.Background()))
	cfg := config.NewDefaultConfig()
	return New(cfg.Selector, cat, rec, zap.NewNop())
}

func actionIntent(conf float64, entities ...schemas.Entity) schemas.Intent {
	return schemas.Intent{
		Category:   schemas.CategoryActionExecution,
		Confidence: conf,
		Entities:   entities,
	}
}

func hasPathType(paths []schemas.ExecutionPath, pt schemas.PathType) bool {
	for _, p := range paths {
		if p.Type == pt {
			return true
		}
	}
	return false
}

func TestSelectAlwaysIncludesDirectLLM(t *testing.T) {
	s := newTestSelector(t, []schemas.Capability{}, nil)

	paths := s.Select(context.Background(), []schemas.Intent{actionIntent(0.9)})
	require.NotEmpty(t, paths)
	assert.True(t, hasPathType(paths, schemas.PathDirectLLM))
}

func TestSelectEmptyIntentsStillYieldsAPath(t *testing.T) {
	s := newTestSelector(t, []schemas.Capability{}, nil)

	paths := s.Select(context.Background(), nil)
	require.NotEmpty(t, paths)
	assert.True(t, hasPathType(paths, schemas.PathDirectLLM))
}

func TestSelectPrefersAPIExecutionWhenSatisfiable(t *testing.T) {
	caps := []schemas.Capability{{
		ID:       "create_experiment",
		Category: schemas.CategoryActionExecution,
		Parameters: map[string]schemas.ParameterSpec{
			"name": {Type: "string", Required: true},
		},
		ReliabilityScore: 0.95,
		AvgLatencyMS:     100,
	}}
	s := newTestSelector(t, caps, nil)

	intent := actionIntent(0.9, schemas.Entity{Name: "name", Value: "demo"})
	paths := s.Select(context.Background(), []schemas.Intent{intent})

	require.NotEmpty(t, paths)
	assert.Equal(t, schemas.PathAPIExecution, paths[0].Type)
	require.Len(t, paths[0].Steps, 1)
	assert.Equal(t, "create_experiment", paths[0].Steps[0].CapabilityID)
	assert.Equal(t, "demo", paths[0].Steps[0].Parameters["name"])
	assert.InDelta(t, 0.9*0.95, paths[0].Confidence, 1e-9)
}

func TestSelectEmptyCatalogFallsBackToDirectLLM(t *testing.T) {
	s := newTestSelector(t, []schemas.Capability{}, nil)

	intent := actionIntent(0.9, schemas.Entity{Name: "name", Value: "demo"})
	paths := s.Select(context.Background(), []schemas.Intent{intent})

	require.NotEmpty(t, paths)
	assert.Equal(t, schemas.PathDirectLLM, paths[0].Type)
	assert.False(t, hasPathType(paths, schemas.PathAPIExecution))
}

func TestSelectSkipsUnsatisfiableCapability(t *testing.T) {
	caps := []schemas.Capability{{
		ID:       "delete_experiment",
		Category: schemas.CategoryActionExecution,
		Parameters: map[string]schemas.ParameterSpec{
			"experiment": {Type: "string", Required: true},
		},
		ReliabilityScore: 0.95,
	}}
	s := newTestSelector(t, caps, nil)

	// The only entity still needs clarification, so it must not bind.
	intent := actionIntent(0.9, schemas.Entity{Name: "reference", NeedsClarification: true})
	paths := s.Select(context.Background(), []schemas.Intent{intent})

	assert.False(t, hasPathType(paths, schemas.PathAPIExecution))
	assert.Equal(t, schemas.PathDirectLLM, paths[0].Type)
}

func TestSelectBuildsRAGPathFromKnowledgeSource(t *testing.T) {
	caps := []schemas.Capability{{
		ID:               "search_docs",
		Category:         schemas.CategoryInformationRetrieval,
		ReliabilityScore: 0.9,
		KnowledgeSource:  true,
	}}
	s := newTestSelector(t, caps, nil)

	intent := schemas.Intent{Category: schemas.CategoryInformationRetrieval, Confidence: 0.8}
	paths := s.Select(context.Background(), []schemas.Intent{intent})

	require.True(t, hasPathType(paths, schemas.PathRAG))
	for _, p := range paths {
		if p.Type != schemas.PathRAG {
			continue
		}
		require.Len(t, p.Steps, 2)
		assert.Equal(t, schemas.StepRetrieval, p.Steps[0].Kind)
		assert.Equal(t, schemas.StepLLM, p.Steps[1].Kind)
		assert.Equal(t, []int{0}, p.Steps[1].DependsOn)
		assert.InDelta(t, 0.8*0.9, p.Confidence, 1e-9)
	}
}

func TestSelectBuildsHybridWhenParametersNeedASecondSource(t *testing.T) {
	caps := []schemas.Capability{
		{
			ID:       "compare_runs",
			Category: schemas.CategoryAnalysis,
			Parameters: map[string]schemas.ParameterSpec{
				"experiment": {Type: "string", Required: true},
			},
			ReliabilityScore: 0.9,
		},
		{
			ID:               "run_reports",
			Category:         schemas.CategoryAnalysis,
			ReliabilityScore: 0.85,
			KnowledgeSource:  true,
		},
	}
	s := newTestSelector(t, caps, nil)

	// No entity can bind the required parameter, so a retrieval step has to
	// fill the gap before the capability runs.
	intent := schemas.Intent{Category: schemas.CategoryAnalysis, Confidence: 0.8}
	paths := s.Select(context.Background(), []schemas.Intent{intent})

	require.True(t, hasPathType(paths, schemas.PathHybrid))
	for _, p := range paths {
		if p.Type != schemas.PathHybrid {
			continue
		}
		require.Len(t, p.Steps, 3)
		assert.Equal(t, schemas.StepRetrieval, p.Steps[0].Kind)
		assert.Equal(t, schemas.StepCapability, p.Steps[1].Kind)
		assert.True(t, p.Steps[1].Optional)
		assert.Equal(t, schemas.StepLLM, p.Steps[2].Kind)
		assert.ElementsMatch(t, []int{0, 1}, p.Steps[2].DependsOn)
	}
}

func TestRankTieBreaksByStepCountThenDirectLast(t *testing.T) {
	cfg := config.NewDefaultConfig()
	s := &Selector{cfg: cfg.Selector, log: zap.NewNop()}

	paths := []schemas.ExecutionPath{
		{Type: schemas.PathRAG, Steps: make([]schemas.Step, 2), Confidence: 0.700},
		{Type: schemas.PathAPIExecution, Steps: make([]schemas.Step, 1), Confidence: 0.695},
		{Type: schemas.PathDirectLLM, Steps: make([]schemas.Step, 1), Confidence: 0.700},
	}
	s.rank(paths)

	// All three are within epsilon: fewer steps first, direct_llm last among
	// the single-step equals.
	assert.Equal(t, schemas.PathAPIExecution, paths[0].Type)
	assert.Equal(t, schemas.PathDirectLLM, paths[1].Type)
	assert.Equal(t, schemas.PathRAG, paths[2].Type)
}

func TestEMAAdjustmentLowersConfidenceAfterFailures(t *testing.T) {
	caps := []schemas.Capability{{
		ID:       "create_experiment",
		Category: schemas.CategoryActionExecution,
		Parameters: map[string]schemas.ParameterSpec{
			"name": {Type: "string", Required: true},
		},
		ReliabilityScore: 0.95,
	}}

	rec := history.NewMemoryRecorder(zap.NewNop())
	for i := 0; i < 10; i++ {
		require.NoError(t, rec.Record(context.Background(), schemas.ExecutionRecord{
			ID:       string(rune('a' + i)),
			Category: schemas.CategoryActionExecution,
			Overall:  schemas.OverallFailed,
		}))
	}

	intent := actionIntent(0.9, schemas.Entity{Name: "name", Value: "demo"})

	baseline := newTestSelector(t, caps, nil).Select(context.Background(), []schemas.Intent{intent})
	adjusted := newTestSelector(t, caps, rec).Select(context.Background(), []schemas.Intent{intent})

	basConf, adjConf := -1.0, -1.0
	for _, p := range baseline {
		if p.Type == schemas.PathAPIExecution {
			basConf = p.Confidence
		}
	}
	for _, p := range adjusted {
		if p.Type == schemas.PathAPIExecution {
			adjConf = p.Confidence
		}
	}
	require.GreaterOrEqual(t, basConf, 0.0)
	require.GreaterOrEqual(t, adjConf, 0.0)
	assert.Less(t, adjConf, basConf, "a run of failures must depress reliability")
}

func TestConstructedPathsAreAcyclic(t *testing.T) {
	s := newTestSelector(t, stubs.DefaultCapabilities(), nil)

	intents := []schemas.Intent{
		actionIntent(0.9, schemas.Entity{Name: "name", Value: "demo"}),
		{Category: schemas.CategoryInformationRetrieval, Confidence: 0.7},
		{Category: schemas.CategoryAnalysis, Confidence: 0.6},
		{Category: schemas.CategoryHybrid, Confidence: 0.5},
	}
	paths := s.Select(context.Background(), intents)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		assert.True(t, isAcyclic(p), "path %s has a dependency cycle", p.Type)
	}
}

// isAcyclic runs a topological sort over a path's dependency graph.
func isAcyclic(p schemas.ExecutionPath) bool {
	n := len(p.Steps)
	indeg := make([]int, n)
	dependents := make([][]int, n)
	for i, st := range p.Steps {
		for _, d := range st.DependsOn {
			if d < 0 || d >= n {
				return false
			}
			indeg[i]++
			dependents[d] = append(dependents[d], i)
		}
	}
	queue := []int{}
	for i, deg := range indeg {
		if deg == 0 {
			queue = append(queue, i)
		}
	}
	seen := 0
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		seen++
		for _, d := range dependents[i] {
			indeg[d]--
			if indeg[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	return seen == n
}
