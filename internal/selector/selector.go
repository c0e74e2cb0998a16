// File: internal/selector/selector.go
package selector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
	"github.com/luminark/rudder/internal/catalog"
	"github.com/luminark/rudder/internal/config"
)

// CapabilityUnavailableError reports that no catalog entry matched a required
// category. It never crosses the core's boundary: the selector absorbs it and
// falls back to direct_llm or rag paths.
type CapabilityUnavailableError struct {
	Category schemas.IntentCategory
}

func (e *CapabilityUnavailableError) Error() string {
	return fmt.Sprintf("no capability available for category %q", e.Category)
}

// HistoryReader is the slice of the outcome recorder the selector needs.
type HistoryReader interface {
	QueryHistory(ctx context.Context, category schemas.IntentCategory, limit int) ([]schemas.ExecutionRecord, error)
}

// Selector ranks candidate execution paths for a classified query. Reliability
// scores from the catalog are adjusted by an exponential moving average over
// recent outcomes before they enter any confidence computation; that
// adjustment is the system's sole learning mechanism.
type Selector struct {
	cfg     config.SelectorConfig
	catalog *catalog.Catalog
	history HistoryReader
	log     *zap.Logger
}

// New builds a Selector. history may be nil, in which case no reliability
// adjustment is applied.
func New(cfg config.SelectorConfig, cat *catalog.Catalog, history HistoryReader, log *zap.Logger) *Selector {
	return &Selector{
		cfg:     cfg,
		catalog: cat,
		history: history,
		log:     log.Named("selector"),
	}
}

// Select produces candidate paths ordered by descending aggregate confidence.
// The result is never empty: a direct_llm path is always present as the
// fallback of last resort.
func (s *Selector) Select(ctx context.Context, intents []schemas.Intent) []schemas.ExecutionPath {
	if len(intents) == 0 {
		// The classifier never hands us nothing, but the contract holds even
		// if a caller does.
		intents = []schemas.Intent{{Category: schemas.CategoryInformationRetrieval, Confidence: 0.3}}
	}
	adjust := s.newAdjuster(ctx)

	paths := make([]schemas.ExecutionPath, 0, len(intents)*3)
	for _, intent := range intents {
		paths = append(paths, s.buildDirectPath(intent))

		if rag, ok := s.buildRAGPath(intent, adjust); ok {
			paths = append(paths, rag)
		}

		api, err := s.buildAPIPath(intent, adjust)
		if err == nil {
			paths = append(paths, api)
		} else {
			s.log.Debug("No api_execution path for intent",
				zap.String("category", string(intent.Category)),
				zap.Error(err),
			)
		}

		if hybrid, ok := s.buildHybridPath(intent, adjust); ok {
			paths = append(paths, hybrid)
		}
	}

	paths = dedupe(paths)
	s.rank(paths)

	s.log.Debug("Paths selected",
		zap.Int("candidates", len(paths)),
		zap.String("top_type", string(paths[0].Type)),
		zap.Float64("top_confidence", paths[0].Confidence),
	)
	return paths
}

// rank sorts by descending confidence. Within the configured epsilon two
// paths count as tied: the one with fewer steps wins, and direct_llm, being
// the cheapest, is ordered last among equals.
func (s *Selector) rank(paths []schemas.ExecutionPath) {
	sort.SliceStable(paths, func(i, j int) bool {
		a, b := paths[i], paths[j]
		diff := a.Confidence - b.Confidence
		if diff > s.cfg.TieEpsilon {
			return true
		}
		if diff < -s.cfg.TieEpsilon {
			return false
		}
		if len(a.Steps) != len(b.Steps) {
			return len(a.Steps) < len(b.Steps)
		}
		if (a.Type == schemas.PathDirectLLM) != (b.Type == schemas.PathDirectLLM) {
			return b.Type == schemas.PathDirectLLM
		}
		return false
	})
}

func (s *Selector) buildDirectPath(intent schemas.Intent) schemas.ExecutionPath {
	return schemas.ExecutionPath{
		Type: schemas.PathDirectLLM,
		Steps: []schemas.Step{
			{Kind: schemas.StepLLM},
		},
		Confidence: intent.Confidence * (1 - s.cfg.ComplexityPenalty),
	}
}

// buildRAGPath is constructible only when the catalog holds at least one
// knowledge-source capability for the intent's category. Confidence uses the
// best source's adjusted reliability as the relevance estimate.
func (s *Selector) buildRAGPath(intent schemas.Intent, adjust reliabilityAdjuster) (schemas.ExecutionPath, bool) {
	sources := s.catalog.KnowledgeSources(intent.Category)
	if len(sources) == 0 {
		return schemas.ExecutionPath{}, false
	}

	relevance := 0.0
	for _, src := range sources {
		if adj := adjust(src.Category, src.ReliabilityScore); adj > relevance {
			relevance = adj
		}
	}

	return schemas.ExecutionPath{
		Type: schemas.PathRAG,
		Steps: []schemas.Step{
			{Kind: schemas.StepRetrieval},
			{Kind: schemas.StepLLM, DependsOn: []int{0}},
		},
		Confidence: intent.Confidence * relevance,
	}, true
}

// buildAPIPath picks the most reliable capability in the intent's category
// whose required parameters are all satisfiable from the extracted entities.
func (s *Selector) buildAPIPath(intent schemas.Intent, adjust reliabilityAdjuster) (schemas.ExecutionPath, error) {
	caps := s.catalog.ByCategory(intent.Category)
	if len(caps) == 0 {
		return schemas.ExecutionPath{}, &CapabilityUnavailableError{Category: intent.Category}
	}

	var (
		best       schemas.Capability
		bestParams map[string]string
		bestScore  = -1.0
	)
	for _, cap := range caps {
		params, ok := bindParameters(cap, intent.Entities)
		if !ok {
			continue
		}
		score := adjust(cap.Category, cap.ReliabilityScore)
		if nameMatches(cap.ID, intent.Entities) {
			score += 0.1
		}
		if score > bestScore {
			best, bestParams, bestScore = cap, params, score
		}
	}
	if bestScore < 0 {
		return schemas.ExecutionPath{}, fmt.Errorf("no capability in %q satisfiable from extracted entities", intent.Category)
	}

	return schemas.ExecutionPath{
		Type: schemas.PathAPIExecution,
		Steps: []schemas.Step{
			{Kind: schemas.StepCapability, CapabilityID: best.ID, Parameters: bestParams},
		},
		Confidence: intent.Confidence * adjust(best.Category, best.ReliabilityScore),
	}, nil
}

// buildHybridPath combines a retrieval step and a capability step under a
// final synthesis step. It is constructible when the query needs more than
// one data source: either the intent is hybrid outright, or a capability
// matches but its required parameters cannot all be bound from entities and a
// knowledge source exists to fill the gap.
func (s *Selector) buildHybridPath(intent schemas.Intent, adjust reliabilityAdjuster) (schemas.ExecutionPath, bool) {
	sources := s.catalog.KnowledgeSources(intent.Category)
	caps := s.catalog.ByCategory(intent.Category)
	if len(sources) == 0 || len(caps) == 0 {
		return schemas.ExecutionPath{}, false
	}

	var (
		best      schemas.Capability
		bestScore = -1.0
	)
	for _, cap := range caps {
		if cap.KnowledgeSource {
			continue
		}
		score := adjust(cap.Category, cap.ReliabilityScore)
		if score > bestScore {
			best, bestScore = cap, score
		}
	}
	if bestScore < 0 {
		return schemas.ExecutionPath{}, false
	}

	_, fullyBound := bindParameters(best, intent.Entities)
	if intent.Category != schemas.CategoryHybrid && fullyBound {
		// One source suffices; the plain api_execution path covers it.
		return schemas.ExecutionPath{}, false
	}

	relevance := 0.0
	for _, src := range sources {
		if adj := adjust(src.Category, src.ReliabilityScore); adj > relevance {
			relevance = adj
		}
	}
	params, _ := bindParameters(best, intent.Entities)
	if params == nil {
		params = bindKnownParameters(best, intent.Entities)
	}

	return schemas.ExecutionPath{
		Type: schemas.PathHybrid,
		Steps: []schemas.Step{
			{Kind: schemas.StepRetrieval},
			{Kind: schemas.StepCapability, CapabilityID: best.ID, Parameters: params, DependsOn: []int{0}, Optional: true},
			{Kind: schemas.StepLLM, DependsOn: []int{0, 1}},
		},
		Confidence: intent.Confidence * (relevance + bestScore) / 2,
	}, true
}

// dedupe keeps the highest-confidence path per (type, capability) signature.
// Several intents over the same query often propose identical plans.
func dedupe(paths []schemas.ExecutionPath) []schemas.ExecutionPath {
	seen := make(map[string]int, len(paths))
	out := paths[:0]
	for _, p := range paths {
		var capID string
		for _, st := range p.Steps {
			if st.CapabilityID != "" {
				capID = st.CapabilityID
				break
			}
		}
		key := string(p.Type) + "|" + capID
		if idx, ok := seen[key]; ok {
			if p.Confidence > out[idx].Confidence {
				out[idx] = p
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, p)
	}
	return out
}

// nameMatches reports whether a capability id mentions the query's action
// verb or another extracted value, a hint that the user named the action.
func nameMatches(capID string, entities []schemas.Entity) bool {
	for _, e := range entities {
		if e.Name == "verb" && e.Value != "" && strings.Contains(capID, e.Value) {
			return true
		}
		if e.Name != "" && e.Name != "verb" && strings.Contains(capID, e.Name) {
			return true
		}
	}
	return false
}
