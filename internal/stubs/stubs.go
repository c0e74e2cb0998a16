// File: internal/stubs/stubs.go
// Description: Deterministic in-process collaborators. They stand in for the
// real LLM service, RAG engine, and connector registry so the core can run
// end to end without external services, and they double as fixtures in tests.

package stubs

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/luminark/rudder/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// -- LLM --

// LLM is a canned-response LLM client. Output is a deterministic function of
// the request, which keeps end-to-end runs reproducible.
type LLM struct{}

var _ schemas.LLMClient = (*LLM)(nil)

func NewLLM() *LLM { return &LLM{} }

func (l *LLM) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResult, error) {
	if err := ctx.Err(); err != nil {
		return schemas.GenerationResult{}, err
	}
	var b strings.Builder
	if len(req.Snippets) > 0 {
		fmt.Fprintf(&b, "Based on %d context snippet(s): ", len(req.Snippets))
	}
	fmt.Fprintf(&b, "Here is my answer to %q.", req.UserPrompt)
	text := b.String()
	return schemas.GenerationResult{
		Text:       text,
		TokensUsed: len(strings.Fields(req.UserPrompt)) + len(strings.Fields(text)),
	}, nil
}

func (l *LLM) Close() error { return nil }

// -- Retriever --

// Retriever serves passages from a fixed document set, scored by naive token
// overlap with the query.
type Retriever struct {
	docs []schemas.Passage
}

var _ schemas.Retriever = (*Retriever)(nil)

func NewRetriever() *Retriever {
	return &Retriever{
		docs: []schemas.Passage{
			{Text: "Experiments group related runs and carry tags, a name and a lifecycle stage.", Source: "docs/experiments"},
			{Text: "A run records parameters, metrics and artifacts produced by one training execution.", Source: "docs/runs"},
			{Text: "Registered models version trained artifacts and track stage transitions.", Source: "docs/models"},
			{Text: "Metrics are step-indexed numeric series; parameters are immutable key-value pairs.", Source: "docs/tracking"},
			{Text: "Deleting an experiment soft-deletes it; it can be restored until permanently purged.", Source: "docs/lifecycle"},
		},
	}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]schemas.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := strings.Fields(strings.ToLower(query))
	out := make([]schemas.Passage, 0, len(r.docs))
	for _, d := range r.docs {
		lower := strings.ToLower(d.Text)
		hits := 0
		for _, t := range terms {
			if strings.Contains(lower, t) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		d.Relevance = float64(hits) / float64(len(terms))
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// -- Connector registry --

// Registry is a static connector registry over a fixed capability set.
// Execute acknowledges calls with a deterministic JSON receipt.
type Registry struct {
	mu   sync.RWMutex
	caps []schemas.Capability
}

var _ schemas.ConnectorRegistry = (*Registry)(nil)

// NewRegistry serves the given capabilities; nil means DefaultCapabilities.
func NewRegistry(caps []schemas.Capability) *Registry {
	if caps == nil {
		caps = DefaultCapabilities()
	}
	return &Registry{caps: caps}
}

func (r *Registry) ListCapabilities(ctx context.Context, category schemas.IntentCategory) ([]schemas.Capability, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schemas.Capability, 0, len(r.caps))
	for _, c := range r.caps {
		if category == "" || c.Category == category {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *Registry) Execute(ctx context.Context, capabilityID string, params map[string]string) (schemas.CallResult, error) {
	if err := ctx.Err(); err != nil {
		return schemas.CallResult{}, err
	}
	r.mu.RLock()
	known := false
	for _, c := range r.caps {
		if c.ID == capabilityID {
			known = true
			break
		}
	}
	r.mu.RUnlock()
	if !known {
		return schemas.CallResult{
			Status: schemas.CallError,
			Error:  fmt.Sprintf("unknown capability %q", capabilityID),
		}, nil
	}

	receipt, err := json.MarshalToString(map[string]any{
		"capability": capabilityID,
		"parameters": params,
		"result":     "ok",
	})
	if err != nil {
		return schemas.CallResult{}, err
	}
	return schemas.CallResult{Status: schemas.CallOK, Output: receipt}, nil
}

// SetCapabilities replaces the served capability set, simulating registry
// churn between invocations.
func (r *Registry) SetCapabilities(caps []schemas.Capability) {
	r.mu.Lock()
	r.caps = caps
	r.mu.Unlock()
}

// LoadCapabilities reads a JSON capability seed file.
func LoadCapabilities(path string) ([]schemas.Capability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading capability seed: %w", err)
	}
	var caps []schemas.Capability
	if err := json.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("parsing capability seed %s: %w", path, err)
	}
	return caps, nil
}

// DefaultCapabilities is the built-in capability set, modeled on an
// experiment-tracking connector's action surface.
func DefaultCapabilities() []schemas.Capability {
	required := func(t string) schemas.ParameterSpec { return schemas.ParameterSpec{Type: t, Required: true} }
	optional := func(t string) schemas.ParameterSpec { return schemas.ParameterSpec{Type: t, Required: false} }

	return []schemas.Capability{
		{
			ID:       "create_experiment",
			Category: schemas.CategoryActionExecution,
			Parameters: map[string]schemas.ParameterSpec{
				"name": required("string"),
				"tags": optional("string"),
			},
			ReliabilityScore: 0.95,
			AvgLatencyMS:     120,
		},
		{
			ID:       "delete_experiment",
			Category: schemas.CategoryActionExecution,
			Parameters: map[string]schemas.ParameterSpec{
				"experiment": required("string"),
			},
			ReliabilityScore: 0.93,
			AvgLatencyMS:     100,
		},
		{
			ID:       "log_metric",
			Category: schemas.CategoryActionExecution,
			Parameters: map[string]schemas.ParameterSpec{
				"run":    required("string"),
				"metric": required("string"),
			},
			ReliabilityScore: 0.9,
			AvgLatencyMS:     80,
		},
		{
			ID:       "list_experiments",
			Category: schemas.CategoryInformationRetrieval,
			Parameters: map[string]schemas.ParameterSpec{
				"filter": optional("string"),
			},
			ReliabilityScore: 0.97,
			AvgLatencyMS:     150,
		},
		{
			ID:       "get_experiment_details",
			Category: schemas.CategoryInformationRetrieval,
			Parameters: map[string]schemas.ParameterSpec{
				"experiment": required("string"),
			},
			ReliabilityScore: 0.96,
			AvgLatencyMS:     130,
		},
		{
			ID:       "search_docs",
			Category: schemas.CategoryInformationRetrieval,
			Parameters: map[string]schemas.ParameterSpec{
				"query": optional("string"),
			},
			ReliabilityScore: 0.9,
			AvgLatencyMS:     200,
			KnowledgeSource:  true,
		},
		{
			ID:       "compare_runs",
			Category: schemas.CategoryAnalysis,
			Parameters: map[string]schemas.ParameterSpec{
				"experiment": required("string"),
				"metric":     optional("string"),
			},
			ReliabilityScore: 0.88,
			AvgLatencyMS:     400,
		},
		{
			ID:       "run_reports",
			Category: schemas.CategoryAnalysis,
			Parameters: map[string]schemas.ParameterSpec{
				"experiment": optional("string"),
			},
			ReliabilityScore: 0.85,
			AvgLatencyMS:     350,
			KnowledgeSource:  true,
		},
		{
			ID:       "summarize_workspace",
			Category: schemas.CategoryHybrid,
			Parameters: map[string]schemas.ParameterSpec{
				"scope": optional("string"),
			},
			ReliabilityScore: 0.8,
			AvgLatencyMS:     500,
		},
	}
}
