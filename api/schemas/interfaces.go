// File: api/schemas/interfaces.go
package schemas

import (
	"context"
)

// -- LLM Service --

// ModelTier selects a large language model by a preference for speed versus
// capability, leaving the concrete model choice to the LLM service.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions controls the generation process.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Lower is more deterministic.
	MaxTokens       int     `json:"max_tokens"`        // 0 means provider default.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, the model must emit valid JSON.
}

// GenerationRequest is one complete request to the LLM service. Snippets
// carries retrieved context passages for grounded synthesis.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Snippets     []string          `json:"snippets,omitempty"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// GenerationResult is the LLM service's reply.
type GenerationResult struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}

// LLMClient abstracts the LLM service. The concrete provider binding lives
// outside the core.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
	Close() error
}

// -- RAG Engine --

// Passage is one retrieved knowledge fragment.
type Passage struct {
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance"` // In [0,1], higher is more relevant.
}

// Retriever abstracts the RAG engine's knowledge retrieval call.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Passage, error)
}

// -- Connector Registry --

// CallStatus is the outcome of a single capability execution call.
type CallStatus string

const (
	CallOK    CallStatus = "ok"
	CallError CallStatus = "error"
)

// CallResult is the connector registry's reply to an execution call.
type CallResult struct {
	Status CallStatus `json:"status"`
	Output string     `json:"output,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// ConnectorRegistry abstracts the external registry that owns capabilities.
// ListCapabilities with an empty category returns everything. Both methods
// must be safe for concurrent use.
type ConnectorRegistry interface {
	ListCapabilities(ctx context.Context, category IntentCategory) ([]Capability, error)
	Execute(ctx context.Context, capabilityID string, params map[string]string) (CallResult, error)
}
