// File: api/schemas/schemas.go
package schemas

import (
	"time"
)

// -- Query --

// Query is the immutable input for a single user turn. It is created once by
// the transport layer and never mutated by the core.
type Query struct {
	RawText        string    `json:"raw_text"`        // The user's text, unnormalized.
	ConversationID string    `json:"conversation_id"` // Groups turns into a conversation.
	TurnIndex      int       `json:"turn_index"`      // 0-based position within the conversation.
	Timestamp      time.Time `json:"timestamp"`       // When the turn arrived.
}

// -- Intent --

// IntentCategory classifies the purpose of a user query. Each category maps
// to a family of capabilities in the catalog.
type IntentCategory string

const (
	CategoryInformationRetrieval IntentCategory = "information_retrieval" // Lookups answered from a knowledge source.
	CategoryActionExecution      IntentCategory = "action_execution"      // State-changing calls against a connector.
	CategoryAnalysis             IntentCategory = "analysis"              // Aggregation or summarization over data.
	CategoryHybrid               IntentCategory = "hybrid"                // Needs more than one data source.
)

// Entity is a value extracted from the query text. Span is the [start,end)
// byte range in RawText the value was extracted from; resolved references
// carry the span of the referring expression.
type Entity struct {
	Name               string `json:"name"`
	Value              string `json:"value"`
	SpanStart          int    `json:"span_start"`
	SpanEnd            int    `json:"span_end"`
	NeedsClarification bool   `json:"needs_clarification,omitempty"` // Set when a reference could not be resolved; Value is empty.
}

// Intent is one classified reading of a Query. Immutable once produced by the
// classifier.
type Intent struct {
	Category   IntentCategory `json:"category"`
	Confidence float64        `json:"confidence"` // In [0,1].
	Entities   []Entity       `json:"entities,omitempty"`
}

// -- Capability --

// ParameterSpec describes one parameter of a capability's schema.
type ParameterSpec struct {
	Type     string `json:"type"` // "string", "number", "bool".
	Required bool   `json:"required"`
}

// Capability is a single callable connector action. Owned by the Connector
// Registry; read-only to the core. Entries may appear or disappear between
// invocations and the core must tolerate both.
type Capability struct {
	ID               string                   `json:"id"`
	Category         IntentCategory           `json:"category"`
	Parameters       map[string]ParameterSpec `json:"parameters,omitempty"`
	ReliabilityScore float64                  `json:"reliability_score"` // In [0,1].
	AvgLatencyMS     int64                    `json:"avg_latency_ms"`
	KnowledgeSource  bool                     `json:"knowledge_source,omitempty"` // True for retrieval-backed capabilities usable by rag paths.
}

// -- Execution plan --

// PathType identifies the strategy an ExecutionPath implements.
type PathType string

const (
	PathDirectLLM    PathType = "direct_llm"
	PathRAG          PathType = "rag"
	PathAPIExecution PathType = "api_execution"
	PathHybrid       PathType = "hybrid"
)

// StepKind tells the orchestrator which collaborator a step calls.
type StepKind string

const (
	StepLLM        StepKind = "llm"        // Response generation via the LLM service.
	StepRetrieval  StepKind = "retrieval"  // Knowledge retrieval via the RAG engine.
	StepCapability StepKind = "capability" // Connector execution via the registry.
)

// Step is a single unit of work within a path. DependsOn holds indices of
// steps within the same path that must succeed before this step may start;
// the graph over indices must be acyclic.
type Step struct {
	Kind         StepKind          `json:"kind"`
	CapabilityID string            `json:"capability_id,omitempty"` // Empty for llm and retrieval steps.
	Parameters   map[string]string `json:"parameters,omitempty"`
	DependsOn    []int             `json:"depends_on,omitempty"`
	Optional     bool              `json:"optional,omitempty"` // A failed optional step degrades the response instead of failing the path.
}

// ExecutionPath is an ordered plan of steps chosen to fulfill a query. It is
// constructed by the strategy selector and never mutated afterwards; a failed
// path is abandoned, not edited.
type ExecutionPath struct {
	Type       PathType `json:"type"`
	Steps      []Step   `json:"steps"`
	Confidence float64  `json:"confidence"` // Aggregate confidence, used for ranking.
}

// -- Execution outcome --

// StepStatus is the terminal or in-flight state of a single step.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepRunning  StepStatus = "running"
	StepSuccess  StepStatus = "success"
	StepFailed   StepStatus = "failed"
	StepTimedOut StepStatus = "timed_out"
	StepSkipped  StepStatus = "skipped" // A dependency finished failed or timed_out, or the path was abandoned.
)

// Terminal reports whether the status is a resting state.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepSuccess, StepFailed, StepTimedOut, StepSkipped:
		return true
	}
	return false
}

// StepResult reports the outcome of one executed step.
type StepResult struct {
	StepIndex   int        `json:"step_index"`
	Status      StepStatus `json:"status"`
	Output      string     `json:"output,omitempty"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
}

// OverallStatus is the path-level outcome of an attempt.
type OverallStatus string

const (
	OverallSuccess OverallStatus = "success"
	OverallFailed  OverallStatus = "failed"
)

// ExecutionRecord is the persisted outcome of one attempt at one path.
// Written once by the outcome recorder and immutable thereafter; the
// append-only sequence of records is the history used for confidence
// learning.
type ExecutionRecord struct {
	ID            string          `json:"id"`
	Query         Query           `json:"query"`
	Category      IntentCategory  `json:"category"` // Category of the intent the path was built for.
	Path          ExecutionPath   `json:"path"`
	Results       []StepResult    `json:"results"`
	Overall       OverallStatus   `json:"overall"`
	DegradedSteps []int           `json:"degraded_steps,omitempty"` // Optional steps that failed in an overall-successful attempt.
	Attempt       int             `json:"attempt"`                  // 0-based fallback attempt number.
	LatencyMS     int64           `json:"latency_ms"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

// -- Conversation state --

// ConversationContext is the per-conversation memory consumed and updated on
// every turn. Owned exclusively by the context tracker; callers receive
// copies.
type ConversationContext struct {
	ConversationID string            `json:"conversation_id"`
	Intents        []Intent          `json:"intents"`  // Most recent last, bounded.
	Entities       map[string]string `json:"entities"` // Entity name to most-recent resolved value.
}
