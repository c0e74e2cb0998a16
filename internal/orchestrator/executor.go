// File: internal/orchestrator/executor.go
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/luminark/rudder/api/schemas"
	"github.com/luminark/rudder/internal/config"
)

// StepExecutor runs one step against the relevant external collaborator.
// depOutputs carries the outputs of the step's dependencies in declaration
// order; failed or skipped dependencies contribute empty strings.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, q schemas.Query, step schemas.Step, depOutputs []string) (string, error)
}

// Executor is the default StepExecutor. It dispatches on the step kind to the
// LLM service, the RAG engine, or the connector registry.
type Executor struct {
	llm       schemas.LLMClient
	retriever schemas.Retriever
	registry  schemas.ConnectorRegistry
	cfg       config.LLMConfig
}

var _ StepExecutor = (*Executor)(nil)

// NewExecutor wires the three collaborator boundaries into a step dispatcher.
func NewExecutor(llm schemas.LLMClient, retriever schemas.Retriever, registry schemas.ConnectorRegistry, cfg config.LLMConfig) *Executor {
	return &Executor{
		llm:       llm,
		retriever: retriever,
		registry:  registry,
		cfg:       cfg,
	}
}

// ExecuteStep implements StepExecutor.
func (e *Executor) ExecuteStep(ctx context.Context, q schemas.Query, step schemas.Step, depOutputs []string) (string, error) {
	switch step.Kind {
	case schemas.StepLLM:
		return e.executeLLM(ctx, q, depOutputs)
	case schemas.StepRetrieval:
		return e.executeRetrieval(ctx, q)
	case schemas.StepCapability:
		return e.executeCapability(ctx, step)
	default:
		return "", fmt.Errorf("no executor registered for step kind %q", step.Kind)
	}
}

func (e *Executor) executeLLM(ctx context.Context, q schemas.Query, depOutputs []string) (string, error) {
	snippets := make([]string, 0, len(depOutputs))
	for _, out := range depOutputs {
		if out != "" {
			snippets = append(snippets, out)
		}
	}

	tier := schemas.ModelTier(e.cfg.DirectTier)
	system := "You are an assistant for an enterprise data platform. Answer the user's request directly and concisely."
	if len(snippets) > 0 {
		// Synthesis over upstream step outputs uses the stronger tier.
		tier = schemas.ModelTier(e.cfg.SynthesisTier)
		system = "You are an assistant for an enterprise data platform. Answer the user's request using only the provided context snippets. Note any gaps instead of inventing data."
	}

	res, err := e.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   q.RawText,
		Snippets:     snippets,
		Tier:         tier,
		Options: schemas.GenerationOptions{
			Temperature: e.cfg.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm generation: %w", err)
	}
	return res.Text, nil
}

func (e *Executor) executeRetrieval(ctx context.Context, q schemas.Query) (string, error) {
	passages, err := e.retriever.Retrieve(ctx, q.RawText, e.cfg.RetrievalK)
	if err != nil {
		return "", fmt.Errorf("knowledge retrieval: %w", err)
	}
	if len(passages) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		parts = append(parts, fmt.Sprintf("[%s] %s", p.Source, p.Text))
	}
	return strings.Join(parts, "\n"), nil
}

func (e *Executor) executeCapability(ctx context.Context, step schemas.Step) (string, error) {
	res, err := e.registry.Execute(ctx, step.CapabilityID, step.Parameters)
	if err != nil {
		return "", fmt.Errorf("capability %s: %w", step.CapabilityID, err)
	}
	if res.Status != schemas.CallOK {
		return "", fmt.Errorf("capability %s returned %s: %s", step.CapabilityID, res.Status, res.Error)
	}
	return res.Output, nil
}
