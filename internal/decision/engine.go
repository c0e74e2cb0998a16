// File: internal/decision/engine.go
// Description: The decision engine is the core's public face. It takes one
// user turn from classification through path selection, execution with
// fallback, outcome recording, and context update.

package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
	"github.com/luminark/rudder/internal/catalog"
	"github.com/luminark/rudder/internal/classifier"
	"github.com/luminark/rudder/internal/config"
	"github.com/luminark/rudder/internal/conversation"
	"github.com/luminark/rudder/internal/history"
	"github.com/luminark/rudder/internal/orchestrator"
	"github.com/luminark/rudder/internal/selector"
)

// Decision is the engine's answer for one turn.
type Decision struct {
	Response      string                      // Synthesized answer text.
	Clarification string                      // Non-empty when a reference in the query could not be resolved.
	Record        schemas.ExecutionRecord     // The returned attempt's record.
	Intent        schemas.Intent              // The winning intent.
	Context       schemas.ConversationContext // Conversation state after this turn.
}

// Engine wires the five core components behind a single Decide call.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger

	catalog    *catalog.Catalog
	classifier *classifier.Classifier
	selector   *selector.Selector
	orch       *orchestrator.Orchestrator
	tracker    *conversation.Tracker
	recorder   history.Recorder
}

// Option configures an Engine, primarily to inject mocks in tests.
type Option func(*options)

type options struct {
	scorer classifier.Scorer
	exec   orchestrator.StepExecutor
}

// WithScorer replaces the classifier's default rule scorer.
func WithScorer(s classifier.Scorer) Option {
	return func(o *options) { o.scorer = s }
}

// WithStepExecutor replaces the default collaborator-backed step executor.
func WithStepExecutor(e orchestrator.StepExecutor) Option {
	return func(o *options) { o.exec = e }
}

// New assembles an Engine from configuration and the three external
// collaborator boundaries plus the outcome recorder backend.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	llm schemas.LLMClient,
	retriever schemas.Retriever,
	registry schemas.ConnectorRegistry,
	recorder history.Recorder,
	opts ...Option,
) (*Engine, error) {
	if cfg == nil || logger == nil || llm == nil || retriever == nil || registry == nil || recorder == nil {
		return nil, fmt.Errorf("cannot initialize decision engine with nil dependencies")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	registry = catalog.NewRateLimitedRegistry(registry, cfg.Catalog.CallRateLimit, cfg.Catalog.CallBurst)
	cat := catalog.New(registry, logger)

	exec := o.exec
	if exec == nil {
		exec = orchestrator.NewExecutor(llm, retriever, registry, cfg.LLM)
	}
	orch, err := orchestrator.New(cfg.Orchestrator, logger, exec, cat, recorder)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		logger:     logger.Named("decision"),
		catalog:    cat,
		classifier: classifier.New(cfg.Classifier, o.scorer, logger),
		selector:   selector.New(cfg.Selector, cat, recorder, logger),
		orch:       orch,
		tracker:    conversation.NewTracker(cfg.Conversation, logger),
		recorder:   recorder,
	}, nil
}

// Catalog exposes the engine's capability snapshot, mainly for the CLI's
// capability listing.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Refresh reloads the capability snapshot from the connector registry.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.catalog.Refresh(ctx)
}

// Decide runs one user turn end to end. Step-level failures are absorbed by
// fallback; only a *classifier.ValidationError or an
// *orchestrator.AllPathsExhaustedError crosses this boundary.
func (e *Engine) Decide(ctx context.Context, q schemas.Query) (*Decision, error) {
	convCtx := e.tracker.Get(q.ConversationID)

	intents, err := e.classifier.Classify(q, convCtx)
	if err != nil {
		return nil, err
	}
	top := intents[0]

	// The catalog may have changed since the last turn; refresh best effort
	// and keep the stale snapshot if the registry is unreachable.
	if err := e.catalog.Refresh(ctx); err != nil {
		e.logger.Warn("Capability catalog refresh failed, using previous snapshot", zap.Error(err))
	}

	paths := e.selector.Select(ctx, intents)

	rec, execErr := e.orch.ExecuteWithFallback(ctx, q, top.Category, paths, e.cfg.Orchestrator.DefaultBudget)

	// The turn happened either way; remember it.
	updated := e.tracker.Update(q.ConversationID, top, rec)

	if execErr != nil {
		var exhausted *orchestrator.AllPathsExhaustedError
		if errors.As(execErr, &exhausted) {
			e.logger.Error("All execution paths exhausted",
				zap.String("conversation_id", q.ConversationID),
				zap.Int("attempts", len(exhausted.Attempts)),
			)
		}
		return nil, execErr
	}

	return &Decision{
		Response:      synthesizeResponse(rec),
		Clarification: clarificationPrompt(top, q),
		Record:        rec,
		Intent:        top,
		Context:       updated,
	}, nil
}

// synthesizeResponse assembles the user-facing answer from the winning
// attempt's step outputs. The final LLM step's output wins when present;
// otherwise the last successful step speaks for the path.
func synthesizeResponse(rec schemas.ExecutionRecord) string {
	answer, fromLLM := "", false
	for i, res := range rec.Results {
		if res.Status != schemas.StepSuccess || res.Output == "" {
			continue
		}
		if rec.Path.Steps[i].Kind == schemas.StepLLM {
			answer, fromLLM = res.Output, true
		} else if !fromLLM {
			answer = res.Output
		}
	}
	if answer == "" {
		answer = "Done."
	}
	if len(rec.DegradedSteps) > 0 {
		answer += "\n\n(Note: some supplementary data sources were unavailable, so parts of this answer may be incomplete.)"
	}
	return answer
}

// clarificationPrompt asks about the first unresolved reference, if any. The
// turn still executes with its best available plan; the prompt invites the
// user to pin the referent for the next turn.
func clarificationPrompt(intent schemas.Intent, q schemas.Query) string {
	for _, ent := range intent.Entities {
		if !ent.NeedsClarification {
			continue
		}
		ref := "that"
		if ent.SpanStart >= 0 && ent.SpanEnd <= len(q.RawText) && ent.SpanStart < ent.SpanEnd {
			ref = strings.TrimSpace(q.RawText[ent.SpanStart:ent.SpanEnd])
		}
		return fmt.Sprintf("I wasn't sure what %q refers to. Could you name it explicitly?", ref)
	}
	return ""
}
