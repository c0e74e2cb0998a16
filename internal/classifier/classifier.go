// File: internal/classifier/classifier.go
package classifier

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
	"github.com/luminark/rudder/internal/config"
)

// ValidationError reports a query that cannot be classified at all, such as an
// empty string. It is surfaced to the caller immediately and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Reason)
}

// Scorer produces an independent confidence signal for a category given the
// extracted query features. The default is the keyword-overlap RuleScorer; a
// learned model can be swapped in without touching the classifier.
type Scorer interface {
	Score(category schemas.IntentCategory, features Features) float64
}

// Features is the input handed to a Scorer.
type Features struct {
	Tokens     []string         // Lowercased, punctuation-trimmed tokens.
	Entities   []schemas.Entity // Entities extracted so far.
	TurnIndex  int              // Position of the query within its conversation.
	HasContext bool             // True when prior conversation state exists.
}

// Classifier maps a query plus conversation context into a ranked set of
// intent candidates. Rule-table matches and the pluggable Scorer are blended
// with configurable weights.
type Classifier struct {
	cfg    config.ClassifierConfig
	scorer Scorer
	log    *zap.Logger
}

// New builds a Classifier. A nil scorer falls back to the built-in RuleScorer.
func New(cfg config.ClassifierConfig, scorer Scorer, log *zap.Logger) *Classifier {
	if scorer == nil {
		scorer = NewRuleScorer()
	}
	return &Classifier{
		cfg:    cfg,
		scorer: scorer,
		log:    log.Named("classifier"),
	}
}

// categoryRules maps trigger keywords to the category they vote for. The
// vocabulary follows the action surface of the connectors the system fronts
// (experiment tracking verbs plus generic question forms).
var categoryRules = map[schemas.IntentCategory][]string{
	schemas.CategoryActionExecution: {
		"create", "delete", "remove", "log", "register", "set", "update",
		"rename", "start", "stop", "restore", "tag", "batch", "record",
	},
	schemas.CategoryInformationRetrieval: {
		"list", "show", "get", "fetch", "find", "search", "what", "which",
		"who", "where", "describe", "details", "versions", "status", "docs",
		"documentation", "history",
	},
	schemas.CategoryAnalysis: {
		"compare", "summarize", "summarise", "analyze", "analyse", "why",
		"trend", "best", "worst", "evaluate", "explain", "diagnose", "rank",
	},
}

// hybridConnectors suggest a multi-source request when an action or analysis
// verb is also present ("list the runs and then delete the worst one").
var hybridConnectors = []string{"and then", "then", "and also", "after that"}

// Classify implements the classifier contract. Results are ordered by
// descending confidence. It returns a *ValidationError when the query holds
// no extractable tokens.
func (c *Classifier) Classify(q schemas.Query, cctx schemas.ConversationContext) ([]schemas.Intent, error) {
	tokens := tokenize(q.RawText)
	if len(tokens) == 0 {
		return nil, &ValidationError{Reason: "query contains no extractable tokens"}
	}

	entities := c.extractEntities(q.RawText, cctx)
	if verb, start, end := matchVerb(q.RawText, tokens); verb != "" {
		// The matched action verb is a capability hint for the selector, not
		// a bindable value.
		entities = append(entities, schemas.Entity{Name: "verb", Value: verb, SpanStart: start, SpanEnd: end})
	}
	features := Features{
		Tokens:     tokens,
		Entities:   entities,
		TurnIndex:  q.TurnIndex,
		HasContext: len(cctx.Intents) > 0 || len(cctx.Entities) > 0,
	}

	ruleScores := scoreRules(tokens, strings.ToLower(q.RawText))

	totalWeight := c.cfg.RuleWeight + c.cfg.ScorerWeight
	candidates := make([]schemas.Intent, 0, 4)
	for _, cat := range []schemas.IntentCategory{
		schemas.CategoryInformationRetrieval,
		schemas.CategoryActionExecution,
		schemas.CategoryAnalysis,
		schemas.CategoryHybrid,
	} {
		blended := (c.cfg.RuleWeight*ruleScores[cat] + c.cfg.ScorerWeight*c.scorer.Score(cat, features)) / totalWeight
		if blended <= 0 {
			continue
		}
		candidates = append(candidates, schemas.Intent{
			Category:   cat,
			Confidence: clamp01(blended),
			Entities:   entities,
		})
	}

	if len(candidates) == 0 {
		// No rule fired and the scorer stayed silent. Any non-empty query is
		// still answerable by the LLM, so fall back to a low-confidence
		// retrieval intent rather than returning nothing.
		candidates = append(candidates, schemas.Intent{
			Category:   schemas.CategoryInformationRetrieval,
			Confidence: 0.3,
			Entities:   entities,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	// Trim the tail but always keep the leader.
	kept := candidates[:1]
	for _, cand := range candidates[1:] {
		if cand.Confidence >= c.cfg.MinConfidence {
			kept = append(kept, cand)
		}
	}

	c.log.Debug("Query classified",
		zap.String("conversation_id", q.ConversationID),
		zap.String("top_category", string(kept[0].Category)),
		zap.Float64("top_confidence", kept[0].Confidence),
		zap.Int("candidates", len(kept)),
		zap.Int("entities", len(entities)),
	)
	return kept, nil
}

// scoreRules counts keyword votes per category and normalizes by the total
// number of votes. A hybrid candidate appears when two base categories both
// fire, or when an explicit connector phrase chains clauses together.
func scoreRules(tokens []string, lowered string) map[schemas.IntentCategory]float64 {
	votes := map[schemas.IntentCategory]int{}
	for cat, keywords := range categoryRules {
		for _, kw := range keywords {
			for _, tok := range tokens {
				if tok == kw {
					votes[cat]++
				}
			}
		}
	}

	total := 0
	firing := 0
	for _, n := range votes {
		total += n
		if n > 0 {
			firing++
		}
	}

	scores := map[schemas.IntentCategory]float64{}
	if total == 0 {
		return scores
	}
	for cat, n := range votes {
		scores[cat] = float64(n) / float64(total)
	}

	if firing > 1 {
		// Mixed signals already hint at a multi-source request.
		scores[schemas.CategoryHybrid] = 0.5
	}
	for _, conn := range hybridConnectors {
		if strings.Contains(lowered, conn) && firing > 0 {
			scores[schemas.CategoryHybrid] = maxf(scores[schemas.CategoryHybrid], 0.7)
			break
		}
	}
	return scores
}

// matchVerb returns the first token that appears in the rule table, with its
// approximate span in the raw text.
func matchVerb(raw string, tokens []string) (string, int, int) {
	lowered := strings.ToLower(raw)
	for _, tok := range tokens {
		for _, keywords := range categoryRules {
			for _, kw := range keywords {
				if tok != kw {
					continue
				}
				start := strings.Index(lowered, tok)
				if start < 0 {
					start = 0
				}
				return tok, start, start + len(tok)
			}
		}
	}
	return "", 0, 0
}

func tokenize(raw string) []string {
	fields := strings.Fields(strings.ToLower(raw))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tok := strings.Trim(f, ".,!?;:'\"()[]{}")
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
