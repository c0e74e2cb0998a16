// File: internal/classifier/scorer.go
package classifier

import "github.com/luminark/rudder/api/schemas"

// RuleScorer is the default Scorer. It is a deliberately simple heuristic
// built on surface features of the query, independent of the keyword rule
// table so that the two blended signals do not just repeat each other.
type RuleScorer struct{}

func NewRuleScorer() *RuleScorer {
	return &RuleScorer{}
}

var _ Scorer = (*RuleScorer)(nil)

// Score rates how well the query's shape fits a category.
func (s *RuleScorer) Score(category schemas.IntentCategory, f Features) float64 {
	isQuestion := false
	if n := len(f.Tokens); n > 0 {
		switch f.Tokens[0] {
		case "what", "which", "who", "where", "when", "how", "is", "are", "do", "does", "can":
			isQuestion = true
		}
	}
	imperative := len(f.Tokens) > 0 && !isQuestion

	switch category {
	case schemas.CategoryInformationRetrieval:
		if isQuestion {
			return 0.8
		}
		return 0.3
	case schemas.CategoryActionExecution:
		// Imperative phrasing with concrete arguments usually means an action.
		if imperative && len(f.Entities) > 0 {
			return 0.7
		}
		if imperative {
			return 0.4
		}
		return 0.1
	case schemas.CategoryAnalysis:
		// Long questions and follow-ups inside an established conversation
		// tend to be analytical.
		if isQuestion && len(f.Tokens) > 8 {
			return 0.5
		}
		if f.HasContext && f.TurnIndex > 2 {
			return 0.3
		}
		return 0.1
	case schemas.CategoryHybrid:
		// The hybrid signal lives in the rule table; the shape heuristic only
		// nudges queries that carry many distinct arguments.
		if len(f.Entities) >= 3 {
			return 0.4
		}
		return 0
	default:
		return 0
	}
}
