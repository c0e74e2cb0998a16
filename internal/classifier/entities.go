// File: internal/classifier/entities.go
package classifier

import (
	"regexp"
	"strings"

	"github.com/luminark/rudder/api/schemas"
)

var (
	// "called demo", "named 'demo run'".
	reNamed = regexp.MustCompile(`(?i)\b(?:called|named)\s+"([^"]+)"|\b(?:called|named)\s+'([^']+)'|\b(?:called|named)\s+([A-Za-z0-9_.\-]+)`)
	// Bare quoted strings not already captured by reNamed.
	reQuoted = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	// "experiment demo", "run 42", "model churn-v2". Noun followed by an identifier.
	reTyped = regexp.MustCompile(`(?i)\b(experiment|run|model|metric|param|parameter|artifact|version)\s+(?:id\s+)?([A-Za-z0-9_.\-]+)`)
	// "accuracy=0.93" style assignments.
	reAssign = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_.\-]*)\s*=\s*([A-Za-z0-9_.\-]+)`)
	// Elliptical references that need the conversation context to resolve.
	rePronoun = regexp.MustCompile(`(?i)\b(it|that one|this one|that|the last one|the previous one|the same)\b`)
)

// typedStopValues are identifier positions that are actually grammar, not names.
var typedStopValues = map[string]struct{}{
	"called": {}, "named": {}, "with": {}, "for": {}, "from": {}, "id": {},
	"the": {}, "a": {}, "an": {}, "all": {}, "every": {}, "details": {},
	"list": {}, "versions": {}, "named:": {},
}

// extractEntities pulls named values out of the raw text and resolves
// elliptical references against the conversation's entity map. References
// with no resolvable antecedent are kept with an empty value and the
// NeedsClarification flag set, so the caller can ask instead of guessing.
func (c *Classifier) extractEntities(raw string, cctx schemas.ConversationContext) []schemas.Entity {
	entities := make([]schemas.Entity, 0, 4)
	claimed := make([][2]int, 0, 4)

	overlaps := func(start, end int) bool {
		for _, span := range claimed {
			if start < span[1] && end > span[0] {
				return true
			}
		}
		return false
	}
	add := func(name, value string, start, end int, needsClarification bool) {
		if overlaps(start, end) {
			return
		}
		claimed = append(claimed, [2]int{start, end})
		entities = append(entities, schemas.Entity{
			Name:               name,
			Value:              value,
			SpanStart:          start,
			SpanEnd:            end,
			NeedsClarification: needsClarification,
		})
	}

	for _, m := range reNamed.FindAllStringSubmatchIndex(raw, -1) {
		value, start, end := firstGroup(raw, m)
		if value != "" {
			add("name", value, start, end, false)
		}
	}
	for _, m := range reTyped.FindAllStringSubmatchIndex(raw, -1) {
		kind := strings.ToLower(raw[m[2]:m[3]])
		value := raw[m[4]:m[5]]
		if _, stop := typedStopValues[strings.ToLower(value)]; stop {
			continue
		}
		add(kind, value, m[4], m[5], false)
	}
	for _, m := range reQuoted.FindAllStringSubmatchIndex(raw, -1) {
		value, start, end := firstGroup(raw, m)
		if value != "" {
			add("name", value, start, end, false)
		}
	}
	for _, m := range reAssign.FindAllStringSubmatchIndex(raw, -1) {
		key := raw[m[2]:m[3]]
		value := raw[m[4]:m[5]]
		add(key, value, m[0], m[1], false)
	}

	for _, m := range rePronoun.FindAllStringSubmatchIndex(raw, -1) {
		resolved, ok := resolveReference(cctx)
		add("reference", resolved, m[0], m[1], !ok)
	}

	return entities
}

// resolveReference picks the antecedent for a pronoun from the conversation's
// entity map, preferring the noun kinds users most often refer back to.
func resolveReference(cctx schemas.ConversationContext) (string, bool) {
	for _, key := range []string{"name", "experiment", "run", "model", "reference"} {
		if v, ok := cctx.Entities[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// firstGroup returns the first capture group that matched, with its span.
func firstGroup(raw string, m []int) (string, int, int) {
	for g := 1; g*2 < len(m); g++ {
		if m[g*2] >= 0 {
			return raw[m[g*2]:m[g*2+1]], m[g*2], m[g*2+1]
		}
	}
	return "", 0, 0
}
