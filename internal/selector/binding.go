// File: internal/selector/binding.go
package selector

import (
	"strings"

	"github.com/luminark/rudder/api/schemas"
)

// bindParameters maps extracted entities onto a capability's parameter
// schema. The second return is false when any required parameter has no
// non-empty resolved value; entities still awaiting clarification never bind.
func bindParameters(cap schemas.Capability, entities []schemas.Entity) (map[string]string, bool) {
	bound := bindKnownParameters(cap, entities)
	for name, spec := range cap.Parameters {
		if spec.Required && bound[name] == "" {
			return nil, false
		}
	}
	return bound, true
}

// bindKnownParameters performs the best-effort binding shared by full and
// partial plans. Matching is by exact entity name first, then by a substring
// match ("name" binds experiment_name), then the unresolved-reference slot.
func bindKnownParameters(cap schemas.Capability, entities []schemas.Entity) map[string]string {
	bound := make(map[string]string, len(cap.Parameters))
	used := make(map[int]bool, len(entities))

	for name := range cap.Parameters {
		for i, e := range entities {
			if used[i] || e.NeedsClarification || e.Value == "" || e.Name == "verb" {
				continue
			}
			if e.Name == name {
				bound[name] = e.Value
				used[i] = true
				break
			}
		}
	}
	for name := range cap.Parameters {
		if bound[name] != "" {
			continue
		}
		for i, e := range entities {
			if used[i] || e.NeedsClarification || e.Value == "" || e.Name == "verb" {
				continue
			}
			if strings.Contains(name, e.Name) || strings.Contains(e.Name, name) {
				bound[name] = e.Value
				used[i] = true
				break
			}
		}
	}
	// A resolved back-reference can stand in for a single leftover parameter.
	for name := range cap.Parameters {
		if bound[name] != "" {
			continue
		}
		for i, e := range entities {
			if used[i] || e.Name != "reference" || e.Value == "" {
				continue
			}
			bound[name] = e.Value
			used[i] = true
			break
		}
	}
	return bound
}
