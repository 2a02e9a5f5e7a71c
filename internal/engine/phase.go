package engine

import "strings"

// DetectPhase classifies where in the current turn the loop sits, from the
// most recent tool call's metadata rather than a fixed tool-name list: the
// tool surface is caller-registered and open-ended (spec §4.2), so the only
// signal available to every caller is the same Observation flag/name-prefix
// convention isObservationTool already uses, plus a generic keyword check
// for tools that self-describe as verifying something.
func DetectPhase(history []ChatMessage, reg ToolRegistry) Phase {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role != RoleTool {
			continue
		}
		if isObservationTool(reg, m.Name) {
			return PhaseDiscoverAndPlan
		}
		if looksLikeValidationTool(m.Name) {
			return PhaseValidate
		}
		return PhaseEdit
	}
	return PhaseExplore
}

func looksLikeValidationTool(name string) bool {
	name = strings.ToLower(name)
	for _, kw := range []string{"test", "verify", "validate", "lint", "check"} {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}
