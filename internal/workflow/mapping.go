package workflow

// Legacy status and phase enums predate the canonical board schema. The two
// tables below remap them onto column ids; proposals keep their legacy fields
// untouched for audit purposes.

var statusToColumn = map[string]string{
	"evaluating":      "evaluate",
	"watch_list":      "evaluate",
	"draft":           "draft",
	"in_progress":     "review",
	"client_review":   "review",
	"submitted":       "submitted",
	"won":             "won",
	"client_accepted": "won",
	"lost":            "lost",
	"client_rejected": "lost",
	"archived":        "archived",
}

var phaseToColumn = map[string]string{
	"phase1":    "initiate",
	"phase2":    "resources",
	"phase3":    "solicit",
	"phase4":    "evaluate",
	"phase5":    "strategy",
	"phase6":    "draft",
	"phase7":    "price",
	"phase8":    "final",
	"completed": "final",
}

// ResolveColumn maps a proposal's legacy status and phase onto exactly one
// canonical column id. Status wins over phase: a terminal outcome such as
// "won" must not be overridden by internal phase bookkeeping. Unresolvable
// input falls back to the first column.
func ResolveColumn(status, currentPhase string) string {
	if column, ok := statusToColumn[status]; ok {
		return column
	}
	if column, ok := phaseToColumn[currentPhase]; ok {
		return column
	}
	return FirstColumnID()
}

// LegacyStatuses returns every status key the mapping covers.
func LegacyStatuses() []string {
	keys := make([]string, 0, len(statusToColumn))
	for key := range statusToColumn {
		keys = append(keys, key)
	}
	return keys
}

// LegacyPhases returns every phase key the mapping covers.
func LegacyPhases() []string {
	keys := make([]string, 0, len(phaseToColumn))
	for key := range phaseToColumn {
		keys = append(keys, key)
	}
	return keys
}
