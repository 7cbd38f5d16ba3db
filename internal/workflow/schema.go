// Package workflow defines the canonical kanban board schema for proposal
// lifecycles and the migration that moves organizations onto it.
package workflow

// SchemaVersion identifies the canonical column set. Column ids are stable:
// an id is never reused for a different meaning in a later version.
const SchemaVersion = 2

// Column types.
const (
	TypeLockedPhase   = "locked_phase"
	TypeDefaultStatus = "default_status"
)

// ChecklistItem is a gating task attached to a column. Required items must be
// completed before a proposal may advance past the column; that enforcement
// lives in the app service, not here.
type ChecklistItem struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Order    int    `json:"order"`
}

// Column is one stage of the canonical board schema.
type Column struct {
	ID                     string          `json:"id"`
	Label                  string          `json:"label"`
	Type                   string          `json:"type"`
	PhaseMapping           string          `json:"phase_mapping,omitempty"`
	DefaultStatusMapping   string          `json:"default_status_mapping,omitempty"`
	Order                  int             `json:"order"`
	IsLocked               bool            `json:"is_locked"`
	ChecklistItems         []ChecklistItem `json:"checklist_items,omitempty"`
	RequiresApprovalToExit bool            `json:"requires_approval_to_exit,omitempty"`
	ApproverRoles          []string        `json:"approver_roles,omitempty"`
}

// canonicalColumns is the literal schema. Order is display order and must be
// 0..N-1 with no duplicates (verified by tests).
var canonicalColumns = []Column{
	{
		ID: "initiate", Label: "Initiate", Type: TypeLockedPhase, PhaseMapping: "phase1", Order: 0, IsLocked: true,
		ChecklistItems: []ChecklistItem{
			{ID: "initiate_review_solicitation", Label: "Review solicitation notice", Type: "task", Required: true, Order: 0},
			{ID: "initiate_go_no_go", Label: "Record go/no-go decision", Type: "decision", Required: true, Order: 1},
		},
	},
	{
		ID: "team", Label: "Team", Type: TypeLockedPhase, PhaseMapping: "phase1", Order: 1, IsLocked: true,
		ChecklistItems: []ChecklistItem{
			{ID: "team_assign_lead", Label: "Assign proposal lead", Type: "task", Required: true, Order: 0},
			{ID: "team_identify_partners", Label: "Identify teaming partners", Type: "task", Required: false, Order: 1},
		},
	},
	{
		ID: "resources", Label: "Resources", Type: TypeLockedPhase, PhaseMapping: "phase2", Order: 2, IsLocked: true,
		ChecklistItems: []ChecklistItem{
			{ID: "resources_budget", Label: "Approve bid & proposal budget", Type: "task", Required: true, Order: 0},
			{ID: "resources_staffing", Label: "Confirm staffing availability", Type: "task", Required: false, Order: 1},
		},
	},
	{
		ID: "solicit", Label: "Solicitation", Type: TypeLockedPhase, PhaseMapping: "phase3", Order: 3, IsLocked: true,
		ChecklistItems: []ChecklistItem{
			{ID: "solicit_requirements", Label: "Break down solicitation requirements", Type: "task", Required: true, Order: 0},
			{ID: "solicit_questions", Label: "Submit clarification questions", Type: "task", Required: false, Order: 1},
		},
	},
	{
		ID: "evaluate", Label: "Evaluate", Type: TypeLockedPhase, PhaseMapping: "phase4", Order: 4, IsLocked: true,
		ChecklistItems: []ChecklistItem{
			{ID: "evaluate_fit", Label: "Score opportunity fit", Type: "task", Required: true, Order: 0},
			{ID: "evaluate_competitors", Label: "Assess competitive landscape", Type: "task", Required: false, Order: 1},
		},
	},
	{
		ID: "strategy", Label: "Strategy", Type: TypeLockedPhase, PhaseMapping: "phase5", Order: 5, IsLocked: true,
		ChecklistItems: []ChecklistItem{
			{ID: "strategy_win_themes", Label: "Define win themes", Type: "task", Required: true, Order: 0},
		},
	},
	{
		ID: "plan", Label: "Plan", Type: TypeLockedPhase, PhaseMapping: "phase5", Order: 6, IsLocked: true,
		ChecklistItems: []ChecklistItem{
			{ID: "plan_outline", Label: "Build proposal outline", Type: "task", Required: true, Order: 0},
			{ID: "plan_schedule", Label: "Set writing schedule", Type: "task", Required: false, Order: 1},
		},
	},
	{
		ID: "draft", Label: "Draft", Type: TypeLockedPhase, PhaseMapping: "phase6", Order: 7, IsLocked: true,
		ChecklistItems: []ChecklistItem{
			{ID: "draft_sections", Label: "Complete all volume drafts", Type: "task", Required: true, Order: 0},
			{ID: "draft_compliance", Label: "Run compliance matrix check", Type: "task", Required: true, Order: 1},
		},
	},
	{
		ID: "price", Label: "Price", Type: TypeLockedPhase, PhaseMapping: "phase7", Order: 8, IsLocked: true,
		ChecklistItems: []ChecklistItem{
			{ID: "price_cost_volume", Label: "Finalize cost volume", Type: "task", Required: true, Order: 0},
		},
	},
	{
		ID: "review", Label: "Review", Type: TypeLockedPhase, PhaseMapping: "phase8", Order: 9, IsLocked: true,
		ChecklistItems: []ChecklistItem{
			{ID: "review_red_team", Label: "Complete red team review", Type: "task", Required: true, Order: 0},
			{ID: "review_revisions", Label: "Incorporate review comments", Type: "task", Required: true, Order: 1},
		},
	},
	{
		ID: "final", Label: "Final", Type: TypeLockedPhase, PhaseMapping: "phase8", Order: 10, IsLocked: true,
		ChecklistItems: []ChecklistItem{
			{ID: "final_package", Label: "Assemble submission package", Type: "task", Required: true, Order: 0},
			{ID: "final_signoff", Label: "Executive sign-off", Type: "approval", Required: true, Order: 1},
		},
		RequiresApprovalToExit: true,
		ApproverRoles:          []string{"manager", "admin"},
	},
	{ID: "submitted", Label: "Submitted", Type: TypeDefaultStatus, DefaultStatusMapping: "submitted", Order: 11, IsLocked: true},
	{ID: "won", Label: "Won", Type: TypeDefaultStatus, DefaultStatusMapping: "won", Order: 12, IsLocked: true},
	{ID: "lost", Label: "Lost", Type: TypeDefaultStatus, DefaultStatusMapping: "lost", Order: 13, IsLocked: true},
	{ID: "archived", Label: "Archived", Type: TypeDefaultStatus, DefaultStatusMapping: "archived", Order: 14, IsLocked: true},
}

// CanonicalColumns returns a copy of the canonical schema. Board
// configurations persist a snapshot of this list, so callers must never get a
// reference into the shared table.
func CanonicalColumns() []Column {
	columns := make([]Column, len(canonicalColumns))
	copy(columns, canonicalColumns)
	for i := range columns {
		if len(canonicalColumns[i].ChecklistItems) > 0 {
			items := make([]ChecklistItem, len(canonicalColumns[i].ChecklistItems))
			copy(items, canonicalColumns[i].ChecklistItems)
			columns[i].ChecklistItems = items
		}
		if len(canonicalColumns[i].ApproverRoles) > 0 {
			roles := make([]string, len(canonicalColumns[i].ApproverRoles))
			copy(roles, canonicalColumns[i].ApproverRoles)
			columns[i].ApproverRoles = roles
		}
	}
	return columns
}

// ColumnByID looks a column up in a schema snapshot.
func ColumnByID(columns []Column, id string) (Column, bool) {
	for _, column := range columns {
		if column.ID == id {
			return column, true
		}
	}
	return Column{}, false
}

// FirstColumnID is the fallback stage for proposals whose legacy fields
// resolve to nothing.
func FirstColumnID() string {
	return canonicalColumns[0].ID
}
