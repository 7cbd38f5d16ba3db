package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoOrganization is returned when the caller owns no organization.
var ErrNoOrganization = errors.New("no organization found")

// Preferences are the user-facing display settings carried on a board
// configuration. The migration preserves them; it only rewrites columns.
type Preferences struct {
	CollapsedColumnIDs []string        `json:"collapsed_column_ids"`
	SwimlaneConfig     json.RawMessage `json:"swimlane_config"`
	ViewSettings       json.RawMessage `json:"view_settings"`
}

// DefaultPreferences returns the settings a brand-new board starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		CollapsedColumnIDs: []string{},
		SwimlaneConfig:     json.RawMessage(`{"enabled":false,"group_by":null}`),
		ViewSettings:       json.RawMessage(`{"card_density":"normal","show_checklist_progress":true}`),
	}
}

// ProposalStage is the slice of a proposal the migration reads and writes.
type ProposalStage struct {
	ID           string
	Status       string
	CurrentPhase string
}

// Store is the persistence surface the migrator needs. The Postgres store
// implements it; tests use fakes.
type Store interface {
	// LatestOrganizationForUser resolves the caller's organization by most
	// recent creation, returning ErrNoOrganization when none exists.
	LatestOrganizationForUser(ctx context.Context, userID string) (string, error)
	// GetBoardPreferences loads display preferences from an existing board
	// configuration. The bool reports whether a configuration exists.
	GetBoardPreferences(ctx context.Context, organizationID string) (Preferences, bool, error)
	// SaveBoardConfiguration upserts the organization's configuration with
	// the given column snapshot and preferences.
	SaveBoardConfiguration(ctx context.Context, organizationID string, columns []Column, prefs Preferences) error
	ListProposalStages(ctx context.Context, organizationID string) ([]ProposalStage, error)
	UpdateProposalStage(ctx context.Context, proposalID, columnID string) error
}

// MigrationResult reports what a migration run accomplished. A non-empty
// Errors list means partial success; the caller decides whether to retry
// (safe: the whole operation is idempotent).
type MigrationResult struct {
	OrganizationID    string   `json:"-"`
	ConfigsUpdated    int      `json:"kanban_configs_updated"`
	ProposalsMigrated int      `json:"proposals_migrated"`
	Errors            []string `json:"errors"`
}

// Migrator upgrades one organization's board to the canonical schema and
// remaps its proposals onto it.
type Migrator struct {
	store Store
}

func NewMigrator(store Store) *Migrator {
	return &Migrator{store: store}
}

// Run executes the migration for the organization owned by userID.
//
// Organization resolution failures propagate as errors; everything after that
// point is at-least-effort. A failed configuration upsert or proposal listing
// is recorded in the result and does not abort the run, and each proposal is
// updated independently so one failure never stops the rest.
func (m *Migrator) Run(ctx context.Context, userID string) (MigrationResult, error) {
	result := MigrationResult{Errors: []string{}}

	organizationID, err := m.store.LatestOrganizationForUser(ctx, userID)
	if err != nil {
		return result, err
	}
	result.OrganizationID = organizationID

	columns := CanonicalColumns()

	prefs, exists, err := m.store.GetBoardPreferences(ctx, organizationID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("load board configuration: %v", err))
	} else {
		if !exists {
			prefs = DefaultPreferences()
		} else {
			prefs = normalizePreferences(prefs)
		}
		if err := m.store.SaveBoardConfiguration(ctx, organizationID, columns, prefs); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("save board configuration: %v", err))
		} else {
			result.ConfigsUpdated++
		}
	}

	proposals, err := m.store.ListProposalStages(ctx, organizationID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list proposals: %v", err))
		return result, nil
	}

	for _, proposal := range proposals {
		columnID := ResolveColumn(proposal.Status, proposal.CurrentPhase)
		if err := m.store.UpdateProposalStage(ctx, proposal.ID, columnID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("proposal %s: %v", proposal.ID, err))
			continue
		}
		result.ProposalsMigrated++
	}

	return result, nil
}

// normalizePreferences fills absent sub-fields with defaults so an existing
// configuration with partial preferences round-trips cleanly.
func normalizePreferences(prefs Preferences) Preferences {
	defaults := DefaultPreferences()
	if prefs.CollapsedColumnIDs == nil {
		prefs.CollapsedColumnIDs = defaults.CollapsedColumnIDs
	}
	if len(prefs.SwimlaneConfig) == 0 {
		prefs.SwimlaneConfig = defaults.SwimlaneConfig
	}
	if len(prefs.ViewSettings) == 0 {
		prefs.ViewSettings = defaults.ViewSettings
	}
	return prefs
}
