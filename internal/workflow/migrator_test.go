package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

type fakeMigrationStore struct {
	latestOrganizationFn  func(context.Context, string) (string, error)
	getPreferencesFn      func(context.Context, string) (Preferences, bool, error)
	saveConfigurationFn   func(context.Context, string, []Column, Preferences) error
	listProposalStagesFn  func(context.Context, string) ([]ProposalStage, error)
	updateProposalStageFn func(context.Context, string, string) error

	savedColumns []Column
	savedPrefs   Preferences
	stageUpdates map[string]string
}

func (f *fakeMigrationStore) LatestOrganizationForUser(ctx context.Context, userID string) (string, error) {
	if f.latestOrganizationFn != nil {
		return f.latestOrganizationFn(ctx, userID)
	}
	return "org_1", nil
}

func (f *fakeMigrationStore) GetBoardPreferences(ctx context.Context, organizationID string) (Preferences, bool, error) {
	if f.getPreferencesFn != nil {
		return f.getPreferencesFn(ctx, organizationID)
	}
	return Preferences{}, false, nil
}

func (f *fakeMigrationStore) SaveBoardConfiguration(ctx context.Context, organizationID string, columns []Column, prefs Preferences) error {
	if f.saveConfigurationFn != nil {
		if err := f.saveConfigurationFn(ctx, organizationID, columns, prefs); err != nil {
			return err
		}
	}
	f.savedColumns = columns
	f.savedPrefs = prefs
	return nil
}

func (f *fakeMigrationStore) ListProposalStages(ctx context.Context, organizationID string) ([]ProposalStage, error) {
	if f.listProposalStagesFn != nil {
		return f.listProposalStagesFn(ctx, organizationID)
	}
	return nil, nil
}

func (f *fakeMigrationStore) UpdateProposalStage(ctx context.Context, proposalID, columnID string) error {
	if f.updateProposalStageFn != nil {
		if err := f.updateProposalStageFn(ctx, proposalID, columnID); err != nil {
			return err
		}
	}
	if f.stageUpdates == nil {
		f.stageUpdates = make(map[string]string)
	}
	f.stageUpdates[proposalID] = columnID
	return nil
}

func TestRunCreatesConfigAndMigratesProposals(t *testing.T) {
	fake := &fakeMigrationStore{
		listProposalStagesFn: func(context.Context, string) ([]ProposalStage, error) {
			return []ProposalStage{{ID: "p1", Status: "won"}}, nil
		},
	}
	result, err := NewMigrator(fake).Run(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ConfigsUpdated != 1 {
		t.Errorf("ConfigsUpdated = %d, want 1", result.ConfigsUpdated)
	}
	if result.ProposalsMigrated != 1 {
		t.Errorf("ProposalsMigrated = %d, want 1", result.ProposalsMigrated)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}
	if len(fake.savedColumns) != 15 {
		t.Errorf("saved %d columns, want 15", len(fake.savedColumns))
	}
	if fake.stageUpdates["p1"] != "won" {
		t.Errorf("proposal p1 migrated to %q, want won", fake.stageUpdates["p1"])
	}
	if got := fake.savedPrefs.CollapsedColumnIDs; got == nil || len(got) != 0 {
		t.Errorf("new config should get default collapsed ids, got %v", got)
	}
}

func TestRunPropagatesNoOrganization(t *testing.T) {
	fake := &fakeMigrationStore{
		latestOrganizationFn: func(context.Context, string) (string, error) {
			return "", ErrNoOrganization
		},
	}
	_, err := NewMigrator(fake).Run(context.Background(), "user_1")
	if !errors.Is(err, ErrNoOrganization) {
		t.Fatalf("expected ErrNoOrganization, got %v", err)
	}
}

func TestRunPreservesExistingPreferences(t *testing.T) {
	existing := Preferences{
		CollapsedColumnIDs: []string{"archived"},
		SwimlaneConfig:     json.RawMessage(`{"enabled":true,"group_by":"agency"}`),
	}
	fake := &fakeMigrationStore{
		getPreferencesFn: func(context.Context, string) (Preferences, bool, error) {
			return existing, true, nil
		},
	}
	if _, err := NewMigrator(fake).Run(context.Background(), "user_1"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !reflect.DeepEqual(fake.savedPrefs.CollapsedColumnIDs, []string{"archived"}) {
		t.Errorf("collapsed ids not preserved: %v", fake.savedPrefs.CollapsedColumnIDs)
	}
	if string(fake.savedPrefs.SwimlaneConfig) != `{"enabled":true,"group_by":"agency"}` {
		t.Errorf("swimlane config not preserved: %s", fake.savedPrefs.SwimlaneConfig)
	}
	// Absent sub-field falls back to defaults.
	if len(fake.savedPrefs.ViewSettings) == 0 {
		t.Error("absent view settings should be defaulted, got empty")
	}
}

func TestRunContinuesPastConfigFailure(t *testing.T) {
	fake := &fakeMigrationStore{
		saveConfigurationFn: func(context.Context, string, []Column, Preferences) error {
			return errors.New("db down")
		},
		listProposalStagesFn: func(context.Context, string) ([]ProposalStage, error) {
			return []ProposalStage{{ID: "p1", CurrentPhase: "phase3"}}, nil
		},
	}
	result, err := NewMigrator(fake).Run(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ConfigsUpdated != 0 {
		t.Errorf("ConfigsUpdated = %d, want 0", result.ConfigsUpdated)
	}
	if result.ProposalsMigrated != 1 {
		t.Errorf("ProposalsMigrated = %d, want 1 despite config failure", result.ProposalsMigrated)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 error, got %v", result.Errors)
	}
}

func TestRunReportsPerProposalFailures(t *testing.T) {
	fake := &fakeMigrationStore{
		listProposalStagesFn: func(context.Context, string) ([]ProposalStage, error) {
			return []ProposalStage{
				{ID: "p1", Status: "draft"},
				{ID: "p2", Status: "submitted"},
				{ID: "p3", CurrentPhase: "phase5"},
			}, nil
		},
		updateProposalStageFn: func(_ context.Context, proposalID, _ string) error {
			if proposalID == "p2" {
				return errors.New("row locked")
			}
			return nil
		},
	}
	result, err := NewMigrator(fake).Run(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ProposalsMigrated != 2 {
		t.Errorf("ProposalsMigrated = %d, want 2", result.ProposalsMigrated)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	if fake.stageUpdates["p3"] != "strategy" {
		t.Errorf("p3 migrated to %q, want strategy (loop must continue past failure)", fake.stageUpdates["p3"])
	}
}

func TestRunReportsListFailure(t *testing.T) {
	fake := &fakeMigrationStore{
		listProposalStagesFn: func(context.Context, string) ([]ProposalStage, error) {
			return nil, errors.New("timeout")
		},
	}
	result, err := NewMigrator(fake).Run(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ConfigsUpdated != 1 {
		t.Errorf("ConfigsUpdated = %d, want 1", result.ConfigsUpdated)
	}
	if result.ProposalsMigrated != 0 {
		t.Errorf("ProposalsMigrated = %d, want 0", result.ProposalsMigrated)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 error, got %v", result.Errors)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	proposals := []ProposalStage{
		{ID: "p1", Status: "won", CurrentPhase: "phase3"},
		{ID: "p2", CurrentPhase: "phase2"},
		{ID: "p3"},
	}
	fake := &fakeMigrationStore{
		listProposalStagesFn: func(context.Context, string) ([]ProposalStage, error) {
			return proposals, nil
		},
	}
	migrator := NewMigrator(fake)

	first, err := migrator.Run(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	firstStages := make(map[string]string, len(fake.stageUpdates))
	for id, stage := range fake.stageUpdates {
		firstStages[id] = stage
	}
	firstColumns := fake.savedColumns

	second, err := migrator.Run(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.ProposalsMigrated != first.ProposalsMigrated {
		t.Errorf("second run migrated %d, first %d", second.ProposalsMigrated, first.ProposalsMigrated)
	}
	if !reflect.DeepEqual(fake.stageUpdates, firstStages) {
		t.Errorf("stage assignments differ between runs: %v vs %v", fake.stageUpdates, firstStages)
	}
	if !reflect.DeepEqual(fake.savedColumns, firstColumns) {
		t.Error("column snapshots differ between runs")
	}
	if firstStages["p1"] != "won" || firstStages["p2"] != "resources" || firstStages["p3"] != "initiate" {
		t.Errorf("unexpected stage assignments: %v", firstStages)
	}
}
