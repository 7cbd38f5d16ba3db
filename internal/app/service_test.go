package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"bidboard/api/internal/config"
	"bidboard/api/internal/export"
	"bidboard/api/internal/store"
	"bidboard/api/internal/workflow"
)

type fakeStore struct {
	getUserByIDFn               func(context.Context, string) (store.User, error)
	latestOrganizationForUserFn func(context.Context, string) (string, error)
	getOrganizationFn           func(context.Context, string) (store.Organization, error)
	listOrganizationsForUserFn  func(context.Context, string) ([]store.Organization, error)
	insertOrganizationFn        func(context.Context, store.Organization) error
	getBoardConfigurationFn     func(context.Context, string) (store.BoardConfiguration, error)
	getBoardPreferencesFn       func(context.Context, string) (workflow.Preferences, bool, error)
	saveBoardConfigurationFn    func(context.Context, string, []workflow.Column, workflow.Preferences) error
	updateBoardPreferencesFn    func(context.Context, string, workflow.Preferences) error
	insertProposalFn            func(context.Context, store.Proposal) error
	getProposalFn               func(context.Context, string) (store.Proposal, error)
	listProposalsFn             func(context.Context, string) ([]store.Proposal, error)
	updateProposalFn            func(context.Context, store.Proposal) error
	deleteProposalFn            func(context.Context, string) error
	listProposalStagesFn        func(context.Context, string) ([]workflow.ProposalStage, error)
	updateProposalStageFn       func(context.Context, string, string) error
	setChecklistCompletionFn    func(context.Context, store.ChecklistCompletion, bool) error
	listChecklistCompletionsFn  func(context.Context, string) ([]store.ChecklistCompletion, error)
	insertStageEventFn          func(context.Context, store.StageEvent) error
	listStageEventsFn           func(context.Context, string, int) ([]store.StageEvent, error)

	savedColumns []workflow.Column
	savedPrefs   workflow.Preferences
	stageEvents  []store.StageEvent
	stageUpdates map[string]string
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID, DisplayName: "Test User", Role: "member"}, nil
}
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }
func (f *fakeStore) IsAccessTokenRevoked(context.Context, string) (bool, error) {
	return false, nil
}
func (f *fakeStore) InsertOrganization(ctx context.Context, org store.Organization) error {
	if f.insertOrganizationFn != nil {
		return f.insertOrganizationFn(ctx, org)
	}
	return nil
}
func (f *fakeStore) ListOrganizationsForUser(ctx context.Context, userID string) ([]store.Organization, error) {
	if f.listOrganizationsForUserFn != nil {
		return f.listOrganizationsForUserFn(ctx, userID)
	}
	return []store.Organization{{ID: "org_1", Name: "Test Org", OwnerID: userID}}, nil
}
func (f *fakeStore) GetOrganization(ctx context.Context, organizationID string) (store.Organization, error) {
	if f.getOrganizationFn != nil {
		return f.getOrganizationFn(ctx, organizationID)
	}
	return store.Organization{ID: organizationID, Name: "Test Org"}, nil
}
func (f *fakeStore) LatestOrganizationForUser(ctx context.Context, userID string) (string, error) {
	if f.latestOrganizationForUserFn != nil {
		return f.latestOrganizationForUserFn(ctx, userID)
	}
	return "org_1", nil
}
func (f *fakeStore) GetBoardConfiguration(ctx context.Context, organizationID string) (store.BoardConfiguration, error) {
	if f.getBoardConfigurationFn != nil {
		return f.getBoardConfigurationFn(ctx, organizationID)
	}
	return store.BoardConfiguration{
		OrganizationID: organizationID,
		SchemaVersion:  workflow.SchemaVersion,
		Columns:        workflow.CanonicalColumns(),
		Preferences:    workflow.DefaultPreferences(),
	}, nil
}
func (f *fakeStore) GetBoardPreferences(ctx context.Context, organizationID string) (workflow.Preferences, bool, error) {
	if f.getBoardPreferencesFn != nil {
		return f.getBoardPreferencesFn(ctx, organizationID)
	}
	return workflow.Preferences{}, false, nil
}
func (f *fakeStore) SaveBoardConfiguration(ctx context.Context, organizationID string, columns []workflow.Column, prefs workflow.Preferences) error {
	if f.saveBoardConfigurationFn != nil {
		return f.saveBoardConfigurationFn(ctx, organizationID, columns, prefs)
	}
	f.savedColumns = columns
	f.savedPrefs = prefs
	return nil
}
func (f *fakeStore) UpdateBoardPreferences(ctx context.Context, organizationID string, prefs workflow.Preferences) error {
	if f.updateBoardPreferencesFn != nil {
		return f.updateBoardPreferencesFn(ctx, organizationID, prefs)
	}
	f.savedPrefs = prefs
	return nil
}
func (f *fakeStore) InsertProposal(ctx context.Context, item store.Proposal) error {
	if f.insertProposalFn != nil {
		return f.insertProposalFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) GetProposal(ctx context.Context, proposalID string) (store.Proposal, error) {
	if f.getProposalFn != nil {
		return f.getProposalFn(ctx, proposalID)
	}
	return store.Proposal{}, sql.ErrNoRows
}
func (f *fakeStore) ListProposalsByOrganization(ctx context.Context, organizationID string) ([]store.Proposal, error) {
	if f.listProposalsFn != nil {
		return f.listProposalsFn(ctx, organizationID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateProposal(ctx context.Context, item store.Proposal) error {
	if f.updateProposalFn != nil {
		return f.updateProposalFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) DeleteProposal(ctx context.Context, proposalID string) error {
	if f.deleteProposalFn != nil {
		return f.deleteProposalFn(ctx, proposalID)
	}
	return nil
}
func (f *fakeStore) ListProposalStages(ctx context.Context, organizationID string) ([]workflow.ProposalStage, error) {
	if f.listProposalStagesFn != nil {
		return f.listProposalStagesFn(ctx, organizationID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateProposalStage(ctx context.Context, proposalID, columnID string) error {
	if f.updateProposalStageFn != nil {
		return f.updateProposalStageFn(ctx, proposalID, columnID)
	}
	if f.stageUpdates == nil {
		f.stageUpdates = make(map[string]string)
	}
	f.stageUpdates[proposalID] = columnID
	return nil
}
func (f *fakeStore) SetChecklistCompletion(ctx context.Context, completion store.ChecklistCompletion, completed bool) error {
	if f.setChecklistCompletionFn != nil {
		return f.setChecklistCompletionFn(ctx, completion, completed)
	}
	return nil
}
func (f *fakeStore) ListChecklistCompletions(ctx context.Context, proposalID string) ([]store.ChecklistCompletion, error) {
	if f.listChecklistCompletionsFn != nil {
		return f.listChecklistCompletionsFn(ctx, proposalID)
	}
	return nil, nil
}
func (f *fakeStore) InsertStageEvent(ctx context.Context, event store.StageEvent) error {
	if f.insertStageEventFn != nil {
		return f.insertStageEventFn(ctx, event)
	}
	f.stageEvents = append(f.stageEvents, event)
	return nil
}
func (f *fakeStore) ListStageEvents(ctx context.Context, proposalID string, limit int) ([]store.StageEvent, error) {
	if f.listStageEventsFn != nil {
		return f.listStageEventsFn(ctx, proposalID, limit)
	}
	return nil, nil
}
func (f *fakeStore) InsertAttachment(context.Context, store.Attachment) error { return nil }
func (f *fakeStore) GetAttachment(context.Context, string) (store.Attachment, error) {
	return store.Attachment{}, sql.ErrNoRows
}
func (f *fakeStore) ListAttachments(context.Context, string) ([]store.Attachment, error) {
	return nil, nil
}
func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeSessions struct {
	saved   map[string]string
	revoked []string
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	if f.saved == nil {
		f.saved = make(map[string]string)
	}
	f.saved[tokenHash] = userID
	return nil
}
func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	if userID, ok := f.saved[tokenHash]; ok {
		return store.User{ID: userID}, nil
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.revoked = append(f.revoked, tokenHash)
	delete(f.saved, tokenHash)
	return nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Minute,
			RefreshTTL: time.Hour,
		},
		store:    fs,
		sessions: &fakeSessions{},
	}
}

func memberSession() Session {
	return Session{UserID: "u_1", UserName: "Test User", Role: "member"}
}

func stagePtr(id string) *string { return &id }

func TestGetBoardLazyCreatesConfiguration(t *testing.T) {
	created := false
	fs := &fakeStore{}
	fs.getBoardConfigurationFn = func(_ context.Context, organizationID string) (store.BoardConfiguration, error) {
		if !created {
			return store.BoardConfiguration{}, sql.ErrNoRows
		}
		return store.BoardConfiguration{
			OrganizationID: organizationID,
			SchemaVersion:  workflow.SchemaVersion,
			Columns:        fs.savedColumns,
			Preferences:    fs.savedPrefs,
		}, nil
	}
	fs.saveBoardConfigurationFn = func(_ context.Context, _ string, columns []workflow.Column, prefs workflow.Preferences) error {
		created = true
		fs.savedColumns = columns
		fs.savedPrefs = prefs
		return nil
	}

	svc := newTestService(fs)
	board, err := svc.GetBoard(context.Background(), memberSession())
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if !created {
		t.Fatal("expected configuration to be created on first read")
	}
	if len(fs.savedColumns) != 15 {
		t.Fatalf("expected 15 canonical columns, got %d", len(fs.savedColumns))
	}
	if board["schema_version"] != workflow.SchemaVersion {
		t.Fatalf("schema_version = %v", board["schema_version"])
	}
	columns, ok := board["columns"].([]map[string]any)
	if !ok || len(columns) != 15 {
		t.Fatalf("expected 15 board columns in response")
	}
}

func TestGetBoardGroupsProposalsByResolvedColumn(t *testing.T) {
	fs := &fakeStore{}
	fs.listProposalsFn = func(context.Context, string) ([]store.Proposal, error) {
		return []store.Proposal{
			{ID: "p1", OrganizationID: "org_1", Title: "Won bid", Status: "won", CurrentPhase: "phase3"},
			{ID: "p2", OrganizationID: "org_1", Title: "Pinned", CustomWorkflowStageID: stagePtr("price")},
			{ID: "p3", OrganizationID: "org_1", Title: "Fresh", Status: "", CurrentPhase: ""},
		}, nil
	}

	svc := newTestService(fs)
	board, err := svc.GetBoard(context.Background(), memberSession())
	if err != nil {
		t.Fatalf("get board: %v", err)
	}

	byColumn := map[string][]string{}
	for _, entry := range board["columns"].([]map[string]any) {
		column := entry["column"].(workflow.Column)
		for _, card := range entry["cards"].([]map[string]any) {
			byColumn[column.ID] = append(byColumn[column.ID], card["id"].(string))
		}
	}

	if got := byColumn["won"]; len(got) != 1 || got[0] != "p1" {
		t.Errorf("won column = %v", got)
	}
	if got := byColumn["price"]; len(got) != 1 || got[0] != "p2" {
		t.Errorf("price column = %v", got)
	}
	if got := byColumn["initiate"]; len(got) != 1 || got[0] != "p3" {
		t.Errorf("initiate column = %v", got)
	}
}

func TestCreateProposalDefaults(t *testing.T) {
	var inserted store.Proposal
	fs := &fakeStore{}
	fs.insertProposalFn = func(_ context.Context, item store.Proposal) error {
		inserted = item
		return nil
	}

	svc := newTestService(fs)
	if _, err := svc.CreateProposal(context.Background(), memberSession(), CreateProposalInput{Title: "  New Bid  "}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if inserted.Title != "New Bid" {
		t.Errorf("title = %q", inserted.Title)
	}
	if inserted.Status != "evaluating" || inserted.CurrentPhase != "phase1" {
		t.Errorf("defaults = %q/%q", inserted.Status, inserted.CurrentPhase)
	}

	if _, err := svc.CreateProposal(context.Background(), memberSession(), CreateProposalInput{Title: "   "}); err == nil {
		t.Fatal("expected error for blank title")
	}
}

func TestMoveProposalUnknownColumn(t *testing.T) {
	fs := &fakeStore{}
	fs.getProposalFn = func(context.Context, string) (store.Proposal, error) {
		return store.Proposal{ID: "p1", OrganizationID: "org_1", CustomWorkflowStageID: stagePtr("draft")}, nil
	}

	svc := newTestService(fs)
	_, err := svc.MoveProposal(context.Background(), memberSession(), "p1", "nope")
	domainErr, ok := err.(*DomainError)
	if !ok || domainErr.Code != "UNKNOWN_COLUMN" {
		t.Fatalf("expected UNKNOWN_COLUMN, got %v", err)
	}
}

func TestMoveProposalChecklistGate(t *testing.T) {
	fs := &fakeStore{}
	fs.getProposalFn = func(context.Context, string) (store.Proposal, error) {
		return store.Proposal{ID: "p1", OrganizationID: "org_1", CustomWorkflowStageID: stagePtr("draft")}, nil
	}
	// No completions at all: every required draft item is missing.
	svc := newTestService(fs)
	_, err := svc.MoveProposal(context.Background(), memberSession(), "p1", "price")
	domainErr, ok := err.(*DomainError)
	if !ok || domainErr.Code != "CHECKLIST_INCOMPLETE" {
		t.Fatalf("expected CHECKLIST_INCOMPLETE, got %v", err)
	}

	// Complete the required items and the move goes through.
	fs.listChecklistCompletionsFn = func(context.Context, string) ([]store.ChecklistCompletion, error) {
		column, _ := workflow.ColumnByID(workflow.CanonicalColumns(), "draft")
		var done []store.ChecklistCompletion
		for _, item := range column.ChecklistItems {
			done = append(done, store.ChecklistCompletion{ProposalID: "p1", ColumnID: "draft", ItemID: item.ID})
		}
		return done, nil
	}
	result, err := svc.MoveProposal(context.Background(), memberSession(), "p1", "price")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if result["columnId"] != "price" {
		t.Errorf("columnId = %v", result["columnId"])
	}
	if fs.stageUpdates["p1"] != "price" {
		t.Errorf("stage update = %v", fs.stageUpdates)
	}
	if len(fs.stageEvents) != 1 || fs.stageEvents[0].FromStageID != "draft" || fs.stageEvents[0].ToStageID != "price" {
		t.Errorf("stage events = %+v", fs.stageEvents)
	}
}

func TestMoveProposalApprovalGate(t *testing.T) {
	fs := &fakeStore{}
	fs.getProposalFn = func(context.Context, string) (store.Proposal, error) {
		return store.Proposal{ID: "p1", OrganizationID: "org_1", CustomWorkflowStageID: stagePtr("final")}, nil
	}
	fs.listChecklistCompletionsFn = func(context.Context, string) ([]store.ChecklistCompletion, error) {
		column, _ := workflow.ColumnByID(workflow.CanonicalColumns(), "final")
		var done []store.ChecklistCompletion
		for _, item := range column.ChecklistItems {
			done = append(done, store.ChecklistCompletion{ProposalID: "p1", ColumnID: "final", ItemID: item.ID})
		}
		return done, nil
	}

	svc := newTestService(fs)

	member := Session{UserID: "u_1", Role: "member"}
	_, err := svc.MoveProposal(context.Background(), member, "p1", "submitted")
	domainErr, ok := err.(*DomainError)
	if !ok || domainErr.Code != "APPROVAL_REQUIRED" {
		t.Fatalf("expected APPROVAL_REQUIRED for member, got %v", err)
	}

	manager := Session{UserID: "u_2", Role: "manager"}
	if _, err := svc.MoveProposal(context.Background(), manager, "p1", "submitted"); err != nil {
		t.Fatalf("manager move: %v", err)
	}
	if fs.stageUpdates["p1"] != "submitted" {
		t.Errorf("stage update = %v", fs.stageUpdates)
	}
}

func TestMoveProposalCrossTenantReadsAsNotFound(t *testing.T) {
	fs := &fakeStore{}
	fs.getProposalFn = func(context.Context, string) (store.Proposal, error) {
		return store.Proposal{ID: "p1", OrganizationID: "org_other"}, nil
	}

	svc := newTestService(fs)
	_, err := svc.MoveProposal(context.Background(), memberSession(), "p1", "draft")
	domainErr, ok := err.(*DomainError)
	if !ok || domainErr.Status != 404 {
		t.Fatalf("expected 404 for cross-tenant proposal, got %v", err)
	}
}

func TestToggleChecklistItemValidatesItem(t *testing.T) {
	fs := &fakeStore{}
	fs.getProposalFn = func(context.Context, string) (store.Proposal, error) {
		return store.Proposal{ID: "p1", OrganizationID: "org_1", CustomWorkflowStageID: stagePtr("draft")}, nil
	}

	svc := newTestService(fs)
	_, err := svc.ToggleChecklistItem(context.Background(), memberSession(), "p1", "draft", "no_such_item", true)
	domainErr, ok := err.(*DomainError)
	if !ok || domainErr.Code != "UNKNOWN_ITEM" {
		t.Fatalf("expected UNKNOWN_ITEM, got %v", err)
	}

	var captured store.ChecklistCompletion
	fs.setChecklistCompletionFn = func(_ context.Context, completion store.ChecklistCompletion, completed bool) error {
		captured = completion
		if !completed {
			t.Error("expected completed=true")
		}
		return nil
	}
	column, _ := workflow.ColumnByID(workflow.CanonicalColumns(), "draft")
	itemID := column.ChecklistItems[0].ID
	if _, err := svc.ToggleChecklistItem(context.Background(), memberSession(), "p1", "draft", itemID, true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if captured.ItemID != itemID || captured.CompletedBy != "u_1" {
		t.Errorf("captured = %+v", captured)
	}
}

func TestUpdateBoardPreferencesRequiresBoard(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	_, err := svc.UpdateBoardPreferences(context.Background(), memberSession(), UpdatePreferencesInput{})
	domainErr, ok := err.(*DomainError)
	if !ok || domainErr.Code != "NO_BOARD" {
		t.Fatalf("expected NO_BOARD, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)

	session, err := svc.CreateSession(context.Background(), "u_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("expected tokens")
	}

	parsed, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("parse session: %v", err)
	}
	if parsed.UserID != "u_1" {
		t.Errorf("userID = %q", parsed.UserID)
	}

	refreshed, err := svc.Refresh(context.Background(), session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Token == "" {
		t.Fatal("expected new access token")
	}

	// A refresh token is single use.
	if _, err := svc.Refresh(context.Background(), session.RefreshToken); err == nil {
		t.Fatal("expected reused refresh token to fail")
	}
}

func TestSeedCreatesOrganizationWhenMissing(t *testing.T) {
	fs := &fakeStore{}
	fs.latestOrganizationForUserFn = func(context.Context, string) (string, error) {
		return "", workflow.ErrNoOrganization
	}
	var createdOrg store.Organization
	fs.insertOrganizationFn = func(_ context.Context, org store.Organization) error {
		createdOrg = org
		return nil
	}
	inserted := 0
	fs.insertProposalFn = func(_ context.Context, item store.Proposal) error {
		if item.OrganizationID != createdOrg.ID {
			t.Errorf("proposal org = %q, want %q", item.OrganizationID, createdOrg.ID)
		}
		inserted++
		return nil
	}

	svc := newTestService(fs)
	result, err := svc.Seed(context.Background(), memberSession())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if createdOrg.ID == "" {
		t.Fatal("expected organization to be created")
	}
	if result["proposalsCreated"] != inserted || inserted != len(seedProposals) {
		t.Errorf("proposalsCreated = %v, inserted = %d", result["proposalsCreated"], inserted)
	}
}

type failingExportData struct{}

func (failingExportData) GetProposalForExport(context.Context, string) (export.ProposalInfo, error) {
	return export.ProposalInfo{}, errors.New("connection refused")
}
func (failingExportData) ListCompletedItems(context.Context, string, string) (map[string]bool, error) {
	return nil, nil
}

func TestExportProposalMapsMissingContentToNotFound(t *testing.T) {
	fs := &fakeStore{}
	fs.getProposalFn = func(context.Context, string) (store.Proposal, error) {
		return store.Proposal{ID: "p1", OrganizationID: "org_1"}, nil
	}

	svc := newTestService(fs)
	svc.exporter = export.NewService(failingExportData{})

	_, err := svc.ExportProposal(context.Background(), memberSession(), "p1")
	domainErr, ok := err.(*DomainError)
	if !ok || domainErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
