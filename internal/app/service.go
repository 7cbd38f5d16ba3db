package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bidboard/api/internal/auth"
	"bidboard/api/internal/authpw"
	"bidboard/api/internal/config"
	"bidboard/api/internal/email"
	"bidboard/api/internal/events"
	"bidboard/api/internal/export"
	"bidboard/api/internal/rbac"
	"bidboard/api/internal/search"
	"bidboard/api/internal/store"
	"bidboard/api/internal/util"
	"bidboard/api/internal/workflow"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// CreateProposalInput carries the writable proposal fields.
type CreateProposalInput struct {
	Title              string
	Agency             string
	SolicitationNumber string
	Description        string
	Status             string
	CurrentPhase       string
	EstimatedValue     float64
	DueDate            string // YYYY-MM-DD, optional
}

// UpdatePreferencesInput carries board display settings from the client.
type UpdatePreferencesInput struct {
	CollapsedColumnIDs []string        `json:"collapsed_column_ids"`
	SwimlaneConfig     json.RawMessage `json:"swimlane_config"`
	ViewSettings       json.RawMessage `json:"view_settings"`
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertOrganization(context.Context, store.Organization) error
	ListOrganizationsForUser(context.Context, string) ([]store.Organization, error)
	GetOrganization(context.Context, string) (store.Organization, error)
	LatestOrganizationForUser(ctx context.Context, userID string) (string, error)
	GetBoardConfiguration(context.Context, string) (store.BoardConfiguration, error)
	GetBoardPreferences(ctx context.Context, organizationID string) (workflow.Preferences, bool, error)
	SaveBoardConfiguration(ctx context.Context, organizationID string, columns []workflow.Column, prefs workflow.Preferences) error
	UpdateBoardPreferences(context.Context, string, workflow.Preferences) error
	InsertProposal(context.Context, store.Proposal) error
	GetProposal(context.Context, string) (store.Proposal, error)
	ListProposalsByOrganization(context.Context, string) ([]store.Proposal, error)
	UpdateProposal(context.Context, store.Proposal) error
	DeleteProposal(context.Context, string) error
	ListProposalStages(ctx context.Context, organizationID string) ([]workflow.ProposalStage, error)
	UpdateProposalStage(ctx context.Context, proposalID, columnID string) error
	SetChecklistCompletion(context.Context, store.ChecklistCompletion, bool) error
	ListChecklistCompletions(context.Context, string) ([]store.ChecklistCompletion, error)
	InsertStageEvent(context.Context, store.StageEvent) error
	ListStageEvents(context.Context, string, int) ([]store.StageEvent, error)
	InsertAttachment(context.Context, store.Attachment) error
	GetAttachment(context.Context, string) (store.Attachment, error)
	ListAttachments(context.Context, string) ([]store.Attachment, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type fileStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, key, filename string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	auth      *authpw.Service
	mailer    *email.Service
	searcher  *search.Service
	exporter  *export.Service
	files     fileStore
	publisher *events.Publisher
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
	}
}

func (s *Service) WithAuth(auth *authpw.Service, mailer *email.Service) *Service {
	s.auth = auth
	s.mailer = mailer
	return s
}

func (s *Service) WithSearch(searcher *search.Service) *Service {
	s.searcher = searcher
	return s
}

func (s *Service) WithExporter(exporter *export.Service) *Service {
	s.exporter = exporter
	return s
}

func (s *Service) WithFiles(files fileStore) *Service {
	s.files = files
	return s
}

func (s *Service) WithPublisher(publisher *events.Publisher) *Service {
	s.publisher = publisher
	return s
}

// AuthPasswordService exposes the email/password auth service to the HTTP layer.
func (s *Service) AuthPasswordService() *authpw.Service {
	return s.auth
}

// Mailer exposes the email service to the HTTP layer.
func (s *Service) Mailer() *email.Service {
	return s.mailer
}

// SMTPConfigured reports whether outbound email is available.
func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

// ── Sessions ──

// CreateSession issues access and refresh tokens for an authenticated user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The session store may carry only the user ID; reload for role changes.
	if user.Role == "" {
		user, err = s.store.GetUserByID(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// ── Organizations ──

func (s *Service) CreateOrganization(ctx context.Context, session Session, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusBadRequest, "INVALID_NAME", "Organization name is required", nil)
	}

	org := store.Organization{
		ID:      util.NewID("org"),
		Name:    name,
		OwnerID: session.UserID,
	}
	if err := s.store.InsertOrganization(ctx, org); err != nil {
		return nil, err
	}
	return map[string]any{"id": org.ID, "name": org.Name, "ownerId": org.OwnerID}, nil
}

func (s *Service) ListOrganizations(ctx context.Context, session Session) ([]map[string]any, error) {
	orgs, err := s.store.ListOrganizationsForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, map[string]any{
			"id":        org.ID,
			"name":      org.Name,
			"ownerId":   org.OwnerID,
			"createdAt": org.CreatedAt.Format(time.RFC3339),
		})
	}
	return out, nil
}

// resolveOrganization finds the caller's organization or fails with 404.
func (s *Service) resolveOrganization(ctx context.Context, session Session) (string, error) {
	organizationID, err := s.store.LatestOrganizationForUser(ctx, session.UserID)
	if errors.Is(err, workflow.ErrNoOrganization) {
		return "", domainError(http.StatusNotFound, "NO_ORGANIZATION", "No organization found", nil)
	}
	if err != nil {
		return "", err
	}
	return organizationID, nil
}

// requireProposal loads a proposal and verifies it belongs to the caller's
// organization. Cross-tenant access reads as not found.
func (s *Service) requireProposal(ctx context.Context, session Session, proposalID string) (store.Proposal, error) {
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Proposal{}, domainError(http.StatusNotFound, "NOT_FOUND", "Proposal not found", nil)
	}
	if err != nil {
		return store.Proposal{}, err
	}

	orgs, err := s.store.ListOrganizationsForUser(ctx, session.UserID)
	if err != nil {
		return store.Proposal{}, err
	}
	for _, org := range orgs {
		if org.ID == proposal.OrganizationID {
			return proposal, nil
		}
	}
	return store.Proposal{}, domainError(http.StatusNotFound, "NOT_FOUND", "Proposal not found", nil)
}

// ── Board ──

// GetBoard returns the caller's board: configuration plus proposals grouped
// into columns. A missing configuration is created on first read with the
// canonical columns and default preferences.
func (s *Service) GetBoard(ctx context.Context, session Session) (map[string]any, error) {
	organizationID, err := s.resolveOrganization(ctx, session)
	if err != nil {
		return nil, err
	}

	boardCfg, err := s.store.GetBoardConfiguration(ctx, organizationID)
	if errors.Is(err, sql.ErrNoRows) {
		if err := s.store.SaveBoardConfiguration(ctx, organizationID, workflow.CanonicalColumns(), workflow.DefaultPreferences()); err != nil {
			return nil, err
		}
		boardCfg, err = s.store.GetBoardConfiguration(ctx, organizationID)
	}
	if err != nil {
		return nil, err
	}

	org, err := s.store.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	proposals, err := s.store.ListProposalsByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	cards := make(map[string][]map[string]any)
	for _, proposal := range proposals {
		columnID := proposalColumnID(proposal)
		if _, ok := workflow.ColumnByID(boardCfg.Columns, columnID); !ok {
			columnID = workflow.FirstColumnID()
		}
		card, err := s.proposalCard(ctx, proposal, boardCfg.Columns)
		if err != nil {
			return nil, err
		}
		cards[columnID] = append(cards[columnID], card)
	}

	columns := make([]map[string]any, 0, len(boardCfg.Columns))
	for _, column := range boardCfg.Columns {
		columnCards := cards[column.ID]
		if columnCards == nil {
			columnCards = []map[string]any{}
		}
		columns = append(columns, map[string]any{
			"column": column,
			"cards":  columnCards,
		})
	}

	return map[string]any{
		"organization":   map[string]any{"id": org.ID, "name": org.Name},
		"schema_version": boardCfg.SchemaVersion,
		"columns":        columns,
		"preferences":    boardCfg.Preferences,
	}, nil
}

// UpdateBoardPreferences overwrites the board's display preferences. The
// column snapshot is never touched here.
func (s *Service) UpdateBoardPreferences(ctx context.Context, session Session, input UpdatePreferencesInput) (map[string]any, error) {
	organizationID, err := s.resolveOrganization(ctx, session)
	if err != nil {
		return nil, err
	}

	prefs, exists, err := s.store.GetBoardPreferences(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domainError(http.StatusNotFound, "NO_BOARD", "Board configuration not found", nil)
	}

	if input.CollapsedColumnIDs != nil {
		prefs.CollapsedColumnIDs = input.CollapsedColumnIDs
	}
	if len(input.SwimlaneConfig) > 0 {
		prefs.SwimlaneConfig = input.SwimlaneConfig
	}
	if len(input.ViewSettings) > 0 {
		prefs.ViewSettings = input.ViewSettings
	}

	if err := s.store.UpdateBoardPreferences(ctx, organizationID, prefs); err != nil {
		return nil, err
	}
	return map[string]any{"preferences": prefs}, nil
}

// MigrateBoard upgrades the caller's board to the canonical schema and remaps
// every proposal onto it. Safe to call repeatedly.
func (s *Service) MigrateBoard(ctx context.Context, session Session) (workflow.MigrationResult, error) {
	result, err := workflow.NewMigrator(s.store).Run(ctx, session.UserID)
	if err != nil {
		return result, err
	}

	if s.publisher != nil {
		s.publisher.PublishMigrationCompleted(events.MigrationCompletedEvent{
			OrganizationID:    result.OrganizationID,
			ActorID:           session.UserID,
			ConfigsUpdated:    result.ConfigsUpdated,
			ProposalsMigrated: result.ProposalsMigrated,
			ErrorCount:        len(result.Errors),
		})
	}
	return result, nil
}

// ── Proposals ──

func (s *Service) CreateProposal(ctx context.Context, session Session, input CreateProposalInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusBadRequest, "INVALID_TITLE", "Proposal title is required", nil)
	}

	organizationID, err := s.resolveOrganization(ctx, session)
	if err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = "evaluating"
	}
	phase := input.CurrentPhase
	if phase == "" {
		phase = "phase1"
	}

	proposal := store.Proposal{
		ID:                 util.NewID("prop"),
		OrganizationID:     organizationID,
		Title:              title,
		Agency:             strings.TrimSpace(input.Agency),
		SolicitationNumber: strings.TrimSpace(input.SolicitationNumber),
		Description:        strings.TrimSpace(input.Description),
		Status:             status,
		CurrentPhase:       phase,
		EstimatedValue:     input.EstimatedValue,
		CreatedBy:          session.UserName,
	}
	if input.DueDate != "" {
		due, err := time.Parse("2006-01-02", input.DueDate)
		if err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_DUE_DATE", "Due date must be YYYY-MM-DD", nil)
		}
		proposal.DueDate = &due
	}

	if err := s.store.InsertProposal(ctx, proposal); err != nil {
		return nil, err
	}
	s.indexProposal(proposal)

	boardCfg, _ := s.store.GetBoardConfiguration(ctx, organizationID)
	return s.proposalCard(ctx, proposal, boardCfg.Columns)
}

func (s *Service) ListProposals(ctx context.Context, session Session) ([]map[string]any, error) {
	organizationID, err := s.resolveOrganization(ctx, session)
	if err != nil {
		return nil, err
	}
	proposals, err := s.store.ListProposalsByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	boardCfg, _ := s.store.GetBoardConfiguration(ctx, organizationID)

	out := make([]map[string]any, 0, len(proposals))
	for _, proposal := range proposals {
		card, err := s.proposalCard(ctx, proposal, boardCfg.Columns)
		if err != nil {
			return nil, err
		}
		out = append(out, card)
	}
	return out, nil
}

// GetProposalDetail returns a proposal with checklist state, stage history
// and attachment metadata.
func (s *Service) GetProposalDetail(ctx context.Context, session Session, proposalID string) (map[string]any, error) {
	proposal, err := s.requireProposal(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}

	boardCfg, _ := s.store.GetBoardConfiguration(ctx, proposal.OrganizationID)
	columns := boardCfg.Columns
	if len(columns) == 0 {
		columns = workflow.CanonicalColumns()
	}

	detail, err := s.proposalCard(ctx, proposal, columns)
	if err != nil {
		return nil, err
	}

	columnID := proposalColumnID(proposal)
	completions, err := s.store.ListChecklistCompletions(ctx, proposal.ID)
	if err != nil {
		return nil, err
	}
	completed := make(map[string]bool, len(completions))
	for _, c := range completions {
		if c.ColumnID == columnID {
			completed[c.ItemID] = true
		}
	}

	checklist := []map[string]any{}
	if column, ok := workflow.ColumnByID(columns, columnID); ok {
		for _, item := range column.ChecklistItems {
			checklist = append(checklist, map[string]any{
				"id":        item.ID,
				"label":     item.Label,
				"type":      item.Type,
				"required":  item.Required,
				"completed": completed[item.ID],
			})
		}
	}
	detail["checklist"] = checklist

	eventRecords, err := s.store.ListStageEvents(ctx, proposal.ID, 50)
	if err != nil {
		return nil, err
	}
	history := make([]map[string]any, 0, len(eventRecords))
	for _, event := range eventRecords {
		history = append(history, map[string]any{
			"from":    event.FromStageID,
			"to":      event.ToStageID,
			"movedBy": event.MovedBy,
			"at":      event.CreatedAt.Format(time.RFC3339),
		})
	}
	detail["stageHistory"] = history

	attachments, err := s.store.ListAttachments(ctx, proposal.ID)
	if err != nil {
		return nil, err
	}
	attachmentList := make([]map[string]any, 0, len(attachments))
	for _, a := range attachments {
		attachmentList = append(attachmentList, attachmentSummary(a))
	}
	detail["attachments"] = attachmentList

	return detail, nil
}

func (s *Service) UpdateProposal(ctx context.Context, session Session, proposalID string, input CreateProposalInput) (map[string]any, error) {
	proposal, err := s.requireProposal(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}

	if title := strings.TrimSpace(input.Title); title != "" {
		proposal.Title = title
	}
	if input.Agency != "" {
		proposal.Agency = strings.TrimSpace(input.Agency)
	}
	if input.SolicitationNumber != "" {
		proposal.SolicitationNumber = strings.TrimSpace(input.SolicitationNumber)
	}
	if input.Description != "" {
		proposal.Description = strings.TrimSpace(input.Description)
	}
	if input.EstimatedValue > 0 {
		proposal.EstimatedValue = input.EstimatedValue
	}
	if input.DueDate != "" {
		due, err := time.Parse("2006-01-02", input.DueDate)
		if err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_DUE_DATE", "Due date must be YYYY-MM-DD", nil)
		}
		proposal.DueDate = &due
	}

	if err := s.store.UpdateProposal(ctx, proposal); err != nil {
		return nil, err
	}
	s.indexProposal(proposal)

	boardCfg, _ := s.store.GetBoardConfiguration(ctx, proposal.OrganizationID)
	return s.proposalCard(ctx, proposal, boardCfg.Columns)
}

func (s *Service) DeleteProposal(ctx context.Context, session Session, proposalID string) error {
	proposal, err := s.requireProposal(ctx, session, proposalID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteProposal(ctx, proposal.ID); err != nil {
		return err
	}
	if s.searcher != nil {
		s.searcher.DeleteProposal(proposal.ID)
	}
	return nil
}

// MoveProposal places a proposal in another column. Leaving a column requires
// its required checklist items to be complete, and a column flagged
// requires_approval_to_exit additionally needs an approver role.
func (s *Service) MoveProposal(ctx context.Context, session Session, proposalID, toColumnID string) (map[string]any, error) {
	proposal, err := s.requireProposal(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}

	boardCfg, err := s.store.GetBoardConfiguration(ctx, proposal.OrganizationID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	columns := boardCfg.Columns
	if len(columns) == 0 {
		columns = workflow.CanonicalColumns()
	}

	if _, ok := workflow.ColumnByID(columns, toColumnID); !ok {
		return nil, domainError(http.StatusBadRequest, "UNKNOWN_COLUMN", fmt.Sprintf("Column %q does not exist on this board", toColumnID), nil)
	}

	fromColumnID := proposalColumnID(proposal)
	if fromColumnID == toColumnID {
		return s.proposalCard(ctx, proposal, columns)
	}

	if fromColumn, ok := workflow.ColumnByID(columns, fromColumnID); ok {
		missing, err := s.missingRequiredItems(ctx, proposal.ID, fromColumn)
		if err != nil {
			return nil, err
		}
		if len(missing) > 0 {
			return nil, domainError(http.StatusConflict, "CHECKLIST_INCOMPLETE", "Required checklist items are incomplete", map[string]any{"missing": missing})
		}
		if fromColumn.RequiresApprovalToExit && !rbac.IsApprover(session.Role, fromColumn.ApproverRoles) {
			return nil, domainError(http.StatusForbidden, "APPROVAL_REQUIRED", "Leaving this stage requires an approver role", map[string]any{"approverRoles": fromColumn.ApproverRoles})
		}
	}

	if err := s.store.UpdateProposalStage(ctx, proposal.ID, toColumnID); err != nil {
		return nil, err
	}
	if err := s.store.InsertStageEvent(ctx, store.StageEvent{
		ProposalID:  proposal.ID,
		FromStageID: fromColumnID,
		ToStageID:   toColumnID,
		MovedBy:     session.UserID,
	}); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		s.publisher.PublishStageChanged(events.StageChangedEvent{
			OrganizationID: proposal.OrganizationID,
			ProposalID:     proposal.ID,
			ActorID:        session.UserID,
			FromColumnID:   fromColumnID,
			ToColumnID:     toColumnID,
		})
	}

	proposal.CustomWorkflowStageID = &toColumnID
	return s.proposalCard(ctx, proposal, columns)
}

// ToggleChecklistItem marks one checklist item done or not done.
func (s *Service) ToggleChecklistItem(ctx context.Context, session Session, proposalID, columnID, itemID string, completed bool) (map[string]any, error) {
	proposal, err := s.requireProposal(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}

	boardCfg, _ := s.store.GetBoardConfiguration(ctx, proposal.OrganizationID)
	columns := boardCfg.Columns
	if len(columns) == 0 {
		columns = workflow.CanonicalColumns()
	}

	column, ok := workflow.ColumnByID(columns, columnID)
	if !ok {
		return nil, domainError(http.StatusBadRequest, "UNKNOWN_COLUMN", fmt.Sprintf("Column %q does not exist on this board", columnID), nil)
	}
	found := false
	for _, item := range column.ChecklistItems {
		if item.ID == itemID {
			found = true
			break
		}
	}
	if !found {
		return nil, domainError(http.StatusBadRequest, "UNKNOWN_ITEM", fmt.Sprintf("Checklist item %q does not exist in column %q", itemID, columnID), nil)
	}

	if err := s.store.SetChecklistCompletion(ctx, store.ChecklistCompletion{
		ProposalID:  proposal.ID,
		ColumnID:    columnID,
		ItemID:      itemID,
		CompletedBy: session.UserID,
	}, completed); err != nil {
		return nil, err
	}

	return map[string]any{
		"proposalId": proposal.ID,
		"columnId":   columnID,
		"itemId":     itemID,
		"completed":  completed,
	}, nil
}

// ── Search ──

func (s *Service) SearchProposals(ctx context.Context, session Session, text, status string, limit, offset int) (search.Response, error) {
	organizationID, err := s.resolveOrganization(ctx, session)
	if err != nil {
		return search.Response{}, err
	}
	if s.searcher == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.searcher.Search(search.Query{
		Text:           text,
		OrganizationID: organizationID,
		FilterStatus:   status,
		Limit:          limit,
		Offset:         offset,
	}), nil
}

// ── Export ──

func (s *Service) ExportProposal(ctx context.Context, session Session, proposalID string) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export service not configured", nil)
	}
	proposal, err := s.requireProposal(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Export(ctx, export.Request{ProposalID: proposal.ID})
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF renderer is not installed", nil)
	}
	if errors.Is(err, export.ErrContentUnavailable) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Proposal not found", nil)
	}
	return result, err
}

// ── Attachments ──

func (s *Service) UploadAttachment(ctx context.Context, session Session, proposalID, filename, contentType string, size int64, r io.Reader) (map[string]any, error) {
	if s.files == nil {
		return nil, domainError(http.StatusServiceUnavailable, "FILES_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	proposal, err := s.requireProposal(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}

	attachment := store.Attachment{
		ID:          util.NewID("att"),
		ProposalID:  proposal.ID,
		FileName:    filename,
		ContentType: contentType,
		Size:        size,
		UploadedBy:  session.UserID,
	}
	attachment.ObjectKey = fmt.Sprintf("%s/%s/%s/%s", proposal.OrganizationID, proposal.ID, attachment.ID, filename)

	if err := s.files.Upload(ctx, attachment.ObjectKey, r, size, contentType); err != nil {
		return nil, err
	}
	if err := s.store.InsertAttachment(ctx, attachment); err != nil {
		// best effort cleanup of the orphaned object
		_ = s.files.Delete(ctx, attachment.ObjectKey)
		return nil, err
	}
	return attachmentSummary(attachment), nil
}

func (s *Service) ListProposalAttachments(ctx context.Context, session Session, proposalID string) ([]map[string]any, error) {
	proposal, err := s.requireProposal(ctx, session, proposalID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, proposal.ID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(attachments))
	for _, a := range attachments {
		out = append(out, attachmentSummary(a))
	}
	return out, nil
}

// AttachmentURL returns a time-limited download URL for an attachment.
func (s *Service) AttachmentURL(ctx context.Context, session Session, attachmentID string) (map[string]any, error) {
	if s.files == nil {
		return nil, domainError(http.StatusServiceUnavailable, "FILES_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	attachment, err := s.store.GetAttachment(ctx, attachmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Attachment not found", nil)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.requireProposal(ctx, session, attachment.ProposalID); err != nil {
		return nil, err
	}

	url, err := s.files.PresignedURL(ctx, attachment.ObjectKey, attachment.FileName, 15*time.Minute)
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": url, "expiresInSeconds": 900}, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ── Helpers ──

// proposalColumnID is the board placement rule: an explicit stage wins, the
// legacy fields are a fallback for boards that never migrated.
func proposalColumnID(proposal store.Proposal) string {
	if proposal.CustomWorkflowStageID != nil && *proposal.CustomWorkflowStageID != "" {
		return *proposal.CustomWorkflowStageID
	}
	return workflow.ResolveColumn(proposal.Status, proposal.CurrentPhase)
}

func (s *Service) proposalCard(ctx context.Context, proposal store.Proposal, columns []workflow.Column) (map[string]any, error) {
	if len(columns) == 0 {
		columns = workflow.CanonicalColumns()
	}
	columnID := proposalColumnID(proposal)

	card := map[string]any{
		"id":                 proposal.ID,
		"organizationId":     proposal.OrganizationID,
		"title":              proposal.Title,
		"agency":             proposal.Agency,
		"solicitationNumber": proposal.SolicitationNumber,
		"description":        proposal.Description,
		"status":             proposal.Status,
		"currentPhase":       proposal.CurrentPhase,
		"columnId":           columnID,
		"estimatedValue":     proposal.EstimatedValue,
		"createdBy":          proposal.CreatedBy,
		"createdAt":          proposal.CreatedAt.Format(time.RFC3339),
		"updatedAt":          proposal.UpdatedAt.Format(time.RFC3339),
	}
	if proposal.DueDate != nil {
		card["dueDate"] = proposal.DueDate.Format("2006-01-02")
	}

	if column, ok := workflow.ColumnByID(columns, columnID); ok && len(column.ChecklistItems) > 0 {
		completions, err := s.store.ListChecklistCompletions(ctx, proposal.ID)
		if err != nil {
			return nil, err
		}
		done := 0
		for _, c := range completions {
			if c.ColumnID == columnID {
				done++
			}
		}
		card["checklistProgress"] = map[string]any{
			"done":  done,
			"total": len(column.ChecklistItems),
		}
	}
	return card, nil
}

func (s *Service) missingRequiredItems(ctx context.Context, proposalID string, column workflow.Column) ([]string, error) {
	required := []string{}
	for _, item := range column.ChecklistItems {
		if item.Required {
			required = append(required, item.ID)
		}
	}
	if len(required) == 0 {
		return nil, nil
	}

	completions, err := s.store.ListChecklistCompletions(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	completed := make(map[string]bool, len(completions))
	for _, c := range completions {
		if c.ColumnID == column.ID {
			completed[c.ItemID] = true
		}
	}

	var missing []string
	for _, itemID := range required {
		if !completed[itemID] {
			missing = append(missing, itemID)
		}
	}
	return missing, nil
}

func (s *Service) indexProposal(proposal store.Proposal) {
	if s.searcher == nil {
		return
	}
	s.searcher.IndexProposal(search.ProposalRecord{
		ID:             proposal.ID,
		Title:          proposal.Title,
		Agency:         proposal.Agency,
		Description:    proposal.Description,
		OrganizationID: proposal.OrganizationID,
		Status:         proposal.Status,
		CurrentPhase:   proposal.CurrentPhase,
	})
}

func attachmentSummary(a store.Attachment) map[string]any {
	return map[string]any{
		"id":          a.ID,
		"proposalId":  a.ProposalID,
		"fileName":    a.FileName,
		"contentType": a.ContentType,
		"size":        a.Size,
		"uploadedBy":  a.UploadedBy,
		"createdAt":   a.CreatedAt.Format(time.RFC3339),
	}
}
