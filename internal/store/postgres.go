package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bidboard/api/internal/workflow"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Users ──

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, is_email_verified, created_at, updated_at
		FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, is_email_verified, created_at, updated_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_token <> ''
			AND (verification_expires_at IS NULL OR verification_expires_at > NOW())
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// ── Refresh sessions (Postgres fallback when Redis is not configured) ──

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ── Organizations ──

func (s *PostgresStore) InsertOrganization(ctx context.Context, org Organization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, owner_id)
		VALUES ($1, $2, $3)
	`, org.ID, org.Name, org.OwnerID)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOrganizationsForUser(ctx context.Context, userID string) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, owner_id, created_at, updated_at
		FROM organizations
		WHERE owner_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	items := make([]Organization, 0)
	for rows.Next() {
		var item Organization
		if err := rows.Scan(&item.ID, &item.Name, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetOrganization(ctx context.Context, organizationID string) (Organization, error) {
	var item Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, created_at, updated_at
		FROM organizations WHERE id=$1
	`, organizationID).Scan(&item.ID, &item.Name, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Organization{}, err
	}
	return item, nil
}

// LatestOrganizationForUser resolves the caller's organization by most recent
// creation. When a user owns several, this silently picks the newest.
func (s *PostgresStore) LatestOrganizationForUser(ctx context.Context, userID string) (string, error) {
	var organizationID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM organizations
		WHERE owner_id=$1
		ORDER BY created_at DESC
		LIMIT 1
	`, userID).Scan(&organizationID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", workflow.ErrNoOrganization
	}
	if err != nil {
		return "", fmt.Errorf("resolve organization: %w", err)
	}
	return organizationID, nil
}

// ── Board configurations ──

func (s *PostgresStore) GetBoardConfiguration(ctx context.Context, organizationID string) (BoardConfiguration, error) {
	var (
		item        BoardConfiguration
		columnsRaw  []byte
		collapsed   []byte
		swimlaneRaw []byte
		viewRaw     []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, schema_version, columns, collapsed_column_ids, swimlane_config, view_settings, created_at, updated_at
		FROM board_configurations
		WHERE organization_id=$1
	`, organizationID).Scan(&item.ID, &item.OrganizationID, &item.SchemaVersion, &columnsRaw, &collapsed, &swimlaneRaw, &viewRaw, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return BoardConfiguration{}, err
	}
	if err := json.Unmarshal(columnsRaw, &item.Columns); err != nil {
		return BoardConfiguration{}, fmt.Errorf("decode columns: %w", err)
	}
	if err := json.Unmarshal(collapsed, &item.Preferences.CollapsedColumnIDs); err != nil {
		return BoardConfiguration{}, fmt.Errorf("decode collapsed ids: %w", err)
	}
	item.Preferences.SwimlaneConfig = json.RawMessage(swimlaneRaw)
	item.Preferences.ViewSettings = json.RawMessage(viewRaw)
	return item, nil
}

func (s *PostgresStore) GetBoardPreferences(ctx context.Context, organizationID string) (workflow.Preferences, bool, error) {
	config, err := s.GetBoardConfiguration(ctx, organizationID)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Preferences{}, false, nil
	}
	if err != nil {
		return workflow.Preferences{}, false, err
	}
	return config.Preferences, true, nil
}

// SaveBoardConfiguration upserts the configuration in one statement so
// concurrent runs cannot interleave within the record (last write wins).
func (s *PostgresStore) SaveBoardConfiguration(ctx context.Context, organizationID string, columns []workflow.Column, prefs workflow.Preferences) error {
	columnsRaw, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}
	collapsed, err := json.Marshal(prefs.CollapsedColumnIDs)
	if err != nil {
		return fmt.Errorf("encode collapsed ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO board_configurations (id, organization_id, schema_version, columns, collapsed_column_ids, swimlane_config, view_settings)
		VALUES ('bc_' || $1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (organization_id) DO UPDATE SET
			schema_version=EXCLUDED.schema_version,
			columns=EXCLUDED.columns,
			collapsed_column_ids=EXCLUDED.collapsed_column_ids,
			swimlane_config=EXCLUDED.swimlane_config,
			view_settings=EXCLUDED.view_settings,
			updated_at=NOW()
	`, organizationID, workflow.SchemaVersion, columnsRaw, collapsed, []byte(prefs.SwimlaneConfig), []byte(prefs.ViewSettings))
	if err != nil {
		return fmt.Errorf("save board configuration: %w", err)
	}
	return nil
}

// UpdateBoardPreferences rewrites the display preferences only, leaving the
// column snapshot alone.
func (s *PostgresStore) UpdateBoardPreferences(ctx context.Context, organizationID string, prefs workflow.Preferences) error {
	collapsed, err := json.Marshal(prefs.CollapsedColumnIDs)
	if err != nil {
		return fmt.Errorf("encode collapsed ids: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE board_configurations
		SET collapsed_column_ids=$2, swimlane_config=$3, view_settings=$4, updated_at=NOW()
		WHERE organization_id=$1
	`, organizationID, collapsed, []byte(prefs.SwimlaneConfig), []byte(prefs.ViewSettings))
	if err != nil {
		return fmt.Errorf("update board preferences: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update board preferences rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ── Proposals ──

const proposalColumns = `id, organization_id, title, agency, solicitation_number, description,
	COALESCE(status, ''), COALESCE(current_phase, ''), custom_workflow_stage_id,
	estimated_value, due_date, created_by_name, created_at, updated_at`

func scanProposal(row interface{ Scan(...any) error }) (Proposal, error) {
	var item Proposal
	err := row.Scan(
		&item.ID,
		&item.OrganizationID,
		&item.Title,
		&item.Agency,
		&item.SolicitationNumber,
		&item.Description,
		&item.Status,
		&item.CurrentPhase,
		&item.CustomWorkflowStageID,
		&item.EstimatedValue,
		&item.DueDate,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertProposal(ctx context.Context, item Proposal) error {
	var status, phase any
	if item.Status != "" {
		status = item.Status
	}
	if item.CurrentPhase != "" {
		phase = item.CurrentPhase
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposals (id, organization_id, title, agency, solicitation_number, description, status, current_phase, custom_workflow_stage_id, estimated_value, due_date, created_by_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, item.ID, item.OrganizationID, item.Title, item.Agency, item.SolicitationNumber, item.Description, status, phase, item.CustomWorkflowStageID, item.EstimatedValue, item.DueDate, item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProposal(ctx context.Context, proposalID string) (Proposal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id=$1`, proposalID)
	return scanProposal(row)
}

func (s *PostgresStore) ListProposalsByOrganization(ctx context.Context, organizationID string) ([]Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+proposalColumns+` FROM proposals
		WHERE organization_id=$1
		ORDER BY created_at ASC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	items := make([]Proposal, 0)
	for rows.Next() {
		item, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateProposal(ctx context.Context, item Proposal) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE proposals
		SET title=$2, agency=$3, solicitation_number=$4, description=$5, estimated_value=$6, due_date=$7, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Title, item.Agency, item.SolicitationNumber, item.Description, item.EstimatedValue, item.DueDate)
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProposal(ctx context.Context, proposalID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM proposals WHERE id=$1`, proposalID)
	if err != nil {
		return fmt.Errorf("delete proposal: %w", err)
	}
	return nil
}

// ListProposalStages returns the migration view of every proposal in the
// organization, in creation order.
func (s *PostgresStore) ListProposalStages(ctx context.Context, organizationID string) ([]workflow.ProposalStage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(status, ''), COALESCE(current_phase, '')
		FROM proposals
		WHERE organization_id=$1
		ORDER BY created_at ASC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list proposal stages: %w", err)
	}
	defer rows.Close()

	items := make([]workflow.ProposalStage, 0)
	for rows.Next() {
		var item workflow.ProposalStage
		if err := rows.Scan(&item.ID, &item.Status, &item.CurrentPhase); err != nil {
			return nil, fmt.Errorf("scan proposal stage: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposal stages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateProposalStage(ctx context.Context, proposalID, columnID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE proposals SET custom_workflow_stage_id=$2, updated_at=NOW() WHERE id=$1
	`, proposalID, columnID)
	if err != nil {
		return fmt.Errorf("update proposal stage: %w", err)
	}
	return nil
}

// ── Checklist completions ──

func (s *PostgresStore) SetChecklistCompletion(ctx context.Context, completion ChecklistCompletion, completed bool) error {
	if !completed {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM checklist_completions WHERE proposal_id=$1 AND column_id=$2 AND item_id=$3
		`, completion.ProposalID, completion.ColumnID, completion.ItemID)
		if err != nil {
			return fmt.Errorf("clear checklist item: %w", err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checklist_completions (proposal_id, column_id, item_id, completed_by_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (proposal_id, column_id, item_id) DO UPDATE SET completed_by_name=EXCLUDED.completed_by_name, completed_at=NOW()
	`, completion.ProposalID, completion.ColumnID, completion.ItemID, completion.CompletedBy)
	if err != nil {
		return fmt.Errorf("complete checklist item: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListChecklistCompletions(ctx context.Context, proposalID string) ([]ChecklistCompletion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT proposal_id, column_id, item_id, completed_by_name, completed_at
		FROM checklist_completions
		WHERE proposal_id=$1
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list checklist completions: %w", err)
	}
	defer rows.Close()

	items := make([]ChecklistCompletion, 0)
	for rows.Next() {
		var item ChecklistCompletion
		if err := rows.Scan(&item.ProposalID, &item.ColumnID, &item.ItemID, &item.CompletedBy, &item.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan checklist completion: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklist completions: %w", err)
	}
	return items, nil
}

// ── Stage events ──

func (s *PostgresStore) InsertStageEvent(ctx context.Context, event StageEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_events (proposal_id, from_stage_id, to_stage_id, moved_by_name)
		VALUES ($1, $2, $3, $4)
	`, event.ProposalID, event.FromStageID, event.ToStageID, event.MovedBy)
	if err != nil {
		return fmt.Errorf("insert stage event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStageEvents(ctx context.Context, proposalID string, limit int) ([]StageEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, proposal_id, from_stage_id, to_stage_id, moved_by_name, created_at
		FROM stage_events
		WHERE proposal_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, proposalID, limit)
	if err != nil {
		return nil, fmt.Errorf("list stage events: %w", err)
	}
	defer rows.Close()

	items := make([]StageEvent, 0)
	for rows.Next() {
		var item StageEvent
		if err := rows.Scan(&item.ID, &item.ProposalID, &item.FromStageID, &item.ToStageID, &item.MovedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stage event: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage events: %w", err)
	}
	return items, nil
}

// ── Attachments ──

func (s *PostgresStore) InsertAttachment(ctx context.Context, item Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, proposal_id, file_name, object_key, content_type, size_bytes, uploaded_by_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.ProposalID, item.FileName, item.ObjectKey, item.ContentType, item.Size, item.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	var item Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, proposal_id, file_name, object_key, content_type, size_bytes, uploaded_by_name, created_at
		FROM attachments WHERE id=$1
	`, attachmentID).Scan(&item.ID, &item.ProposalID, &item.FileName, &item.ObjectKey, &item.ContentType, &item.Size, &item.UploadedBy, &item.CreatedAt)
	if err != nil {
		return Attachment{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, proposalID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, proposal_id, file_name, object_key, content_type, size_bytes, uploaded_by_name, created_at
		FROM attachments
		WHERE proposal_id=$1
		ORDER BY created_at DESC
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.ProposalID, &item.FileName, &item.ObjectKey, &item.ContentType, &item.Size, &item.UploadedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}
