package store

import (
	"time"

	"bidboard/api/internal/workflow"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Organization is the tenant. It owns proposals and one board configuration.
type Organization struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Proposal is a government-contract bid tracked through the workflow.
// Status and CurrentPhase are the legacy lifecycle fields; once
// CustomWorkflowStageID is set it is the source of truth for board placement
// and the legacy fields are kept only for audit.
type Proposal struct {
	ID                    string
	OrganizationID        string
	Title                 string
	Agency                string
	SolicitationNumber    string
	Description           string
	Status                string
	CurrentPhase          string
	CustomWorkflowStageID *string
	EstimatedValue        float64
	DueDate               *time.Time
	CreatedBy             string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// BoardConfiguration is an organization's snapshot of the column schema plus
// display preferences. Columns are a copy taken at migration time, so later
// schema changes never rewrite history.
type BoardConfiguration struct {
	ID             string
	OrganizationID string
	SchemaVersion  int
	Columns        []workflow.Column
	Preferences    workflow.Preferences
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ChecklistCompletion marks one checklist item done for one proposal.
type ChecklistCompletion struct {
	ProposalID  string
	ColumnID    string
	ItemID      string
	CompletedBy string
	CompletedAt time.Time
}

// StageEvent records a proposal moving between columns.
type StageEvent struct {
	ID          int64
	ProposalID  string
	FromStageID string
	ToStageID   string
	MovedBy     string
	CreatedAt   time.Time
}

// Attachment is file metadata for an object stored externally.
type Attachment struct {
	ID          string
	ProposalID  string
	FileName    string
	ObjectKey   string
	ContentType string
	Size        int64
	UploadedBy  string
	CreatedAt   time.Time
}
