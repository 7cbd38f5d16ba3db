// Package export renders proposal one-pagers and converts them to PDF.
package export

import (
	"errors"
	"time"
)

// Request contains parameters for an export operation.
type Request struct {
	ProposalID string
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ProposalInfo holds the proposal metadata rendered into the one-pager.
type ProposalInfo struct {
	ID               string
	Title            string
	Agency           string
	Description      string
	Status           string
	CurrentPhase     string
	ColumnID         string
	EstimatedValue   float64
	DueDate          *time.Time
	OrganizationName string
	UpdatedAt        time.Time
}

// ChecklistItemInfo is one checklist row in the export.
type ChecklistItemInfo struct {
	Label     string
	Completed bool
}

var (
	// ErrContentUnavailable indicates proposal data could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
