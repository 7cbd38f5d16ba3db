package export

import (
	"context"
	"fmt"

	"bidboard/api/internal/workflow"
)

// DataStore defines the data access the exporter needs.
type DataStore interface {
	GetProposalForExport(ctx context.Context, proposalID string) (ProposalInfo, error)
	ListCompletedItems(ctx context.Context, proposalID, columnID string) (map[string]bool, error)
}

// Service renders proposal one-pagers.
type Service struct {
	store DataStore
}

// NewService creates a new export service.
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates a PDF one-pager for a proposal.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	info, err := s.store.GetProposalForExport(ctx, req.ProposalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	data := TemplateData{
		Title:            info.Title,
		Agency:           info.Agency,
		Description:      info.Description,
		Status:           info.Status,
		OrganizationName: info.OrganizationName,
		UpdatedAt:        info.UpdatedAt,
	}
	if info.EstimatedValue > 0 {
		data.EstimatedValue = fmt.Sprintf("$%.2f", info.EstimatedValue)
	}
	if info.DueDate != nil {
		data.DueDate = info.DueDate.Format("Jan 2, 2006")
	}

	columnID := info.ColumnID
	if columnID == "" {
		columnID = workflow.ResolveColumn(info.Status, info.CurrentPhase)
	}
	if col, ok := workflow.ColumnByID(workflow.CanonicalColumns(), columnID); ok {
		data.StageName = col.Label
		if len(col.ChecklistItems) > 0 {
			completed, err := s.store.ListCompletedItems(ctx, req.ProposalID, columnID)
			if err != nil {
				return nil, fmt.Errorf("list checklist completions: %w", err)
			}
			for _, item := range col.ChecklistItems {
				data.Checklist = append(data.Checklist, ChecklistItemInfo{
					Label:     item.Label,
					Completed: completed[item.ID],
				})
			}
		}
	} else {
		data.StageName = columnID
	}

	html, err := RenderProposalHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return exportPDF(html, info.Title)
}
