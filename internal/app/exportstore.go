package app

import (
	"context"

	"bidboard/api/internal/export"
	"bidboard/api/internal/store"
)

// exportStore adapts the data store to what the PDF exporter needs.
type exportStore struct {
	store dataStore
}

// NewExportStore wraps the Postgres store for the export service.
func NewExportStore(dataStore *store.PostgresStore) export.DataStore {
	return exportStore{store: dataStore}
}

func (e exportStore) GetProposalForExport(ctx context.Context, proposalID string) (export.ProposalInfo, error) {
	proposal, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return export.ProposalInfo{}, err
	}

	info := export.ProposalInfo{
		ID:             proposal.ID,
		Title:          proposal.Title,
		Agency:         proposal.Agency,
		Description:    proposal.Description,
		Status:         proposal.Status,
		CurrentPhase:   proposal.CurrentPhase,
		ColumnID:       "",
		EstimatedValue: proposal.EstimatedValue,
		DueDate:        proposal.DueDate,
		UpdatedAt:      proposal.UpdatedAt,
	}
	if proposal.CustomWorkflowStageID != nil {
		info.ColumnID = *proposal.CustomWorkflowStageID
	}

	org, err := e.store.GetOrganization(ctx, proposal.OrganizationID)
	if err != nil {
		return export.ProposalInfo{}, err
	}
	info.OrganizationName = org.Name

	return info, nil
}

func (e exportStore) ListCompletedItems(ctx context.Context, proposalID, columnID string) (map[string]bool, error) {
	completions, err := e.store.ListChecklistCompletions(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	completed := make(map[string]bool)
	for _, c := range completions {
		if c.ColumnID == columnID {
			completed[c.ItemID] = true
		}
	}
	return completed, nil
}
