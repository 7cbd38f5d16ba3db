package app

import (
	"context"
	"errors"
	"time"

	"bidboard/api/internal/store"
	"bidboard/api/internal/util"
	"bidboard/api/internal/workflow"
)

// seedProposals deliberately cover the legacy status and phase vocabulary so
// a freshly seeded board exercises every migration mapping.
var seedProposals = []store.Proposal{
	{Title: "Regional Fiber Backbone Buildout", Agency: "Dept of Commerce", SolicitationNumber: "DOC-26-0114", Status: "evaluating", CurrentPhase: "phase1", EstimatedValue: 1200000},
	{Title: "Courthouse HVAC Modernization", Agency: "GSA", SolicitationNumber: "GSA-26-HV02", Status: "watch_list", CurrentPhase: "phase1", EstimatedValue: 450000},
	{Title: "Statewide Bridge Inspection Services", Agency: "State DOT", SolicitationNumber: "DOT-BR-2611", Status: "", CurrentPhase: "phase3", EstimatedValue: 780000},
	{Title: "Medical Records Digitization", Agency: "VA", SolicitationNumber: "VA-26-0199", Status: "", CurrentPhase: "phase5", EstimatedValue: 2100000},
	{Title: "Base Perimeter Security Upgrade", Agency: "DoD", SolicitationNumber: "DOD-SEC-2640", Status: "draft", CurrentPhase: "phase6", EstimatedValue: 3400000},
	{Title: "Transit Fare System Replacement", Agency: "Metro Authority", SolicitationNumber: "MTA-26-077", Status: "in_progress", CurrentPhase: "phase6", EstimatedValue: 5600000},
	{Title: "Wildfire Sensor Network Pilot", Agency: "USFS", SolicitationNumber: "USFS-26-WF3", Status: "client_review", CurrentPhase: "phase7", EstimatedValue: 890000},
	{Title: "County Payroll System Migration", Agency: "County Admin", SolicitationNumber: "CNTY-26-PAY", Status: "", CurrentPhase: "phase8", EstimatedValue: 640000},
	{Title: "Harbor Dredging FY26", Agency: "Army Corps", SolicitationNumber: "USACE-26-HD1", Status: "submitted", CurrentPhase: "completed", EstimatedValue: 7200000},
	{Title: "School District Network Refresh", Agency: "Dept of Education", SolicitationNumber: "ED-26-NET5", Status: "won", CurrentPhase: "completed", EstimatedValue: 980000},
	{Title: "Airport Baggage Screening Retrofit", Agency: "TSA", SolicitationNumber: "TSA-26-BAG2", Status: "client_rejected", CurrentPhase: "phase8", EstimatedValue: 1500000},
	{Title: "Legacy Mainframe Decommission", Agency: "Treasury", SolicitationNumber: "TRS-25-MF09", Status: "archived", CurrentPhase: "completed", EstimatedValue: 300000},
}

// Seed populates the caller's organization with sample proposals spread
// across the legacy lifecycle, creating the organization first if the caller
// has none. Meant for demos and local development.
func (s *Service) Seed(ctx context.Context, session Session) (map[string]any, error) {
	organizationID, err := s.store.LatestOrganizationForUser(ctx, session.UserID)
	if errors.Is(err, workflow.ErrNoOrganization) {
		org := store.Organization{
			ID:      util.NewID("org"),
			Name:    "Sample Contracting Group",
			OwnerID: session.UserID,
		}
		if err := s.store.InsertOrganization(ctx, org); err != nil {
			return nil, err
		}
		organizationID = org.ID
	} else if err != nil {
		return nil, err
	}

	created := 0
	now := time.Now()
	for i, sample := range seedProposals {
		proposal := sample
		proposal.ID = util.NewID("prop")
		proposal.OrganizationID = organizationID
		proposal.CreatedBy = session.UserName
		due := now.AddDate(0, 0, 14+7*i)
		proposal.DueDate = &due

		if err := s.store.InsertProposal(ctx, proposal); err != nil {
			return nil, err
		}
		s.indexProposal(proposal)
		created++
	}

	return map[string]any{
		"organizationId":   organizationID,
		"proposalsCreated": created,
	}, nil
}
