package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeExportStore struct {
	getProposalForExportFn func(ctx context.Context, proposalID string) (ProposalInfo, error)
	listCompletedItemsFn   func(ctx context.Context, proposalID, columnID string) (map[string]bool, error)
}

func (f *fakeExportStore) GetProposalForExport(ctx context.Context, proposalID string) (ProposalInfo, error) {
	return f.getProposalForExportFn(ctx, proposalID)
}

func (f *fakeExportStore) ListCompletedItems(ctx context.Context, proposalID, columnID string) (map[string]bool, error) {
	if f.listCompletedItemsFn != nil {
		return f.listCompletedItemsFn(ctx, proposalID, columnID)
	}
	return map[string]bool{}, nil
}

func TestExportWrapsStoreFailureAsContentUnavailable(t *testing.T) {
	svc := NewService(&fakeExportStore{
		getProposalForExportFn: func(ctx context.Context, proposalID string) (ProposalInfo, error) {
			return ProposalInfo{}, errors.New("connection refused")
		},
	})

	_, err := svc.Export(context.Background(), Request{ProposalID: "prop_1"})
	if !errors.Is(err, ErrContentUnavailable) {
		t.Fatalf("expected ErrContentUnavailable, got %v", err)
	}
}

func TestRenderProposalHTML(t *testing.T) {
	data := TemplateData{
		Title:            "Bridge Repair RFP",
		Agency:           "Dept of Transportation",
		Description:      "Structural repair of the 5th St bridge.",
		StageName:        "Draft",
		Status:           "in_progress",
		EstimatedValue:   "$250000.00",
		DueDate:          "Oct 1, 2026",
		OrganizationName: "Acme Civil Group",
		UpdatedAt:        time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC),
		Checklist: []ChecklistItemInfo{
			{Label: "Write technical volume", Completed: true},
			{Label: "Internal red team review", Completed: false},
		},
	}

	html, err := RenderProposalHTML(data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"Bridge Repair RFP",
		"Dept of Transportation",
		"Draft",
		"$250000.00",
		"Oct 1, 2026",
		"Acme Civil Group",
		"Updated Aug 15, 2026",
		"Write technical volume",
		"Internal red team review",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}

	// Completed and pending items render different checkbox glyphs.
	if !strings.Contains(html, "&#9745;") || !strings.Contains(html, "&#9744;") {
		t.Error("expected both completed and pending checkbox markers")
	}
}

func TestRenderProposalHTMLEscapesContent(t *testing.T) {
	html, err := RenderProposalHTML(TemplateData{
		Title:       "<script>alert(1)</script>",
		Description: "a <b>b</b>",
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("title was not HTML-escaped")
	}
	if strings.Contains(html, "<b>b</b>") {
		t.Error("description was not HTML-escaped")
	}
}

func TestRenderProposalHTMLOmitsEmptySections(t *testing.T) {
	html, err := RenderProposalHTML(TemplateData{
		Title:     "Minimal",
		StageName: "Initiate",
		Status:    "evaluating",
		UpdatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "Estimated Value") {
		t.Error("empty estimated value should be omitted")
	}
	if strings.Contains(html, "Due Date") {
		t.Error("empty due date should be omitted")
	}
	if strings.Contains(html, "Stage Checklist") {
		t.Error("empty checklist section should be omitted")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bridge Repair RFP", "Bridge-Repair-RFP"},
		{"Q4/FY26: IT Services!", "Q4FY26-IT-Services"},
		{"", "proposal"},
		{"///", "proposal"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b+c")
	if got != "a%20b%2Bc" {
		t.Errorf("got %q", got)
	}
	if percentEncodeForDataURL("safe-chars_.~") != "safe-chars_.~" {
		t.Error("unreserved characters should pass through")
	}
}
