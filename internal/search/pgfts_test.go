package search

import (
	"strings"
	"testing"
)

func TestBuildSearchSQLCoalescesNullableColumns(t *testing.T) {
	query, args := buildSearchSQL(Query{Text: "bridge", OrganizationID: "org_1"}, 20, 0)

	// status and current_phase are nullable; a bare select would fail the
	// string scan on rows that store NULL (legacy proposals routinely do).
	if !strings.Contains(query, "coalesce(p.status, '')") {
		t.Fatalf("query does not coalesce status:\n%s", query)
	}
	if !strings.Contains(query, "coalesce(p.current_phase, '')") {
		t.Fatalf("query does not coalesce current_phase:\n%s", query)
	}
	if strings.Contains(query, "p.organization_id, p.status") {
		t.Fatalf("query selects bare status:\n%s", query)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args (text, org, limit, offset), got %d: %v", len(args), args)
	}
}

func TestBuildSearchSQLStatusFilter(t *testing.T) {
	query, args := buildSearchSQL(Query{Text: "bridge", OrganizationID: "org_1", FilterStatus: "submitted"}, 10, 5)

	if !strings.Contains(query, "p.status = $3") {
		t.Fatalf("status filter missing from query:\n%s", query)
	}
	if !strings.Contains(query, "LIMIT $4 OFFSET $5") {
		t.Fatalf("limit/offset placeholders not shifted past the filter:\n%s", query)
	}
	want := []any{"bridge", "org_1", "submitted", 10, 5}
	if len(args) != len(want) {
		t.Fatalf("expected %d args, got %d: %v", len(want), len(args), args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("arg %d = %v, want %v", i, args[i], want[i])
		}
	}
}

func TestLoadRecordsSQLCoalescesNullableColumns(t *testing.T) {
	for _, col := range []string{"coalesce(status, '')", "coalesce(current_phase, '')", "coalesce(agency, '')", "coalesce(description, '')"} {
		if !strings.Contains(loadRecordsSQL, col) {
			t.Fatalf("reindex query missing %s:\n%s", col, loadRecordsSQL)
		}
	}
}

func TestPgFTSSearchBlankQueryShortCircuits(t *testing.T) {
	results, total, err := NewPgFTS(nil).Search(Query{Text: "   ", OrganizationID: "org_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil || total != 0 {
		t.Fatalf("expected empty result, got %v (total %d)", results, total)
	}
}
