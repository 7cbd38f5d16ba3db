package workflow

import "testing"

func TestCanonicalColumnsOrderIsTotal(t *testing.T) {
	columns := CanonicalColumns()
	if len(columns) != 15 {
		t.Fatalf("expected 15 columns, got %d", len(columns))
	}
	seen := make(map[int]string)
	for i, column := range columns {
		if column.Order != i {
			t.Errorf("column %s has order %d at position %d", column.ID, column.Order, i)
		}
		if prev, dup := seen[column.Order]; dup {
			t.Errorf("duplicate order %d: %s and %s", column.Order, prev, column.ID)
		}
		seen[column.Order] = column.ID
		if !column.IsLocked {
			t.Errorf("column %s is not locked", column.ID)
		}
	}
}

func TestCanonicalColumnsTypeInvariants(t *testing.T) {
	for _, column := range CanonicalColumns() {
		switch column.Type {
		case TypeLockedPhase:
			if column.PhaseMapping == "" {
				t.Errorf("locked_phase column %s has no phase mapping", column.ID)
			}
			if column.DefaultStatusMapping != "" {
				t.Errorf("locked_phase column %s has a status mapping", column.ID)
			}
		case TypeDefaultStatus:
			if column.DefaultStatusMapping == "" {
				t.Errorf("default_status column %s has no status mapping", column.ID)
			}
			if column.PhaseMapping != "" {
				t.Errorf("default_status column %s has a phase mapping", column.ID)
			}
		default:
			t.Errorf("column %s has unknown type %q", column.ID, column.Type)
		}
	}
}

func TestCanonicalColumnsReturnsCopy(t *testing.T) {
	first := CanonicalColumns()
	first[0].Label = "mutated"
	first[0].ChecklistItems[0].Label = "mutated"

	second := CanonicalColumns()
	if second[0].Label == "mutated" {
		t.Error("mutating a snapshot leaked into the canonical schema")
	}
	if second[0].ChecklistItems[0].Label == "mutated" {
		t.Error("mutating snapshot checklist items leaked into the canonical schema")
	}
}

func TestFinalColumnApprovalGate(t *testing.T) {
	column, ok := ColumnByID(CanonicalColumns(), "final")
	if !ok {
		t.Fatal("final column missing")
	}
	if !column.RequiresApprovalToExit {
		t.Error("final column should require approval to exit")
	}
	if len(column.ApproverRoles) == 0 {
		t.Error("final column has no approver roles")
	}
	for _, other := range CanonicalColumns() {
		if other.ID != "final" && other.RequiresApprovalToExit {
			t.Errorf("column %s should not require exit approval", other.ID)
		}
	}
}
