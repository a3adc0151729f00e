package synthesis

import (
	"context"
	"testing"

	"lorehub/internal/models"
)

// TestFindChanged covers the three change states: never synthesized,
// unchanged since last run, and edited after synthesis.
func TestFindChanged(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tracker := NewTracker(store)

	fresh := store.addUnit("fresh.md", "never synthesized")
	stable := store.addUnit("stable.md", "synthesized and unchanged")
	edited := store.addUnit("edited.md", "original body")

	if err := tracker.MarkSynthesized(ctx, testProject, []models.ContentUnit{stable, edited}); err != nil {
		t.Fatalf("MarkSynthesized failed: %v", err)
	}

	store.updateUnitBody(edited.ID, "rewritten body")

	changed, err := tracker.FindChanged(ctx, testProject, 0)
	if err != nil {
		t.Fatalf("FindChanged failed: %v", err)
	}

	names := make(map[string]bool, len(changed))
	for _, u := range changed {
		names[u.Name] = true
	}
	if len(changed) != 2 {
		t.Fatalf("Expected 2 changed units, got %d", len(changed))
	}
	if !names[fresh.Name] {
		t.Error("Expected never-synthesized unit to be changed")
	}
	if !names["edited.md"] {
		t.Error("Expected edited unit to be changed")
	}
	if names[stable.Name] {
		t.Error("Expected unchanged unit to be skipped")
	}
}

// TestFindChangedLimit caps the picked-up units.
func TestFindChangedLimit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tracker := NewTracker(store)

	for i := 0; i < 7; i++ {
		store.addUnit("doc", "body")
	}

	changed, err := tracker.FindChanged(ctx, testProject, 3)
	if err != nil {
		t.Fatalf("FindChanged failed: %v", err)
	}
	if len(changed) != 3 {
		t.Errorf("Expected 3 units with limit 3, got %d", len(changed))
	}
}

// TestClearAllForcesReprocessing verifies a forced full rebuild sees
// every unit as changed again.
func TestClearAllForcesReprocessing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tracker := NewTracker(store)

	unit := store.addUnit("doc.md", "body")
	if err := tracker.MarkSynthesized(ctx, testProject, []models.ContentUnit{unit}); err != nil {
		t.Fatalf("MarkSynthesized failed: %v", err)
	}

	changed, err := tracker.FindChanged(ctx, testProject, 0)
	if err != nil {
		t.Fatalf("FindChanged failed: %v", err)
	}
	if len(changed) != 0 {
		t.Fatalf("Expected no changes before clear, got %d", len(changed))
	}

	if err := tracker.ClearAll(ctx, testProject); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	changed, err = tracker.FindChanged(ctx, testProject, 0)
	if err != nil {
		t.Fatalf("FindChanged failed: %v", err)
	}
	if len(changed) != 1 {
		t.Errorf("Expected 1 changed unit after clear, got %d", len(changed))
	}
}

// TestMarkSynthesizedRecordsCurrentHash confirms the record pins the
// hash at synthesis time, so later edits count as changes.
func TestMarkSynthesizedRecordsCurrentHash(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tracker := NewTracker(store)

	unit := store.addUnit("doc.md", "v1")
	if err := tracker.MarkSynthesized(ctx, testProject, []models.ContentUnit{unit}); err != nil {
		t.Fatalf("MarkSynthesized failed: %v", err)
	}

	records, err := store.SynthesisRecords(ctx, testProject)
	if err != nil {
		t.Fatalf("SynthesisRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].LastSynthesizedHash != unit.ContentHash {
		t.Errorf("Expected recorded hash %q, got %q", unit.ContentHash, records[0].LastSynthesizedHash)
	}
	if records[0].SynthesizedAt.IsZero() {
		t.Error("Expected synthesized_at to be set")
	}
}
