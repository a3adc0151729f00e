package synthesis

import (
	"context"
	"time"

	"lorehub/internal/models"
)

// Tracker decides which content units need (re)synthesis by comparing
// each unit's current content hash against its SynthesisRecord.
type Tracker struct {
	store Store
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// FindChanged returns units with no synthesis record or a stale hash, in
// stable input order, capped at limit (limit <= 0 means no cap).
func (t *Tracker) FindChanged(ctx context.Context, projectID string, limit int) ([]models.ContentUnit, error) {
	units, err := t.store.ContentUnits(ctx, projectID)
	if err != nil {
		return nil, err
	}
	records, err := t.store.SynthesisRecords(ctx, projectID)
	if err != nil {
		return nil, err
	}

	lastHash := make(map[string]string, len(records))
	for _, r := range records {
		lastHash[r.ContentUnitID] = r.LastSynthesizedHash
	}

	changed := make([]models.ContentUnit, 0)
	for _, u := range units {
		if hash, ok := lastHash[u.ID.Hex()]; !ok || hash != u.ContentHash {
			changed = append(changed, u)
			if limit > 0 && len(changed) >= limit {
				break
			}
		}
	}
	return changed, nil
}

// ClearAll deletes every synthesis record for the project, forcing full
// resynthesis on the next run.
func (t *Tracker) ClearAll(ctx context.Context, projectID string) error {
	return t.store.DeleteSynthesisRecords(ctx, projectID)
}

// MarkSynthesized upserts one record per unit at its current hash. Must
// only be called after the units' batch results have been durably
// merged; this mark-after-merge ordering is what makes a failed batch
// retry on the next run.
func (t *Tracker) MarkSynthesized(ctx context.Context, projectID string, units []models.ContentUnit) error {
	if len(units) == 0 {
		return nil
	}
	now := time.Now().UTC()
	records := make([]models.SynthesisRecord, 0, len(units))
	for _, u := range units {
		records = append(records, models.SynthesisRecord{
			ProjectID:           projectID,
			ContentUnitID:       u.ID.Hex(),
			LastSynthesizedHash: u.ContentHash,
			SynthesizedAt:       now,
		})
	}
	return t.store.UpsertSynthesisRecords(ctx, projectID, records)
}
