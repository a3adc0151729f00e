package jobs

import (
	"testing"
	"time"
)

func TestRetentionCleanupNextRun(t *testing.T) {
	job := NewRetentionCleanupJob(nil, nil, nil)

	now := time.Now().UTC()
	next := job.NextRun()

	if !next.After(now) {
		t.Fatalf("Expected next run in the future, got %v", next)
	}
	if next.Sub(now) > 24*time.Hour {
		t.Fatalf("Expected next run within 24h, got %v away", next.Sub(now))
	}
	if next.Hour() != 3 || next.Minute() != 0 {
		t.Errorf("Expected a 03:00 UTC run, got %02d:%02d", next.Hour(), next.Minute())
	}
}
