package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"lorehub/internal/services"
	"lorehub/internal/synthesis"
)

// sessionRetention is how long finished per-project processing state stays
// visible on the status endpoint before it resets to idle.
const sessionRetention = 24 * time.Hour

// RetentionCleanupJob clears stale processing state and removes knowledge
// documents that belong to projects no longer present in the relational
// store, e.g. after a crash between project deletion and the Mongo purge.
type RetentionCleanupJob struct {
	storage  *services.KnowledgeStorageService
	projects *services.ProjectService
	engine   *synthesis.Engine
}

func NewRetentionCleanupJob(storage *services.KnowledgeStorageService, projects *services.ProjectService, engine *synthesis.Engine) *RetentionCleanupJob {
	return &RetentionCleanupJob{
		storage:  storage,
		projects: projects,
		engine:   engine,
	}
}

// Run prunes old processing sessions and purges orphaned project knowledge.
func (j *RetentionCleanupJob) Run(ctx context.Context) error {
	log.Println("[RETENTION] Starting retention cleanup...")
	startTime := time.Now()

	if pruned := j.engine.PruneSessions(sessionRetention); pruned > 0 {
		log.Printf("[RETENTION] Pruned %d stale processing sessions", pruned)
	}

	purged, err := j.purgeOrphanedProjects(ctx)
	if err != nil {
		log.Printf("[RETENTION] Orphan sweep failed: %v", err)
		return err
	}

	log.Printf("[RETENTION] Cleanup complete: purged %d orphaned projects in %v",
		purged, time.Since(startTime).Round(time.Millisecond))
	return nil
}

// purgeOrphanedProjects deletes all knowledge documents whose project ID
// has no row in the projects table. The Mongo scan runs before the
// existence checks, so a project created mid-sweep is always seen.
func (j *RetentionCleanupJob) purgeOrphanedProjects(ctx context.Context) (int, error) {
	projectIDs, err := j.storage.KnowledgeProjectIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list knowledge project IDs: %w", err)
	}

	purged := 0
	for _, projectID := range projectIDs {
		exists, err := j.projects.Exists(projectID)
		if err != nil {
			return purged, fmt.Errorf("failed to check project %s: %w", projectID, err)
		}
		if exists {
			continue
		}

		if err := j.storage.PurgeProject(ctx, projectID); err != nil {
			log.Printf("[RETENTION] Failed to purge orphaned project %s: %v", projectID, err)
			continue
		}
		purged++
	}

	return purged, nil
}

// NextRun schedules the cleanup daily at 03:00 UTC.
func (j *RetentionCleanupJob) NextRun() time.Time {
	now := time.Now().UTC()

	nextRun := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, time.UTC)
	if now.After(nextRun) {
		nextRun = nextRun.Add(24 * time.Hour)
	}

	return nextRun
}
