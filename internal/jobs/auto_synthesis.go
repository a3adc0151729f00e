package jobs

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"lorehub/internal/models"
	"lorehub/internal/services"
)

// scheduleDedupTTL covers clock skew between instances within one cron
// tick. The lock is never released; it expires on its own so a lagging
// instance cannot rerun a tick that already finished.
const scheduleDedupTTL = 5 * time.Minute

type scheduleEntry struct {
	job  gocron.Job
	expr string
	name string
}

// AutoSynthesis runs synthesis on the cron expression each project carries.
// Sync reconciles the registered cron jobs against the database, so
// schedule edits take effect without a restart.
type AutoSynthesis struct {
	scheduler  gocron.Scheduler
	projects   *services.ProjectService
	settings   *services.SettingsService
	runner     *services.SynthesisRunner
	instanceID string

	mu      sync.Mutex
	entries map[string]scheduleEntry // projectID -> registered job
}

func NewAutoSynthesis(projects *services.ProjectService, settings *services.SettingsService, runner *services.SynthesisRunner) (*AutoSynthesis, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &AutoSynthesis{
		scheduler:  scheduler,
		projects:   projects,
		settings:   settings,
		runner:     runner,
		instanceID: uuid.New().String(),
		entries:    make(map[string]scheduleEntry),
	}, nil
}

// Start registers all scheduled projects and starts the cron scheduler.
func (a *AutoSynthesis) Start(ctx context.Context) error {
	log.Println("⏰ [SCHEDULE] Starting scheduled synthesis...")

	if err := a.Sync(ctx); err != nil {
		log.Printf("⚠️ [SCHEDULE] Initial schedule load failed: %v", err)
	}

	a.scheduler.Start()
	log.Printf("✅ [SCHEDULE] Scheduled synthesis started (%d projects)", len(a.Schedules()))
	return nil
}

// Stop shuts the cron scheduler down and waits for running tasks.
func (a *AutoSynthesis) Stop() error {
	log.Println("⏹️ [SCHEDULE] Stopping scheduled synthesis...")
	return a.scheduler.Shutdown()
}

// Sync reconciles registered cron jobs with the projects table: projects
// that gained a schedule are registered, projects that lost theirs are
// removed, and changed expressions are re-registered.
func (a *AutoSynthesis) Sync(ctx context.Context) error {
	scheduled, err := a.projects.GetScheduled()
	if err != nil {
		return fmt.Errorf("failed to load scheduled projects: %w", err)
	}

	desired := make(map[string]models.Project, len(scheduled))
	for _, project := range scheduled {
		desired[project.ID] = project
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	current := make(map[string]string, len(a.entries))
	for projectID, entry := range a.entries {
		current[projectID] = entry.expr
	}
	desiredExprs := make(map[string]string, len(desired))
	for projectID, project := range desired {
		desiredExprs[projectID] = project.SynthesisSchedule
	}

	toAdd, toRemove := diffSchedules(current, desiredExprs)

	for _, projectID := range toRemove {
		entry := a.entries[projectID]
		if err := a.scheduler.RemoveJob(entry.job.ID()); err != nil {
			log.Printf("⚠️ [SCHEDULE] Failed to remove job for project %s: %v", projectID, err)
		}
		delete(a.entries, projectID)
		log.Printf("🗑️ [SCHEDULE] Unregistered project %q", entry.name)
	}

	for _, projectID := range toAdd {
		project := desired[projectID]
		if err := a.register(project); err != nil {
			log.Printf("⚠️ [SCHEDULE] Failed to register project %q: %v", project.Name, err)
		}
	}

	return nil
}

// register adds one cron job. Caller holds a.mu.
func (a *AutoSynthesis) register(project models.Project) error {
	projectID := project.ID

	job, err := a.scheduler.NewJob(
		gocron.CronJob(project.SynthesisSchedule, false),
		gocron.NewTask(func() {
			a.fire(projectID)
		}),
		gocron.WithName("synthesis_"+projectID),
		gocron.WithTags(projectID),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	a.entries[projectID] = scheduleEntry{job: job, expr: project.SynthesisSchedule, name: project.Name}
	log.Printf("📅 [SCHEDULE] Registered project %q (cron: %s)", project.Name, project.SynthesisSchedule)
	return nil
}

// fire triggers one scheduled run. It checks the runtime kill switch and
// takes a minute-window dedup lock so clock-skewed instances do not run
// the same tick twice; overlap within an instance is handled by the
// runner's own per-project lock.
func (a *AutoSynthesis) fire(projectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	enabled, err := a.settings.GetBool(ctx, models.SettingKeyScheduleEnabled, true)
	if err != nil {
		log.Printf("⚠️ [SCHEDULE] Failed to read schedule toggle, assuming enabled: %v", err)
		enabled = true
	}
	if !enabled {
		log.Printf("⏸️ [SCHEDULE] Scheduled synthesis disabled, skipping project %s", projectID)
		return
	}

	if redis := services.GetRedisService(); redis != nil {
		lockKey := fmt.Sprintf("schedule:dedup:%s:%d", projectID, time.Now().Unix()/60)
		acquired, err := redis.AcquireLock(ctx, lockKey, a.instanceID, scheduleDedupTTL)
		if err != nil {
			log.Printf("❌ [SCHEDULE] Failed to acquire dedup lock for project %s: %v", projectID, err)
			return
		}
		if !acquired {
			log.Printf("⏭️ [SCHEDULE] Project %s already triggered by another instance", projectID)
			return
		}
	}

	log.Printf("⏰ [SCHEDULE] Triggering scheduled synthesis for project %s", projectID)
	a.runner.RunAsync(projectID, false)
}

// Schedules returns the registered cron expression per project ID.
func (a *AutoSynthesis) Schedules() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()

	schedules := make(map[string]string, len(a.entries))
	for projectID, entry := range a.entries {
		schedules[projectID] = entry.expr
	}
	return schedules
}

// diffSchedules compares registered expressions with desired ones and
// returns the project IDs to register and to unregister. A changed
// expression shows up in both lists.
func diffSchedules(current, desired map[string]string) (toAdd, toRemove []string) {
	for projectID, expr := range desired {
		if currentExpr, ok := current[projectID]; !ok || currentExpr != expr {
			toAdd = append(toAdd, projectID)
		}
	}
	for projectID, expr := range current {
		if desiredExpr, ok := desired[projectID]; !ok || desiredExpr != expr {
			toRemove = append(toRemove, projectID)
		}
	}
	sort.Strings(toAdd)
	sort.Strings(toRemove)
	return toAdd, toRemove
}
