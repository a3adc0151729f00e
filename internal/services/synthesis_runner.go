package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lorehub/internal/health"
	"lorehub/internal/llm"
	"lorehub/internal/logging"
	"lorehub/internal/models"
	"lorehub/internal/synthesis"
)

const (
	runLockPrefix = "synthesis:lock:"
	// The lock outlives the background run timeout so it cannot expire
	// under a live run.
	runLockTTL = 35 * time.Minute
	runTimeout = 30 * time.Minute
)

// switchableLLM lets the long-lived engine keep one client handle while
// the runner swaps in a freshly resolved client at the start of each run.
// It also measures per-call latency for the metrics layer and reports
// call outcomes to the provider health service.
type switchableLLM struct {
	current atomic.Pointer[llm.Client]
	health  *health.Service
}

var _ synthesis.LLMClient = (*switchableLLM)(nil)

func (s *switchableLLM) swap(c *llm.Client) {
	s.current.Store(c)
}

func (s *switchableLLM) get() (*llm.Client, error) {
	if c := s.current.Load(); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("no LLM provider configured")
}

func (s *switchableLLM) GenerateText(ctx context.Context, req synthesis.TextRequest) (*synthesis.TextResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := c.GenerateText(ctx, req)
	if err == nil {
		if m := GetMetrics(); m != nil {
			m.RecordLLMLatency(time.Since(start).Seconds())
		}
	}
	s.observe(health.CapabilityText, c, c.ModelName(), err)
	return res, err
}

func (s *switchableLLM) GenerateVision(ctx context.Context, req synthesis.VisionRequest) (*synthesis.TextResult, error) {
	c, err := s.get()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := c.GenerateVision(ctx, req)
	if err == nil {
		if m := GetMetrics(); m != nil {
			m.RecordLLMLatency(time.Since(start).Seconds())
		}
	}
	s.observe(health.CapabilityVision, c, c.VisionModelName(), err)
	return res, err
}

// observe feeds a call outcome into the health service. Cancellations are
// caller-side and say nothing about the provider, so they are ignored.
func (s *switchableLLM) observe(capability health.CapabilityType, c *llm.Client, model string, err error) {
	if s.health == nil {
		return
	}
	if err == nil {
		s.health.MarkHealthy(capability, c.ProviderID(), model)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if health.IsQuotaError(0, err.Error()) {
		s.health.SetCooldown(capability, c.ProviderID(), model, health.ParseCooldownDuration(0, err.Error()))
		return
	}
	s.health.MarkUnhealthy(capability, c.ProviderID(), model, err.Error(), 0)
}

func (s *switchableLLM) ModelName() string {
	if c := s.current.Load(); c != nil {
		return c.ModelName()
	}
	return ""
}

func (s *switchableLLM) VisionModelName() string {
	if c := s.current.Load(); c != nil {
		return c.VisionModelName()
	}
	return ""
}

// SynthesisRunner drives synthesis runs end to end: it resolves the LLM
// clients, guards each project with a cross-instance Redis lock, streams
// progress to local subscribers and over pub/sub, runs the post-run
// question auto-resolution pass, records metrics, and triggers the digest
// after productive runs.
type SynthesisRunner struct {
	engine   *synthesis.Engine
	projects *ProjectService
	factory  *LLMFactory
	hub      *ProgressHub

	pubsub *PubSubService // nil without Redis
	digest *DigestService // nil when digests are not configured

	text    *switchableLLM
	summary *switchableLLM
}

// NewSynthesisRunner wires the engine over the knowledge store. templates
// may be nil, in which case the built-in prompts are used.
func NewSynthesisRunner(storage *KnowledgeStorageService, projects *ProjectService, factory *LLMFactory, templates *TemplateService, hub *ProgressHub) *SynthesisRunner {
	var source synthesis.TemplateSource
	if templates != nil {
		source = templates
	}

	r := &SynthesisRunner{
		projects: projects,
		factory:  factory,
		hub:      hub,
		text:     &switchableLLM{},
		summary:  &switchableLLM{},
	}

	engine := synthesis.NewEngine(storage, r.text, synthesis.NewPromptBuilder(source))
	engine.SetSummaryLLM(r.summary)
	engine.SetProgressFunc(r.onProgress)
	r.engine = engine
	return r
}

// SetPubSub wires cross-instance progress fan-out. Updates arriving from
// other instances are re-published to the local hub so websocket clients
// attached here see runs happening anywhere.
func (r *SynthesisRunner) SetPubSub(ps *PubSubService) {
	r.pubsub = ps
	if ps == nil {
		return
	}
	ps.Subscribe("project:*:synthesis", func(channel string, msg *PubSubMessage) {
		r.hub.Publish(progressFromPayload(msg))
	})
}

// SetDigest wires the post-run digest notification
func (r *SynthesisRunner) SetDigest(d *DigestService) {
	r.digest = d
}

// SetHealth wires provider health reporting for every LLM call made
// through the runner's clients.
func (r *SynthesisRunner) SetHealth(h *health.Service) {
	r.text.health = h
	r.summary.health = h
}

// Engine exposes the underlying engine for one-off extraction endpoints
func (r *SynthesisRunner) Engine() *synthesis.Engine {
	return r.engine
}

// State returns the live progress snapshot for a project
func (r *SynthesisRunner) State(projectID string) synthesis.ProcessingState {
	return r.engine.State(projectID)
}

// Run executes one synthesis run for a project and blocks until it
// finishes. Returns synthesis.ErrRunInProgress when another run holds the
// project, locally or on another instance.
func (r *SynthesisRunner) Run(ctx context.Context, projectID string, forceFull bool) (*synthesis.Stats, error) {
	project, err := r.projects.GetByID(projectID)
	if err != nil {
		return nil, err
	}

	client, err := r.factory.SynthesisClient(ctx)
	if err != nil {
		return nil, err
	}
	r.text.swap(client)
	if sc, err := r.factory.SummaryClient(ctx); err == nil && sc != nil {
		r.summary.swap(sc)
	} else {
		r.summary.swap(client)
	}

	release, err := r.acquireRunLock(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	runID := uuid.NewString()
	runLog := logging.WithRun(runID, projectID)
	runLog.Info("synthesis run starting", "force_full", forceFull, "model", r.text.ModelName())

	opts := synthesis.RunOptions{
		ProjectID: projectID,
		ForceFull: forceFull,
		MaxUnits:  project.MaxUnitsPerRun,
		Context: synthesis.PromptContext{
			Role:               project.RoleContext,
			ProjectDescription: project.Description,
			EntityTypes:        project.EntityTypes,
			RelationshipTypes:  project.RelationshipTypes,
		},
	}

	start := time.Now()
	stats, err := r.engine.Run(ctx, opts)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if !errors.Is(err, synthesis.ErrRunInProgress) {
			runLog.Error("synthesis run failed", "error", err, "elapsed_s", elapsed)
			if m := GetMetrics(); m != nil {
				m.RecordRun("failed", elapsed)
			}
		}
		return nil, err
	}

	// New facts or decisions may answer questions that predate this run
	autoResolved := 0
	if !stats.Skipped && (stats.FactsAdded > 0 || stats.DecisionsAdded > 0) {
		autoResolved = r.engine.Intelligence().AutoResolve(ctx, projectID)
	}

	if m := GetMetrics(); m != nil {
		outcome := "completed"
		if stats.Skipped {
			outcome = "no_changes"
		}
		m.RecordRun(outcome, elapsed)
		m.RecordKnowledgeItems("facts", stats.FactsAdded)
		m.RecordKnowledgeItems("decisions", stats.DecisionsAdded)
		m.RecordKnowledgeItems("risks", stats.RisksAdded)
		m.RecordKnowledgeItems("questions", stats.QuestionsAdded)
		m.RecordKnowledgeItems("actions", stats.ActionsAdded)
		m.RecordKnowledgeItems("people", stats.PeopleAdded)
		m.RecordKnowledgeItems("relationships", stats.RelationshipsAdded)
		m.RecordQuestionsResolved(models.AnswerSourceSynthesis, stats.QuestionsResolved)
		m.RecordQuestionsResolved(models.AnswerSourceAutoDetected, autoResolved)
	}
	stats.QuestionsResolved += autoResolved

	runLog.Info("synthesis run finished",
		"elapsed_s", elapsed,
		"skipped", stats.Skipped,
		"units_processed", stats.ContentFilesProcessed,
		"facts_added", stats.FactsAdded,
		"questions_resolved", stats.QuestionsResolved)

	if r.digest != nil {
		r.digest.NotifyRun(ctx, project, stats)
	}
	return stats, nil
}

// RunAsync starts a run in the background and returns immediately. The
// outcome is observable via State, the progress stream, and the digest.
func (r *SynthesisRunner) RunAsync(projectID string, forceFull bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		if _, err := r.Run(ctx, projectID, forceFull); err != nil {
			if errors.Is(err, synthesis.ErrRunInProgress) {
				return
			}
			log.Printf("❌ [SYNTHESIS] Background run failed for project %s: %v", projectID, err)
		}
	}()
}

// acquireRunLock takes the cross-instance run lock when Redis is
// configured. Without Redis the engine's own per-project session guard
// still prevents concurrent runs on this instance.
func (r *SynthesisRunner) acquireRunLock(ctx context.Context, projectID string) (func(), error) {
	redis := GetRedisService()
	if redis == nil {
		return func() {}, nil
	}

	lockKey := runLockPrefix + projectID
	lockValue := uuid.NewString()

	acquired, err := redis.AcquireLock(ctx, lockKey, lockValue, runLockTTL)
	if err != nil {
		log.Printf("⚠️ [SYNTHESIS] Run lock check failed, proceeding without it: %v", err)
		return func() {}, nil
	}
	if !acquired {
		return nil, synthesis.ErrRunInProgress
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := redis.ReleaseLock(ctx, lockKey, lockValue); err != nil {
			log.Printf("⚠️ [SYNTHESIS] Failed to release run lock for %s: %v", projectID, err)
		}
	}, nil
}

// onProgress feeds every engine state change to local subscribers and,
// when Redis is up, to the other instances.
func (r *SynthesisRunner) onProgress(projectID string, state synthesis.ProcessingState) {
	r.hub.Publish(ProgressUpdate{
		ProjectID: projectID,
		Progress:  state.Progress,
		Message:   state.Message,
		Status:    state.Status,
	})

	if r.pubsub == nil {
		return
	}

	msgType := "synthesis_progress"
	if state.Status == synthesis.StatusCompleted || state.Status == synthesis.StatusFailed {
		msgType = "synthesis_complete"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.pubsub.PublishToProject(ctx, projectID, msgType, map[string]interface{}{
		"progress": state.Progress,
		"message":  state.Message,
		"status":   state.Status,
	}); err != nil {
		log.Printf("⚠️ [SYNTHESIS] Progress publish failed: %v", err)
	}
}

// progressFromPayload rebuilds a hub update from a pub/sub message
func progressFromPayload(msg *PubSubMessage) ProgressUpdate {
	update := ProgressUpdate{ProjectID: msg.ProjectID}
	if v, ok := msg.Payload["progress"].(float64); ok {
		update.Progress = int(v)
	}
	if v, ok := msg.Payload["message"].(string); ok {
		update.Message = v
	}
	if v, ok := msg.Payload["status"].(string); ok {
		update.Status = v
	}
	return update
}
