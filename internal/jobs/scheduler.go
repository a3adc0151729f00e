package jobs

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// Job is a unit of recurring background work. NextRun is consulted after
// every completed run to schedule the next one.
type Job interface {
	Run(ctx context.Context) error
	NextRun() time.Time
}

// JobStatus describes one registered job for status reporting.
type JobStatus struct {
	Name      string    `json:"name"`
	NextRunAt time.Time `json:"next_run_at"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

type jobEntry struct {
	job       Job
	timer     *time.Timer
	nextRunAt time.Time
	lastRunAt time.Time
	lastError string
}

// Scheduler runs registered jobs on their own timers. Each job is
// rescheduled from its NextRun after every run, so jobs control their own
// cadence.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*jobEntry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		entries: make(map[string]*jobEntry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a job under a unique name. Jobs registered after Start are
// scheduled immediately.
func (s *Scheduler) Register(name string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &jobEntry{job: job}
	s.entries[name] = entry
	log.Printf("✅ [JOBS] Registered job: %s", name)

	if s.running {
		s.schedule(name, entry)
	}
}

// Start arms the timers of all registered jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	log.Printf("🚀 [JOBS] Starting job scheduler with %d jobs", len(s.entries))
	for name, entry := range s.entries {
		s.schedule(name, entry)
	}
}

// schedule arms the timer for one job. Caller holds s.mu.
func (s *Scheduler) schedule(name string, entry *jobEntry) {
	nextRun := entry.job.NextRun()
	entry.nextRunAt = nextRun

	log.Printf("⏰ [JOBS] Job %q next run at %s (in %v)",
		name, nextRun.Format(time.RFC3339), time.Until(nextRun).Round(time.Second))

	entry.timer = time.AfterFunc(time.Until(nextRun), func() {
		s.runJob(name, entry)
	})
}

// runJob executes a job, records the outcome, and reschedules it.
func (s *Scheduler) runJob(name string, entry *jobEntry) {
	s.wg.Add(1)
	defer s.wg.Done()

	log.Printf("▶️ [JOBS] Running job: %s", name)
	startedAt := time.Now().UTC()

	err := entry.job.Run(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.lastRunAt = startedAt
	if err != nil {
		entry.lastError = err.Error()
		log.Printf("❌ [JOBS] Job %q failed after %v: %v", name, time.Since(startedAt).Round(time.Millisecond), err)
	} else {
		entry.lastError = ""
		log.Printf("✅ [JOBS] Job %q completed in %v", name, time.Since(startedAt).Round(time.Millisecond))
	}

	if s.running {
		s.schedule(name, entry)
	}
}

// Stop disarms all timers, cancels the job context, and waits for any
// in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false

	log.Println("🛑 [JOBS] Stopping job scheduler...")
	for _, entry := range s.entries {
		if entry.timer != nil {
			entry.timer.Stop()
			entry.timer = nil
		}
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Println("✅ [JOBS] Job scheduler stopped")
}

// Status reports every registered job with its next and last run.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.entries))
	for name, entry := range s.entries {
		statuses = append(statuses, JobStatus{
			Name:      name,
			NextRunAt: entry.nextRunAt,
			LastRunAt: entry.lastRunAt,
			LastError: entry.lastError,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

type intervalJob struct {
	fn       func(context.Context) error
	interval time.Duration
}

// IntervalFunc adapts a function into a job that runs every interval.
// Non-positive intervals fall back to 5 minutes.
func IntervalFunc(interval time.Duration, fn func(context.Context) error) Job {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &intervalJob{fn: fn, interval: interval}
}

func (j *intervalJob) Run(ctx context.Context) error { return j.fn(ctx) }

func (j *intervalJob) NextRun() time.Time { return time.Now().Add(j.interval) }
