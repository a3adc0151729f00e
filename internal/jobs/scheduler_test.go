package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubJob struct {
	interval time.Duration
	fail     bool

	mu   sync.Mutex
	runs int
	ran  chan struct{}
}

func newStubJob(interval time.Duration, fail bool) *stubJob {
	return &stubJob{interval: interval, fail: fail, ran: make(chan struct{}, 16)}
}

func (j *stubJob) Run(ctx context.Context) error {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()

	select {
	case j.ran <- struct{}{}:
	default:
	}

	if j.fail {
		return errors.New("boom")
	}
	return nil
}

func (j *stubJob) NextRun() time.Time { return time.Now().Add(j.interval) }

func (j *stubJob) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

func waitForRun(t *testing.T, job *stubJob) {
	t.Helper()
	select {
	case <-job.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Job did not run in time")
	}
}

func TestSchedulerRunsAndReschedules(t *testing.T) {
	job := newStubJob(10*time.Millisecond, false)
	scheduler := NewScheduler()
	scheduler.Register("tick", job)
	scheduler.Start()
	defer scheduler.Stop()

	waitForRun(t, job)
	waitForRun(t, job)

	if job.count() < 2 {
		t.Fatalf("Expected at least 2 runs, got %d", job.count())
	}
}

func TestSchedulerRegisterAfterStart(t *testing.T) {
	scheduler := NewScheduler()
	scheduler.Start()
	defer scheduler.Stop()

	job := newStubJob(10*time.Millisecond, false)
	scheduler.Register("late", job)

	waitForRun(t, job)
}

func TestSchedulerStopPreventsReschedule(t *testing.T) {
	job := newStubJob(5*time.Millisecond, false)
	scheduler := NewScheduler()
	scheduler.Register("tick", job)
	scheduler.Start()

	waitForRun(t, job)
	scheduler.Stop()

	runsAtStop := job.count()
	time.Sleep(50 * time.Millisecond)

	// One run that fired just before Stop may still land, but nothing
	// gets rescheduled afterwards.
	if job.count() > runsAtStop+1 {
		t.Fatalf("Expected no reschedules after Stop, got %d runs (was %d)", job.count(), runsAtStop)
	}
}

func TestSchedulerStatus(t *testing.T) {
	healthy := newStubJob(10*time.Millisecond, false)
	failing := newStubJob(10*time.Millisecond, true)

	scheduler := NewScheduler()
	scheduler.Register("healthy", healthy)
	scheduler.Register("failing", failing)
	scheduler.Start()
	defer scheduler.Stop()

	waitForRun(t, healthy)
	waitForRun(t, failing)

	deadline := time.Now().Add(2 * time.Second)
	for {
		statuses := scheduler.Status()
		if len(statuses) != 2 {
			t.Fatalf("Expected 2 job statuses, got %d", len(statuses))
		}
		if statuses[0].Name != "failing" || statuses[1].Name != "healthy" {
			t.Fatalf("Expected statuses sorted by name, got %q, %q", statuses[0].Name, statuses[1].Name)
		}

		if statuses[0].LastError == "boom" && statuses[1].LastError == "" && !statuses[1].LastRunAt.IsZero() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Status never settled: %+v", statuses)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
