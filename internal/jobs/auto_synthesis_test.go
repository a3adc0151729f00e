package jobs

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestDiffSchedules(t *testing.T) {
	hourly := "0 * * * *"
	daily := "0 9 * * *"

	tests := []struct {
		name       string
		current    map[string]string
		desired    map[string]string
		wantAdd    []string
		wantRemove []string
	}{
		{
			name:    "new project registered",
			current: map[string]string{},
			desired: map[string]string{"p1": hourly},
			wantAdd: []string{"p1"},
		},
		{
			name:       "removed project unregistered",
			current:    map[string]string{"p1": hourly},
			desired:    map[string]string{},
			wantRemove: []string{"p1"},
		},
		{
			name:       "changed expression re-registered",
			current:    map[string]string{"p1": hourly},
			desired:    map[string]string{"p1": daily},
			wantAdd:    []string{"p1"},
			wantRemove: []string{"p1"},
		},
		{
			name:    "unchanged left alone",
			current: map[string]string{"p1": hourly, "p2": daily},
			desired: map[string]string{"p1": hourly, "p2": daily},
		},
		{
			name:       "mixed",
			current:    map[string]string{"p1": hourly, "p2": hourly},
			desired:    map[string]string{"p2": daily, "p3": hourly},
			wantAdd:    []string{"p2", "p3"},
			wantRemove: []string{"p1", "p2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotAdd, gotRemove := diffSchedules(tt.current, tt.desired)
			if !reflect.DeepEqual(gotAdd, tt.wantAdd) {
				t.Errorf("diffSchedules add = %v, want %v", gotAdd, tt.wantAdd)
			}
			if !reflect.DeepEqual(gotRemove, tt.wantRemove) {
				t.Errorf("diffSchedules remove = %v, want %v", gotRemove, tt.wantRemove)
			}
		})
	}
}

func TestIntervalFunc(t *testing.T) {
	now := time.Now()
	noop := func(ctx context.Context) error { return nil }

	next := IntervalFunc(time.Minute, noop).NextRun()
	if next.Before(now.Add(50*time.Second)) || next.After(now.Add(70*time.Second)) {
		t.Errorf("Expected next run about a minute out, got %v", next.Sub(now))
	}

	// Non-positive intervals fall back to the 5 minute default.
	next = IntervalFunc(0, noop).NextRun()
	if next.Before(now.Add(4*time.Minute)) || next.After(now.Add(6*time.Minute)) {
		t.Errorf("Expected default interval about 5 minutes, got %v", next.Sub(now))
	}
}
