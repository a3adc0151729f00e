package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lorehub/internal/models"
)

func TestReportSlug(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "apollo", "apollo"},
		{"spaces and case", "Apollo Program", "apollo-program"},
		{"specials collapsed", "Q3 / Billing (EU)!", "q3-billing-eu"},
		{"digits kept", "Area 51", "area-51"},
		{"empty falls back", "   ", "project"},
		{"only specials falls back", "///", "project"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reportSlug(tt.in); got != tt.want {
				t.Errorf("reportSlug(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuildReportMarkdown(t *testing.T) {
	project := &models.Project{ID: "p1", Name: "Apollo", Description: "Billing migration program"}
	data := reportData{
		counts: &KnowledgeCounts{ContentUnits: 3, Facts: 2, OpenQuestions: 1},
		facts: []models.Fact{
			{Content: "Billing moves to Aurora", Category: "planning"},
			{Content: "Launch is in March"},
		},
		decisions: []models.Decision{
			{Content: "Use Aurora", Rationale: "Lower cost", DecidedBy: "platform team"},
		},
		risks: []models.Risk{
			{Content: "Failover untested", Severity: "high", Mitigation: "Run a drill"},
		},
		questions: []models.Question{
			{Content: "Who owns the cutover?", AssignedTo: "Maria Santos"},
		},
		actions: []models.ActionItem{
			{Task: "Plan milestones", Owner: "Maria Santos", Deadline: "2026-03-01"},
		},
		people: []models.Person{
			{Name: "Maria Santos", Role: "Migration owner"},
		},
		relationships: []models.Relationship{
			{Source: "billing", Type: "runs_on", Target: "Aurora"},
		},
	}

	md := buildReportMarkdown(project, data)

	wantFragments := []string{
		"# Apollo Knowledge Report",
		"Billing migration program",
		"| Content units | 3 |",
		"## Facts",
		"- Billing moves to Aurora _(planning)_",
		"- Launch is in March",
		"## Decisions",
		"- **Use Aurora**",
		"  - Rationale: Lower cost",
		"  - Decided by: platform team",
		"## Risks",
		"- **[HIGH]** Failover untested",
		"  - Mitigation: Run a drill",
		"## Open Questions",
		"- Who owns the cutover? _(assigned to Maria Santos)_",
		"## Pending Actions",
		"- [ ] Plan milestones (owner: Maria Santos, due: 2026-03-01)",
		"## People",
		"- **Maria Santos**, Migration owner",
		"## Relationships",
		"- **billing** runs_on **Aurora**",
	}
	for _, fragment := range wantFragments {
		if !strings.Contains(md, fragment) {
			t.Errorf("Report markdown missing %q\n%s", fragment, md)
		}
	}
}

func TestBuildReportMarkdownEmptySections(t *testing.T) {
	project := &models.Project{ID: "p1", Name: "Empty"}
	md := buildReportMarkdown(project, reportData{counts: &KnowledgeCounts{}})

	for _, section := range []string{"## Facts", "## Decisions", "## Risks", "## Open Questions", "## Pending Actions", "## People", "## Relationships"} {
		if strings.Contains(md, section) {
			t.Errorf("Expected empty knowledge base to omit %q", section)
		}
	}
	if !strings.Contains(md, "## Overview") {
		t.Error("Expected overview section even when empty")
	}
}

func TestReportCleanupExpired(t *testing.T) {
	dir := t.TempDir()
	service := &ReportService{outputDir: dir, reports: make(map[string]*GeneratedReport)}

	makeFile := func(name string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("%PDF"), 0600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	now := time.Now()
	downloadedLongAgo := now.Add(-10 * time.Minute)
	downloadedJustNow := now.Add(-time.Minute)

	service.reports["fresh"] = &GeneratedReport{ID: "fresh", FilePath: makeFile("fresh.pdf"), CreatedAt: now}
	service.reports["expired"] = &GeneratedReport{ID: "expired", FilePath: makeFile("expired.pdf"), CreatedAt: now.Add(-reportTTL - time.Minute)}
	service.reports["downloaded-old"] = &GeneratedReport{
		ID: "downloaded-old", FilePath: makeFile("dl-old.pdf"), CreatedAt: now.Add(-15 * time.Minute),
		Downloaded: true, DownloadedAt: &downloadedLongAgo,
	}
	service.reports["downloaded-recent"] = &GeneratedReport{
		ID: "downloaded-recent", FilePath: makeFile("dl-recent.pdf"), CreatedAt: now.Add(-15 * time.Minute),
		Downloaded: true, DownloadedAt: &downloadedJustNow,
	}

	service.CleanupExpired()

	if _, exists := service.Report("fresh"); !exists {
		t.Error("Expected fresh report kept")
	}
	if _, exists := service.Report("downloaded-recent"); !exists {
		t.Error("Expected recently downloaded report kept within grace period")
	}
	for _, id := range []string{"expired", "downloaded-old"} {
		if _, exists := service.Report(id); exists {
			t.Errorf("Expected report %q removed", id)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "expired.pdf")); !os.IsNotExist(err) {
		t.Error("Expected expired report file deleted from disk")
	}
	if _, err := os.Stat(filepath.Join(dir, "fresh.pdf")); err != nil {
		t.Errorf("Expected fresh report file kept on disk: %v", err)
	}
}

func TestReportMarkDownloadedOnce(t *testing.T) {
	service := &ReportService{reports: make(map[string]*GeneratedReport)}
	service.reports["r1"] = &GeneratedReport{ID: "r1", CreatedAt: time.Now()}

	service.MarkDownloaded("r1")
	report, _ := service.Report("r1")
	if !report.Downloaded || report.DownloadedAt == nil {
		t.Fatal("Expected download stamp after first download")
	}
	first := *report.DownloadedAt

	time.Sleep(5 * time.Millisecond)
	service.MarkDownloaded("r1")
	report, _ = service.Report("r1")
	if !report.DownloadedAt.Equal(first) {
		t.Error("Expected repeated downloads to keep the first stamp")
	}
}
