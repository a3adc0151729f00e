package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"lorehub/internal/models"
)

const (
	// reportTTL is how long a generated report stays on disk before the
	// cleanup pass removes it regardless of download state.
	reportTTL = 30 * time.Minute
	// reportDownloadGrace keeps a report briefly available after its
	// first download, e.g. for a retried request.
	reportDownloadGrace = 5 * time.Minute

	reportFactLimit     = 200
	reportDecisionLimit = 100
	reportRiskLimit     = 100
	reportQuestionLimit = 100
)

// GeneratedReport tracks one rendered knowledge report on disk.
type GeneratedReport struct {
	ID           string
	ProjectID    string
	Filename     string
	FilePath     string
	Size         int64
	ContentType  string
	CreatedAt    time.Time
	Downloaded   bool
	DownloadedAt *time.Time
}

// ReportService renders a project's knowledge base to a downloadable PDF:
// knowledge rows to markdown, markdown to HTML, HTML to PDF through
// headless Chrome. Reports are throwaway files with a short TTL; the
// record map is in-memory only.
type ReportService struct {
	storage   *KnowledgeStorageService
	outputDir string

	mu      sync.RWMutex
	reports map[string]*GeneratedReport
}

func NewReportService(storage *KnowledgeStorageService, outputDir string) (*ReportService, error) {
	if outputDir == "" {
		outputDir = "./reports"
	}
	if err := os.MkdirAll(outputDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	return &ReportService{
		storage:   storage,
		outputDir: outputDir,
		reports:   make(map[string]*GeneratedReport),
	}, nil
}

// Generate renders the current knowledge base of a project into a PDF and
// returns the report record for the download handler.
func (s *ReportService) Generate(ctx context.Context, project *models.Project) (*GeneratedReport, error) {
	data, err := s.collectReportData(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	markdown := buildReportMarkdown(project, data)

	var htmlBuf bytes.Buffer
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &htmlBuf); err != nil {
		return nil, fmt.Errorf("failed to convert report markdown: %w", err)
	}

	reportID := uuid.New().String()
	filename := fmt.Sprintf("%s-knowledge-%s.pdf", reportSlug(project.Name), time.Now().UTC().Format("2006-01-02"))
	filePath := filepath.Join(s.outputDir, reportID+".pdf")

	fullHTML := wrapReportHTML(project.Name, htmlBuf.String())
	if err := renderPDF(fullHTML, filePath); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat report file: %w", err)
	}

	report := &GeneratedReport{
		ID:          reportID,
		ProjectID:   project.ID,
		Filename:    filename,
		FilePath:    filePath,
		Size:        fileInfo.Size(),
		ContentType: "application/pdf",
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.reports[reportID] = report
	s.mu.Unlock()

	log.Printf("📄 [REPORT] Generated knowledge report %s for project %q (%d bytes)",
		filename, project.Name, fileInfo.Size())
	return report, nil
}

// Report returns a report record by ID.
func (s *ReportService) Report(reportID string) (*GeneratedReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, exists := s.reports[reportID]
	return report, exists
}

// MarkDownloaded stamps the first download time, which starts the short
// post-download grace period.
func (s *ReportService) MarkDownloaded(reportID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if report, exists := s.reports[reportID]; exists && !report.Downloaded {
		now := time.Now()
		report.Downloaded = true
		report.DownloadedAt = &now
	}
}

// CleanupExpired removes reports that were downloaded more than the grace
// period ago or that outlived the absolute TTL.
func (s *ReportService) CleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cleaned := 0
	for reportID, report := range s.reports {
		expired := now.Sub(report.CreatedAt) > reportTTL
		if report.Downloaded && report.DownloadedAt != nil && now.Sub(*report.DownloadedAt) > reportDownloadGrace {
			expired = true
		}
		if !expired {
			continue
		}

		if err := os.Remove(report.FilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("⚠️ [REPORT] Failed to delete report file %s: %v", report.FilePath, err)
		}
		delete(s.reports, reportID)
		cleaned++
	}

	if cleaned > 0 {
		log.Printf("🧹 [REPORT] Cleaned up %d expired reports", cleaned)
	}
}

// reportData is everything a report pulls from the knowledge base.
type reportData struct {
	counts        *KnowledgeCounts
	facts         []models.Fact
	decisions     []models.Decision
	risks         []models.Risk
	questions     []models.Question
	actions       []models.ActionItem
	people        []models.Person
	relationships []models.Relationship
}

func (s *ReportService) collectReportData(ctx context.Context, projectID string) (reportData, error) {
	var data reportData
	var err error

	if data.counts, err = s.storage.Counts(ctx, projectID); err != nil {
		return data, fmt.Errorf("failed to load knowledge counts: %w", err)
	}
	if data.facts, err = s.storage.RecentFacts(ctx, projectID, reportFactLimit); err != nil {
		return data, fmt.Errorf("failed to load facts: %w", err)
	}
	if data.decisions, err = s.storage.RecentDecisions(ctx, projectID, reportDecisionLimit); err != nil {
		return data, fmt.Errorf("failed to load decisions: %w", err)
	}
	if data.risks, err = s.storage.RecentRisks(ctx, projectID, reportRiskLimit); err != nil {
		return data, fmt.Errorf("failed to load risks: %w", err)
	}
	if data.questions, err = s.storage.PendingQuestions(ctx, projectID, reportQuestionLimit); err != nil {
		return data, fmt.Errorf("failed to load questions: %w", err)
	}
	if data.actions, err = s.storage.PendingActions(ctx, projectID); err != nil {
		return data, fmt.Errorf("failed to load actions: %w", err)
	}
	if data.people, err = s.storage.People(ctx, projectID); err != nil {
		return data, fmt.Errorf("failed to load people: %w", err)
	}
	if data.relationships, err = s.storage.Relationships(ctx, projectID); err != nil {
		return data, fmt.Errorf("failed to load relationships: %w", err)
	}

	return data, nil
}

// buildReportMarkdown renders the knowledge base as a markdown document.
// Section order mirrors the product's knowledge views.
func buildReportMarkdown(project *models.Project, data reportData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s Knowledge Report\n\n", project.Name)
	if project.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", project.Description)
	}
	fmt.Fprintf(&b, "_Generated %s_\n\n", time.Now().UTC().Format("2006-01-02 15:04 UTC"))

	if data.counts != nil {
		b.WriteString("## Overview\n\n")
		b.WriteString("| Knowledge | Count |\n|---|---|\n")
		fmt.Fprintf(&b, "| Content units | %d |\n", data.counts.ContentUnits)
		fmt.Fprintf(&b, "| Facts | %d |\n", data.counts.Facts)
		fmt.Fprintf(&b, "| Decisions | %d |\n", data.counts.Decisions)
		fmt.Fprintf(&b, "| Risks | %d |\n", data.counts.Risks)
		fmt.Fprintf(&b, "| Open questions | %d |\n", data.counts.OpenQuestions)
		fmt.Fprintf(&b, "| Pending actions | %d |\n", data.counts.PendingActions)
		fmt.Fprintf(&b, "| People | %d |\n", data.counts.People)
		fmt.Fprintf(&b, "| Relationships | %d |\n", data.counts.Relationships)
		b.WriteString("\n")
	}

	if len(data.facts) > 0 {
		b.WriteString("## Facts\n\n")
		for _, fact := range data.facts {
			if fact.Category != "" {
				fmt.Fprintf(&b, "- %s _(%s)_\n", fact.Content, fact.Category)
			} else {
				fmt.Fprintf(&b, "- %s\n", fact.Content)
			}
		}
		b.WriteString("\n")
	}

	if len(data.decisions) > 0 {
		b.WriteString("## Decisions\n\n")
		for _, decision := range data.decisions {
			fmt.Fprintf(&b, "- **%s**\n", decision.Content)
			if decision.Rationale != "" {
				fmt.Fprintf(&b, "  - Rationale: %s\n", decision.Rationale)
			}
			if decision.DecidedBy != "" {
				fmt.Fprintf(&b, "  - Decided by: %s\n", decision.DecidedBy)
			}
		}
		b.WriteString("\n")
	}

	if len(data.risks) > 0 {
		b.WriteString("## Risks\n\n")
		for _, risk := range data.risks {
			severity := risk.Severity
			if severity == "" {
				severity = "unrated"
			}
			fmt.Fprintf(&b, "- **[%s]** %s\n", strings.ToUpper(severity), risk.Content)
			if risk.Mitigation != "" {
				fmt.Fprintf(&b, "  - Mitigation: %s\n", risk.Mitigation)
			}
		}
		b.WriteString("\n")
	}

	if len(data.questions) > 0 {
		b.WriteString("## Open Questions\n\n")
		for _, question := range data.questions {
			if question.AssignedTo != "" {
				fmt.Fprintf(&b, "- %s _(assigned to %s)_\n", question.Content, question.AssignedTo)
			} else {
				fmt.Fprintf(&b, "- %s\n", question.Content)
			}
		}
		b.WriteString("\n")
	}

	if len(data.actions) > 0 {
		b.WriteString("## Pending Actions\n\n")
		for _, action := range data.actions {
			line := "- [ ] " + action.Task
			var details []string
			if action.Owner != "" {
				details = append(details, "owner: "+action.Owner)
			}
			if action.Deadline != "" {
				details = append(details, "due: "+action.Deadline)
			}
			if len(details) > 0 {
				line += " (" + strings.Join(details, ", ") + ")"
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	if len(data.people) > 0 {
		b.WriteString("## People\n\n")
		for _, person := range data.people {
			switch {
			case person.Role != "" && person.Organization != "":
				fmt.Fprintf(&b, "- **%s**, %s (%s)\n", person.Name, person.Role, person.Organization)
			case person.Role != "":
				fmt.Fprintf(&b, "- **%s**, %s\n", person.Name, person.Role)
			default:
				fmt.Fprintf(&b, "- **%s**\n", person.Name)
			}
		}
		b.WriteString("\n")
	}

	if len(data.relationships) > 0 {
		b.WriteString("## Relationships\n\n")
		for _, rel := range data.relationships {
			fmt.Fprintf(&b, "- **%s** %s **%s**\n", rel.Source, rel.Type, rel.Target)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// wrapReportHTML wraps rendered HTML in a printable document shell.
func wrapReportHTML(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>%s</title>
    <style>
        body {
            font-family: 'Segoe UI', Arial, sans-serif;
            line-height: 1.6;
            max-width: 800px;
            margin: 0 auto;
            padding: 40px 20px;
            color: #333;
        }
        h1, h2 { color: #2c3e50; }
        h2 { border-bottom: 1px solid #eee; padding-bottom: 4px; margin-top: 28px; }
        table { border-collapse: collapse; width: 100%%; margin: 20px 0; }
        th, td { border: 1px solid #ddd; padding: 10px; text-align: left; }
        th { background-color: #3498db; color: white; }
        li { margin: 4px 0; }
    </style>
</head>
<body>
%s
</body>
</html>`, title, body)
}

// renderPDF prints HTML to a PDF file through headless Chrome. CHROME_BIN
// overrides the browser binary when the default discovery does not find one.
func renderPDF(htmlContent, outputPath string) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if chromePath := os.Getenv("CHROME_BIN"); chromePath != "" {
		opts = append(opts, chromedp.ExecPath(chromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var pdfBuffer []byte
	if err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfBuffer, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(false).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithScale(1.0).
				Do(ctx)
			return err
		}),
	); err != nil {
		return err
	}

	return os.WriteFile(outputPath, pdfBuffer, 0600)
}

// reportSlug turns a project name into a safe filename fragment.
func reportSlug(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "project"
	}
	return slug
}
