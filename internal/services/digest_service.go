package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/leonid-shevtsov/telegold"
	"github.com/yuin/goldmark"

	"lorehub/internal/models"
	"lorehub/internal/synthesis"
)

// Telegram caps messages at 4096 characters
const maxDigestChars = 4000

// DigestService sends a Telegram summary after synthesis runs that added
// knowledge. It is a no-op unless a bot token and chat ID are configured;
// the digest.enabled setting acts as a kill switch without a restart.
type DigestService struct {
	settings   *SettingsService
	botToken   string
	chatID     string
	httpClient *http.Client
}

// NewDigestService creates a digest service. botToken or chatID being
// empty disables delivery entirely.
func NewDigestService(settings *SettingsService, botToken, chatID string) *DigestService {
	return &DigestService{
		settings: settings,
		botToken: botToken,
		chatID:   chatID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Enabled reports whether digests can currently be delivered
func (s *DigestService) Enabled(ctx context.Context) bool {
	if s.botToken == "" || s.chatID == "" {
		return false
	}
	enabled, err := s.settings.GetBool(ctx, models.SettingKeyDigestEnabled, true)
	if err != nil {
		log.Printf("⚠️ [DIGEST] Failed to read digest toggle, assuming enabled: %v", err)
		return true
	}
	return enabled
}

// NotifyRun sends a digest for one finished run. Runs that added nothing
// are skipped; delivery failures are logged, never returned.
func (s *DigestService) NotifyRun(ctx context.Context, project *models.Project, stats *synthesis.Stats) {
	if stats == nil || !hasNewKnowledge(stats) {
		return
	}
	if !s.Enabled(ctx) {
		return
	}

	text := formatDigest(project, stats)
	if err := s.sendTelegramMessage(ctx, text); err != nil {
		log.Printf("⚠️ [DIGEST] Failed to send digest for project %s: %v", project.ID, err)
		return
	}
	log.Printf("📬 [DIGEST] Sent synthesis digest for project %q", project.Name)
}

// hasNewKnowledge reports whether a run produced anything worth a digest
func hasNewKnowledge(stats *synthesis.Stats) bool {
	return stats.FactsAdded > 0 ||
		stats.DecisionsAdded > 0 ||
		stats.RisksAdded > 0 ||
		stats.QuestionsAdded > 0 ||
		stats.QuestionsResolved > 0 ||
		stats.ActionsAdded > 0 ||
		stats.ActionsCompleted > 0 ||
		stats.PeopleAdded > 0 ||
		stats.RelationshipsAdded > 0
}

// formatDigest renders the run summary as markdown, converted to Telegram
// HTML at send time.
func formatDigest(project *models.Project, stats *synthesis.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Knowledge update: %s**\n\n", project.Name)
	fmt.Fprintf(&b, "Processed %d content file(s).\n\n", stats.ContentFilesProcessed)

	lines := []struct {
		count int
		label string
	}{
		{stats.FactsAdded, "new fact(s)"},
		{stats.DecisionsAdded, "new decision(s)"},
		{stats.RisksAdded, "new risk(s)"},
		{stats.QuestionsAdded, "new open question(s)"},
		{stats.QuestionsResolved, "question(s) resolved"},
		{stats.ActionsAdded, "new action item(s)"},
		{stats.ActionsCompleted, "action item(s) completed"},
		{stats.PeopleAdded, "new person/people"},
		{stats.RelationshipsAdded, "new relationship(s)"},
	}
	for _, line := range lines {
		if line.count > 0 {
			fmt.Fprintf(&b, "- %d %s\n", line.count, line.label)
		}
	}

	text := b.String()
	if len(text) > maxDigestChars {
		text = text[:maxDigestChars]
	}
	return text
}

// Telegram markdown converter using telegold (goldmark with a Telegram
// HTML renderer)
var telegramMarkdownConverter = goldmark.New(goldmark.WithRenderer(telegold.NewRenderer()))

// convertToTelegramHTML converts standard markdown to Telegram-compatible
// HTML, falling back to the original text when conversion fails.
func convertToTelegramHTML(text string) string {
	var buf bytes.Buffer
	if err := telegramMarkdownConverter.Convert([]byte(text), &buf); err != nil {
		log.Printf("⚠️ [TELEGRAM] Markdown conversion failed: %v", err)
		return text
	}
	return buf.String()
}

// sendTelegramMessage delivers one message via the Bot API. HTML format
// first; on an entity-parse rejection it retries as plain text.
func (s *DigestService) sendTelegramMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	payload := map[string]interface{}{
		"chat_id":    s.chatID,
		"text":       convertToTelegramHTML(text),
		"parse_mode": "HTML",
	}
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 200 {
		return nil
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	errStr := string(bodyBytes)

	if strings.Contains(errStr, "can't parse entities") {
		log.Printf("⚠️ [TELEGRAM] HTML parsing failed, retrying without parse_mode")

		payload = map[string]interface{}{
			"chat_id": s.chatID,
			"text":    stripMarkdown(text),
		}
		body, _ = json.Marshal(payload)

		req, _ = http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp2, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send Telegram message (plain): %w", err)
		}
		defer resp2.Body.Close()

		if resp2.StatusCode != 200 {
			bodyBytes2, _ := io.ReadAll(resp2.Body)
			return fmt.Errorf("Telegram API error (plain): %s", string(bodyBytes2))
		}
		return nil
	}

	return fmt.Errorf("Telegram API error: %s", errStr)
}

var (
	digestCodeBlockRe = regexp.MustCompile("```[a-zA-Z]*\\n([\\s\\S]*?)```")
	digestHeaderRe    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	digestLinkRe      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// stripMarkdown removes markdown formatting for the plain text fallback
func stripMarkdown(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "__", "")
	text = digestCodeBlockRe.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "`", "")
	text = strings.ReplaceAll(text, "~~", "")
	text = digestHeaderRe.ReplaceAllString(text, "")
	text = digestLinkRe.ReplaceAllString(text, "$1 ($2)")
	return text
}
