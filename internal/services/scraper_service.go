package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/markusmobius/go-trafilatura"
	cache "github.com/patrickmn/go-cache"
)

const (
	defaultMaxBodySize   = 10 * 1024 * 1024 // 10MB
	defaultMaxConcurrent = 10
	defaultGlobalRate    = 10.0   // requests per second
	defaultMaxPageChars  = 200000 // scraped text cap before ingestion
)

// ScrapedPage is the extracted main content of one web page, ready to be
// ingested as a content unit.
type ScrapedPage struct {
	URL       string
	Title     string
	Author    string
	Published time.Time
	Text      string
}

// ScraperService fetches web pages for URL ingestion: SSRF validation,
// robots.txt compliance, three-tier rate limiting, bounded concurrency,
// trafilatura main-content extraction, and a one hour result cache.
type ScraperService struct {
	client        *ScraperClient
	rateLimiter   *RateLimiter
	robotsChecker *RobotsChecker
	pageCache     *cache.Cache
	resourceMgr   *ResourceManager
}

var (
	scraperInstance *ScraperService
	scraperOnce     sync.Once
)

// GetScraperService returns the singleton scraper service instance
func GetScraperService() *ScraperService {
	scraperOnce.Do(func() {
		scraperInstance = &ScraperService{
			client:        NewScraperClient(),
			rateLimiter:   NewRateLimiter(defaultGlobalRate),
			robotsChecker: NewRobotsChecker(),
			pageCache:     cache.New(1*time.Hour, 10*time.Minute),
			resourceMgr:   NewResourceManager(defaultMaxConcurrent, defaultMaxBodySize),
		}

		log.Printf("✅ [SCRAPER] Service initialized: max_concurrent=%d, global_rate=%.1f req/s",
			defaultMaxConcurrent, defaultGlobalRate)
	})
	return scraperInstance
}

// ScrapePage fetches a page and returns its extracted main content.
// maxChars caps the text length (<= 0 uses the default cap). projectID
// feeds the fairness tier of the rate limiter.
func (s *ScraperService) ScrapePage(ctx context.Context, urlStr, projectID string, maxChars int) (*ScrapedPage, error) {
	startTime := time.Now()

	if err := validateScrapeURL(urlStr); err != nil {
		return nil, err
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	domain := parsedURL.Host

	if maxChars <= 0 {
		maxChars = defaultMaxPageChars
	}

	if cached, found := s.pageCache.Get(urlStr); found {
		log.Printf("✅ [SCRAPER] Cache hit for URL: %s (latency: %dms)",
			urlStr, time.Since(startTime).Milliseconds())
		return cached.(*ScrapedPage), nil
	}

	allowed, crawlDelay, err := s.robotsChecker.CanFetch(ctx, urlStr)
	if err != nil {
		log.Printf("⚠️  [SCRAPER] Failed to check robots.txt for %s: %v", urlStr, err)
		crawlDelay = 1 * time.Second
	}
	if !allowed {
		return nil, fmt.Errorf("access blocked by robots.txt for: %s", urlStr)
	}

	if err := s.rateLimiter.Wait(ctx, projectID, domain, crawlDelay); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	if err := s.resourceMgr.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("resource limit reached, try again later: %w", err)
	}
	defer s.resourceMgr.Release()

	resp, err := s.client.Get(ctx, urlStr)
	if err != nil {
		log.Printf("❌ [SCRAPER] Failed to fetch URL %s: %v", urlStr, err)
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isSupportedContentType(contentType) {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	body, err := s.resourceMgr.ReadBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	opts := trafilatura.Options{
		OriginalURL: parsedURL,
	}
	result, err := trafilatura.Extract(bytes.NewReader(body), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to extract content: %w", err)
	}
	if result == nil || result.ContentText == "" {
		return nil, fmt.Errorf("no content extracted from page")
	}

	text := result.ContentText
	if runes := []rune(text); len(runes) > maxChars {
		text = string(runes[:maxChars]) + "\n\n[Content truncated due to length limit]"
	}

	title := strings.TrimSpace(result.Metadata.Title)
	if title == "" {
		title = parsedURL.Host + parsedURL.Path
	}

	page := &ScrapedPage{
		URL:       urlStr,
		Title:     title,
		Author:    result.Metadata.Author,
		Published: result.Metadata.Date,
		Text:      text,
	}
	s.pageCache.Set(urlStr, page, cache.DefaultExpiration)

	log.Printf("✅ [SCRAPER] Scraped URL: %s (latency: %dms, length: %d chars)",
		urlStr, time.Since(startTime).Milliseconds(), len(page.Text))

	return page, nil
}

// validateScrapeURL checks that a URL is safe to fetch (SSRF protection):
// http(s) only, no loopback, link-local, or private addresses.
func validateScrapeURL(urlStr string) error {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("only HTTP/HTTPS URLs are supported, got: %s", parsedURL.Scheme)
	}

	hostname := strings.ToLower(parsedURL.Hostname())
	if hostname == "" {
		return fmt.Errorf("URL has no host")
	}
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return fmt.Errorf("localhost URLs are not allowed")
	}

	if ip := net.ParseIP(hostname); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("private IP addresses are not allowed")
		}
	}

	return nil
}

// isSupportedContentType checks if the content type is supported
func isSupportedContentType(contentType string) bool {
	contentType = strings.ToLower(contentType)

	supported := []string{
		"text/html",
		"text/plain",
		"application/xhtml+xml",
	}

	for _, ct := range supported {
		if strings.Contains(contentType, ct) {
			return true
		}
	}

	return false
}
