package services

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"lorehub/internal/security"
)

// scraperUserAgent identifies lorehub to target sites and robots.txt.
const scraperUserAgent = "Lorehub-Bot/1.0 (+https://lorehub.example.com/bot)"

// ScraperClient wraps an HTTP client tuned for page fetching
type ScraperClient struct {
	httpClient *http.Client
}

// NewScraperClient creates a new HTTP client for web ingestion
func NewScraperClient() *ScraperClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20, // Default is 2, far too low for repeated fetches
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  false,

		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &ScraperClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects (max 10)")
				}
				// Redirects can point back into the internal network
				if err := security.ValidateURLForSSRFQuick(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
	}
}

// Get performs an HTTP GET request with proper headers. URLs pointing
// at private networks or cloud metadata endpoints are rejected.
func (c *ScraperClient) Get(ctx context.Context, url string) (*http.Response, error) {
	if err := security.ValidateURLForSSRF(url); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", scraperUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	return c.httpClient.Do(req)
}
