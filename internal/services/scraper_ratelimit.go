package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter implements three-tier rate limiting for web ingestion:
// a global cap protecting this server, a per-domain cap respecting target
// sites (honoring robots.txt crawl-delay), and a per-project cap for fair
// usage across knowledge bases.
type RateLimiter struct {
	globalLimiter      *rate.Limiter
	perDomainLimiters  *sync.Map // map[string]*rate.Limiter
	perProjectLimiters *sync.Map // map[string]*rate.Limiter
}

// NewRateLimiter creates a new three-tier rate limiter
func NewRateLimiter(globalRate float64) *RateLimiter {
	return &RateLimiter{
		globalLimiter:      rate.NewLimiter(rate.Limit(globalRate), int(globalRate*2)),
		perDomainLimiters:  &sync.Map{},
		perProjectLimiters: &sync.Map{},
	}
}

// Wait applies all three tiers, using crawlDelay to pace the target domain
func (rl *RateLimiter) Wait(ctx context.Context, projectID, domain string, crawlDelay time.Duration) error {
	if err := rl.globalLimiter.Wait(ctx); err != nil {
		return err
	}

	domainLimiter := rl.domainLimiter(domain, crawlDelay)
	if err := domainLimiter.Wait(ctx); err != nil {
		return err
	}

	projectLimiter := rl.projectLimiter(projectID)
	return projectLimiter.Wait(ctx)
}

// domainLimiter gets or creates a rate limiter for a domain, derived from
// its crawl delay and clamped to [0.2, 5] requests per second.
func (rl *RateLimiter) domainLimiter(domain string, crawlDelay time.Duration) *rate.Limiter {
	if limiter, ok := rl.perDomainLimiters.Load(domain); ok {
		return limiter.(*rate.Limiter)
	}

	if crawlDelay <= 0 {
		crawlDelay = 500 * time.Millisecond
	}
	requestsPerSecond := 1.0 / crawlDelay.Seconds()
	if requestsPerSecond > 5.0 {
		requestsPerSecond = 5.0
	}
	if requestsPerSecond < 0.2 {
		requestsPerSecond = 0.2 // At least 1 request per 5 seconds
	}

	newLimiter := rate.NewLimiter(rate.Limit(requestsPerSecond), 1)

	// Use the existing limiter if another goroutine created it first
	actual, _ := rl.perDomainLimiters.LoadOrStore(domain, newLimiter)
	return actual.(*rate.Limiter)
}

// projectLimiter gets or creates a rate limiter for a project (5 req/s)
func (rl *RateLimiter) projectLimiter(projectID string) *rate.Limiter {
	if limiter, ok := rl.perProjectLimiters.Load(projectID); ok {
		return limiter.(*rate.Limiter)
	}

	newLimiter := rate.NewLimiter(rate.Limit(5.0), 10)

	actual, _ := rl.perProjectLimiters.LoadOrStore(projectID, newLimiter)
	return actual.(*rate.Limiter)
}
