package queue

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterManager throttles job dispatch globally and per
// recipient domain before a job ever reaches the core Verifier —
// pacing is an adapter-layer concern, not something the core's
// contract describes.
type RateLimiterManager struct {
	globalLimiter  *rate.Limiter
	domainLimiters map[string]*rate.Limiter
	mu             sync.RWMutex
}

// NewRateLimiterManager returns a manager with sane defaults for the
// large, deliverability-sensitive mailbox providers plus a global
// safety valve.
func NewRateLimiterManager() *RateLimiterManager {
	domainLimiters := map[string]*rate.Limiter{
		"gmail.com":      rate.NewLimiter(2, 2),
		"googlemail.com": rate.NewLimiter(2, 2),
		"outlook.com":    rate.NewLimiter(1, 1),
		"hotmail.com":    rate.NewLimiter(1, 1),
		"live.com":       rate.NewLimiter(1, 1),
		"yahoo.com":      rate.NewLimiter(1, 1),
	}

	return &RateLimiterManager{
		globalLimiter:  rate.NewLimiter(10, 10),
		domainLimiters: domainLimiters,
	}
}

// Wait blocks until both the global and domain-specific limiters have
// a token, or ctx is cancelled.
func (rlm *RateLimiterManager) Wait(ctx context.Context, domain string) error {
	domain = strings.ToLower(domain)

	if err := rlm.globalLimiter.Wait(ctx); err != nil {
		return err
	}

	rlm.mu.RLock()
	limiter, exists := rlm.domainLimiters[domain]
	rlm.mu.RUnlock()

	if !exists {
		rlm.mu.Lock()
		if limiter, exists = rlm.domainLimiters[domain]; !exists {
			limiter = rate.NewLimiter(5, 5)
			rlm.domainLimiters[domain] = limiter
		}
		rlm.mu.Unlock()
	}

	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	if isSensitiveDomain(domain) {
		log.Printf("⏳ rate limit wait for [%s]", domain)
	}
	return nil
}

func isSensitiveDomain(domain string) bool {
	switch domain {
	case "gmail.com", "googlemail.com", "outlook.com", "hotmail.com", "live.com", "yahoo.com":
		return true
	default:
		return false
	}
}

// DomainRate reports the configured rate for a domain, for logging.
func (rlm *RateLimiterManager) DomainRate(domain string) string {
	domain = strings.ToLower(domain)

	rlm.mu.RLock()
	defer rlm.mu.RUnlock()

	if limiter, exists := rlm.domainLimiters[domain]; exists {
		return fmt.Sprintf("%.1f/sec", float64(limiter.Limit()))
	}
	return "5.0/sec (default)"
}
