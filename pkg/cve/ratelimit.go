package cve

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped collaborators with a shared
// token bucket. Either collaborator may be nil.
type RateLimited struct {
	cves     Lookup
	exploits ExploitLookup
	limiter  *rate.Limiter
}

// NewRateLimited wraps cves and exploits, allowing perSecond calls with
// the given burst. A non-positive perSecond disables throttling.
func NewRateLimited(cves Lookup, exploits ExploitLookup, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimited{
		cves:     cves,
		exploits: exploits,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// Lookup waits for a token and delegates.
func (r *RateLimited) Lookup(ctx context.Context, service, version string) ([]Record, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("cve: rate limit: %w", err)
	}
	if r.cves == nil {
		return nil, nil
	}
	return r.cves.Lookup(ctx, service, version)
}

// SearchExploits waits for a token and delegates.
func (r *RateLimited) SearchExploits(ctx context.Context, cveID string) ([]Exploit, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("cve: rate limit: %w", err)
	}
	if r.exploits == nil {
		return nil, nil
	}
	return r.exploits.SearchExploits(ctx, cveID)
}
