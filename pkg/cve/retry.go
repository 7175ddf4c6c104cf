package cve

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Backoff controls how failed collaborator calls are retried.
type Backoff struct {
	Attempts int           // total attempts including the first
	Initial  time.Duration // delay before the first retry, doubled per retry
	Max      time.Duration // cap on a single delay
}

// Delay returns the wait before retry n (0-indexed) with ±25% jitter.
func (b Backoff) Delay(n int) time.Duration {
	d := b.Initial << n
	if d <= 0 || (b.Max > 0 && d > b.Max) {
		d = b.Max
	}
	if q := int64(d) / 4; q > 0 {
		j := time.Duration(rand.Int64N(q))
		if rand.IntN(2) == 0 {
			return d + j
		}
		return d - j
	}
	return d
}

// Retrying retries transient collaborator failures. Context errors are
// never retried. Either collaborator may be nil.
type Retrying struct {
	cves     Lookup
	exploits ExploitLookup
	backoff  Backoff
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps cves and exploits.
func NewRetrying(cves Lookup, exploits ExploitLookup, b Backoff) *Retrying {
	if b.Attempts < 1 {
		b.Attempts = 1
	}
	return &Retrying{cves: cves, exploits: exploits, backoff: b, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lookup implements Lookup.
func (r *Retrying) Lookup(ctx context.Context, service, version string) ([]Record, error) {
	if r.cves == nil {
		return nil, nil
	}
	var out []Record
	err := r.do(ctx, func() error {
		var err error
		out, err = r.cves.Lookup(ctx, service, version)
		return err
	})
	return out, err
}

// SearchExploits implements ExploitLookup.
func (r *Retrying) SearchExploits(ctx context.Context, cveID string) ([]Exploit, error) {
	if r.exploits == nil {
		return nil, nil
	}
	var out []Exploit
	err := r.do(ctx, func() error {
		var err error
		out, err = r.exploits.SearchExploits(ctx, cveID)
		return err
	})
	return out, err
}

func (r *Retrying) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := range r.backoff.Attempts {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == r.backoff.Attempts-1 {
			break
		}
		if serr := r.sleep(ctx, r.backoff.Delay(attempt)); serr != nil {
			return err
		}
	}
	return err
}
