// Package adapter holds the helpers tool adapters use at the engine
// boundary: bounded probes with an explicit inconclusive outcome, and a
// credential tester that consumes credential-test triggers and reports
// verified credentials back as findings.
package adapter

import (
	"context"
	"time"

	"github.com/waftester/intelcore/pkg/duration"
)

// Outcome is the result of one probe.
type Outcome string

const (
	// OutcomeSuccess means the probe positively confirmed the hypothesis.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure means the target answered and rejected it.
	OutcomeFailure Outcome = "failure"
	// OutcomeInconclusive means no answer was obtained: timeout,
	// cancellation or transport error. Nothing is recorded for it.
	OutcomeInconclusive Outcome = "inconclusive"
)

// ProbeFunc performs one check. It should honor ctx.
type ProbeFunc func(ctx context.Context) (bool, error)

// Probe runs fn with a deadline of timeout. Deadline expiry and errors
// are inconclusive. A probe that ignores ctx is abandoned at the deadline.
func Probe(ctx context.Context, timeout time.Duration, fn ProbeFunc) Outcome {
	if timeout <= 0 || timeout > duration.ProbeMax {
		timeout = duration.ProbeMax
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := fn(ctx)
		done <- result{ok, err}
	}()

	select {
	case r := <-done:
		switch {
		case r.err != nil:
			return OutcomeInconclusive
		case r.ok:
			return OutcomeSuccess
		default:
			return OutcomeFailure
		}
	case <-ctx.Done():
		return OutcomeInconclusive
	}
}
