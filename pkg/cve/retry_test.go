package cve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyLookup struct {
	fails int
	calls int
	err   error
}

func (f *flakyLookup) Lookup(context.Context, string, string) ([]Record, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, f.err
	}
	return []Record{{CVEID: "CVE-2021-41773"}}, nil
}

func (f *flakyLookup) SearchExploits(context.Context, string) ([]Exploit, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, f.err
	}
	return []Exploit{{ExploitID: "EDB-50383"}}, nil
}

func noSleep(r *Retrying) *Retrying {
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestRetryingRecovers(t *testing.T) {
	f := &flakyLookup{fails: 2, err: errors.New("503")}
	r := noSleep(NewRetrying(f, f, Backoff{Attempts: 3, Initial: time.Millisecond}))

	recs, err := r.Lookup(context.Background(), "Apache", "2.4.49")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 3, f.calls)
}

func TestRetryingGivesUp(t *testing.T) {
	boom := errors.New("503")
	f := &flakyLookup{fails: 5, err: boom}
	r := noSleep(NewRetrying(f, f, Backoff{Attempts: 2}))

	_, err := r.SearchExploits(context.Background(), "CVE-2021-41773")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, f.calls)
}

func TestRetryingSkipsContextErrors(t *testing.T) {
	f := &flakyLookup{fails: 5, err: context.DeadlineExceeded}
	r := noSleep(NewRetrying(f, f, Backoff{Attempts: 4}))

	_, err := r.Lookup(context.Background(), "Apache", "2.4.49")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, f.calls)
}

func TestRetryingNilCollaborators(t *testing.T) {
	r := NewRetrying(nil, nil, Backoff{})
	recs, err := r.Lookup(context.Background(), "x", "1")
	assert.NoError(t, err)
	assert.Nil(t, recs)
	exps, err := r.SearchExploits(context.Background(), "x")
	assert.NoError(t, err)
	assert.Nil(t, exps)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Attempts: 5, Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond}
	for n, want := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond} {
		d := b.Delay(n)
		assert.GreaterOrEqual(t, d, want*3/4, "retry %d", n)
		assert.LessOrEqual(t, d, want*5/4, "retry %d", n)
	}
}
