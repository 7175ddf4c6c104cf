package cve

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedJSON = `{
  "cves": [
    {"product": "Apache HTTP Server", "version": "2.4.20", "cve_id": "CVE-2017-9798", "severity": "HIGH", "base_score": 7.5},
    {"product": "OpenSSH", "cve_id": "CVE-2018-15473", "severity": "MEDIUM", "base_score": 5.3}
  ],
  "exploits": {
    "CVE-2017-9798": [{"exploit_id": "EDB-42745", "title": "Optionsbleed", "severity": "high"}]
  }
}`

func writeFeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(feedJSON), 0o600))
	return path
}

func TestLoadFeed(t *testing.T) {
	s, err := LoadFeed(writeFeed(t))
	require.NoError(t, err)
	ctx := context.Background()

	recs, err := s.Lookup(ctx, "apache http server", "2.4.20")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "CVE-2017-9798", recs[0].CVEID)
	assert.InDelta(t, 7.5, recs[0].BaseScore, 0.001)

	recs, err = s.Lookup(ctx, "Apache HTTP Server", "2.4.58")
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = s.Lookup(ctx, "OpenSSH", "7.4")
	require.NoError(t, err)
	assert.Len(t, recs, 1, "empty feed version matches any version")

	exps, err := s.SearchExploits(ctx, "CVE-2017-9798")
	require.NoError(t, err)
	require.Len(t, exps, 1)
	assert.Equal(t, "EDB-42745", exps[0].ExploitID)
}

func TestLoadFeed_Errors(t *testing.T) {
	_, err := LoadFeed(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = LoadFeed(bad)
	assert.Error(t, err)
}

func TestStaticLookup_DrivesCorrelator(t *testing.T) {
	s, err := LoadFeed(writeFeed(t))
	require.NoError(t, err)
	c := New(s, WithExploitLookup(s))

	got := c.Correlate(context.Background(), "Apache", "2.4.20", "10.0.0.5", 80)
	require.Len(t, got, 1)
	assert.True(t, got[0].ExploitAvailable)
	assert.True(t, got[0].AutoExploitable())
}

func TestRateLimited_HonorsContext(t *testing.T) {
	s := NewStaticLookup(Feed{})
	r := NewRateLimited(s, s, 0.001, 1)
	ctx := context.Background()

	_, err := r.Lookup(ctx, "x", "1")
	require.NoError(t, err, "burst token is available immediately")

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = r.SearchExploits(ctx, "CVE-X")
	assert.Error(t, err, "an exhausted bucket must respect the deadline")
}

func TestRateLimited_NilCollaborators(t *testing.T) {
	r := NewRateLimited(nil, nil, 100, 10)
	recs, err := r.Lookup(context.Background(), "x", "1")
	assert.NoError(t, err)
	assert.Nil(t, recs)
}
