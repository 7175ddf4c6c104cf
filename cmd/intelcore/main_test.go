package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waftester/intelcore/pkg/jsonutil"
	"github.com/waftester/intelcore/pkg/report"
)

const observations = `{"kind":"network-service","source":"nmap","target":"10.0.0.5","payload":{"port":"80","service":"Apache","version":"2.4.20"},"confidence":0.9}
{"kind":"network-service","source":"nmap","target":"10.0.0.5","payload":{"port":"22","service":"OpenSSH"},"confidence":0.9}
{"kind":"web-vulnerability","source":"zap","target":"10.0.0.5","payload":{"url":"http://10.0.0.5/login","parameter":"user","severity":"high"},"confidence":0.8}
`

func TestRunWritesReportsAndJournal(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "findings.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(observations), 0o600))
	jsonOut := filepath.Join(dir, "report.json")
	pdfOut := filepath.Join(dir, "report.pdf")
	journal := filepath.Join(dir, "session.db")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-findings", in, "-json", jsonOut, "-pdf", pdfOut, "-journal", journal, "-q",
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	assert.Contains(t, stdout.String(), "10.0.0.5")

	data, err := os.ReadFile(jsonOut)
	require.NoError(t, err)
	var r report.UnifiedReport
	require.NoError(t, jsonutil.Unmarshal(data, &r))
	assert.Equal(t, 1, r.Summary.TotalTargets)

	pdf, err := os.ReadFile(pdfOut)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	// Replaying the journal rebuilds the same observed findings.
	stdout.Reset()
	code = run(context.Background(), []string{"-replay", journal, "-no-summary", "-q"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Empty(t, stdout.String())
}

func TestRunUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))
	assert.Equal(t, 2, run(context.Background(), []string{"-findings", "x", "-config", "/nonexistent.yaml"}, &stdout, &stderr))

	stdout.Reset()
	assert.Equal(t, 0, run(context.Background(), []string{"-version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "intelcore")
}
