package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waftester/intelcore/pkg/adapter"
	"github.com/waftester/intelcore/pkg/config"
	"github.com/waftester/intelcore/pkg/cve"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/jsonutil"
	"github.com/waftester/intelcore/pkg/output/dispatcher"
	"github.com/waftester/intelcore/pkg/output/events"
	"github.com/waftester/intelcore/pkg/output/writers"
)

type fakeCVE struct {
	mu      sync.Mutex
	queries []string
	records map[string][]cve.Record // by product name
}

func (f *fakeCVE) Lookup(_ context.Context, service, version string) ([]cve.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, service+"@"+version)
	return f.records[service], nil
}

func (f *fakeCVE) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type fakeExploits map[string][]cve.Exploit

func (f fakeExploits) SearchExploits(_ context.Context, id string) ([]cve.Exploit, error) {
	return f[id], nil
}

type capture struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capture) hook() dispatcher.Hook {
	return dispatcher.HookFunc{Fn: func(_ context.Context, e events.Event) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, e)
		return nil
	}}
}

func (c *capture) ofType(t events.EventType) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, e := range c.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(config.Default(), append([]Option{WithLogger(quiet())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func apache() map[string]string {
	return map[string]string{
		finding.KeyPort:    "80",
		finding.KeyService: "Apache",
		finding.KeyVersion: "2.4.20",
	}
}

func TestWebServiceTriggersWebTestAndAliasLookups(t *testing.T) {
	lookup := &fakeCVE{}
	seen := &capture{}
	e := newEngine(t, WithCVELookup(lookup), WithHook(seen.hook()))

	_, err := e.ReportFindings(context.Background(), []Observation{
		{Kind: finding.KindNetworkService, Source: "nmap", Target: "10.0.0.5", Payload: map[string]string{finding.KeyPort: "22", finding.KeyService: "ssh"}, Confidence: 0.9},
		{Kind: finding.KindNetworkService, Source: "nmap", Target: "10.0.0.5", Payload: apache(), Confidence: 0.9},
	})
	require.NoError(t, err)
	e.Wait()

	webTests := seen.ofType(events.EventTypeWebTest)
	require.Len(t, webTests, 1)
	assert.Equal(t, "http://10.0.0.5", webTests[0].(*events.WebTestEvent).URL)
	assert.Equal(t, 80, webTests[0].(*events.WebTestEvent).Port)

	credTests := seen.ofType(events.EventTypeCredentialTest)
	require.Len(t, credTests, 1)
	ct := credTests[0].(*events.CredentialTestEvent)
	assert.Equal(t, "SSH", ct.Service)
	assert.Equal(t, 22, ct.Port)
	assert.Equal(t, "10.0.0.5", ct.Target())

	assert.ElementsMatch(t,
		[]string{"Apache@2.4.20", "Apache HTTP Server@2.4.20", "httpd@2.4.20"},
		lookup.Queries())
	assert.Empty(t, seen.ofType(events.EventTypeDatabaseTest))
}

func TestIdenticalBannersShareLookups(t *testing.T) {
	lookup := &fakeCVE{records: map[string][]cve.Record{
		"Apache": {{CVEID: "CVE-2017-9798", Severity: "HIGH", BaseScore: 7.5}},
	}}
	e := newEngine(t, WithCVELookup(lookup))

	const targets = 150
	obs := make([]Observation, 0, targets)
	for i := range targets {
		obs = append(obs, Observation{
			Kind:       finding.KindNetworkService,
			Source:     "nmap",
			Target:     fmt.Sprintf("10.0.%d.%d", i/250, i%250+1),
			Payload:    map[string]string{finding.KeyPort: "8081", finding.KeyService: "Apache", finding.KeyVersion: "2.4.20"},
			Confidence: 0.9,
		})
	}
	_, err := e.ReportFindings(context.Background(), obs)
	require.NoError(t, err)
	e.Wait()

	total := 0
	for _, o := range obs {
		total += len(e.Correlations(o.Target))
	}
	assert.Equal(t, targets, total)
	assert.ElementsMatch(t,
		[]string{"Apache@2.4.20", "Apache HTTP Server@2.4.20", "httpd@2.4.20"},
		lookup.Queries())
}

func TestCVECorrelationSuggestsExploit(t *testing.T) {
	lookup := &fakeCVE{records: map[string][]cve.Record{
		"Apache HTTP Server": {{CVEID: "CVE-2017-9798", Description: "Optionsbleed", Severity: "HIGH", BaseScore: 7.5}},
	}}
	exploits := fakeExploits{"CVE-2017-9798": {{ExploitID: "EDB-42745", Title: "Optionsbleed PoC", Severity: "high"}}}
	seen := &capture{}
	e := newEngine(t, WithCVELookup(lookup), WithExploitLookup(exploits), WithHook(seen.hook()))

	_, err := e.ReportFinding(context.Background(), finding.KindNetworkService, "nmap", "10.0.0.5", apache(), 0.9)
	require.NoError(t, err)
	e.Wait()

	corrs := e.Correlations("10.0.0.5")
	require.Len(t, corrs, 1)
	assert.Equal(t, "CVE-2017-9798", corrs[0].CVEID)
	assert.True(t, corrs[0].ExploitAvailable)
	assert.Equal(t, 1, corrs[0].ExploitCount)

	suggestions := seen.ofType(events.EventTypeExploitSuggestion)
	require.Len(t, suggestions, 1)
	s := suggestions[0].(*events.ExploitSuggestionEvent)
	assert.Equal(t, "CVE-2017-9798", s.CVEID)
	assert.Equal(t, "EDB-42745", s.ExploitID)
	assert.Equal(t, 80, s.Port)

	kinds := map[finding.Kind]int{}
	for _, f := range e.Findings("10.0.0.5") {
		kinds[f.Kind]++
	}
	assert.Equal(t, 1, kinds[finding.KindNetworkService])
	assert.Equal(t, 1, kinds[finding.KindVulnerability])
	assert.Equal(t, 1, kinds[finding.KindAttackOpportunity])
}

func TestVerifiedCredentialSuggestsPrivilegeEscalation(t *testing.T) {
	var mu sync.Mutex
	var tried []string
	ssh := adapter.ProberFunc(func(_ context.Context, target string, port int, user, pass string) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		tried = append(tried, target+":"+user)
		return user == "admin" && pass == "hunter2", nil
	})
	seen := &capture{}
	e := newEngine(t, WithProber("SSH", ssh), WithHook(seen.hook()))
	ctx := context.Background()

	_, err := e.ReportFindings(ctx, []Observation{
		{Kind: finding.KindNetworkService, Source: "nmap", Target: "10.0.0.7", Payload: map[string]string{finding.KeyPort: "22", finding.KeyService: "OpenSSH"}, Confidence: 1},
		{Kind: finding.KindNetworkService, Source: "nmap", Target: "10.0.0.7", Payload: map[string]string{finding.KeyPort: "21", finding.KeyService: "vsftpd"}, Confidence: 1},
	})
	require.NoError(t, err)
	e.Wait()

	_, err = e.ReportFinding(ctx, finding.KindCredentialLeak, "web-scanner", "10.0.0.7", map[string]string{
		finding.KeyUsername: "admin",
		finding.KeyPassword: "hunter2",
		finding.KeyService:  "Web",
		finding.KeyPort:     "80",
	}, 0.8)
	require.NoError(t, err)
	e.Wait()

	mu.Lock()
	assert.Equal(t, []string{"10.0.0.7:admin"}, tried)
	mu.Unlock()

	stats := e.TesterStats()
	assert.Equal(t, int64(1), stats.Success)
	assert.Equal(t, int64(1), stats.Unsupported) // FTP has no prober

	require.Len(t, seen.ofType(events.EventTypePrivilegeEscalation), 1)

	var verified int
	for _, f := range e.Findings("10.0.0.7") {
		if d, ok := f.Detail.(finding.CredentialLeak); ok && d.Verified {
			verified++
			assert.Equal(t, adapter.TesterSource, f.Source)
			assert.Equal(t, 22, d.Port)
		}
	}
	assert.Equal(t, 1, verified)
	assert.Len(t, e.Credentials(), 2)
}

func TestReportFindingsJoinsErrors(t *testing.T) {
	e := newEngine(t)
	ids, err := e.ReportFindings(context.Background(), []Observation{
		{Kind: finding.KindNetworkService, Source: "nmap", Target: "10.0.0.1", Payload: map[string]string{finding.KeyPort: "443"}, Confidence: 1},
		{Kind: finding.KindNetworkService, Source: "nmap", Payload: map[string]string{finding.KeyPort: "443"}, Confidence: 1},
		{Kind: "telepathy", Source: "?", Target: "10.0.0.1", Confidence: 1},
	})
	require.Error(t, err)
	assert.Len(t, ids, 1)
	assert.ErrorIs(t, err, finding.ErrMissingTarget)
	assert.ErrorIs(t, err, finding.ErrUnknownKind)
	assert.Contains(t, err.Error(), "observation 1")
	assert.Contains(t, err.Error(), "observation 2")
}

func TestCorrelatePlanAndReport(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.ReportFindings(ctx, []Observation{
		{Kind: finding.KindNetworkService, Source: "nmap", Target: "10.0.0.9", Payload: map[string]string{finding.KeyPort: "80"}, Confidence: 1},
		{Kind: finding.KindNetworkService, Source: "nmap", Target: "10.0.0.9", Payload: map[string]string{finding.KeyPort: "22"}, Confidence: 1},
	})
	require.NoError(t, err)
	e.Wait()

	// The reactor already ran the pass; a second one finds nothing new.
	assert.Empty(t, e.Correlate(ctx))

	var webSSH int
	for _, f := range e.Findings("10.0.0.9") {
		if f.Kind == finding.KindAttackOpportunity && f.Get(finding.KeyPattern) == "web_ssh_combination" {
			webSSH++
		}
	}
	assert.Equal(t, 1, webSSH)

	plan := e.Plan("10.0.0.9")
	assert.Equal(t, "10.0.0.9", plan.Target)
	assert.NotEmpty(t, plan.Phases)
	assert.Greater(t, plan.SuccessProbability, 0.0)
	assert.LessOrEqual(t, plan.SuccessProbability, 1.0)

	r := e.Report()
	assert.Equal(t, 1, r.Summary.TotalTargets)
	require.Len(t, r.AttackChains, 1)

	var buf bytes.Buffer
	require.NoError(t, e.WriteReport(&buf))
	assert.True(t, jsonutil.Valid(buf.Bytes()))
}

func TestJournalCapturesSession(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Journal = filepath.Join(t.TempDir(), "session.db")
	e, err := New(cfg, WithLogger(quiet()))
	require.NoError(t, err)

	_, err = e.ReportFinding(context.Background(), finding.KindNetworkService, "nmap", "10.0.0.5", apache(), 0.9)
	require.NoError(t, err)
	require.NoError(t, e.Close(context.Background()))

	j, err := writers.OpenSQLiteJournal(cfg.Output.Journal, quiet())
	require.NoError(t, err)
	defer j.Close()

	found, err := j.Findings(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Apache", found[0].Get(finding.KeyService))

	triggers, err := j.Entries(context.Background(), events.EventTypeWebTest)
	require.NoError(t, err)
	assert.Len(t, triggers, 1)
}

func TestClosedEngineRejectsFindings(t *testing.T) {
	e, err := New(nil, WithLogger(quiet()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Close(ctx))
	require.NoError(t, e.Close(ctx))

	_, err = e.ReportFinding(context.Background(), finding.KindNetworkService, "nmap", "10.0.0.5", apache(), 0.9)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Concurrency = 0
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
