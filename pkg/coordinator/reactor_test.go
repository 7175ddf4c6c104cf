package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waftester/intelcore/pkg/cve"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/output/events"
	"github.com/waftester/intelcore/pkg/vault"
)

type cveCall struct {
	service, version, target string
	port                     int
}

type fakeCVE struct {
	mu    sync.Mutex
	calls []cveCall
}

func (f *fakeCVE) Correlate(_ context.Context, service, version, target string, port int) []cve.Correlation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cveCall{service, version, target, port})
	return nil
}

type fakeAnalyzer struct{ calls atomic.Int32 }

func (a *fakeAnalyzer) Analyze(context.Context) []finding.Finding {
	a.calls.Add(1)
	return nil
}

type staticFindings map[string][]finding.Finding

func (s staticFindings) FindingsFor(address string) []finding.Finding { return s[address] }

func mustFinding(t *testing.T, kind finding.Kind, target string, payload map[string]string) finding.Finding {
	t.Helper()
	f, err := finding.New(kind, "test", target, payload, 0.9)
	require.NoError(t, err)
	f.ID = finding.NewID()
	return f
}

func netService(t *testing.T, target, port, name, version string) finding.Finding {
	return mustFinding(t, finding.KindNetworkService, target, map[string]string{
		finding.KeyPort: port, finding.KeyService: name, finding.KeyVersion: version,
	})
}

type harness struct {
	bus      *recordingBus
	vault    *vault.Vault
	cve      *fakeCVE
	analyzer *fakeAnalyzer
	reactor  *Reactor
}

func newHarness(findings Findings) *harness {
	h := &harness{
		bus:      &recordingBus{},
		vault:    vault.New(),
		cve:      &fakeCVE{},
		analyzer: &fakeAnalyzer{},
	}
	h.reactor = NewReactor(ReactorConfig{
		Coordinator: New(h.bus, nil),
		Vault:       h.vault,
		Findings:    findings,
		CVE:         h.cve,
		Analyzer:    h.analyzer,
		Rules:       DefaultRules(),
	})
	return h
}

func (h *harness) emit(t *testing.T, f finding.Finding) {
	t.Helper()
	ev := &events.FindingRecordedEvent{
		BaseEvent: events.NewBase(events.EventTypeFindingRecorded, f.Target),
		Finding:   f,
	}
	require.NoError(t, h.reactor.OnEvent(context.Background(), ev))
}

func TestReactor_WebPorts(t *testing.T) {
	h := newHarness(nil)
	h.emit(t, netService(t, "10.0.0.5", "80", "Apache", ""))
	h.emit(t, netService(t, "10.0.0.5", "8443", "nginx", ""))
	h.emit(t, netService(t, "10.0.0.5", "25", "smtp", ""))

	web := h.bus.ofType(events.EventTypeWebTest)
	require.Len(t, web, 2)
	assert.Equal(t, "http://10.0.0.5", web[0].(*events.WebTestEvent).URL)
	assert.Equal(t, "https://10.0.0.5:8443", web[1].(*events.WebTestEvent).URL)
}

func TestReactor_SSHUsesVaultCredentials(t *testing.T) {
	h := newHarness(nil)
	h.vault.Add(context.Background(), finding.Credential{Username: "root", Password: "toor", Service: "ssh"})
	h.vault.Add(context.Background(), finding.Credential{Username: "sa", Password: "", Service: "MySQL"})

	h.emit(t, netService(t, "h", "22", "OpenSSH", ""))

	tests := h.bus.ofType(events.EventTypeCredentialTest)
	require.Len(t, tests, 1)
	ev := tests[0].(*events.CredentialTestEvent)
	assert.Equal(t, 22, ev.Port)
	assert.Equal(t, "SSH", ev.Service)
	require.Len(t, ev.Credentials, 1)
	assert.Equal(t, "root", ev.Credentials[0].Username)
}

func TestReactor_DatabasePorts(t *testing.T) {
	h := newHarness(nil)
	for _, p := range []string{"3306", "5432", "1433", "1521", "27017"} {
		h.emit(t, netService(t, "h", p, "db", ""))
	}
	assert.Len(t, h.bus.ofType(events.EventTypeDatabaseTest), 4)
}

func TestReactor_ServiceVersionRunsCVECorrelation(t *testing.T) {
	h := newHarness(nil)
	h.emit(t, netService(t, "10.0.0.5", "80", "Apache", "2.4.20"))
	h.emit(t, netService(t, "10.0.0.5", "22", "SSH", ""))

	require.Len(t, h.cve.calls, 1, "only findings with service and version are correlated")
	assert.Equal(t, cveCall{"Apache", "2.4.20", "10.0.0.5", 80}, h.cve.calls[0])
}

func TestReactor_CredentialLeak(t *testing.T) {
	target := "10.0.0.9"
	findings := staticFindings{target: {
		netService(t, target, "21", "vsftpd", ""),
		netService(t, target, "22", "OpenSSH", ""),
		netService(t, target, "3306", "MySQL", ""),
		netService(t, target, "8080", "http", ""),
	}}
	h := newHarness(findings)

	leak := mustFinding(t, finding.KindCredentialLeak, target, map[string]string{
		finding.KeyUsername: "admin", finding.KeyPassword: "hunter2",
		finding.KeyService: "FTP", finding.KeyPort: "21",
	})
	h.emit(t, leak)

	assert.Equal(t, 1, h.vault.Len())
	tests := h.bus.ofType(events.EventTypeCredentialTest)
	require.Len(t, tests, 2)
	assert.Equal(t, "SSH", tests[0].(*events.CredentialTestEvent).Service)
	assert.Equal(t, "MySQL", tests[1].(*events.CredentialTestEvent).Service)
	assert.Empty(t, h.bus.ofType(events.EventTypePrivilegeEscalation))

	// A replay must neither re-add nor re-test.
	h.emit(t, leak)
	assert.Equal(t, 1, h.vault.Len())
	assert.Len(t, h.bus.ofType(events.EventTypeCredentialTest), 2)
}

func TestReactor_VerifiedLeakSuggestsPrivilegeEscalation(t *testing.T) {
	h := newHarness(staticFindings{})
	h.emit(t, mustFinding(t, finding.KindCredentialLeak, "h", map[string]string{
		finding.KeyUsername: "root", finding.KeyPassword: "toor",
		finding.KeyService: "SSH", finding.KeyPort: "22", finding.KeyVerified: "true",
	}))

	assert.Len(t, h.bus.ofType(events.EventTypePrivilegeEscalation), 1)
}

func TestReactor_DeviceCorrelation(t *testing.T) {
	h := newHarness(nil)
	h.emit(t, mustFinding(t, finding.KindDeviceCorrelation, "10.0.0.1", map[string]string{
		finding.KeySecondary: "10.0.0.2",
	}))

	got := h.bus.ofType(events.EventTypeCoordinatedAttack)
	require.Len(t, got, 1)
	assert.Equal(t, "10.0.0.2", got[0].(*events.CoordinatedAttackEvent).Secondary)
}

func TestReactor_AnalyzerRunsForObservations(t *testing.T) {
	h := newHarness(nil)
	h.emit(t, netService(t, "h", "25", "smtp", ""))
	h.emit(t, mustFinding(t, finding.KindWebVulnerability, "h", map[string]string{finding.KeyURL: "http://h/login"}))
	h.emit(t, mustFinding(t, finding.KindBluetoothDevice, "h", map[string]string{finding.KeyDeviceID: "AA:BB"}))
	h.emit(t, mustFinding(t, finding.KindVulnerability, "h", map[string]string{finding.KeyCVE: "CVE-1"}))
	h.emit(t, mustFinding(t, finding.KindAttackOpportunity, "h", map[string]string{finding.KeyPattern: "p"}))

	assert.Equal(t, int32(3), h.analyzer.calls.Load())
}

func TestReactor_IgnoresOtherEvents(t *testing.T) {
	h := newHarness(nil)
	err := h.reactor.OnEvent(context.Background(), &events.DatabaseTestEvent{
		BaseEvent: events.NewBase(events.EventTypeDatabaseTest, "h"),
	})
	assert.NoError(t, err)
	assert.Empty(t, h.bus.events)
}

type countingScheduler struct{ n atomic.Int32 }

func (s *countingScheduler) Go(task func()) bool {
	s.n.Add(1)
	task()
	return true
}

func TestReactor_UsesScheduler(t *testing.T) {
	sched := &countingScheduler{}
	c := &fakeCVE{}
	r := NewReactor(ReactorConfig{CVE: c, Scheduler: sched, Rules: DefaultRules()})
	r.React(context.Background(), netService(t, "h", "443", "nginx", "1.18"))

	assert.Equal(t, int32(1), sched.n.Load())
	assert.Len(t, c.calls, 1)
}
