package chain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waftester/intelcore/pkg/finding"
)

func mk(t *testing.T, kind finding.Kind, payload map[string]string) finding.Finding {
	t.Helper()
	f, err := finding.New(kind, "test", "T", payload, 1)
	require.NoError(t, err)
	f.ID = finding.NewID()
	return f
}

func sampleFindings(t *testing.T) []finding.Finding {
	return []finding.Finding{
		mk(t, finding.KindNetworkService, map[string]string{finding.KeyPort: "22", finding.KeyService: "ssh"}),
		mk(t, finding.KindWebVulnerability, map[string]string{finding.KeyURL: "http://T/login"}),
		mk(t, finding.KindBluetoothDevice, map[string]string{finding.KeyDeviceID: "AA:BB"}),
		mk(t, finding.KindVulnerability, map[string]string{finding.KeyCVE: "CVE-1"}),
	}
}

func TestBuild_PhaseOrder(t *testing.T) {
	c := Build("T", sampleFindings(t), DefaultTable())
	require.Len(t, c.Phases, 4)
	for i, want := range Phases() {
		assert.Equal(t, want, c.Phases[i].Type)
	}
	assert.Len(t, c.Phases[0].Actions, 3)
	assert.Len(t, c.Phases[1].Actions, 3)
	assert.Len(t, c.Phases[3].Actions, 4)
}

func TestBuild_ExploitationMapping(t *testing.T) {
	c := Build("T", sampleFindings(t), DefaultTable())
	exp := c.Phases[2].Actions
	require.Len(t, exp, 3, "vulnerability findings do not map to exploit actions")

	assert.Equal(t, ActionNetworkExploit, exp[0].Type)
	assert.Equal(t, "22", exp[0].Parameters[finding.KeyPort])
	assert.Equal(t, "ssh", exp[0].Parameters[finding.KeyService])
	assert.Equal(t, ActionWebExploit, exp[1].Type)
	assert.Equal(t, "http://T/login", exp[1].Parameters[finding.KeyURL])
	assert.Equal(t, ActionBluetoothExploit, exp[2].Type)
	assert.Equal(t, "AA:BB", exp[2].Parameters[finding.KeyDeviceID])
}

func TestBuild_ProbabilityIsExactProduct(t *testing.T) {
	table := DefaultTable()
	for _, findings := range [][]finding.Finding{nil, sampleFindings(t)} {
		c := Build("T", findings, table)

		want := 1.0
		var total time.Duration
		for _, a := range c.Actions() {
			assert.Equal(t, table[a.Type].Probability, a.Probability)
			want *= table[a.Type].Probability
			total += table[a.Type].Duration
		}
		assert.Equal(t, want, c.SuccessProbability)
		assert.Greater(t, c.SuccessProbability, 0.0)
		assert.LessOrEqual(t, c.SuccessProbability, 1.0)
		assert.Equal(t, total, c.TotalTime)
		assert.InDelta(t, total.Seconds(), c.TotalSeconds, 1e-9)
	}
}

func TestBuild_NoFindingsMatchesCannedProduct(t *testing.T) {
	c := Build("T", nil, DefaultTable())
	want := 0.95 * 0.95 * 0.95 * 0.85 * 0.85 * 0.85 * 0.40 * 0.40 * 0.70 * 0.70
	assert.InDelta(t, want, c.SuccessProbability, 1e-12)
	assert.Empty(t, c.Phases[2].Actions)
	assert.NotNil(t, c.Phases[2].Actions)
}

func TestBuild_UnderflowStaysPositive(t *testing.T) {
	var fs []finding.Finding
	for i := 0; i < 2000; i++ {
		fs = append(fs, mk(t, finding.KindWebVulnerability, map[string]string{finding.KeyURL: "http://T/"}))
	}
	c := Build("T", fs, DefaultTable())
	assert.Greater(t, c.SuccessProbability, 0.0)
}

func TestBuild_UndecodableFindingSkipped(t *testing.T) {
	bad := finding.Finding{Kind: finding.KindNetworkService, Target: "T", Payload: map[string]string{}}
	c := Build("T", []finding.Finding{bad}, DefaultTable())
	assert.Empty(t, c.Phases[2].Actions)
}

func TestTable_Validate(t *testing.T) {
	require.NoError(t, DefaultTable().Validate())

	tests := []struct {
		name string
		e    Estimate
	}{
		{"zero probability", Estimate{time.Minute, 0}},
		{"probability above one", Estimate{time.Minute, 1.5}},
		{"NaN probability", Estimate{time.Minute, math.NaN()}},
		{"zero duration", Estimate{0, 0.5}},
		{"negative duration", Estimate{-time.Second, 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := DefaultTable().Merge(Table{ActionWebScan: tt.e})
			err := table.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidEstimate))
		})
	}

	missing := DefaultTable()
	delete(missing, ActionPersistence)
	assert.ErrorIs(t, missing.Validate(), ErrInvalidEstimate)
}

func TestTable_MergeDoesNotMutate(t *testing.T) {
	base := DefaultTable()
	merged := base.Merge(Table{ActionWebExploit: {time.Hour, 0.1}})
	assert.Equal(t, 0.60, base[ActionWebExploit].Probability)
	assert.Equal(t, 0.1, merged[ActionWebExploit].Probability)
}

type source map[string][]finding.Finding

func (s source) FindingsFor(address string) []finding.Finding { return s[address] }

func TestPlanner(t *testing.T) {
	src := source{"T": sampleFindings(t)}
	p, err := NewPlanner(src, nil)
	require.NoError(t, err)

	c := p.Plan("T")
	assert.Equal(t, "T", c.Target)
	assert.Len(t, c.Phases[2].Actions, 3)

	empty := p.Plan("unknown")
	assert.Empty(t, empty.Phases[2].Actions)

	_, err = NewPlanner(src, Table{})
	assert.ErrorIs(t, err, ErrInvalidEstimate)
}

func TestPlanner_CustomTable(t *testing.T) {
	table := DefaultTable().Merge(Table{ActionNetworkExploit: {time.Minute, 0.9}})
	p, err := NewPlanner(source{"T": sampleFindings(t)}, table)
	require.NoError(t, err)

	c := p.Plan("T")
	assert.Equal(t, 0.9, c.Phases[2].Actions[0].Probability)
	assert.Equal(t, time.Minute, c.Phases[2].Actions[0].Duration)
}
