package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/output/events"
)

// recordingBus captures published events.
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Dispatch(_ context.Context, e events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) ofType(t events.EventType) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

func TestCoordinator_Triggers(t *testing.T) {
	bus := &recordingBus{}
	c := New(bus, nil)
	ctx := context.Background()

	c.TriggerWebTesting(ctx, "h", "http://h", 80, "nginx", "f1")
	c.TriggerCredentialTesting(ctx, "h", 22, "SSH", []finding.Credential{{Username: "root"}})
	c.TriggerDatabaseTesting(ctx, "h", 5432)
	c.SuggestExploit(ctx, "CVE-1", "h", 80, "EDB-1")
	c.SuggestCoordinatedAttack(ctx, "h", "h2")
	c.SuggestPrivilegeEscalation(ctx, "h")

	require.Len(t, bus.events, 6)
	for i, want := range events.TriggerTypes() {
		assert.Equal(t, want, bus.events[i].EventType())
		assert.Equal(t, "h", bus.events[i].Target())
	}

	web := bus.events[0].(*events.WebTestEvent)
	assert.Equal(t, "http://h", web.URL)
	assert.Equal(t, "f1", web.Origin)
	assert.Equal(t, "h2", bus.events[4].(*events.CoordinatedAttackEvent).Secondary)
	assert.Equal(t, "EDB-1", bus.events[3].(*events.ExploitSuggestionEvent).ExploitID)
}

func TestCoordinator_CredentialSliceCopied(t *testing.T) {
	bus := &recordingBus{}
	c := New(bus, nil)
	creds := []finding.Credential{{Username: "root"}}
	c.TriggerCredentialTesting(context.Background(), "h", 22, "SSH", creds)
	creds[0].Username = "mutated"

	ev := bus.events[0].(*events.CredentialTestEvent)
	assert.Equal(t, "root", ev.Credentials[0].Username)
}

func TestCoordinator_NilBus(t *testing.T) {
	c := New(nil, nil)
	assert.NotPanics(t, func() {
		c.TriggerDatabaseTesting(context.Background(), "h", 3306)
	})
}
