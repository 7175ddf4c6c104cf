// Package coordinator turns findings into follow-on actions for other
// modules.
//
// Every trigger is a one-way notification published as a typed event on
// the bus. Triggers never block on the receiving adapter and are never
// retried; adapters report their results back as new findings.
package coordinator

import (
	"context"
	"log/slog"

	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/output/dispatcher"
	"github.com/waftester/intelcore/pkg/output/events"
)

// Coordinator publishes trigger events.
type Coordinator struct {
	bus    dispatcher.Publisher
	logger *slog.Logger
}

// New creates a Coordinator publishing on bus.
func New(bus dispatcher.Publisher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{bus: bus, logger: logger}
}

func (c *Coordinator) publish(ctx context.Context, e events.Event) {
	c.logger.Debug("coordinator: trigger",
		slog.String("type", string(e.EventType())),
		slog.String("target", e.Target()))
	if c.bus == nil {
		return
	}
	if err := c.bus.Dispatch(ctx, e); err != nil {
		c.logger.Warn("coordinator: publish failed",
			slog.String("type", string(e.EventType())), slog.Any("error", err))
	}
}

// TriggerWebTesting asks web adapters to test url. origin is the ID of
// the finding that caused the trigger, if any.
func (c *Coordinator) TriggerWebTesting(ctx context.Context, target, url string, port int, service, origin string) {
	c.publish(ctx, &events.WebTestEvent{
		BaseEvent: events.NewBase(events.EventTypeWebTest, target),
		URL:       url,
		Port:      port,
		Service:   service,
		Origin:    origin,
	})
}

// TriggerCredentialTesting asks credential testers to try creds against
// service on target:port.
func (c *Coordinator) TriggerCredentialTesting(ctx context.Context, target string, port int, service string, creds []finding.Credential) {
	c.publish(ctx, &events.CredentialTestEvent{
		BaseEvent:   events.NewBase(events.EventTypeCredentialTest, target),
		Port:        port,
		Service:     service,
		Credentials: append([]finding.Credential(nil), creds...),
	})
}

// TriggerDatabaseTesting asks database adapters to test target:port.
func (c *Coordinator) TriggerDatabaseTesting(ctx context.Context, target string, port int) {
	c.publish(ctx, &events.DatabaseTestEvent{
		BaseEvent: events.NewBase(events.EventTypeDatabaseTest, target),
		Port:      port,
	})
}

// SuggestExploit proposes running exploitID (may be empty) for cveID.
func (c *Coordinator) SuggestExploit(ctx context.Context, cveID, target string, port int, exploitID string) {
	c.publish(ctx, &events.ExploitSuggestionEvent{
		BaseEvent: events.NewBase(events.EventTypeExploitSuggestion, target),
		CVEID:     cveID,
		Port:      port,
		ExploitID: exploitID,
	})
}

// SuggestCoordinatedAttack proposes attacking primary and secondary
// together.
func (c *Coordinator) SuggestCoordinatedAttack(ctx context.Context, primary, secondary string) {
	c.publish(ctx, &events.CoordinatedAttackEvent{
		BaseEvent: events.NewBase(events.EventTypeCoordinatedAttack, primary),
		Secondary: secondary,
	})
}

// SuggestPrivilegeEscalation proposes privilege escalation on target.
func (c *Coordinator) SuggestPrivilegeEscalation(ctx context.Context, target string) {
	c.publish(ctx, &events.PrivilegeEscalationEvent{
		BaseEvent: events.NewBase(events.EventTypePrivilegeEscalation, target),
	})
}
