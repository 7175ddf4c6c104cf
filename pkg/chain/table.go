package chain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEstimate is returned for probabilities outside (0,1] or
// non-positive durations.
var ErrInvalidEstimate = errors.New("chain: invalid action estimate")

// ActionType identifies an action in a chain.
type ActionType string

const (
	ActionNetworkScan         ActionType = "network_scan"
	ActionBluetoothDiscovery  ActionType = "bluetooth_discovery"
	ActionWebEnumeration      ActionType = "web_enumeration"
	ActionCVECorrelation      ActionType = "cve_correlation"
	ActionWebScan             ActionType = "web_vulnerability_scan"
	ActionBluetoothVulnTest   ActionType = "bluetooth_vulnerability_test"
	ActionNetworkExploit      ActionType = "network_exploit"
	ActionWebExploit          ActionType = "web_exploit"
	ActionBluetoothExploit    ActionType = "bluetooth_exploit"
	ActionPrivilegeEscalation ActionType = "privilege_escalation"
	ActionLateralMovement     ActionType = "lateral_movement"
	ActionExfiltration        ActionType = "data_exfiltration"
	ActionPersistence         ActionType = "persistence"
)

// ActionTypes returns every action type in chain order.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionNetworkScan, ActionBluetoothDiscovery, ActionWebEnumeration,
		ActionCVECorrelation, ActionWebScan, ActionBluetoothVulnTest,
		ActionNetworkExploit, ActionWebExploit, ActionBluetoothExploit,
		ActionPrivilegeEscalation, ActionLateralMovement, ActionExfiltration, ActionPersistence,
	}
}

// Estimate is the static duration and success probability of an action.
type Estimate struct {
	Duration    time.Duration
	Probability float64
}

// Validate checks the estimate bounds.
func (e Estimate) Validate() error {
	if !(e.Probability > 0 && e.Probability <= 1) {
		return fmt.Errorf("%w: probability %v not in (0,1]", ErrInvalidEstimate, e.Probability)
	}
	if e.Duration <= 0 {
		return fmt.Errorf("%w: duration %v must be positive", ErrInvalidEstimate, e.Duration)
	}
	return nil
}

// Table maps action types to their estimates.
type Table map[ActionType]Estimate

// DefaultTable returns the built-in point estimates.
func DefaultTable() Table {
	return Table{
		// Discovery
		ActionNetworkScan:        {5 * time.Minute, 0.95},
		ActionBluetoothDiscovery: {2 * time.Minute, 0.95},
		ActionWebEnumeration:     {3 * time.Minute, 0.95},

		// Vulnerability scanning
		ActionCVECorrelation:    {1 * time.Minute, 0.85},
		ActionWebScan:           {10 * time.Minute, 0.85},
		ActionBluetoothVulnTest: {5 * time.Minute, 0.85},

		// Exploitation
		ActionNetworkExploit:   {15 * time.Minute, 0.60},
		ActionWebExploit:       {10 * time.Minute, 0.60},
		ActionBluetoothExploit: {10 * time.Minute, 0.60},

		// Post-exploitation
		ActionPrivilegeEscalation: {20 * time.Minute, 0.40},
		ActionLateralMovement:     {30 * time.Minute, 0.40},
		ActionExfiltration:        {15 * time.Minute, 0.70},
		ActionPersistence:         {10 * time.Minute, 0.70},
	}
}

// Merge returns a copy of t with overrides applied.
func (t Table) Merge(overrides Table) Table {
	out := make(Table, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Validate checks every entry and that each action type has one.
func (t Table) Validate() error {
	var errs []error
	for _, a := range ActionTypes() {
		e, ok := t[a]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: no estimate for %s", ErrInvalidEstimate, a))
			continue
		}
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a, err))
		}
	}
	return errors.Join(errs...)
}
