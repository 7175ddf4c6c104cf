package events

import "github.com/waftester/intelcore/pkg/finding"

// WebTestEvent asks web-testing adapters to test URL.
type WebTestEvent struct {
	BaseEvent
	URL     string `json:"url"`
	Port    int    `json:"port"`
	Service string `json:"service,omitempty"`
	Origin  string `json:"origin_finding,omitempty"`
}

// CredentialTestEvent carries candidate credentials for one service.
type CredentialTestEvent struct {
	BaseEvent
	Port        int                  `json:"port"`
	Service     string               `json:"service"`
	Credentials []finding.Credential `json:"credentials"`
}

// DatabaseTestEvent asks database adapters to test a database service.
type DatabaseTestEvent struct {
	BaseEvent
	Port int `json:"port"`
}

// ExploitSuggestionEvent suggests exploiting CVEID on the target service.
// ExploitID is empty when no specific exploit was selected.
type ExploitSuggestionEvent struct {
	BaseEvent
	CVEID     string `json:"cve_id"`
	Port      int    `json:"port"`
	ExploitID string `json:"exploit_id,omitempty"`
}

// CoordinatedAttackEvent suggests attacking the primary and secondary
// targets together.
type CoordinatedAttackEvent struct {
	BaseEvent
	Secondary string `json:"secondary_target"`
}

// PrivilegeEscalationEvent suggests privilege escalation on the target.
type PrivilegeEscalationEvent struct {
	BaseEvent
}
