package finding

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Payload keys understood by the engine. Adapters may send any other keys;
// they are kept verbatim for display.
const (
	KeyPort         = "port"
	KeyService      = "service"
	KeyVersion      = "version"
	KeySeverity     = "severity"
	KeyURL          = "url"
	KeyParameter    = "parameter"
	KeyDeviceID     = "device_id"
	KeyDeviceName   = "device_name"
	KeyCVE          = "cve_id"
	KeyExploitID    = "exploit_id"
	KeyPattern      = "pattern"
	KeyDescription  = "description"
	KeySecondary    = "secondary_target"
	KeyUsername     = "username"
	KeyPassword     = "password"
	KeyVerified     = "verified"
	KeyHostname     = "hostname"
	KeyLocation     = "location"
	KeyEncrypted    = "encrypted"
	KeyBaseScore    = "base_score"
	KeyExploitCount = "exploit_count"
)

// Finding is an atomic, immutable observation about one target.
// Corrections are modeled as new findings; nothing mutates a recorded one.
type Finding struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Source     string            `json:"source"` // Originating module
	Target     string            `json:"target"` // Network address
	Payload    map[string]string `json:"payload,omitempty"`
	Detail     Detail            `json:"-"`
	Timestamp  time.Time         `json:"timestamp"`
	Confidence float64           `json:"confidence"` // 0.0-1.0
}

// New builds a finding from adapter input and decodes its payload.
// The payload is copied; later changes by the caller have no effect.
func New(kind Kind, source, target string, payload map[string]string, confidence float64) (Finding, error) {
	if target == "" {
		return Finding{}, invalid(kind, "", ErrMissingTarget)
	}
	if !(confidence >= 0 && confidence <= 1) {
		return Finding{}, invalid(kind, "confidence", ErrConfidenceRange)
	}
	detail, err := Decode(kind, payload)
	if err != nil {
		return Finding{}, err
	}
	return Finding{
		Kind:       kind,
		Source:     source,
		Target:     target,
		Payload:    maps.Clone(payload),
		Detail:     detail,
		Confidence: confidence,
	}, nil
}

// NewID returns a fresh finding identifier.
func NewID() string {
	return uuid.NewString()
}

// Clone returns a copy whose payload map is not shared with f.
func (f Finding) Clone() Finding {
	out := f
	out.Payload = maps.Clone(f.Payload)
	return out
}

// Severity returns the normalized severity payload, or "" if absent.
func (f Finding) Severity() Severity {
	if f.Payload == nil {
		return ""
	}
	return ParseSeverity(f.Payload[KeySeverity])
}

// Get returns a payload value, or "" when absent.
func (f Finding) Get(key string) string {
	if f.Payload == nil {
		return ""
	}
	return f.Payload[key]
}
