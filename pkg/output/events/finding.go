package events

import "github.com/waftester/intelcore/pkg/finding"

// FindingRecordedEvent is emitted once per committed finding, after the
// store lock has been released.
type FindingRecordedEvent struct {
	BaseEvent
	Finding finding.Finding `json:"finding"`
}

// CorrelationFoundEvent is emitted when an intelligence pattern matches and
// its derived finding has been recorded.
type CorrelationFoundEvent struct {
	BaseEvent
	Pattern    string          `json:"pattern"`
	Secondary  string          `json:"secondary_target,omitempty"`
	Confidence float64         `json:"confidence"`
	Finding    finding.Finding `json:"finding"`
}
