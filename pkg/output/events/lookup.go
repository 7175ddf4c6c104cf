package events

// LookupFailedEvent reports an absorbed external lookup error.
type LookupFailedEvent struct {
	BaseEvent
	Collaborator string `json:"collaborator"` // cve or exploit
	Query        string `json:"query"`
	Message      string `json:"message"`
}
