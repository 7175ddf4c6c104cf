package finding

import "time"

// Credential is a discovered username/password pair and the service it
// applies to. Duplicate pairs across services are expected; they are the
// signal used for reuse detection.
type Credential struct {
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	Service      string    `json:"service"`
	Port         int       `json:"port,omitempty"`
	Source       string    `json:"source"`
	Confidence   float64   `json:"confidence"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Pair is the (username, password) identity of a credential.
type Pair struct {
	Username string
	Password string
}

// Pair returns the reuse-detection key of c.
func (c Credential) Pair() Pair {
	return Pair{Username: c.Username, Password: c.Password}
}
