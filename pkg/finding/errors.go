package finding

import (
	"errors"
	"fmt"
)

// Sentinel errors for ingestion failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrUnknownKind indicates the finding kind is not one of the
	// enumerated kinds.
	ErrUnknownKind = errors.New("finding: unknown kind")

	// ErrMalformedPayload indicates a key required by the finding kind
	// is missing or unparsable.
	ErrMalformedPayload = errors.New("finding: malformed payload")

	// ErrConfidenceRange indicates a confidence outside [0.0, 1.0].
	ErrConfidenceRange = errors.New("finding: confidence out of range")

	// ErrMissingTarget indicates the finding does not reference a target
	// address.
	ErrMissingTarget = errors.New("finding: missing target address")
)

// ValidationError describes why a finding was rejected at the ingestion
// boundary. It wraps one of the sentinel errors above.
type ValidationError struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v (kind %q)", e.Err, e.Kind)
	}
	return fmt.Sprintf("%v: field %q (kind %q)", e.Err, e.Field, e.Kind)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(kind Kind, field string, err error) error {
	return &ValidationError{Kind: kind, Field: field, Err: err}
}
