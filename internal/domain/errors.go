package domain

import "errors"

var (
	// ErrNotFound is returned when a referenced job does not exist.
	ErrNotFound = errors.New("job not found")

	// ErrConflict is returned when a conditional update lost a race.
	// It is expected contention, recovered internally and never
	// surfaced to end users.
	ErrConflict = errors.New("job update conflict")

	// ErrValidation is returned for malformed creation payloads,
	// rejected before a job record exists.
	ErrValidation = errors.New("invalid request")

	// ErrInvalidPayload is returned when a stored payload cannot be
	// decoded by the executor.
	ErrInvalidPayload = errors.New("invalid job payload")
)

// ProviderError wraps failures from an external collaborator (render
// provider, drafting model, artifact download). It always ends up as a
// persisted failed job, never silently swallowed.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err with the collaborator name.
func NewProviderError(provider string, err error) error {
	return &ProviderError{Provider: provider, Err: err}
}
