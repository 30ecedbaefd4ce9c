package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// ErrListingNotFound signals that a payment event referenced no known
// listing. On the webhook path this is a warning, not a failure: the
// provider gets an acknowledgment either way.
var ErrListingNotFound = errors.New("listing not found")

// ValidationError reports malformed or missing registration input.
// No mutation has happened when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// LocationUnresolvedError reports that the geocoder returned no coordinate
// for the submitted address. The listing is never created in that case.
type LocationUnresolvedError struct {
	Address string
	Err     error
}

func (e *LocationUnresolvedError) Error() string {
	return fmt.Sprintf("location could not be resolved for %q", e.Address)
}

func (e *LocationUnresolvedError) Unwrap() error {
	return e.Err
}

// AlreadyActiveError rejects a re-registration while the existing listing
// still has a running trial or paid window.
type AlreadyActiveError struct {
	Status      string
	ActiveUntil time.Time
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("listing already active (%s) until %s", e.Status, e.ActiveUntil.UTC().Format(time.RFC3339))
}

// DependencyError wraps a failure of an external collaborator (geocoder,
// checkout gateway, media host). Synchronous callers surface it as a
// server-side failure.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}
