package profile

import (
	"errors"
	"fmt"
)

// ErrIdentityMissing is returned (wrapped in a CacheBuildFailure) when the
// operator has no identity record. A profile cannot be built without one.
var ErrIdentityMissing = errors.New("operator identity not found")

// PartialDataError reports that one record facet could not be fetched. The
// build continues without that facet; the error is logged and counted but
// never returned to callers.
type PartialDataError struct {
	Facet string
	Cause error
}

func (e *PartialDataError) Error() string {
	return fmt.Sprintf("partial data: %s unavailable: %v", e.Facet, e.Cause)
}

func (e *PartialDataError) Unwrap() error { return e.Cause }

// CacheBuildFailure is returned to every caller waiting on a failed build.
// The previously cached profile, if any, is left untouched.
type CacheBuildFailure struct {
	OperatorID string
	Scope      string
	Cause      error
}

func (e *CacheBuildFailure) Error() string {
	return fmt.Sprintf("profile build failed for operator %s (scope %q): %v", e.OperatorID, e.Scope, e.Cause)
}

func (e *CacheBuildFailure) Unwrap() error { return e.Cause }

// IsCacheBuildFailure reports whether err is or wraps a CacheBuildFailure.
func IsCacheBuildFailure(err error) bool {
	var cbf *CacheBuildFailure
	return errors.As(err, &cbf)
}
