package attendance

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("visitor not found")
	ErrNoActiveEntry    = errors.New("no active entry found for today")
	ErrAlreadyCheckedIn = errors.New("visitor is already checked in")
	ErrAlreadyDeparted  = errors.New("latest entry already has a departure")
	ErrDataIntegrity    = errors.New("attendance data integrity violation")
	ErrInvalidRequest   = errors.New("invalid attendance request")

	// ErrNegativeDuration is returned together with a persisted departure.
	ErrNegativeDuration = fmt.Errorf("departure precedes arrival: %w", ErrDataIntegrity)

	// ErrRecordNotFound is the storage signal for a missing (visitor, date) record.
	ErrRecordNotFound = errors.New("daily record not found")
	// ErrVersionConflict means the record changed since it was read.
	ErrVersionConflict = errors.New("daily record version conflict")
	// ErrConcurrentUpdate is returned once version conflicts exhaust retries.
	ErrConcurrentUpdate = errors.New("daily record is being updated concurrently")
)

// rejectionReason labels business-rule failures for metrics.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNoActiveEntry):
		return "no_active_entry"
	case errors.Is(err, ErrAlreadyCheckedIn):
		return "already_checked_in"
	case errors.Is(err, ErrAlreadyDeparted):
		return "already_departed"
	case errors.Is(err, ErrDataIntegrity):
		return "data_integrity"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return ""
	}
}
