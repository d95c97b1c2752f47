// Package services defines the business logic for task submission and the
// staff workflow engine. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer; the
// handler layer translates them into HTTP statuses (not-found values map to
// 404, conflicts and validation failures to 400).
package services

import "errors"

var (
	// ErrTaskNotFound indicates the task does not exist, or exists but is
	// bound to a different kind than the invoked action. The two cases are
	// deliberately indistinguishable so an id probe cannot reveal which
	// kinds exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskProcessed is the idempotency guard: the task has already been
	// approved or rejected and no further mutation is permitted.
	ErrTaskProcessed = errors.New("request has already been processed")

	// ErrCitizenNotFound indicates the authenticated principal has no
	// citizen record.
	ErrCitizenNotFound = errors.New("citizen not found")

	// ErrAddressNotFound indicates the payload references a missing address.
	ErrAddressNotFound = errors.New("address not found")

	// ErrVisaNotFound indicates the payload references a visa that does not
	// exist or does not belong to the requester's foreign passport.
	ErrVisaNotFound = errors.New("visa not found")
)

// ConflictError is a business-rule refusal with a human-readable reason:
// duplicate pending submissions, missing prerequisite documents, documents
// that already exist. Handlers return it as a 400 with the detail verbatim.
type ConflictError struct {
	Detail string
}

// Error implements the error interface.
func (e *ConflictError) Error() string { return e.Detail }

// conflictf builds a ConflictError.
func conflict(detail string) error { return &ConflictError{Detail: detail} }

// AsConflict unwraps err into a ConflictError if it is one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
