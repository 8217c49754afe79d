package appointment

import "errors"

var (
	// ErrValidation covers malformed or missing input fields.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidReference means a referenced entity does not exist.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrSlotConflict means the provider already has an appointment at
	// that date and start time.
	ErrSlotConflict = errors.New("time slot is already taken for this provider")
	// ErrForbidden means the caller's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means the appointment does not exist or is outside the
	// caller's visibility scope.
	ErrNotFound = errors.New("appointment not found")
	// ErrStatusTransition means the requested status change is not
	// allowed from the current status.
	ErrStatusTransition = errors.New("invalid status transition")
)
