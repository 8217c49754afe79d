package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence port for appointments plus the few
// cross-table lookups the booking flows need.
type Repository interface {
	// Create inserts the appointment after verifying every non-null
	// reference exists, all in one transaction. Returns
	// ErrInvalidReference for a missing reference and ErrSlotConflict
	// when the provider already holds that date and start time.
	Create(ctx context.Context, a *Appointment) error

	// GetByID fetches a bare row; ErrNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// GetJoined fetches a row with display names resolved.
	GetJoined(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Search lists appointments inside the scope, narrowed by filters,
	// with display names resolved. Returns the page and the total count.
	Search(ctx context.Context, scope Scope, f Filters, limit, offset int) ([]*Appointment, int, error)

	// Update persists the full row. Returns ErrSlotConflict when the
	// new (provider, date, start) triple is already taken and
	// ErrInvalidReference for a dangling reference.
	Update(ctx context.Context, a *Appointment) error

	// UpdateMany applies the patch to every requested row inside the
	// scope, in one transaction. Provider reassignment appends an audit
	// note. Returns the IDs actually updated; IDs outside the scope are
	// dropped silently.
	UpdateMany(ctx context.Context, scope Scope, ids []uuid.UUID, p Patch) ([]uuid.UUID, error)

	// DeleteMany hard-deletes the visible subset of ids in one
	// transaction and returns the IDs actually removed.
	DeleteMany(ctx context.Context, scope Scope, ids []uuid.UUID) ([]uuid.UUID, error)

	// CompanyIDForToken resolves a public link token to a company ID.
	// Tokens are tried as a stored public token, then as a
	// base64-encoded company ID, then as a raw company ID. ErrNotFound
	// when nothing matches.
	CompanyIDForToken(ctx context.Context, token string) (uuid.UUID, error)

	// EmployeeBelongsTo reports whether the employee is an active
	// member of the company.
	EmployeeBelongsTo(ctx context.Context, employeeID, companyID uuid.UUID) (bool, error)

	// OpenSlots lists a company's claimable appointments: unassigned,
	// not cancelled or completed, and not in the past.
	OpenSlots(ctx context.Context, companyID uuid.UUID) ([]*Appointment, error)
}
