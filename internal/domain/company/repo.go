package company

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence port for companies and their
// employee rosters.
type Repository interface {
	Create(ctx context.Context, c *Company) error
	GetByID(ctx context.Context, id uuid.UUID) (*Company, error)
	List(ctx context.Context, limit, offset int) ([]*Company, int, error)

	// Update saves the company and, when employees is non-nil, syncs
	// the roster in the same transaction: rows with a known ID are
	// updated, new rows inserted, and absent rows deactivated.
	Update(ctx context.Context, c *Company, employees []*Employee) error

	Delete(ctx context.Context, id uuid.UUID) error
	ListEmployees(ctx context.Context, companyID uuid.UUID) ([]*Employee, error)
}
