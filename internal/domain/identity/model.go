package identity

import (
	"time"

	"github.com/google/uuid"
)

// User maps to the users table. Role mirrors the JWT role claim;
// company and provider bindings scope what the user can see.
type User struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Email      string     `db:"email" json:"email"`
	Role       string     `db:"role" json:"role"`
	CompanyID  *uuid.UUID `db:"company_id" json:"company_id,omitempty"`
	ProviderID *uuid.UUID `db:"provider_id" json:"provider_id,omitempty"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}
