package company

import (
	"time"

	"github.com/google/uuid"
)

// Company maps to the companies table. PublicToken feeds the anonymous
// booking links.
type Company struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Email       *string   `db:"email" json:"email,omitempty"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	LogoURL     *string   `db:"logo_url" json:"logo_url,omitempty"`
	PublicToken string    `db:"public_token" json:"public_token"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Employee maps to the company_employees table.
type Employee struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CompanyID  uuid.UUID `db:"company_id" json:"company_id"`
	Name       string    `db:"name" json:"name"`
	Email      *string   `db:"email" json:"email,omitempty"`
	Department *string   `db:"department" json:"department,omitempty"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
