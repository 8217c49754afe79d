package appointment

import (
	"github.com/google/uuid"

	"github.com/qualycorpore/api/internal/platform/auth"
)

// Scope restricts which appointments a caller may see or touch. A nil
// field means unrestricted on that dimension; the zero Scope sees
// everything.
type Scope struct {
	CompanyID  *uuid.UUID
	ProviderID *uuid.UUID
}

// ScopeFor derives the visibility scope from the authenticated
// principal. Admins see all rows, company users only their company's,
// providers only their own. A principal whose role lacks the matching
// binding gets ErrForbidden rather than an unscoped view.
func ScopeFor(p *auth.Principal) (Scope, error) {
	if p == nil {
		return Scope{}, ErrForbidden
	}
	switch p.Role {
	case auth.RoleAdmin:
		return Scope{}, nil
	case auth.RoleCompany:
		if p.CompanyID == nil {
			return Scope{}, ErrForbidden
		}
		return Scope{CompanyID: p.CompanyID}, nil
	case auth.RoleProvider:
		if p.ProviderID == nil {
			return Scope{}, ErrForbidden
		}
		return Scope{ProviderID: p.ProviderID}, nil
	}
	return Scope{}, ErrForbidden
}

// Allows reports whether an appointment falls inside the scope.
func (s Scope) Allows(a *Appointment) bool {
	if s.CompanyID != nil {
		if a.CompanyID == nil || *a.CompanyID != *s.CompanyID {
			return false
		}
	}
	if s.ProviderID != nil {
		if a.ProviderID == nil || *a.ProviderID != *s.ProviderID {
			return false
		}
	}
	return true
}
