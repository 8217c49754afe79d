package company

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/qualycorpore/api/internal/platform/auth"
)

var (
	ErrNotFound   = errors.New("company not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// newPublicToken mints the shareable booking-link token.
func newPublicToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func (s *Service) Create(ctx context.Context, c *Company) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if c.PublicToken == "" {
		c.PublicToken = newPublicToken()
	}
	c.IsActive = true
	return s.repo.Create(ctx, c)
}

// canAccess gates row-level reads and writes: admins reach every
// company, company users only their own.
func canAccess(p *auth.Principal, id uuid.UUID) error {
	if p == nil {
		return ErrForbidden
	}
	if p.Role == auth.RoleAdmin {
		return nil
	}
	if p.Role == auth.RoleCompany && p.CompanyID != nil && *p.CompanyID == id {
		return nil
	}
	return ErrNotFound
}

func (s *Service) Get(ctx context.Context, p *auth.Principal, id uuid.UUID) (*Company, error) {
	if err := canAccess(p, id); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Company, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Update saves the company and optionally syncs its employee roster in
// the same transaction. Non-admin callers cannot flip their own
// active flag or token.
func (s *Service) Update(ctx context.Context, p *auth.Principal, c *Company, employees []*Employee) (*Company, error) {
	if err := canAccess(p, c.ID); err != nil {
		return nil, err
	}
	current, err := s.repo.GetByID(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if p.Role != auth.RoleAdmin {
		c.IsActive = current.IsActive
		c.PublicToken = current.PublicToken
	} else if c.PublicToken == "" {
		c.PublicToken = current.PublicToken
	}
	for _, e := range employees {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("%w: employee name is required", ErrValidation)
		}
	}
	if err := s.repo.Update(ctx, c, employees); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, c.ID)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListEmployees(ctx context.Context, p *auth.Principal, companyID uuid.UUID) ([]*Employee, error) {
	if err := canAccess(p, companyID); err != nil {
		return nil, err
	}
	return s.repo.ListEmployees(ctx, companyID)
}
