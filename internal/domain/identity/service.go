package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/qualycorpore/api/internal/platform/auth"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrValidation     = errors.New("validation failed")
	ErrDuplicateEmail = errors.New("email already registered")
)

var validRoles = map[string]bool{
	auth.RoleAdmin:    true,
	auth.RoleCompany:  true,
	auth.RoleProvider: true,
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func validate(u *User) error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !strings.Contains(u.Email, "@") {
		return fmt.Errorf("%w: email is invalid", ErrValidation)
	}
	if !validRoles[u.Role] {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, u.Role)
	}
	switch u.Role {
	case auth.RoleCompany:
		if u.CompanyID == nil {
			return fmt.Errorf("%w: company users need a company binding", ErrValidation)
		}
	case auth.RoleProvider:
		if u.ProviderID == nil {
			return fmt.Errorf("%w: provider users need a provider binding", ErrValidation)
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, u *User) error {
	if err := validate(u); err != nil {
		return err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.IsActive = true
	return s.repo.Create(ctx, u)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) Update(ctx context.Context, u *User) (*User, error) {
	if err := validate(u); err != nil {
		return nil, err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, u.ID)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
