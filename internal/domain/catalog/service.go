package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("service not found")
	ErrValidation = errors.New("validation failed")
)

type Catalog struct {
	repo Repository
}

func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo}
}

func validate(s *Service) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if s.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if s.PriceCents < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}
	return nil
}

func (c *Catalog) Create(ctx context.Context, s *Service) error {
	if err := validate(s); err != nil {
		return err
	}
	s.IsActive = true
	return c.repo.Create(ctx, s)
}

func (c *Catalog) Get(ctx context.Context, id uuid.UUID) (*Service, error) {
	return c.repo.GetByID(ctx, id)
}

func (c *Catalog) List(ctx context.Context, limit, offset int) ([]*Service, int, error) {
	return c.repo.List(ctx, limit, offset)
}

func (c *Catalog) Update(ctx context.Context, s *Service) (*Service, error) {
	if err := validate(s); err != nil {
		return nil, err
	}
	if err := c.repo.Update(ctx, s); err != nil {
		return nil, err
	}
	return c.repo.GetByID(ctx, s.ID)
}

func (c *Catalog) Delete(ctx context.Context, id uuid.UUID) error {
	return c.repo.Delete(ctx, id)
}
