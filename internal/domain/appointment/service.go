package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/qualycorpore/api/internal/platform/auth"
)

// Service carries the booking rules on top of the repository.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput is the canonical form of a new appointment. Handlers
// normalize the wire variants into this before calling the service.
type CreateInput struct {
	Date            string
	StartTime       string
	EndTime         string
	DurationMinutes int
	Status          string
	CompanyID       *uuid.UUID
	ProviderID      *uuid.UUID
	EmployeeID      *uuid.UUID
	ServiceID       *uuid.UUID
	ClientID        *uuid.UUID
	Notes           *string
}

// Create validates and inserts a single appointment. End time and
// duration derive from each other when only one is given.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	if !ValidDate(in.Date) {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	start, err := ParseClock(in.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time %v", ErrValidation, err)
	}

	duration := in.DurationMinutes
	if duration <= 0 && in.EndTime != "" {
		end, err := ParseClock(in.EndTime)
		if err != nil {
			return nil, fmt.Errorf("%w: end_time %v", ErrValidation, err)
		}
		duration = ((end - start) + 1440) % 1440
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}

	status := in.Status
	if status == "" {
		status = StatusScheduled
	}
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, in.Status)
	}

	a := &Appointment{
		Date:            in.Date,
		StartTime:       FormatClock(start),
		EndTime:         FormatClock(start + duration),
		DurationMinutes: duration,
		Status:          status,
		CompanyID:       in.CompanyID,
		ProviderID:      in.ProviderID,
		EmployeeID:      in.EmployeeID,
		ServiceID:       in.ServiceID,
		ClientID:        in.ClientID,
		Notes:           in.Notes,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns the caller's visible appointments narrowed by filters.
// Scope bindings override the matching caller filters: a company user
// asking for another company's rows still gets their own.
func (s *Service) List(ctx context.Context, p *auth.Principal, f Filters, limit, offset int) ([]*Appointment, int, error) {
	scope, err := ScopeFor(p)
	if err != nil {
		return nil, 0, err
	}
	if scope.CompanyID != nil {
		f.CompanyID = nil
	}
	if scope.ProviderID != nil {
		f.ProviderID = nil
	}
	return s.repo.Search(ctx, scope, f, limit, offset)
}

// Get returns one appointment, 404-equivalent when out of scope.
func (s *Service) Get(ctx context.Context, p *auth.Principal, id uuid.UUID) (*Appointment, error) {
	scope, err := ScopeFor(p)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.GetJoined(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(a) {
		return nil, ErrNotFound
	}
	return a, nil
}

// Update applies a partial update to one visible appointment. Rows
// outside the caller's scope read as not found, never as forbidden.
func (s *Service) Update(ctx context.Context, p *auth.Principal, id uuid.UUID, patch Patch) (*Appointment, error) {
	scope, err := ScopeFor(p)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: empty update", ErrValidation)
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(a) {
		return nil, ErrNotFound
	}

	if patch.Status != nil {
		if !CanTransition(a.Status, *patch.Status) {
			return nil, fmt.Errorf("%w: %s to %s", ErrStatusTransition, a.Status, *patch.Status)
		}
		a.Status = *patch.Status
	}
	if patch.Date != nil {
		a.Date = *patch.Date
	}
	if patch.StartTime != nil {
		a.StartTime = *patch.StartTime
	}
	if patch.DurationMinutes != nil {
		a.DurationMinutes = *patch.DurationMinutes
	}
	if patch.CompanyID != nil {
		a.CompanyID = patch.CompanyID
	}
	if patch.ProviderID != nil {
		a.ProviderID = patch.ProviderID
	}
	if patch.EmployeeID != nil {
		a.EmployeeID = patch.EmployeeID
	}
	if patch.ServiceID != nil {
		a.ServiceID = patch.ServiceID
	}
	if patch.ClientID != nil {
		a.ClientID = patch.ClientID
	}
	if patch.Notes != nil {
		a.Notes = patch.Notes
	}
	if patch.EndTime != nil {
		// An explicit end time wins; duration follows from it.
		start, err := ParseClock(a.StartTime)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		end, err := ParseClock(*patch.EndTime)
		if err != nil {
			return nil, fmt.Errorf("%w: end_time %v", ErrValidation, err)
		}
		duration := ((end - start) + 1440) % 1440
		if duration <= 0 {
			return nil, fmt.Errorf("%w: end_time must differ from start_time", ErrValidation)
		}
		a.EndTime = FormatClock(end)
		a.DurationMinutes = duration
	} else {
		end, err := EndOf(a.StartTime, a.DurationMinutes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		a.EndTime = end
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return s.repo.GetJoined(ctx, a.ID)
}

// UpdateMany patches every visible row among ids in one transaction
// and returns the IDs actually touched.
func (s *Service) UpdateMany(ctx context.Context, p *auth.Principal, ids []uuid.UUID, patch Patch) ([]uuid.UUID, error) {
	scope, err := ScopeFor(p)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no ids given", ErrValidation)
	}
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: empty update", ErrValidation)
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateMany(ctx, scope, ids, patch)
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, ErrNotFound
	}
	return updated, nil
}

// Delete removes one visible appointment.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id uuid.UUID) error {
	_, err := s.DeleteMany(ctx, p, []uuid.UUID{id})
	return err
}

// DeleteMany hard-deletes the visible subset of ids and returns what
// was removed. ErrNotFound only when nothing was visible.
func (s *Service) DeleteMany(ctx context.Context, p *auth.Principal, ids []uuid.UUID) ([]uuid.UUID, error) {
	scope, err := ScopeFor(p)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no ids given", ErrValidation)
	}
	deleted, err := s.repo.DeleteMany(ctx, scope, ids)
	if err != nil {
		return nil, err
	}
	if len(deleted) == 0 {
		return nil, ErrNotFound
	}
	return deleted, nil
}

func validatePatch(p Patch) error {
	if p.Date != nil && !ValidDate(*p.Date) {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	if p.StartTime != nil {
		if _, err := ParseClock(*p.StartTime); err != nil {
			return fmt.Errorf("%w: start_time %v", ErrValidation, err)
		}
	}
	if p.EndTime != nil {
		if _, err := ParseClock(*p.EndTime); err != nil {
			return fmt.Errorf("%w: end_time %v", ErrValidation, err)
		}
	}
	if p.DurationMinutes != nil && *p.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if p.Status != nil && !ValidStatus(*p.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, *p.Status)
	}
	return nil
}

// BreakInput is a pause inside the batch working window.
type BreakInput struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// BatchInput describes a slot grid to generate for one day.
type BatchInput struct {
	Date        string
	CompanyID   *uuid.UUID
	ServiceID   *uuid.UUID
	ProviderIDs []uuid.UUID
	WindowStart string
	WindowEnd   string
	SlotMinutes int
	Chairs      int
	Breaks      []BreakInput
	Notes       *string
}

// BatchFailure reports one grid row that could not be created.
type BatchFailure struct {
	Index     int    `json:"index"`
	StartTime string `json:"start_time"`
	Reason    string `json:"reason"`
}

// BatchResult tallies a grid submission.
type BatchResult struct {
	Created []*Appointment `json:"created"`
	Failed  []BatchFailure `json:"failed"`
}

// CreateBatch generates the slot grid and inserts each row in its own
// transaction. The batch is not atomic: rows that collide with
// existing bookings fail individually and are reported in the tally
// while the rest land.
func (s *Service) CreateBatch(ctx context.Context, in BatchInput) (*BatchResult, error) {
	if !ValidDate(in.Date) {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	windowStart, err := ParseClock(in.WindowStart)
	if err != nil {
		return nil, fmt.Errorf("%w: window start %v", ErrValidation, err)
	}
	windowEnd, err := ParseClock(in.WindowEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: window end %v", ErrValidation, err)
	}
	if windowEnd <= windowStart {
		return nil, fmt.Errorf("%w: window end must be after start", ErrValidation)
	}
	if in.SlotMinutes <= 0 {
		return nil, fmt.Errorf("%w: slot minutes must be positive", ErrValidation)
	}
	if in.Chairs <= 0 {
		return nil, fmt.Errorf("%w: chairs must be positive", ErrValidation)
	}
	if len(in.ProviderIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one provider required", ErrValidation)
	}
	breaks := make([]Interval, 0, len(in.Breaks))
	for _, b := range in.Breaks {
		bs, err := ParseClock(b.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: break start %v", ErrValidation, err)
		}
		be, err := ParseClock(b.End)
		if err != nil {
			return nil, fmt.Errorf("%w: break end %v", ErrValidation, err)
		}
		if be <= bs {
			return nil, fmt.Errorf("%w: break end must be after start", ErrValidation)
		}
		breaks = append(breaks, Interval{Start: bs, End: be})
	}

	slots := GenerateSlots(windowStart, windowEnd, in.SlotMinutes, breaks)
	grid := BuildGrid(slots, in.SlotMinutes, in.Chairs, in.ProviderIDs)

	result := &BatchResult{Created: []*Appointment{}, Failed: []BatchFailure{}}
	for i, row := range grid {
		providerID := row.ProviderID
		a, err := s.Create(ctx, CreateInput{
			Date:            in.Date,
			StartTime:       row.StartTime,
			DurationMinutes: in.SlotMinutes,
			CompanyID:       in.CompanyID,
			ProviderID:      &providerID,
			ServiceID:       in.ServiceID,
			Notes:           in.Notes,
		})
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{
				Index:     i,
				StartTime: row.StartTime,
				Reason:    failureReason(err),
			})
			continue
		}
		result.Created = append(result.Created, a)
	}
	return result, nil
}

// failureReason keeps driver error text out of batch tallies.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrSlotConflict):
		return ErrSlotConflict.Error()
	case errors.Is(err, ErrInvalidReference),
		errors.Is(err, ErrValidation):
		return err.Error()
	default:
		return "internal error"
	}
}

// ClaimInput is an anonymous booking confirmation from a public
// company link.
type ClaimInput struct {
	AppointmentID uuid.UUID
	CompanyToken  string
	EmployeeID    *uuid.UUID
	Notes         *string
}

// PublicClaim confirms an open slot on behalf of a company employee.
// The company token scopes the whole operation: an appointment of
// another company reads as not found.
func (s *Service) PublicClaim(ctx context.Context, in ClaimInput) (*Appointment, error) {
	companyID, err := s.repo.CompanyIDForToken(ctx, in.CompanyToken)
	if err != nil {
		return nil, err
	}

	a, err := s.repo.GetByID(ctx, in.AppointmentID)
	if err != nil {
		return nil, err
	}
	if a.CompanyID == nil || *a.CompanyID != companyID {
		return nil, ErrNotFound
	}

	if in.EmployeeID != nil {
		ok, err := s.repo.EmployeeBelongsTo(ctx, *in.EmployeeID, companyID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: employee not found for company", ErrNotFound)
		}
		a.EmployeeID = in.EmployeeID
	}

	if !CanTransition(a.Status, StatusConfirmed) {
		return nil, fmt.Errorf("%w: %s to %s", ErrStatusTransition, a.Status, StatusConfirmed)
	}
	a.Status = StatusConfirmed
	if in.Notes != nil {
		a.Notes = in.Notes
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return s.repo.GetJoined(ctx, a.ID)
}

// PublicOpenSlots lists a company's claimable slots for its public
// booking page.
func (s *Service) PublicOpenSlots(ctx context.Context, companyToken string) ([]*Appointment, error) {
	companyID, err := s.repo.CompanyIDForToken(ctx, companyToken)
	if err != nil {
		return nil, err
	}
	return s.repo.OpenSlots(ctx, companyID)
}
