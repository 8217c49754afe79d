package appointment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/qualycorpore/api/internal/platform/auth"
)

// -- Mock Repository --

type mockCompany struct {
	name   string
	token  string
	active bool
}

type mockRepo struct {
	appts     map[uuid.UUID]*Appointment
	companies map[uuid.UUID]mockCompany
	providers map[uuid.UUID]string
	employees map[uuid.UUID]uuid.UUID // employee -> company
	services  map[uuid.UUID]string
	users     map[uuid.UUID]bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		appts:     make(map[uuid.UUID]*Appointment),
		companies: make(map[uuid.UUID]mockCompany),
		providers: make(map[uuid.UUID]string),
		employees: make(map[uuid.UUID]uuid.UUID),
		services:  make(map[uuid.UUID]string),
		users:     make(map[uuid.UUID]bool),
	}
}

func (m *mockRepo) checkRefs(a *Appointment) error {
	if a.CompanyID != nil {
		if _, ok := m.companies[*a.CompanyID]; !ok {
			return fmt.Errorf("%w: company %s", ErrInvalidReference, a.CompanyID)
		}
	}
	if a.ProviderID != nil {
		if _, ok := m.providers[*a.ProviderID]; !ok {
			return fmt.Errorf("%w: provider %s", ErrInvalidReference, a.ProviderID)
		}
	}
	if a.EmployeeID != nil {
		if _, ok := m.employees[*a.EmployeeID]; !ok {
			return fmt.Errorf("%w: employee %s", ErrInvalidReference, a.EmployeeID)
		}
	}
	if a.ServiceID != nil {
		if _, ok := m.services[*a.ServiceID]; !ok {
			return fmt.Errorf("%w: service %s", ErrInvalidReference, a.ServiceID)
		}
	}
	if a.ClientID != nil {
		if !m.users[*a.ClientID] {
			return fmt.Errorf("%w: client %s", ErrInvalidReference, a.ClientID)
		}
	}
	return nil
}

// conflicts mirrors the partial unique index: NULL providers never
// collide.
func (m *mockRepo) conflicts(a *Appointment) bool {
	if a.ProviderID == nil {
		return false
	}
	for _, other := range m.appts {
		if other.ID == a.ID || other.ProviderID == nil {
			continue
		}
		if *other.ProviderID == *a.ProviderID && other.Date == a.Date && other.StartTime == a.StartTime {
			return true
		}
	}
	return false
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	if err := m.checkRefs(a); err != nil {
		return err
	}
	a.ID = uuid.New()
	if m.conflicts(a) {
		return ErrSlotConflict
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) GetJoined(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.CompanyID != nil {
		if c, ok := m.companies[*a.CompanyID]; ok {
			name := c.name
			a.CompanyName = &name
		}
	}
	if a.ProviderID != nil {
		if n, ok := m.providers[*a.ProviderID]; ok {
			name := n
			a.ProviderName = &name
		}
	}
	if a.ServiceID != nil {
		if n, ok := m.services[*a.ServiceID]; ok {
			name := n
			a.ServiceName = &name
		}
	}
	return a, nil
}

func (m *mockRepo) Search(_ context.Context, scope Scope, f Filters, limit, offset int) ([]*Appointment, int, error) {
	var all []*Appointment
	for _, a := range m.appts {
		if !scope.Allows(a) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.CompanyID != nil && (a.CompanyID == nil || *a.CompanyID != *f.CompanyID) {
			continue
		}
		if f.ProviderID != nil && (a.ProviderID == nil || *a.ProviderID != *f.ProviderID) {
			continue
		}
		if f.DateFrom != "" && a.Date < f.DateFrom {
			continue
		}
		if f.DateTo != "" && a.Date > f.DateTo {
			continue
		}
		cp := *a
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		ki := all[i].Date + all[i].StartTime
		kj := all[j].Date + all[j].StartTime
		if f.SortDesc {
			return ki > kj
		}
		return ki < kj
	})
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *mockRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := m.appts[a.ID]; !ok {
		return ErrNotFound
	}
	if err := m.checkRefs(a); err != nil {
		return err
	}
	if m.conflicts(a) {
		return ErrSlotConflict
	}
	a.UpdatedAt = time.Now()
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockRepo) UpdateMany(_ context.Context, scope Scope, ids []uuid.UUID, p Patch) ([]uuid.UUID, error) {
	var visible []*Appointment
	for _, id := range ids {
		a, ok := m.appts[id]
		if !ok || !scope.Allows(a) {
			continue
		}
		visible = append(visible, a)
	}
	// Stage everything first so a rejected row leaves nothing applied.
	staged := make([]*Appointment, 0, len(visible))
	for _, orig := range visible {
		a := *orig
		if p.Status != nil {
			if !CanTransition(a.Status, *p.Status) {
				return nil, fmt.Errorf("%w: %s to %s", ErrStatusTransition, a.Status, *p.Status)
			}
			a.Status = *p.Status
		}
		if p.Date != nil {
			a.Date = *p.Date
		}
		if p.StartTime != nil {
			a.StartTime = *p.StartTime
		}
		if p.DurationMinutes != nil {
			a.DurationMinutes = *p.DurationMinutes
		}
		if p.Notes != nil {
			a.Notes = p.Notes
		}
		if p.CompanyID != nil {
			a.CompanyID = p.CompanyID
		}
		if p.EmployeeID != nil {
			a.EmployeeID = p.EmployeeID
		}
		if p.ServiceID != nil {
			a.ServiceID = p.ServiceID
		}
		if p.ClientID != nil {
			a.ClientID = p.ClientID
		}
		if p.ProviderID != nil && (a.ProviderID == nil || *a.ProviderID != *p.ProviderID) {
			newName, ok := m.providers[*p.ProviderID]
			if !ok {
				return nil, fmt.Errorf("%w: provider %s", ErrInvalidReference, p.ProviderID)
			}
			fromName := "N/A"
			if a.ProviderID != nil {
				fromName = m.providers[*a.ProviderID]
			}
			note := fmt.Sprintf("[Prestador alterado de %s para %s em %s]",
				fromName, newName, time.Now().Format("02/01/2006 15:04"))
			a.Notes = appendNote(a.Notes, note)
			a.ProviderID = p.ProviderID
		}
		if p.EndTime != nil {
			start, err := ParseClock(a.StartTime)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrValidation, err)
			}
			end, err := ParseClock(*p.EndTime)
			if err != nil {
				return nil, fmt.Errorf("%w: end_time %v", ErrValidation, err)
			}
			a.DurationMinutes = ((end - start) + 1440) % 1440
			a.EndTime = FormatClock(end)
		} else {
			end, err := EndOf(a.StartTime, a.DurationMinutes)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrValidation, err)
			}
			a.EndTime = end
		}
		a.UpdatedAt = time.Now()
		staged = append(staged, &a)
	}
	updated := make([]uuid.UUID, 0, len(staged))
	for _, a := range staged {
		m.appts[a.ID] = a
		updated = append(updated, a.ID)
	}
	return updated, nil
}

func (m *mockRepo) DeleteMany(_ context.Context, scope Scope, ids []uuid.UUID) ([]uuid.UUID, error) {
	var deleted []uuid.UUID
	for _, id := range ids {
		a, ok := m.appts[id]
		if !ok || !scope.Allows(a) {
			continue
		}
		delete(m.appts, id)
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (m *mockRepo) CompanyIDForToken(_ context.Context, token string) (uuid.UUID, error) {
	for id, c := range m.companies {
		if c.active && c.token == token {
			return id, nil
		}
	}
	exists := func(id uuid.UUID) bool {
		c, ok := m.companies[id]
		return ok && c.active
	}
	if decoded, err := base64.StdEncoding.DecodeString(token); err == nil {
		if cid, err := uuid.Parse(strings.TrimSpace(string(decoded))); err == nil && exists(cid) {
			return cid, nil
		}
	}
	if cid, err := uuid.Parse(token); err == nil && exists(cid) {
		return cid, nil
	}
	return uuid.Nil, fmt.Errorf("%w: company for token", ErrNotFound)
}

func (m *mockRepo) EmployeeBelongsTo(_ context.Context, employeeID, companyID uuid.UUID) (bool, error) {
	cid, ok := m.employees[employeeID]
	return ok && cid == companyID, nil
}

func (m *mockRepo) OpenSlots(_ context.Context, companyID uuid.UUID) ([]*Appointment, error) {
	var items []*Appointment
	for _, a := range m.appts {
		if a.CompanyID == nil || *a.CompanyID != companyID {
			continue
		}
		if a.EmployeeID != nil {
			continue
		}
		if a.Status != StatusScheduled && a.Status != StatusConfirmed {
			continue
		}
		cp := *a
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Date+items[i].StartTime < items[j].Date+items[j].StartTime
	})
	return items, nil
}

// -- Fixtures --

type fixture struct {
	repo       *mockRepo
	svc        *Service
	companyID  uuid.UUID
	companyID2 uuid.UUID
	providerID uuid.UUID
	provider2  uuid.UUID
	employeeID uuid.UUID
	employee2  uuid.UUID // belongs to companyID2
	serviceID  uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:       newMockRepo(),
		companyID:  uuid.New(),
		companyID2: uuid.New(),
		providerID: uuid.New(),
		provider2:  uuid.New(),
		employeeID: uuid.New(),
		employee2:  uuid.New(),
		serviceID:  uuid.New(),
	}
	f.repo.companies[f.companyID] = mockCompany{name: "Acme", token: "tok-acme", active: true}
	f.repo.companies[f.companyID2] = mockCompany{name: "Globex", token: "tok-globex", active: true}
	f.repo.providers[f.providerID] = "Ana"
	f.repo.providers[f.provider2] = "Bruno"
	f.repo.employees[f.employeeID] = f.companyID
	f.repo.employees[f.employee2] = f.companyID2
	f.repo.services[f.serviceID] = "Quick Massage"
	f.svc = NewService(f.repo)
	return f
}

func admin() *auth.Principal {
	return &auth.Principal{UserID: uuid.NewString(), Role: auth.RoleAdmin}
}

func companyPrincipal(companyID uuid.UUID) *auth.Principal {
	return &auth.Principal{UserID: uuid.NewString(), Role: auth.RoleCompany, CompanyID: &companyID}
}

func providerPrincipal(providerID uuid.UUID) *auth.Principal {
	return &auth.Principal{UserID: uuid.NewString(), Role: auth.RoleProvider, ProviderID: &providerID}
}

func (f *fixture) create(t *testing.T, in CreateInput) *Appointment {
	t.Helper()
	a, err := f.svc.Create(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func (f *fixture) slot(t *testing.T, date, start string) *Appointment {
	t.Helper()
	return f.create(t, CreateInput{
		Date: date, StartTime: start, DurationMinutes: 30,
		CompanyID: &f.companyID, ProviderID: &f.providerID,
	})
}

// -- Create --

func TestCreate_DerivesEndAndStatus(t *testing.T) {
	f := newFixture()
	a := f.create(t, CreateInput{
		Date: "2026-09-10", StartTime: "09:00", DurationMinutes: 45,
		CompanyID: &f.companyID, ProviderID: &f.providerID,
	})
	if a.EndTime != "09:45" {
		t.Errorf("expected end 09:45, got %s", a.EndTime)
	}
	if a.Status != StatusScheduled {
		t.Errorf("expected default status scheduled, got %s", a.Status)
	}
	if a.ID == uuid.Nil {
		t.Error("expected assigned id")
	}
}

func TestCreate_DurationFromEndTime(t *testing.T) {
	f := newFixture()
	a := f.create(t, CreateInput{
		Date: "2026-09-10", StartTime: "09:00", EndTime: "10:30",
		CompanyID: &f.companyID, ProviderID: &f.providerID,
	})
	if a.DurationMinutes != 90 {
		t.Errorf("expected duration 90, got %d", a.DurationMinutes)
	}
}

func TestCreate_DuplicateSlotRejected(t *testing.T) {
	f := newFixture()
	f.slot(t, "2026-09-10", "09:00")

	_, err := f.svc.Create(context.Background(), CreateInput{
		Date: "2026-09-10", StartTime: "09:00", DurationMinutes: 60,
		CompanyID: &f.companyID2, ProviderID: &f.providerID,
	})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
}

func TestCreate_SameSlotDifferentProvider(t *testing.T) {
	f := newFixture()
	f.slot(t, "2026-09-10", "09:00")

	_, err := f.svc.Create(context.Background(), CreateInput{
		Date: "2026-09-10", StartTime: "09:00", DurationMinutes: 30,
		CompanyID: &f.companyID, ProviderID: &f.provider2,
	})
	if err != nil {
		t.Fatalf("different provider should be allowed: %v", err)
	}
}

func TestCreate_UnassignedSlotsNeverCollide(t *testing.T) {
	f := newFixture()
	for i := 0; i < 2; i++ {
		_, err := f.svc.Create(context.Background(), CreateInput{
			Date: "2026-09-10", StartTime: "09:00", DurationMinutes: 30,
			CompanyID: &f.companyID,
		})
		if err != nil {
			t.Fatalf("provider-less slots should not collide: %v", err)
		}
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture()
	cases := []CreateInput{
		{Date: "10/09/2026", StartTime: "09:00", DurationMinutes: 30},
		{Date: "2026-09-10", StartTime: "9am", DurationMinutes: 30},
		{Date: "2026-09-10", StartTime: "09:00"},
		{Date: "2026-09-10", StartTime: "09:00", DurationMinutes: 30, Status: "pending"},
	}
	for i, in := range cases {
		if _, err := f.svc.Create(context.Background(), in); !errors.Is(err, ErrValidation) {
			t.Errorf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
}

func TestCreate_UnknownReference(t *testing.T) {
	f := newFixture()
	ghost := uuid.New()
	_, err := f.svc.Create(context.Background(), CreateInput{
		Date: "2026-09-10", StartTime: "09:00", DurationMinutes: 30,
		CompanyID: &ghost,
	})
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

// -- List --

func TestList_ScopedByRole(t *testing.T) {
	f := newFixture()
	f.slot(t, "2026-09-10", "09:00")
	f.create(t, CreateInput{
		Date: "2026-09-10", StartTime: "10:00", DurationMinutes: 30,
		CompanyID: &f.companyID2, ProviderID: &f.provider2,
	})

	ctx := context.Background()
	items, total, err := f.svc.List(ctx, admin(), Filters{}, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("admin should see both rows, got %d", total)
	}

	items, total, err = f.svc.List(ctx, companyPrincipal(f.companyID), Filters{}, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || *items[0].CompanyID != f.companyID {
		t.Error("company should see only its own rows")
	}

	items, total, err = f.svc.List(ctx, providerPrincipal(f.provider2), Filters{}, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || *items[0].ProviderID != f.provider2 {
		t.Error("provider should see only its own rows")
	}
}

func TestList_ScopeOverridesCallerFilter(t *testing.T) {
	f := newFixture()
	f.slot(t, "2026-09-10", "09:00")
	f.create(t, CreateInput{
		Date: "2026-09-10", StartTime: "10:00", DurationMinutes: 30,
		CompanyID: &f.companyID2, ProviderID: &f.provider2,
	})
	ctx := context.Background()

	// A company user asking for another company's rows still gets its own.
	items, total, err := f.svc.List(ctx, companyPrincipal(f.companyID), Filters{CompanyID: &f.companyID2}, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(items) != 1 || *items[0].CompanyID != f.companyID {
		t.Errorf("company filter must be overridden by the principal's binding, got %d rows", total)
	}

	items, total, err = f.svc.List(ctx, providerPrincipal(f.provider2), Filters{ProviderID: &f.providerID}, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(items) != 1 || *items[0].ProviderID != f.provider2 {
		t.Errorf("provider filter must be overridden by the principal's binding, got %d rows", total)
	}
}

func TestList_SortDirection(t *testing.T) {
	f := newFixture()
	f.slot(t, "2026-09-10", "10:00")
	f.slot(t, "2026-09-10", "09:00")

	items, _, err := f.svc.List(context.Background(), admin(), Filters{}, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if items[0].StartTime != "09:00" {
		t.Error("ascending sort should put 09:00 first")
	}

	items, _, err = f.svc.List(context.Background(), admin(), Filters{SortDesc: true}, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if items[0].StartTime != "10:00" {
		t.Error("descending sort should put 10:00 first")
	}
}

// -- Update --

func TestUpdate_OutOfScopeReadsAsNotFound(t *testing.T) {
	f := newFixture()
	a := f.slot(t, "2026-09-10", "09:00")

	status := StatusConfirmed
	_, err := f.svc.Update(context.Background(), companyPrincipal(f.companyID2), a.ID, Patch{Status: &status})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrForbidden) {
		t.Error("out-of-scope rows must not read as forbidden")
	}
}

func TestUpdate_StatusMachine(t *testing.T) {
	f := newFixture()
	a := f.slot(t, "2026-09-10", "09:00")
	ctx := context.Background()

	completedEarly := StatusCompleted
	if _, err := f.svc.Update(ctx, admin(), a.ID, Patch{Status: &completedEarly}); !errors.Is(err, ErrStatusTransition) {
		t.Fatalf("scheduled rows must be confirmed before completion, got %v", err)
	}
	confirmed := StatusConfirmed
	if _, err := f.svc.Update(ctx, admin(), a.ID, Patch{Status: &confirmed}); err != nil {
		t.Fatal(err)
	}
	completed := StatusCompleted
	if _, err := f.svc.Update(ctx, admin(), a.ID, Patch{Status: &completed}); err != nil {
		t.Fatal(err)
	}
	cancelled := StatusCancelled
	_, err := f.svc.Update(ctx, admin(), a.ID, Patch{Status: &cancelled})
	if !errors.Is(err, ErrStatusTransition) {
		t.Fatalf("completed rows are immutable, got %v", err)
	}
}

func TestUpdate_RescheduleIntoTakenSlot(t *testing.T) {
	f := newFixture()
	f.slot(t, "2026-09-10", "09:00")
	b := f.slot(t, "2026-09-10", "10:00")

	taken := "09:00"
	_, err := f.svc.Update(context.Background(), admin(), b.ID, Patch{StartTime: &taken})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
}

func TestUpdate_RecomputesEndTime(t *testing.T) {
	f := newFixture()
	a := f.slot(t, "2026-09-10", "09:00")

	duration := 90
	got, err := f.svc.Update(context.Background(), admin(), a.ID, Patch{DurationMinutes: &duration})
	if err != nil {
		t.Fatal(err)
	}
	if got.EndTime != "10:30" {
		t.Errorf("expected end 10:30, got %s", got.EndTime)
	}
}

func TestUpdate_ExplicitEndTimeDerivesDuration(t *testing.T) {
	f := newFixture()
	a := f.slot(t, "2026-09-10", "09:00")

	end := "10:15"
	got, err := f.svc.Update(context.Background(), admin(), a.ID, Patch{EndTime: &end})
	if err != nil {
		t.Fatal(err)
	}
	if got.EndTime != "10:15" || got.DurationMinutes != 75 {
		t.Errorf("expected 10:15/75min, got %s/%dmin", got.EndTime, got.DurationMinutes)
	}
}

func TestUpdate_CompanyReassignment(t *testing.T) {
	f := newFixture()
	a := f.slot(t, "2026-09-10", "09:00")

	got, err := f.svc.Update(context.Background(), admin(), a.ID, Patch{CompanyID: &f.companyID2})
	if err != nil {
		t.Fatal(err)
	}
	if got.CompanyID == nil || *got.CompanyID != f.companyID2 {
		t.Error("appointment should move to the other company")
	}
}

func TestUpdate_EmptyPatch(t *testing.T) {
	f := newFixture()
	a := f.slot(t, "2026-09-10", "09:00")
	_, err := f.svc.Update(context.Background(), admin(), a.ID, Patch{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// -- UpdateMany / DeleteMany --

func TestUpdateMany_VisibleSubsetOnly(t *testing.T) {
	f := newFixture()
	mine := f.slot(t, "2026-09-10", "09:00")
	other := f.create(t, CreateInput{
		Date: "2026-09-10", StartTime: "09:00", DurationMinutes: 30,
		CompanyID: &f.companyID2, ProviderID: &f.provider2,
	})

	status := StatusConfirmed
	updated, err := f.svc.UpdateMany(context.Background(), companyPrincipal(f.companyID),
		[]uuid.UUID{mine.ID, other.ID}, Patch{Status: &status})
	if err != nil {
		t.Fatal(err)
	}
	if len(updated) != 1 || updated[0] != mine.ID {
		t.Errorf("expected only own row updated, got %v", updated)
	}
	untouched, _ := f.repo.GetByID(context.Background(), other.ID)
	if untouched.Status != StatusScheduled {
		t.Error("out-of-scope row must stay untouched")
	}
}

func TestUpdateMany_ProviderReassignmentAppendsNote(t *testing.T) {
	f := newFixture()
	a := f.slot(t, "2026-09-10", "09:00")

	updated, err := f.svc.UpdateMany(context.Background(), admin(),
		[]uuid.UUID{a.ID}, Patch{ProviderID: &f.provider2})
	if err != nil {
		t.Fatal(err)
	}
	if len(updated) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updated))
	}
	got, _ := f.repo.GetByID(context.Background(), a.ID)
	if got.ProviderID == nil || *got.ProviderID != f.provider2 {
		t.Error("provider should be reassigned")
	}
	if got.Notes == nil || !strings.Contains(*got.Notes, "[Prestador alterado de Ana para Bruno em ") {
		t.Errorf("expected reassignment note, got %v", got.Notes)
	}
}

func TestUpdateMany_NothingVisible(t *testing.T) {
	f := newFixture()
	a := f.slot(t, "2026-09-10", "09:00")

	status := StatusConfirmed
	_, err := f.svc.UpdateMany(context.Background(), companyPrincipal(f.companyID2),
		[]uuid.UUID{a.ID}, Patch{Status: &status})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteMany_VisibleSubset(t *testing.T) {
	f := newFixture()
	mine := f.slot(t, "2026-09-10", "09:00")
	other := f.create(t, CreateInput{
		Date: "2026-09-10", StartTime: "09:00", DurationMinutes: 30,
		CompanyID: &f.companyID2, ProviderID: &f.provider2,
	})

	deleted, err := f.svc.DeleteMany(context.Background(), companyPrincipal(f.companyID),
		[]uuid.UUID{mine.ID, other.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 || deleted[0] != mine.ID {
		t.Errorf("expected only own row deleted, got %v", deleted)
	}
	if _, err := f.repo.GetByID(context.Background(), other.ID); err != nil {
		t.Error("out-of-scope row must survive")
	}
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture()
	err := f.svc.Delete(context.Background(), admin(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// -- CreateBatch --

func TestCreateBatch_FullGrid(t *testing.T) {
	f := newFixture()
	result, err := f.svc.CreateBatch(context.Background(), BatchInput{
		Date:        "2026-09-10",
		CompanyID:   &f.companyID,
		ProviderIDs: []uuid.UUID{f.providerID, f.provider2},
		WindowStart: "08:00",
		WindowEnd:   "10:00",
		SlotMinutes: 30,
		Chairs:      2,
		Breaks:      []BreakInput{{Start: "09:00", End: "09:30"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Slots 08:00, 08:30, 09:30 with two chairs each.
	if len(result.Created) != 6 {
		t.Errorf("expected 6 created, got %d", len(result.Created))
	}
	if len(result.Failed) != 0 {
		t.Errorf("expected no failures, got %v", result.Failed)
	}
}

func TestCreateBatch_ConflictsTalliedNotFatal(t *testing.T) {
	f := newFixture()
	f.slot(t, "2026-09-10", "08:00") // pre-booked for providerID

	result, err := f.svc.CreateBatch(context.Background(), BatchInput{
		Date:        "2026-09-10",
		CompanyID:   &f.companyID,
		ProviderIDs: []uuid.UUID{f.providerID},
		WindowStart: "08:00",
		WindowEnd:   "09:00",
		SlotMinutes: 30,
		Chairs:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Created) != 1 {
		t.Errorf("expected the free slot to land, got %d created", len(result.Created))
	}
	if len(result.Failed) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(result.Failed))
	}
	if result.Failed[0].StartTime != "08:00" {
		t.Errorf("expected 08:00 to fail, got %s", result.Failed[0].StartTime)
	}
	if result.Failed[0].Reason != ErrSlotConflict.Error() {
		t.Errorf("unexpected reason %q", result.Failed[0].Reason)
	}
}

func TestCreateBatch_SingleProviderTwoChairs(t *testing.T) {
	// The round-robin wraps onto the same provider, so the second
	// chair of every slot collides and is tallied.
	f := newFixture()
	result, err := f.svc.CreateBatch(context.Background(), BatchInput{
		Date:        "2026-09-10",
		CompanyID:   &f.companyID,
		ProviderIDs: []uuid.UUID{f.providerID},
		WindowStart: "08:00",
		WindowEnd:   "09:00",
		SlotMinutes: 30,
		Chairs:      2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Created) != 2 || len(result.Failed) != 2 {
		t.Errorf("expected 2 created and 2 failed, got %d/%d",
			len(result.Created), len(result.Failed))
	}
}

func TestCreateBatch_Validation(t *testing.T) {
	f := newFixture()
	base := BatchInput{
		Date:        "2026-09-10",
		ProviderIDs: []uuid.UUID{f.providerID},
		WindowStart: "08:00",
		WindowEnd:   "10:00",
		SlotMinutes: 30,
		Chairs:      1,
	}

	bad := base
	bad.WindowEnd = "07:00"
	if _, err := f.svc.CreateBatch(context.Background(), bad); !errors.Is(err, ErrValidation) {
		t.Errorf("inverted window: expected ErrValidation, got %v", err)
	}

	bad = base
	bad.ProviderIDs = nil
	if _, err := f.svc.CreateBatch(context.Background(), bad); !errors.Is(err, ErrValidation) {
		t.Errorf("no providers: expected ErrValidation, got %v", err)
	}

	bad = base
	bad.Breaks = []BreakInput{{Start: "09:30", End: "09:00"}}
	if _, err := f.svc.CreateBatch(context.Background(), bad); !errors.Is(err, ErrValidation) {
		t.Errorf("inverted break: expected ErrValidation, got %v", err)
	}
}

// -- Public claim flow --

func (f *fixture) openSlot(t *testing.T) *Appointment {
	t.Helper()
	return f.create(t, CreateInput{
		Date: "2026-09-10", StartTime: "09:00", DurationMinutes: 30,
		CompanyID: &f.companyID, ProviderID: &f.providerID,
	})
}

func TestPublicClaim_ConfirmsSlot(t *testing.T) {
	f := newFixture()
	a := f.openSlot(t)

	got, err := f.svc.PublicClaim(context.Background(), ClaimInput{
		AppointmentID: a.ID,
		CompanyToken:  "tok-acme",
		EmployeeID:    &f.employeeID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", got.Status)
	}
	if got.EmployeeID == nil || *got.EmployeeID != f.employeeID {
		t.Error("expected employee assigned")
	}
	if got.ProviderName == nil || *got.ProviderName != "Ana" {
		t.Error("expected joined provider name")
	}
}

func TestPublicClaim_TokenFallbacks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	encoded := base64.StdEncoding.EncodeToString([]byte(f.companyID.String()))
	a := f.openSlot(t)
	if _, err := f.svc.PublicClaim(ctx, ClaimInput{AppointmentID: a.ID, CompanyToken: encoded}); err != nil {
		t.Errorf("base64 company id should resolve: %v", err)
	}

	b := f.create(t, CreateInput{
		Date: "2026-09-11", StartTime: "09:00", DurationMinutes: 30,
		CompanyID: &f.companyID, ProviderID: &f.providerID,
	})
	if _, err := f.svc.PublicClaim(ctx, ClaimInput{AppointmentID: b.ID, CompanyToken: f.companyID.String()}); err != nil {
		t.Errorf("raw company id should resolve: %v", err)
	}

	if _, err := f.svc.PublicClaim(ctx, ClaimInput{AppointmentID: b.ID, CompanyToken: "bogus"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown token: expected ErrNotFound, got %v", err)
	}
}

func TestPublicClaim_OtherCompanyAppointment(t *testing.T) {
	f := newFixture()
	a := f.openSlot(t)

	_, err := f.svc.PublicClaim(context.Background(), ClaimInput{
		AppointmentID: a.ID,
		CompanyToken:  "tok-globex",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPublicClaim_EmployeeOfOtherCompany(t *testing.T) {
	f := newFixture()
	a := f.openSlot(t)

	_, err := f.svc.PublicClaim(context.Background(), ClaimInput{
		AppointmentID: a.ID,
		CompanyToken:  "tok-acme",
		EmployeeID:    &f.employee2,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	untouched, _ := f.repo.GetByID(context.Background(), a.ID)
	if untouched.Status != StatusScheduled || untouched.EmployeeID != nil {
		t.Error("failed claim must not mutate the appointment")
	}
}

func TestPublicClaim_CancelledSlot(t *testing.T) {
	f := newFixture()
	a := f.openSlot(t)
	cancelled := StatusCancelled
	if _, err := f.svc.Update(context.Background(), admin(), a.ID, Patch{Status: &cancelled}); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.PublicClaim(context.Background(), ClaimInput{
		AppointmentID: a.ID,
		CompanyToken:  "tok-acme",
	})
	if !errors.Is(err, ErrStatusTransition) {
		t.Fatalf("expected ErrStatusTransition, got %v", err)
	}
}

func TestPublicOpenSlots(t *testing.T) {
	f := newFixture()
	f.openSlot(t)
	f.create(t, CreateInput{
		Date: "2026-09-10", StartTime: "10:00", DurationMinutes: 30,
		CompanyID: &f.companyID, ProviderID: &f.providerID, EmployeeID: &f.employeeID,
	})
	f.create(t, CreateInput{
		Date: "2026-09-10", StartTime: "11:00", DurationMinutes: 30,
		CompanyID: &f.companyID2, ProviderID: &f.provider2,
	})

	items, err := f.svc.PublicOpenSlots(context.Background(), "tok-acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 open slot, got %d", len(items))
	}
	if items[0].StartTime != "09:00" {
		t.Errorf("unexpected slot %s", items[0].StartTime)
	}
}
