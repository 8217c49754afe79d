package appointment

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// transitions lists the allowed status changes. A status may always
// stay where it is.
var transitions = map[string][]string{
	StatusScheduled: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// ValidStatus reports whether s is a known appointment status.
func ValidStatus(s string) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether an appointment may move from one
// status to another.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Appointment maps to the appointments table. Dates travel as
// YYYY-MM-DD strings and clock times as HH:MM to keep the wire format
// stable regardless of server timezone.
type Appointment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Date            string     `db:"date" json:"date"`
	StartTime       string     `db:"start_time" json:"start_time"`
	EndTime         string     `db:"end_time" json:"end_time"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	Status          string     `db:"status" json:"status"`
	CompanyID       *uuid.UUID `db:"company_id" json:"company_id,omitempty"`
	ProviderID      *uuid.UUID `db:"provider_id" json:"provider_id,omitempty"`
	EmployeeID      *uuid.UUID `db:"employee_id" json:"employee_id,omitempty"`
	ServiceID       *uuid.UUID `db:"service_id" json:"service_id,omitempty"`
	ClientID        *uuid.UUID `db:"client_id" json:"client_id,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`

	// Display names resolved via joins on list and public reads.
	CompanyName  *string `db:"company_name" json:"company_name,omitempty"`
	ProviderName *string `db:"provider_name" json:"provider_name,omitempty"`
	EmployeeName *string `db:"employee_name" json:"employee_name,omitempty"`
	ServiceName  *string `db:"service_name" json:"service_name,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

var (
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clockPattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// ValidDate reports whether s is a real calendar date in YYYY-MM-DD form.
func ValidDate(s string) bool {
	if !datePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// ParseClock converts an HH:MM string to minutes since midnight.
func ParseClock(s string) (int, error) {
	if !clockPattern.MatchString(s) {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return h*60 + m, nil
}

// FormatClock converts minutes since midnight back to HH:MM, wrapping
// past midnight.
func FormatClock(min int) string {
	min = ((min % 1440) + 1440) % 1440
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// EndOf derives the end time for a start time and duration.
func EndOf(start string, durationMinutes int) (string, error) {
	m, err := ParseClock(start)
	if err != nil {
		return "", err
	}
	return FormatClock(m + durationMinutes), nil
}

// Filters narrows appointment listings. Zero values are ignored.
type Filters struct {
	Status     string
	CompanyID  *uuid.UUID
	ProviderID *uuid.UUID
	EmployeeID *uuid.UUID
	DateFrom   string
	DateTo     string
	SortDesc   bool
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Date            *string    `json:"date,omitempty"`
	StartTime       *string    `json:"start_time,omitempty"`
	EndTime         *string    `json:"end_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Status          *string    `json:"status,omitempty"`
	CompanyID       *uuid.UUID `json:"company_id,omitempty"`
	ProviderID      *uuid.UUID `json:"provider_id,omitempty"`
	EmployeeID      *uuid.UUID `json:"employee_id,omitempty"`
	ServiceID       *uuid.UUID `json:"service_id,omitempty"`
	ClientID        *uuid.UUID `json:"client_id,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Date == nil && p.StartTime == nil && p.EndTime == nil &&
		p.DurationMinutes == nil && p.Status == nil && p.CompanyID == nil &&
		p.ProviderID == nil && p.EmployeeID == nil &&
		p.ServiceID == nil && p.ClientID == nil && p.Notes == nil
}
