package appointment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the Postgres-backed appointment repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

// Dates and clock times are rendered to text in SQL so the wire format
// never depends on the server timezone.
const apptCols = `a.id, to_char(a.date, 'YYYY-MM-DD'), to_char(a.start_time, 'HH24:MI'),
	to_char(a.end_time, 'HH24:MI'), a.duration_minutes, a.status,
	a.company_id, a.provider_id, a.employee_id, a.service_id, a.client_id, a.notes,
	a.created_at, a.updated_at`

const apptJoinedCols = apptCols + `, c.name, p.name, e.name, s.name`

const apptJoins = ` LEFT JOIN companies c ON c.id = a.company_id
	LEFT JOIN providers p ON p.id = a.provider_id
	LEFT JOIN company_employees e ON e.id = a.employee_id
	LEFT JOIN services s ON s.id = a.service_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.Date, &a.StartTime, &a.EndTime, &a.DurationMinutes, &a.Status,
		&a.CompanyID, &a.ProviderID, &a.EmployeeID, &a.ServiceID, &a.ClientID, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt)
	return &a, translateErr(err)
}

func scanJoined(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.Date, &a.StartTime, &a.EndTime, &a.DurationMinutes, &a.Status,
		&a.CompanyID, &a.ProviderID, &a.EmployeeID, &a.ServiceID, &a.ClientID, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt,
		&a.CompanyName, &a.ProviderName, &a.EmployeeName, &a.ServiceName)
	return &a, translateErr(err)
}

// translateErr maps driver errors to domain sentinels.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrSlotConflict
		case "23503":
			return ErrInvalidReference
		}
	}
	return err
}

// refChecks pairs each foreign key with its table so Create can verify
// references before inserting.
type refCheck struct {
	id    *uuid.UUID
	table string
	label string
}

func checkRefs(ctx context.Context, q queryable, a *Appointment) error {
	checks := []refCheck{
		{a.CompanyID, "companies", "company"},
		{a.ProviderID, "providers", "provider"},
		{a.EmployeeID, "company_employees", "employee"},
		{a.ServiceID, "services", "service"},
		{a.ClientID, "users", "client"},
	}
	for _, c := range checks {
		if c.id == nil {
			continue
		}
		var exists bool
		query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, c.table)
		if err := q.QueryRow(ctx, query, *c.id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s %s", ErrInvalidReference, c.label, c.id)
		}
	}
	return nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := checkRefs(ctx, tx, a); err != nil {
		return err
	}

	a.ID = uuid.New()
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (id, date, start_time, end_time, duration_minutes, status,
			company_id, provider_id, employee_id, service_id, client_id, notes)
		VALUES ($1, $2::date, $3::time, $4::time, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		a.ID, a.Date, a.StartTime, a.EndTime, a.DurationMinutes, a.Status,
		a.CompanyID, a.ProviderID, a.EmployeeID, a.ServiceID, a.ClientID, a.Notes).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return translateErr(err)
	}
	return tx.Commit(ctx)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments a WHERE a.id = $1`, id))
}

func (r *repoPG) GetJoined(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanJoined(r.pool.QueryRow(ctx,
		`SELECT `+apptJoinedCols+` FROM appointments a`+apptJoins+` WHERE a.id = $1`, id))
}

func (r *repoPG) Search(ctx context.Context, scope Scope, f Filters, limit, offset int) ([]*Appointment, int, error) {
	query := `SELECT ` + apptJoinedCols + ` FROM appointments a` + apptJoins + ` WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM appointments a WHERE 1=1`
	var args []interface{}
	idx := 1

	addCond := func(cond string, val interface{}) {
		query += fmt.Sprintf(cond, idx)
		countQuery += fmt.Sprintf(cond, idx)
		args = append(args, val)
		idx++
	}

	if scope.CompanyID != nil {
		addCond(` AND a.company_id = $%d`, *scope.CompanyID)
	}
	if scope.ProviderID != nil {
		addCond(` AND a.provider_id = $%d`, *scope.ProviderID)
	}
	if f.Status != "" {
		addCond(` AND a.status = $%d`, f.Status)
	}
	if f.CompanyID != nil {
		addCond(` AND a.company_id = $%d`, *f.CompanyID)
	}
	if f.ProviderID != nil {
		addCond(` AND a.provider_id = $%d`, *f.ProviderID)
	}
	if f.EmployeeID != nil {
		addCond(` AND a.employee_id = $%d`, *f.EmployeeID)
	}
	if f.DateFrom != "" {
		addCond(` AND a.date >= $%d::date`, f.DateFrom)
	}
	if f.DateTo != "" {
		addCond(` AND a.date <= $%d::date`, f.DateTo)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	query += fmt.Sprintf(` ORDER BY a.date %s, a.start_time %s LIMIT $%d OFFSET $%d`, dir, dir, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanJoined(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments SET date = $2::date, start_time = $3::time, end_time = $4::time,
			duration_minutes = $5, status = $6, company_id = $7, provider_id = $8,
			employee_id = $9, service_id = $10, client_id = $11, notes = $12, updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.Date, a.StartTime, a.EndTime, a.DurationMinutes, a.Status,
		a.CompanyID, a.ProviderID, a.EmployeeID, a.ServiceID, a.ClientID, a.Notes)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scopeConds appends the scope predicates to a query rooted at the
// appointments table without an alias.
func scopeConds(query string, scope Scope, args []interface{}) (string, []interface{}) {
	if scope.CompanyID != nil {
		query += fmt.Sprintf(` AND company_id = $%d`, len(args)+1)
		args = append(args, *scope.CompanyID)
	}
	if scope.ProviderID != nil {
		query += fmt.Sprintf(` AND provider_id = $%d`, len(args)+1)
		args = append(args, *scope.ProviderID)
	}
	return query, args
}

func (r *repoPG) UpdateMany(ctx context.Context, scope Scope, ids []uuid.UUID, p Patch) ([]uuid.UUID, error) {
	if len(ids) == 0 || p.IsEmpty() {
		return nil, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `SELECT id, to_char(date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI'),
		duration_minutes, status, company_id, provider_id, employee_id, service_id,
		client_id, notes
		FROM appointments WHERE id = ANY($1::uuid[])`
	args := []interface{}{uuidStrings(ids)}
	query, args = scopeConds(query, scope, args)
	query += ` ORDER BY date, start_time FOR UPDATE`

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var current []*Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.Date, &a.StartTime, &a.DurationMinutes, &a.Status,
			&a.CompanyID, &a.ProviderID, &a.EmployeeID, &a.ServiceID, &a.ClientID, &a.Notes); err != nil {
			rows.Close()
			return nil, err
		}
		current = append(current, &a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, tx.Commit(ctx)
	}

	providerNames, err := r.providerNames(ctx, tx, current, p.ProviderID)
	if err != nil {
		return nil, err
	}

	updated := make([]uuid.UUID, 0, len(current))
	for _, a := range current {
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
			note := reassignmentNote(providerNames, a.ProviderID, *p.ProviderID)
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

		_, err = tx.Exec(ctx, `
			UPDATE appointments SET date = $2::date, start_time = $3::time, end_time = $4::time,
				duration_minutes = $5, status = $6, company_id = $7, provider_id = $8,
				employee_id = $9, service_id = $10, client_id = $11, notes = $12, updated_at = NOW()
			WHERE id = $1`,
			a.ID, a.Date, a.StartTime, a.EndTime, a.DurationMinutes, a.Status,
			a.CompanyID, a.ProviderID, a.EmployeeID, a.ServiceID, a.ClientID, a.Notes)
		if err != nil {
			return nil, translateErr(err)
		}
		updated = append(updated, a.ID)
	}
	return updated, tx.Commit(ctx)
}

// providerNames loads the display names needed for reassignment audit
// notes: every current provider plus the incoming one. Returns nil
// when no reassignment is requested.
func (r *repoPG) providerNames(ctx context.Context, q queryable, current []*Appointment, newProvider *uuid.UUID) (map[uuid.UUID]string, error) {
	if newProvider == nil {
		return nil, nil
	}
	idSet := map[uuid.UUID]struct{}{*newProvider: {}}
	for _, a := range current {
		if a.ProviderID != nil {
			idSet[*a.ProviderID] = struct{}{}
		}
	}
	lookup := make([]string, 0, len(idSet))
	for id := range idSet {
		lookup = append(lookup, id.String())
	}
	rows, err := q.Query(ctx, `SELECT id, name FROM providers WHERE id = ANY($1::uuid[])`, lookup)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make(map[uuid.UUID]string, len(idSet))
	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, ok := names[*newProvider]; !ok {
		return nil, fmt.Errorf("%w: provider %s", ErrInvalidReference, newProvider)
	}
	return names, nil
}

// reassignmentNote records a provider change in the format the booking
// history expects.
func reassignmentNote(names map[uuid.UUID]string, from *uuid.UUID, to uuid.UUID) string {
	fromName := "N/A"
	if from != nil {
		if n, ok := names[*from]; ok {
			fromName = n
		}
	}
	return fmt.Sprintf("[Prestador alterado de %s para %s em %s]",
		fromName, names[to], time.Now().Format("02/01/2006 15:04"))
}

func appendNote(notes *string, note string) *string {
	if notes == nil || strings.TrimSpace(*notes) == "" {
		return &note
	}
	combined := strings.TrimSpace(*notes) + "\n" + note
	return &combined
}

func (r *repoPG) DeleteMany(ctx context.Context, scope Scope, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `DELETE FROM appointments WHERE id = ANY($1::uuid[])`
	args := []interface{}{uuidStrings(ids)}
	query, args = scopeConds(query, scope, args)
	query += ` RETURNING id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deleted []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

func (r *repoPG) CompanyIDForToken(ctx context.Context, token string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM companies WHERE public_token = $1 AND is_active`, token).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, err
	}

	// Legacy links carry the company id itself, either base64-encoded
	// or raw.
	candidates := make([]uuid.UUID, 0, 2)
	if decoded, decErr := base64.StdEncoding.DecodeString(token); decErr == nil {
		if cid, parseErr := uuid.Parse(strings.TrimSpace(string(decoded))); parseErr == nil {
			candidates = append(candidates, cid)
		}
	}
	if cid, parseErr := uuid.Parse(token); parseErr == nil {
		candidates = append(candidates, cid)
	}
	for _, cid := range candidates {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM companies WHERE id = $1 AND is_active)`, cid).Scan(&exists); err != nil {
			return uuid.Nil, err
		}
		if exists {
			return cid, nil
		}
	}
	return uuid.Nil, fmt.Errorf("%w: company for token", ErrNotFound)
}

func (r *repoPG) EmployeeBelongsTo(ctx context.Context, employeeID, companyID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM company_employees WHERE id = $1 AND company_id = $2 AND is_active)`,
		employeeID, companyID).Scan(&ok)
	return ok, err
}

func (r *repoPG) OpenSlots(ctx context.Context, companyID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptJoinedCols+` FROM appointments a`+apptJoins+`
		WHERE a.company_id = $1 AND a.employee_id IS NULL
			AND a.status IN ('scheduled', 'confirmed')
			AND (a.date > CURRENT_DATE OR (a.date = CURRENT_DATE AND a.start_time >= CURRENT_TIME))
		ORDER BY a.date, a.start_time`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanJoined(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
