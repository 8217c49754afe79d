package company

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const companyCols = `id, name, email, phone, logo_url, public_token, is_active, created_at, updated_at`

func scanCompany(row pgx.Row) (*Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.LogoURL,
		&c.PublicToken, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *Company) error {
	c.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO companies (id, name, email, phone, logo_url, public_token, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Email, c.Phone, c.LogoURL, c.PublicToken, c.IsActive).
		Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Company, error) {
	return scanCompany(r.pool.QueryRow(ctx,
		`SELECT `+companyCols+` FROM companies WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Company, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM companies`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+companyCols+` FROM companies ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, c *Company, employees []*Employee) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE companies SET name = $2, email = $3, phone = $4, logo_url = $5,
			public_token = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1`,
		c.ID, c.Name, c.Email, c.Phone, c.LogoURL, c.PublicToken, c.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if employees != nil {
		if err := syncEmployees(ctx, tx, c.ID, employees); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// syncEmployees reconciles the roster: known IDs are updated, new
// entries inserted, and anyone missing from the payload deactivated.
func syncEmployees(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, employees []*Employee) error {
	keep := make([]string, 0, len(employees))
	for _, e := range employees {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
			if _, err := tx.Exec(ctx, `
				INSERT INTO company_employees (id, company_id, name, email, department, is_active)
				VALUES ($1, $2, $3, $4, $5, TRUE)`,
				e.ID, companyID, e.Name, e.Email, e.Department); err != nil {
				return err
			}
		} else {
			if _, err := tx.Exec(ctx, `
				UPDATE company_employees SET name = $3, email = $4, department = $5,
					is_active = TRUE, updated_at = NOW()
				WHERE id = $1 AND company_id = $2`,
				e.ID, companyID, e.Name, e.Email, e.Department); err != nil {
				return err
			}
		}
		keep = append(keep, e.ID.String())
	}
	_, err := tx.Exec(ctx, `
		UPDATE company_employees SET is_active = FALSE, updated_at = NOW()
		WHERE company_id = $1 AND NOT (id = ANY($2::uuid[])) AND is_active`,
		companyID, keep)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListEmployees(ctx context.Context, companyID uuid.UUID) ([]*Employee, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, name, email, department, is_active, created_at, updated_at
		FROM company_employees WHERE company_id = $1 AND is_active ORDER BY name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Employee
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Name, &e.Email, &e.Department,
			&e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}
