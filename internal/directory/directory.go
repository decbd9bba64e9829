// Package directory reads the hospital staff directory. The engine only
// queries it; staff management lives elsewhere.
package directory

import (
	"context"

	"casebook_backend/internal/delivery"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// MembersOfRole returns the enabled staff members holding a role in a
// country. Role comparison is case-insensitive.
func (r *Repository) MembersOfRole(ctx context.Context, role, country string) ([]delivery.Member, error) {
	rows, err := r.pool.Query(ctx, `
    SELECT email, name, departments
    FROM hospital_staff
    WHERE lower(country) = lower($1)
      AND enabled
      AND EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE lower(r) = lower($2))
    ORDER BY email ASC
  `, country, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []delivery.Member
	for rows.Next() {
		var m delivery.Member
		if err := rows.Scan(&m.Email, &m.Name, &m.Departments); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// DepartmentsOf returns the departments a staff member belongs to, by email.
func (r *Repository) DepartmentsOf(ctx context.Context, email string) ([]string, error) {
	var departments []string
	err := r.pool.QueryRow(ctx, `
    SELECT departments
    FROM hospital_staff
    WHERE lower(email) = lower($1)
  `, email).Scan(&departments)
	if err != nil {
		return nil, err
	}
	return departments, nil
}

var _ delivery.DirectoryReader = (*Repository)(nil)
