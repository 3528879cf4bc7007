package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/repository"
)

type roleRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRoleRepository returns a SQLite-backed role repository.
func NewRoleRepository(db *sql.DB) repository.RoleRepository {
	return &roleRepository{db: db, now: time.Now}
}

func (r *roleRepository) Insert(ctx context.Context, assignment *domain.RoleAssignment) error {
	now := r.now().UTC().Truncate(time.Microsecond)
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role, created_at) VALUES (?, ?, ?)`,
		assignment.UserID, string(assignment.Role), formatTime(now),
	); err != nil {
		return translate(err)
	}
	assignment.CreatedAt = now
	return nil
}

func (r *roleRepository) Delete(ctx context.Context, userID string, role domain.Role) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id=? AND role=?`, userID, string(role))
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *roleRepository) ListByUser(ctx context.Context, userID string) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id=? ORDER BY role`, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, domain.Role(role))
	}
	return roles, translate(rows.Err())
}

func (r *roleRepository) ListAll(ctx context.Context) ([]domain.RoleAssignment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, role, created_at FROM user_roles ORDER BY user_id, role`)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	assignments := make([]domain.RoleAssignment, 0)
	for rows.Next() {
		var (
			assignment    domain.RoleAssignment
			role, created string
		)
		if err := rows.Scan(&assignment.UserID, &role, &created); err != nil {
			return nil, err
		}
		if assignment.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		assignment.Role = domain.Role(role)
		assignments = append(assignments, assignment)
	}
	return assignments, translate(rows.Err())
}

func (r *roleRepository) ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.Profile, error) {
	const query = `
        SELECT p.id, p.employee_id, p.full_name, p.email, p.password_hash, p.created_at, p.updated_at
        FROM profiles p
        JOIN user_roles ur ON ur.user_id = p.id
        WHERE ur.role=?
        ORDER BY p.full_name, p.employee_id`
	return queryProfiles(ctx, r.db, query, string(role))
}

func (r *roleRepository) CountWithAnyRole(ctx context.Context, roles ...domain.Role) (int, error) {
	if len(roles) == 0 {
		return 0, nil
	}
	args := make([]any, len(roles))
	for i, role := range roles {
		args[i] = string(role)
	}
	query := fmt.Sprintf(`SELECT COUNT(DISTINCT user_id) FROM user_roles WHERE role IN (%s)`,
		strings.TrimSuffix(strings.Repeat("?,", len(roles)), ","))

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, translate(err)
	}
	return count, nil
}
