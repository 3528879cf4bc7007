package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/job-tracker/internal/domain"
)

// RoleRepository persists (user, role) assignments.
type RoleRepository interface {
	Insert(ctx context.Context, assignment *domain.RoleAssignment) error
	// Delete returns ErrNotFound when the pair was not assigned.
	Delete(ctx context.Context, userID string, role domain.Role) error
	ListByUser(ctx context.Context, userID string) ([]domain.Role, error)
	ListAll(ctx context.Context) ([]domain.RoleAssignment, error)
	ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.Profile, error)
	CountWithAnyRole(ctx context.Context, roles ...domain.Role) (int, error)
}

type roleRepository struct {
	pool *pgxpool.Pool
}

// NewRoleRepository returns a Postgres-backed implementation.
func NewRoleRepository(pool *pgxpool.Pool) RoleRepository {
	return &roleRepository{pool: pool}
}

func (r *roleRepository) Insert(ctx context.Context, assignment *domain.RoleAssignment) error {
	const query = `
        INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
        RETURNING created_at`
	err := r.pool.QueryRow(ctx, query, assignment.UserID, string(assignment.Role)).Scan(&assignment.CreatedAt)
	return TranslatePgError(err)
}

func (r *roleRepository) Delete(ctx context.Context, userID string, role domain.Role) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id=$1 AND role=$2`, userID, string(role))
	if err != nil {
		return TranslatePgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *roleRepository) ListByUser(ctx context.Context, userID string) ([]domain.Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT role FROM user_roles WHERE user_id=$1 ORDER BY role`, userID)
	if err != nil {
		return nil, TranslatePgError(err)
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
	return roles, TranslatePgError(rows.Err())
}

func (r *roleRepository) ListAll(ctx context.Context) ([]domain.RoleAssignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, role, created_at FROM user_roles ORDER BY user_id, role`)
	if err != nil {
		return nil, TranslatePgError(err)
	}
	defer rows.Close()

	assignments := make([]domain.RoleAssignment, 0)
	for rows.Next() {
		var (
			assignment domain.RoleAssignment
			role       string
		)
		if err := rows.Scan(&assignment.UserID, &role, &assignment.CreatedAt); err != nil {
			return nil, err
		}
		assignment.Role = domain.Role(role)
		assignments = append(assignments, assignment)
	}
	return assignments, TranslatePgError(rows.Err())
}

func (r *roleRepository) ListUsersByRole(ctx context.Context, role domain.Role) ([]domain.Profile, error) {
	const query = `
        SELECT p.id, p.employee_id, p.full_name, p.email, p.password_hash, p.created_at, p.updated_at
        FROM profiles p
        JOIN user_roles ur ON ur.user_id = p.id
        WHERE ur.role=$1
        ORDER BY p.full_name, p.employee_id`
	rows, err := r.pool.Query(ctx, query, string(role))
	if err != nil {
		return nil, TranslatePgError(err)
	}
	defer rows.Close()

	profiles := make([]domain.Profile, 0)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *profile)
	}
	return profiles, TranslatePgError(rows.Err())
}

func (r *roleRepository) CountWithAnyRole(ctx context.Context, roles ...domain.Role) (int, error) {
	if len(roles) == 0 {
		return 0, nil
	}
	args := make([]any, len(roles))
	placeholders := make([]string, len(roles))
	for i, role := range roles {
		args[i] = string(role)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`SELECT COUNT(DISTINCT user_id) FROM user_roles WHERE role IN (%s)`, strings.Join(placeholders, ","))

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, TranslatePgError(err)
	}
	return count, nil
}
