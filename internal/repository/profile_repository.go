package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/job-tracker/internal/domain"
)

// ProfileRepository defines persistence access for user profiles.
type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.Profile) error
	Update(ctx context.Context, profile *domain.Profile) error
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	GetByEmail(ctx context.Context, email string) (*domain.Profile, error)
	List(ctx context.Context) ([]domain.Profile, error)
}

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository returns a Postgres-backed implementation.
func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepository{pool: pool}
}

const profileColumns = `id, employee_id, full_name, email, password_hash, created_at, updated_at`

func scanProfile(row rowScanner) (*domain.Profile, error) {
	var profile domain.Profile
	if err := row.Scan(
		&profile.ID,
		&profile.EmployeeID,
		&profile.FullName,
		&profile.Email,
		&profile.PasswordHash,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	const query = `
        INSERT INTO profiles (id, employee_id, full_name, email, password_hash)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		profile.ID,
		profile.EmployeeID,
		profile.FullName,
		profile.Email,
		profile.PasswordHash,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	return TranslatePgError(err)
}

func (r *profileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	const query = `
        UPDATE profiles SET full_name=$1, password_hash=$2, updated_at=NOW()
        WHERE id=$3
        RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		profile.FullName,
		profile.PasswordHash,
		profile.ID,
	).Scan(&profile.UpdatedAt)
	return TranslatePgError(err)
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	profile, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, id))
	if err != nil {
		return nil, TranslatePgError(err)
	}
	return profile, nil
}

func (r *profileRepository) GetByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	profile, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE email=$1`, email))
	if err != nil {
		return nil, TranslatePgError(err)
	}
	return profile, nil
}

func (r *profileRepository) List(ctx context.Context) ([]domain.Profile, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY full_name, employee_id`)
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
