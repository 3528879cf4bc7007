package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/repository"
)

type profileRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewProfileRepository returns a SQLite-backed profile repository.
func NewProfileRepository(db *sql.DB) repository.ProfileRepository {
	return &profileRepository{db: db, now: time.Now}
}

const profileColumns = `id, employee_id, full_name, email, password_hash, created_at, updated_at`

func scanProfile(row interface{ Scan(dest ...any) error }) (*domain.Profile, error) {
	var (
		profile          domain.Profile
		created, updated string
	)
	if err := row.Scan(
		&profile.ID,
		&profile.EmployeeID,
		&profile.FullName,
		&profile.Email,
		&profile.PasswordHash,
		&created,
		&updated,
	); err != nil {
		return nil, err
	}
	var err error
	if profile.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if profile.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &profile, nil
}

func (r *profileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	const query = `
        INSERT INTO profiles (id, employee_id, full_name, email, password_hash, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

	now := r.now().UTC().Truncate(time.Microsecond)
	if _, err := r.db.ExecContext(ctx, query,
		profile.ID,
		profile.EmployeeID,
		profile.FullName,
		profile.Email,
		profile.PasswordHash,
		formatTime(now),
		formatTime(now),
	); err != nil {
		return translate(err)
	}
	profile.CreatedAt = now
	profile.UpdatedAt = now
	return nil
}

func (r *profileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	const query = `UPDATE profiles SET full_name=?, password_hash=?, updated_at=? WHERE id=?`

	now := r.now().UTC().Truncate(time.Microsecond)
	res, err := r.db.ExecContext(ctx, query, profile.FullName, profile.PasswordHash, formatTime(now), profile.ID)
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
	profile.UpdatedAt = now
	return nil
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	profile, err := scanProfile(r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=?`, id))
	if err != nil {
		return nil, translate(err)
	}
	return profile, nil
}

func (r *profileRepository) GetByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	profile, err := scanProfile(r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE email=?`, email))
	if err != nil {
		return nil, translate(err)
	}
	return profile, nil
}

func (r *profileRepository) List(ctx context.Context) ([]domain.Profile, error) {
	return queryProfiles(ctx, r.db, `SELECT `+profileColumns+` FROM profiles ORDER BY full_name, employee_id`)
}

func queryProfiles(ctx context.Context, db *sql.DB, query string, args ...any) ([]domain.Profile, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
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
	return profiles, translate(rows.Err())
}
