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

type jobRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewJobRepository returns a SQLite-backed job repository.
func NewJobRepository(db *sql.DB) repository.JobRepository {
	return &jobRepository{db: db, now: time.Now}
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanJob(row interface{ Scan(dest ...any) error }) (*domain.Job, error) {
	var (
		job                          domain.Job
		status                       string
		etd, queryDetails, allocated sql.NullString
		receivedAt, created, updated string
		allocatorEmp, allocatorName  sql.NullString
		assigneeEmp, assigneeName    sql.NullString
	)
	if err := row.Scan(
		&job.ID,
		&job.JobRef,
		&job.ImporterName,
		&etd,
		&receivedAt,
		&status,
		&queryDetails,
		&job.AllocatedBy,
		&allocated,
		&created,
		&updated,
		&allocatorEmp,
		&allocatorName,
		&assigneeEmp,
		&assigneeName,
	); err != nil {
		return nil, err
	}

	var err error
	if job.ETD, err = parseNullDate(etd); err != nil {
		return nil, fmt.Errorf("parse etd: %w", err)
	}
	if job.ReceivedAt, err = parseTime(receivedAt); err != nil {
		return nil, fmt.Errorf("parse received_at: %w", err)
	}
	if job.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	job.Status = domain.JobStatus(status)
	job.QueryDetails = nullString(queryDetails)
	job.AllocatedTo = nullString(allocated)
	job.Allocator = repository.JoinedSummary(job.AllocatedBy, nullString(allocatorEmp), nullString(allocatorName))
	if job.AllocatedTo != nil {
		job.Assignee = repository.JoinedSummary(*job.AllocatedTo, nullString(assigneeEmp), nullString(assigneeName))
	}
	return &job, nil
}

func getJob(ctx context.Context, q queryRower, id string) (*domain.Job, error) {
	job, err := scanJob(q.QueryRowContext(ctx, repository.JobSelect("jobs j")+" WHERE j.id=?", id))
	if err != nil {
		return nil, translate(err)
	}
	return job, nil
}

func (r *jobRepository) List(ctx context.Context, filter repository.JobFilter) ([]domain.Job, error) {
	args := []any{}
	bind := binder(&args)
	clauses := repository.JobFilterClauses(filter, bind)

	query := repository.JobSelect("jobs j") + " WHERE " + strings.Join(clauses, " AND ") + " ORDER BY j.created_at DESC, j.job_ref"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %s OFFSET %s", bind(filter.Limit), bind(filter.Offset))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, translate(rows.Err())
}

func (r *jobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	return getJob(ctx, r.db, id)
}

func (r *jobRepository) Insert(ctx context.Context, jobs []domain.NewJob) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}
	const query = `
        INSERT INTO jobs (id, job_ref, importer_name, etd, received_at, status, allocated_by, allocated_to, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?)`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, translate(err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, translate(err)
	}
	defer stmt.Close()

	// Rows in one batch share a base timestamp; the offset keeps their
	// creation order stable.
	base := r.now()
	for i, job := range jobs {
		created := formatTime(base.Add(time.Duration(i) * time.Microsecond))
		if _, err := stmt.ExecContext(ctx,
			job.ID,
			job.JobRef,
			job.ImporterName,
			nullableDate(job.ETD),
			formatTime(job.ReceivedAt),
			job.AllocatedBy,
			job.AllocatedTo,
			created,
			created,
		); err != nil {
			return 0, translate(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, translate(err)
	}
	return len(jobs), nil
}

func (r *jobRepository) Update(ctx context.Context, id string, patch domain.JobPatch) (*domain.Job, error) {
	if patch.Empty() {
		return r.GetByID(ctx, id)
	}
	args := []any{}
	bind := binder(&args)
	sets := repository.JobPatchAssignments(patch, bind, formatDate)
	sets = append(sets, "updated_at="+bind(formatTime(r.now())))
	query := fmt.Sprintf(`UPDATE jobs SET %s WHERE id=%s`, strings.Join(sets, ", "), bind(id))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translate(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, translate(err)
	} else if n == 0 {
		return nil, repository.ErrNotFound
	}

	job, err := getJob(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, translate(err)
	}
	return job, nil
}

func (r *jobRepository) Claim(ctx context.Context, id, userID string) (*domain.Job, error) {
	const query = `
        UPDATE jobs SET allocated_to=?, status='processing', query_details=NULL, updated_at=?
        WHERE id=? AND allocated_to IS NULL`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translate(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, query, userID, formatTime(r.now()), id)
	if err != nil {
		return nil, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, translate(err)
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id=?)`, id).Scan(&exists); err != nil {
			return nil, translate(err)
		}
		if exists {
			return nil, repository.ErrAlreadyAllocated
		}
		return nil, repository.ErrNotFound
	}

	job, err := getJob(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, translate(err)
	}
	return job, nil
}

func (r *jobRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id=?`, id)
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
