package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/job-tracker/internal/domain"
)

// JobFilter captures list parameters. A zero filter lists every job.
type JobFilter struct {
	AssigneeID  *string
	Unallocated bool
	Statuses    []domain.JobStatus
	Limit       int
	Offset      int
}

// JobRepository encapsulates job persistence.
type JobRepository interface {
	List(ctx context.Context, filter JobFilter) ([]domain.Job, error)
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	// Insert writes every row or none and returns how many were written.
	Insert(ctx context.Context, jobs []domain.NewJob) (int, error)
	Update(ctx context.Context, id string, patch domain.JobPatch) (*domain.Job, error)
	// Claim assigns an unallocated job to userID. It returns
	// ErrAlreadyAllocated when another writer got there first.
	Claim(ctx context.Context, id, userID string) (*domain.Job, error)
	Delete(ctx context.Context, id string) error
}

type jobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository instantiates repository.
func NewJobRepository(pool *pgxpool.Pool) JobRepository {
	return &jobRepository{pool: pool}
}

const jobSelectColumns = `j.id, j.job_ref, j.importer_name, j.etd, j.received_at, j.status, j.query_details,
               j.allocated_by, j.allocated_to, j.created_at, j.updated_at,
               pb.employee_id, pb.full_name, pt.employee_id, pt.full_name`

// JobSelect returns the joined job projection reading from source, which
// must be aliased j.
func JobSelect(source string) string {
	return fmt.Sprintf(`SELECT %s
        FROM %s
        LEFT JOIN profiles pb ON pb.id = j.allocated_by
        LEFT JOIN profiles pt ON pt.id = j.allocated_to`, jobSelectColumns, source)
}

// JobFilterClauses renders the WHERE clauses of filter. bind registers a value
// and returns its placeholder.
func JobFilterClauses(filter JobFilter, bind func(any) string) []string {
	clauses := []string{"1=1"}
	if filter.AssigneeID != nil {
		clauses = append(clauses, "j.allocated_to="+bind(*filter.AssigneeID))
	}
	if filter.Unallocated {
		clauses = append(clauses, "j.allocated_to IS NULL")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = bind(string(status))
		}
		clauses = append(clauses, fmt.Sprintf("j.status IN (%s)", strings.Join(placeholders, ",")))
	}
	return clauses
}

// JobPatchAssignments renders the SET list for patch. date converts an ETD
// into the driver's storage form.
func JobPatchAssignments(patch domain.JobPatch, bind func(any) string, date func(time.Time) any) []string {
	var sets []string
	if patch.JobRef != nil {
		sets = append(sets, "job_ref="+bind(*patch.JobRef))
	}
	if patch.ImporterName != nil {
		sets = append(sets, "importer_name="+bind(*patch.ImporterName))
	}
	switch {
	case patch.ClearETD:
		sets = append(sets, "etd=NULL")
	case patch.ETD != nil:
		sets = append(sets, "etd="+bind(date(*patch.ETD)))
	}
	switch {
	case patch.ClearAllocation:
		sets = append(sets, "allocated_to=NULL")
	case patch.AllocatedTo != nil:
		sets = append(sets, "allocated_to="+bind(*patch.AllocatedTo))
	}
	if patch.Status != nil {
		sets = append(sets, "status="+bind(string(*patch.Status)))
		if patch.QueryDetails != nil {
			sets = append(sets, "query_details="+bind(*patch.QueryDetails))
		} else {
			sets = append(sets, "query_details=NULL")
		}
	}
	return sets
}

// JoinedSummary builds the display summary of a joined profile, or nil when
// the join found nothing.
func JoinedSummary(id string, employeeID, fullName *string) *domain.ProfileSummary {
	if id == "" || employeeID == nil || fullName == nil {
		return nil
	}
	return &domain.ProfileSummary{ID: id, EmployeeID: *employeeID, FullName: *fullName}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job                         domain.Job
		status                      string
		allocatorEmp, allocatorName *string
		assigneeEmp, assigneeName   *string
	)
	if err := row.Scan(
		&job.ID,
		&job.JobRef,
		&job.ImporterName,
		&job.ETD,
		&job.ReceivedAt,
		&status,
		&job.QueryDetails,
		&job.AllocatedBy,
		&job.AllocatedTo,
		&job.CreatedAt,
		&job.UpdatedAt,
		&allocatorEmp,
		&allocatorName,
		&assigneeEmp,
		&assigneeName,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.Allocator = JoinedSummary(job.AllocatedBy, allocatorEmp, allocatorName)
	if job.AllocatedTo != nil {
		job.Assignee = JoinedSummary(*job.AllocatedTo, assigneeEmp, assigneeName)
	}
	return &job, nil
}

func pgBinder(args *[]any) func(any) string {
	return func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}
}

func pgDate(t time.Time) any {
	return t
}

func (r *jobRepository) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	args := []any{}
	bind := pgBinder(&args)
	clauses := JobFilterClauses(filter, bind)

	query := JobSelect("jobs j") + " WHERE " + strings.Join(clauses, " AND ") + " ORDER BY j.created_at DESC, j.job_ref"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %s OFFSET %s", bind(filter.Limit), bind(filter.Offset))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, TranslatePgError(err)
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
	return jobs, TranslatePgError(rows.Err())
}

func (r *jobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := JobSelect("jobs j") + " WHERE j.id=$1"
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, TranslatePgError(err)
	}
	return job, nil
}

func (r *jobRepository) Insert(ctx context.Context, jobs []domain.NewJob) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}
	const query = `
        INSERT INTO jobs (id, job_ref, importer_name, etd, received_at, status, allocated_by, allocated_to)
        VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)`

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, job := range jobs {
			batch.Queue(query, job.ID, job.JobRef, job.ImporterName, job.ETD, job.ReceivedAt, job.AllocatedBy, job.AllocatedTo)
		}
		results := tx.SendBatch(ctx, batch)
		for range jobs {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return err
			}
		}
		return results.Close()
	})
	if err != nil {
		return 0, TranslatePgError(err)
	}
	return len(jobs), nil
}

func (r *jobRepository) Update(ctx context.Context, id string, patch domain.JobPatch) (*domain.Job, error) {
	if patch.Empty() {
		return r.GetByID(ctx, id)
	}
	args := []any{}
	bind := pgBinder(&args)
	sets := JobPatchAssignments(patch, bind, pgDate)
	sets = append(sets, "updated_at=NOW()")

	query := fmt.Sprintf(`WITH j AS (UPDATE jobs SET %s WHERE id=%s RETURNING *) `,
		strings.Join(sets, ", "), bind(id)) + JobSelect("j")
	job, err := scanJob(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, TranslatePgError(err)
	}
	return job, nil
}

func (r *jobRepository) Claim(ctx context.Context, id, userID string) (*domain.Job, error) {
	query := `WITH j AS (
            UPDATE jobs SET allocated_to=$1, status='processing', query_details=NULL, updated_at=NOW()
            WHERE id=$2 AND allocated_to IS NULL
            RETURNING *) ` + JobSelect("j")
	job, err := scanJob(r.pool.QueryRow(ctx, query, userID, id))
	if err == nil {
		return job, nil
	}
	err = TranslatePgError(err)
	if err != ErrNotFound {
		return nil, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, TranslatePgError(err)
	}
	if exists {
		return nil, ErrAlreadyAllocated
	}
	return nil, ErrNotFound
}

func (r *jobRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id=$1`, id)
	if err != nil {
		return TranslatePgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
