package service

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/events"
	"github.com/spec-kit/job-tracker/internal/importer"
	"github.com/spec-kit/job-tracker/internal/observability"
	"github.com/spec-kit/job-tracker/internal/repository"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

// ImportResult summarizes a committed bulk import.
type ImportResult struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	JobIDs   []string `json:"job_ids"`
}

// ImportService turns uploaded spreadsheets into pending jobs.
type ImportService struct {
	jobs    repository.JobRepository
	feed    events.Feed
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// ImportDependencies bundles collaborators for the import service.
type ImportDependencies struct {
	JobRepo repository.JobRepository
	Feed    events.Feed
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// NewImportService constructs the service.
func NewImportService(deps ImportDependencies) *ImportService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		jobs:    deps.JobRepo,
		feed:    deps.Feed,
		metrics: deps.Metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Import decodes the file, validates every row and inserts the batch in one
// transaction. Any failure leaves the store untouched.
func (s *ImportService) Import(ctx context.Context, actor *domain.Principal, filename string, r io.Reader) (*ImportResult, error) {
	if !actor.Can(domain.CapImportJobs) {
		return nil, apperrors.NewForbidden("you cannot import jobs")
	}
	decoder, err := importer.DecoderFor(filename)
	if err != nil {
		return nil, apperrors.NewFieldError("file", "only .xlsx and .csv files are supported")
	}

	br := bufio.NewReader(r)
	if _, err := br.Peek(1); errors.Is(err, io.EOF) {
		return nil, apperrors.NewEmptyFile()
	}
	table, err := decoder.Decode(br)
	if err != nil {
		return nil, apperrors.NewValidationError("the file could not be read", map[string]any{"reason": err.Error()})
	}
	result, err := importer.Normalize(table)
	if err != nil {
		return nil, importError(err)
	}

	receivedAt := s.now().UTC()
	batch := make([]domain.NewJob, len(result.Records))
	ids := make([]string, len(result.Records))
	for i, rec := range result.Records {
		ids[i] = uuid.NewString()
		batch[i] = domain.NewJob{
			ID:           ids[i],
			JobRef:       rec.JobRef,
			ImporterName: rec.ImporterName,
			ETD:          rec.ETD,
			ReceivedAt:   receivedAt,
			AllocatedBy:  actor.UserID(),
		}
	}

	inserted, err := s.jobs.Insert(ctx, batch)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, apperrors.NewDuplicateReference(map[string]any{"constraint": constraintName(err)})
		}
		return nil, storeError(err, "jobs", nil)
	}
	s.metrics.RecordImport(inserted)
	s.logger.Info("jobs imported",
		zap.String("file", filename),
		zap.Int("inserted", inserted),
		zap.Int("skipped", result.Skipped),
		zap.String("actor_id", actor.UserID()))

	if s.feed != nil {
		event := events.Event{
			Type:    events.EventJobsImported,
			JobIDs:  ids,
			ActorID: actor.UserID(),
			Payload: events.JobsImportedPayload{Count: inserted},
		}
		if err := s.feed.Publish(ctx, event); err != nil {
			s.logger.Error("publish change event failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
	return &ImportResult{Inserted: inserted, Skipped: result.Skipped, JobIDs: ids}, nil
}

func importError(err error) error {
	var (
		missing *importer.MissingColumnsError
		rowErr  *importer.RowError
		dupErr  *importer.DuplicateRefError
	)
	switch {
	case errors.Is(err, importer.ErrEmptyFile):
		return apperrors.NewEmptyFile()
	case errors.Is(err, importer.ErrNoValidRows):
		return apperrors.NewValidationError("no valid jobs found in file", nil)
	case errors.As(err, &missing):
		return apperrors.NewMissingColumns(missing.Missing)
	case errors.As(err, &dupErr):
		return apperrors.NewDuplicateReference(map[string]any{"job_ref": dupErr.JobRef, "rows": dupErr.Lines})
	case errors.As(err, &rowErr):
		return apperrors.NewValidationError(rowErr.Error(), map[string]any{
			"row":   rowErr.Line,
			"field": rowErr.Field,
			"value": rowErr.Value,
		})
	}
	return apperrors.NewValidationError(err.Error(), nil)
}
