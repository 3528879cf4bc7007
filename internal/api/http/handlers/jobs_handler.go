package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/job-tracker/internal/api/dto"
	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/service"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

// JobsHandler exposes the job lifecycle endpoints.
type JobsHandler struct {
	jobs           *service.JobService
	imports        *service.ImportService
	maxImportBytes int64
}

// NewJobsHandler constructs handler.
func NewJobsHandler(jobs *service.JobService, imports *service.ImportService, maxImportBytes int64) *JobsHandler {
	return &JobsHandler{jobs: jobs, imports: imports, maxImportBytes: maxImportBytes}
}

// List handles GET /jobs.
func (h *JobsHandler) List(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	input, err := parseJobListQuery(c)
	if err != nil {
		return err
	}
	jobs, err := h.jobs.List(c.UserContext(), principal, input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewJobResponses(jobs)})
}

// View handles GET /jobs/view.
func (h *JobsHandler) View(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	view, err := h.jobs.View(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.JobViewResponse{Scope: view.Scope, Jobs: dto.NewJobResponses(view.Jobs)}})
}

// Get handles GET /jobs/:id.
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	job, err := h.jobs.Get(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewJobResponse(job)})
}

// Create handles POST /jobs.
func (h *JobsHandler) Create(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.CreateJobInput{
		JobRef:       req.JobRef,
		ImporterName: req.ImporterName,
		AllocatedTo:  nonEmpty(req.AllocatedTo),
	}
	if req.ETD != nil && strings.TrimSpace(*req.ETD) != "" {
		etd, err := parseETD(*req.ETD)
		if err != nil {
			return err
		}
		input.ETD = &etd
	}
	job, err := h.jobs.Create(c.UserContext(), principal, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewJobResponse(job)})
}

// Edit handles PATCH /jobs/:id.
func (h *JobsHandler) Edit(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	var req dto.EditJobRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.EditJobInput{
		JobRef:          req.JobRef,
		ImporterName:    req.ImporterName,
		AllocatedTo:     nonEmpty(req.AllocatedTo),
		ClearAllocation: req.ClearAllocation,
		Status:          req.Status,
		QueryDetails:    req.QueryDetails,
	}
	if req.ETD != nil {
		if strings.TrimSpace(*req.ETD) == "" {
			input.ClearETD = true
		} else {
			etd, err := parseETD(*req.ETD)
			if err != nil {
				return err
			}
			input.ETD = &etd
		}
	}
	job, err := h.jobs.Edit(c.UserContext(), principal, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewJobResponse(job)})
}

// Delete handles DELETE /jobs/:id.
func (h *JobsHandler) Delete(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	if err := h.jobs.Delete(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Allocate handles POST /jobs/:id/allocate.
func (h *JobsHandler) Allocate(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	var req dto.AllocateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	job, err := h.jobs.Allocate(c.UserContext(), principal, c.Params("id"), req.AllocatedTo)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewJobResponse(job)})
}

// Claim handles POST /jobs/:id/claim.
func (h *JobsHandler) Claim(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	job, err := h.jobs.Claim(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewJobResponse(job)})
}

// UpdateStatus handles POST /jobs/:id/status.
func (h *JobsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	job, err := h.jobs.UpdateStatus(c.UserContext(), principal, c.Params("id"), req.Status, req.QueryDetails)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewJobResponse(job)})
}

// Import handles POST /jobs/import with a multipart file field.
func (h *JobsHandler) Import(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	header, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewFieldError("file", "a file upload is required")
	}
	if h.maxImportBytes > 0 && header.Size > h.maxImportBytes {
		return apperrors.NewFieldError("file", "file exceeds the upload limit")
	}
	file, err := header.Open()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	defer file.Close()

	result, err := h.imports.Import(c.UserContext(), principal, header.Filename, file)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": result})
}

func parseJobListQuery(c *fiber.Ctx) (service.JobListInput, error) {
	input := service.JobListInput{Scope: service.JobScope(c.Query("scope", string(service.ScopeAll)))}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				input.Statuses = append(input.Statuses, domain.JobStatus(s))
			}
		}
	}
	var err error
	if input.Limit, err = queryInt(c, "limit"); err != nil {
		return input, err
	}
	if input.Offset, err = queryInt(c, "offset"); err != nil {
		return input, err
	}
	return input, nil
}

func queryInt(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewFieldError(key, key+" must be a non-negative integer")
	}
	return n, nil
}

func parseETD(raw string) (time.Time, error) {
	etd, err := dto.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperrors.NewFieldError("etd", "etd must be a date in YYYY-MM-DD form")
	}
	return etd, nil
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
