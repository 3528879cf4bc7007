package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/job-tracker/internal/api/dto"
	"github.com/spec-kit/job-tracker/internal/auth"
	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/events"
	"github.com/spec-kit/job-tracker/internal/observability"
	"github.com/spec-kit/job-tracker/internal/realtime"
	"github.com/spec-kit/job-tracker/internal/service"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

// RevocationChecker reports whether a session has been signed out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RoleResolver loads the roles a user holds right now.
type RoleResolver interface {
	RolesOf(ctx context.Context, userID string) (domain.RoleSet, error)
}

// StreamHandler pushes live view snapshots as Server-Sent Events.
type StreamHandler struct {
	base        context.Context
	feed        events.Feed
	jobs        *service.JobService
	reports     *service.ReportService
	roles       RoleResolver
	revocations RevocationChecker
	metrics     *observability.Metrics
	heartbeat   time.Duration
	logger      *zap.Logger
}

// StreamDependencies bundles collaborators for the stream handler.
type StreamDependencies struct {
	// Base bounds every stream; cancelling it ends them all.
	Base        context.Context
	Feed        events.Feed
	Jobs        *service.JobService
	Reports     *service.ReportService
	// Roles re-resolves the viewer on every reload so a revoked role ends
	// the stream.
	Roles       RoleResolver
	Revocations RevocationChecker
	Metrics     *observability.Metrics
	Heartbeat   time.Duration
	Logger      *zap.Logger
}

// NewStreamHandler constructs handler.
func NewStreamHandler(deps StreamDependencies) *StreamHandler {
	base := deps.Base
	if base == nil {
		base = context.Background()
	}
	heartbeat := deps.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		base:        base,
		feed:        deps.Feed,
		jobs:        deps.Jobs,
		reports:     deps.Reports,
		roles:       deps.Roles,
		revocations: deps.Revocations,
		metrics:     deps.Metrics,
		heartbeat:   heartbeat,
		logger:      logger,
	}
}

// Jobs handles GET /jobs/stream.
func (h *StreamHandler) Jobs(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	load := func(ctx context.Context) (dto.JobViewResponse, error) {
		actor, err := h.resolve(ctx, principal)
		if err != nil {
			return dto.JobViewResponse{}, err
		}
		view, err := h.jobs.View(ctx, actor)
		if err != nil {
			return dto.JobViewResponse{}, err
		}
		return dto.JobViewResponse{Scope: view.Scope, Jobs: dto.NewJobResponses(view.Jobs)}, nil
	}
	allowed := func(p *domain.Principal) error {
		if !p.Can(domain.CapViewAllJobs) && !p.Can(domain.CapViewOwnJobs) {
			return apperrors.NewForbidden("you have no role that can view jobs")
		}
		return nil
	}
	return openStream(h, c, "jobs", principal, allowed, load)
}

// Reports handles GET /reports/stream.
func (h *StreamHandler) Reports(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	allowed := func(p *domain.Principal) error {
		if !p.Can(domain.CapViewReports) {
			return apperrors.NewForbidden("you cannot view reports")
		}
		return nil
	}
	if err := allowed(principal); err != nil {
		return err
	}
	load := func(ctx context.Context) (dto.ReportResponse, error) {
		actor, err := h.resolve(ctx, principal)
		if err != nil {
			return dto.ReportResponse{}, err
		}
		report, err := h.reports.Summary(ctx, actor)
		if err != nil {
			return dto.ReportResponse{}, err
		}
		return dto.NewReportResponse(report), nil
	}
	return openStream(h, c, "reports", principal, allowed, load)
}

// resolve rebuilds the principal from the roles held now. Without a
// resolver the principal from the request is used as is.
func (h *StreamHandler) resolve(ctx context.Context, principal *domain.Principal) (*domain.Principal, error) {
	if h.roles == nil {
		return principal, nil
	}
	roles, err := h.roles.RolesOf(ctx, principal.UserID())
	if err != nil {
		return nil, err
	}
	fresh := domain.NewPrincipal(principal.Profile, roles)
	fresh.SessionID = principal.SessionID
	return fresh, nil
}

// openStream runs the initial load while the request can still fail with a
// normal error response, then hands the session to the body writer.
func openStream[T any](h *StreamHandler, c *fiber.Ctx, name string, principal *domain.Principal, allowed func(*domain.Principal) error, load realtime.Loader[T]) error {
	session, ok := auth.SessionFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	tokenID := session.TokenID

	ctx, cancel := context.WithCancel(h.base)
	live, err := realtime.Open(ctx, h.feed, events.MaskAll, load)
	if err != nil {
		cancel()
		return err
	}
	closed := h.metrics.SessionOpened(name)

	// A failed lookup is retried on the next tick; only a definite loss of
	// access ends the stream.
	recheck := func(ctx context.Context) error {
		actor, err := h.resolve(ctx, principal)
		if err != nil {
			h.logger.Warn("stream role check failed", zap.Error(err))
			return nil
		}
		return allowed(actor)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer closed()
		defer cancel()
		defer live.Close()
		pump(ctx, h, w, tokenID, live, recheck)
	})
	return nil
}

// pump writes snapshots until the session ends, the client goes away, the
// token is revoked or the viewer loses the role the stream needs. A failed
// flush means the client has disconnected.
func pump[T any](ctx context.Context, h *StreamHandler, w *bufio.Writer, tokenID string, live *realtime.Session[T], recheck func(context.Context) error) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case snapshot, ok := <-live.Updates():
			if !ok {
				return
			}
			if snapshot.Err != nil {
				domainErr := apperrors.ToDomainError(snapshot.Err)
				h.logger.Warn("stream reload failed", zap.Error(snapshot.Err))
				writeEvent(w, "error", snapshot.Version, fiber.Map{"code": domainErr.Code, "message": domainErr.Message})
				if domainErr.Code == apperrors.CodeForbidden {
					_ = w.Flush()
					return
				}
			} else {
				writeEvent(w, "snapshot", snapshot.Version, snapshot.Value)
			}
			if err := w.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			revoked, err := h.revocations.IsRevoked(ctx, tokenID)
			if err == nil && revoked {
				writeEvent(w, "signed_out", 0, fiber.Map{"reason": "session has ended"})
				_ = w.Flush()
				return
			}
			if err := recheck(ctx); err != nil {
				domainErr := apperrors.ToDomainError(err)
				writeEvent(w, "error", 0, fiber.Map{"code": domainErr.Code, "message": domainErr.Message})
				_ = w.Flush()
				return
			}
			if _, err := w.WriteString(": heartbeat\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(w *bufio.Writer, name string, id uint64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{"code":"INTERNAL_ERROR","message":"encode failed"}`)
		name = "error"
	}
	if id > 0 {
		fmt.Fprintf(w, "id: %d\n", id)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
