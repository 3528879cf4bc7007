package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/spec-kit/job-tracker/internal/api/http/handlers"
	"github.com/spec-kit/job-tracker/internal/auth"
	"github.com/spec-kit/job-tracker/internal/config"
	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/observability"
)

// uploadOverhead leaves room for multipart framing around an import file.
const uploadOverhead = 1 << 20

// NewApp builds the fiber application with the shared middleware chain.
func NewApp(cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		ErrorHandler:          ErrorHandler,
		BodyLimit:             cfg.Import.MaxBytes + uploadOverhead,
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	return app
}

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Jobs           *handlers.JobsHandler
	Users          *handlers.UsersHandler
	Reports        *handlers.ReportsHandler
	Streams        *handlers.StreamHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	authGroup := app.Group("/auth")
	authGroup.Post("/signup", cfg.Auth.SignUp)
	authGroup.Post("/signin", cfg.Auth.SignIn)

	session := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	session.Post("/signout", cfg.Auth.SignOut)
	session.Get("/session", cfg.Auth.Session)

	jobs := app.Group("/jobs", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	jobs.Get("/", cfg.Jobs.List)
	jobs.Get("/view", cfg.Jobs.View)
	jobs.Get("/stream", cfg.Streams.Jobs)
	jobs.Post("/import", auth.RequireCapability(domain.CapImportJobs), cfg.Jobs.Import)
	jobs.Post("/", auth.RequireCapability(domain.CapCreateJob), cfg.Jobs.Create)
	jobs.Get("/:id", cfg.Jobs.Get)
	jobs.Patch("/:id", auth.RequireCapability(domain.CapEditJob), cfg.Jobs.Edit)
	jobs.Delete("/:id", auth.RequireCapability(domain.CapDeleteJob), cfg.Jobs.Delete)
	jobs.Post("/:id/allocate", auth.RequireCapability(domain.CapAllocateJob), cfg.Jobs.Allocate)
	jobs.Post("/:id/claim", auth.RequireCapability(domain.CapClaimJob), cfg.Jobs.Claim)
	jobs.Post("/:id/status", auth.RequireCapability(domain.CapUpdateAnyStatus, domain.CapUpdateAssignedStatus), cfg.Jobs.UpdateStatus)

	reports := app.Group("/reports", cfg.AuthMiddleware.Handle, auth.RequireCapability(domain.CapViewReports))
	reports.Get("/summary", cfg.Reports.Summary)
	reports.Get("/stream", cfg.Streams.Reports)

	users := app.Group("/users", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	users.Get("/", auth.RequireCapability(domain.CapManageRoles), cfg.Users.List)
	users.Get("/declarants", auth.RequireCapability(domain.CapAllocateJob, domain.CapManageRoles), cfg.Users.Declarants)
	users.Patch("/:id/profile", cfg.Users.UpdateProfile)
	users.Post("/:id/roles", auth.RequireCapability(domain.CapManageRoles), cfg.Users.GrantRole)
	users.Delete("/:id/roles/:role", auth.RequireCapability(domain.CapManageRoles), cfg.Users.RevokeRole)
}
