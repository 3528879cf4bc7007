package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/job-tracker/internal/api/http/handlers"
	"github.com/spec-kit/job-tracker/internal/auth"
	"github.com/spec-kit/job-tracker/internal/config"
	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/events"
	"github.com/spec-kit/job-tracker/internal/observability"
	"github.com/spec-kit/job-tracker/internal/persistence"
	"github.com/spec-kit/job-tracker/internal/repository"
	"github.com/spec-kit/job-tracker/internal/repository/sqlitestore"
	"github.com/spec-kit/job-tracker/internal/service"
)

type testServer struct {
	app     *fiber.App
	roles   repository.RoleRepository
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, base context.Context) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BcryptCost = bcrypt.MinCost
	cfg.Import.MaxBytes = 1 << 16

	store, err := persistence.NewSQLite(ctx, config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "jobs.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, persistence.RunSQLiteMigrations(ctx, store.DB, logger))

	feed := events.NewMemoryFeed(16)
	t.Cleanup(func() { _ = feed.Close() })
	metrics := observability.NewMetrics()

	jobRepo := sqlitestore.NewJobRepository(store.DB)
	profileRepo := sqlitestore.NewProfileRepository(store.DB)
	roleRepo := sqlitestore.NewRoleRepository(store.DB)

	authSvc := service.NewAuthService(cfg, service.AuthDependencies{
		ProfileRepo: profileRepo,
		RoleRepo:    roleRepo,
		Revocations: auth.NewMemoryRevocationStore(),
	})
	jobSvc := service.NewJobService(service.JobDependencies{
		JobRepo:     jobRepo,
		ProfileRepo: profileRepo,
		RoleRepo:    roleRepo,
		Feed:        feed,
	})
	importSvc := service.NewImportService(service.ImportDependencies{JobRepo: jobRepo, Feed: feed, Metrics: metrics})
	reportSvc := service.NewReportService(jobRepo)
	roleSvc := service.NewRoleService(service.RoleDependencies{RoleRepo: roleRepo, ProfileRepo: profileRepo})
	profileSvc := service.NewProfileService(service.ProfileDependencies{ProfileRepo: profileRepo, BcryptCost: cfg.Auth.BcryptCost})

	app := NewApp(cfg, logger, metrics)
	RegisterRoutes(app, RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{"sqlite": store}),
		Auth:    handlers.NewAuthHandler(authSvc),
		Jobs:    handlers.NewJobsHandler(jobSvc, importSvc, int64(cfg.Import.MaxBytes)),
		Users:   handlers.NewUsersHandler(roleSvc, profileSvc),
		Reports: handlers.NewReportsHandler(reportSvc),
		Streams: handlers.NewStreamHandler(handlers.StreamDependencies{
			Base:        base,
			Feed:        feed,
			Jobs:        jobSvc,
			Reports:     reportSvc,
			Roles:       roleSvc,
			Revocations: authSvc,
			Metrics:     metrics,
			Heartbeat:   20 * time.Millisecond,
		}),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(authSvc),
	})
	return &testServer{app: app, roles: roleRepo, metrics: metrics}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

// signUp registers a user, grants roles directly in the store and returns a
// token whose principal carries them.
func (s *testServer) signUp(t *testing.T, employeeID string, roles ...domain.Role) (string, string) {
	t.Helper()
	status, env := s.do(t, nethttp.MethodPost, "/auth/signup", "", map[string]string{
		"employee_id":      employeeID,
		"full_name":        "User " + employeeID,
		"password":         "password123",
		"confirm_password": "password123",
	})
	require.Equal(t, nethttp.StatusCreated, status)
	var session struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	for _, role := range roles {
		require.NoError(t, s.roles.Insert(context.Background(), &domain.RoleAssignment{UserID: session.User.ID, Role: role}))
	}
	return session.User.ID, session.Auth.Token
}

func decodeJob(t *testing.T, env envelope) map[string]any {
	t.Helper()
	var job map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &job))
	return job
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, context.Background())

	status, _ := srv.do(t, nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	status, _ = srv.do(t, nethttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)

	status, env := srv.do(t, nethttp.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	resp, err := srv.app.Test(httptest.NewRequest(nethttp.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "jobtracker_http_requests_total")
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t, context.Background())
	_, token := srv.signUp(t, "EMP1")

	status, env := srv.do(t, nethttp.MethodPost, "/auth/signin", "", map[string]string{"employee_id": "EMP1", "password": "wrong"})
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, _ = srv.do(t, nethttp.MethodGet, "/auth/session", token, nil)
	assert.Equal(t, nethttp.StatusOK, status)

	status, env = srv.do(t, nethttp.MethodGet, "/jobs/view", token, nil)
	assert.Equal(t, nethttp.StatusForbidden, status, "a user without roles sees nothing")
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, _ = srv.do(t, nethttp.MethodPost, "/auth/signout", token, nil)
	assert.Equal(t, nethttp.StatusNoContent, status)
	status, _ = srv.do(t, nethttp.MethodGet, "/auth/session", token, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
}

func TestJobLifecycleEndpoints(t *testing.T) {
	srv := newTestServer(t, context.Background())
	_, manager := srv.signUp(t, "MGR", domain.RoleManager)
	_, alice := srv.signUp(t, "ALICE", domain.RoleDeclarant)
	_, bob := srv.signUp(t, "BOB", domain.RoleDeclarant)

	status, env := srv.do(t, nethttp.MethodPost, "/jobs", manager, map[string]any{
		"job_ref":       "JR-100",
		"importer_name": "Acme",
		"etd":           "2024-06-01",
	})
	require.Equal(t, nethttp.StatusCreated, status)
	job := decodeJob(t, env)
	jobID := job["id"].(string)
	assert.Equal(t, "pending", job["status"])
	assert.Equal(t, "2024-06-01", job["etd"])

	status, env = srv.do(t, nethttp.MethodPost, "/jobs", manager, map[string]any{"job_ref": "JR-100", "importer_name": "Acme"})
	assert.Equal(t, nethttp.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DUPLICATE_REFERENCE", env.Error.Code)

	status, _ = srv.do(t, nethttp.MethodPost, "/jobs", alice, map[string]any{"job_ref": "JR-101", "importer_name": "Acme"})
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, env = srv.do(t, nethttp.MethodPost, "/jobs/"+jobID+"/claim", alice, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "processing", decodeJob(t, env)["status"])

	status, env = srv.do(t, nethttp.MethodPost, "/jobs/"+jobID+"/claim", bob, nil)
	assert.Equal(t, nethttp.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ALREADY_ALLOCATED", env.Error.Code)

	status, env = srv.do(t, nethttp.MethodPost, "/jobs/"+jobID+"/status", alice, map[string]any{"status": "query"})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = srv.do(t, nethttp.MethodPost, "/jobs/"+jobID+"/status", alice, map[string]any{"status": "query", "query_details": "awaiting invoice"})
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "awaiting invoice", decodeJob(t, env)["query_details"])

	status, _ = srv.do(t, nethttp.MethodPost, "/jobs/"+jobID+"/status", bob, map[string]any{"status": "complete"})
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, _ = srv.do(t, nethttp.MethodGet, "/jobs/"+jobID, bob, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)

	status, env = srv.do(t, nethttp.MethodPatch, "/jobs/"+jobID, manager, map[string]any{"clear_allocation": true, "etd": ""})
	require.Equal(t, nethttp.StatusOK, status)
	edited := decodeJob(t, env)
	assert.Nil(t, edited["allocated_to"])
	assert.Nil(t, edited["etd"])

	status, env = srv.do(t, nethttp.MethodGet, "/jobs?scope=unallocated", bob, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	status, _ = srv.do(t, nethttp.MethodGet, "/jobs?limit=abc", manager, nil)
	assert.Equal(t, nethttp.StatusBadRequest, status)

	status, env = srv.do(t, nethttp.MethodGet, "/reports/summary", manager, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var report struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 1, report.Total)
	status, _ = srv.do(t, nethttp.MethodGet, "/reports/summary", alice, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, _ = srv.do(t, nethttp.MethodDelete, "/jobs/"+jobID, manager, nil)
	assert.Equal(t, nethttp.StatusNoContent, status)
}

func TestRoleEndpoints(t *testing.T) {
	srv := newTestServer(t, context.Background())
	_, admin := srv.signUp(t, "ADMIN", domain.RoleAdmin)
	userID, user := srv.signUp(t, "NEW")

	status, _ := srv.do(t, nethttp.MethodPost, "/users/"+userID+"/roles", user, map[string]string{"role": "admin"})
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, _ = srv.do(t, nethttp.MethodPost, "/users/"+userID+"/roles", admin, map[string]string{"role": "declarant"})
	assert.Equal(t, nethttp.StatusCreated, status)
	status, env := srv.do(t, nethttp.MethodPost, "/users/"+userID+"/roles", admin, map[string]string{"role": "declarant"})
	assert.Equal(t, nethttp.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DUPLICATE_ROLE_ASSIGNMENT", env.Error.Code)

	status, env = srv.do(t, nethttp.MethodGet, "/users/declarants", admin, nil)
	require.Equal(t, nethttp.StatusOK, status)
	var declarants []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &declarants))
	require.Len(t, declarants, 1)
	assert.Equal(t, userID, declarants[0]["id"])

	status, _ = srv.do(t, nethttp.MethodPatch, "/users/"+userID+"/profile", user, map[string]string{"full_name": "Renamed"})
	assert.Equal(t, nethttp.StatusOK, status)

	status, _ = srv.do(t, nethttp.MethodDelete, "/users/"+userID+"/roles/declarant", admin, nil)
	assert.Equal(t, nethttp.StatusNoContent, status)
	status, env = srv.do(t, nethttp.MethodDelete, "/users/"+userID+"/roles/declarant", admin, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ROLE_NOT_ASSIGNED", env.Error.Code)
}

func TestImportEndpoint(t *testing.T) {
	srv := newTestServer(t, context.Background())
	_, allocater := srv.signUp(t, "ALLOC", domain.RoleAllocater)

	upload := func(filename, content string) (int, envelope) {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(nethttp.MethodPost, "/jobs/import", &body)
		req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+allocater)
		resp, err := srv.app.Test(req, 5000)
		require.NoError(t, err)
		defer resp.Body.Close()
		var env envelope
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
		return resp.StatusCode, env
	}

	status, env := upload("jobs.csv", "Job Ref,Importer/Exporter\nA-1,Acme\nA-2,Globex\n")
	require.Equal(t, nethttp.StatusCreated, status)
	var result struct {
		Inserted int `json:"inserted"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 2, result.Inserted)

	status, env = upload("jobs.csv", "Reference\nA-3\n")
	assert.Equal(t, nethttp.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "MISSING_COLUMNS", env.Error.Code)

	status, env = upload("jobs.csv", "Job Ref,Importer/Exporter\nA-1,Acme\n")
	assert.Equal(t, nethttp.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DUPLICATE_REFERENCE", env.Error.Code)
}

func TestJobStreamSendsSnapshot(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := newTestServer(t, base)
	_, manager := srv.signUp(t, "MGR", domain.RoleManager)

	status, _ := srv.do(t, nethttp.MethodPost, "/jobs", manager, map[string]any{"job_ref": "JR-S", "importer_name": "Acme"})
	require.Equal(t, nethttp.StatusCreated, status)

	// Shutting the server down is what ends the stream here.
	time.AfterFunc(300*time.Millisecond, cancel)

	req := httptest.NewRequest(nethttp.MethodGet, "/jobs/stream?access_token="+manager, nil)
	req.Header.Set(fiber.HeaderAccept, "text/event-stream")
	resp, err := srv.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(fiber.HeaderContentType))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: snapshot")
	assert.Contains(t, string(body), "JR-S")
}

func TestReportStreamEndsWhenRoleIsRevoked(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := newTestServer(t, base)
	_, admin := srv.signUp(t, "BOSS", domain.RoleAdmin)
	managerID, manager := srv.signUp(t, "MGR", domain.RoleManager)

	type result struct {
		body string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		req := httptest.NewRequest(nethttp.MethodGet, "/reports/stream?access_token="+manager, nil)
		resp, err := srv.app.Test(req, 3000)
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		done <- result{body: string(body), err: err}
	}()

	require.Eventually(t, func() bool {
		n, err := testutil.GatherAndCount(srv.metrics.Gatherer(), "jobtracker_view_sessions")
		return err == nil && n > 0
	}, 2*time.Second, 10*time.Millisecond, "stream never opened")

	status, _ := srv.do(t, nethttp.MethodDelete, "/users/"+managerID+"/roles/manager", admin, nil)
	require.Equal(t, nethttp.StatusNoContent, status)
	status, _ = srv.do(t, nethttp.MethodGet, "/reports/summary", manager, nil)
	require.Equal(t, nethttp.StatusForbidden, status)
	status, _ = srv.do(t, nethttp.MethodPost, "/jobs", admin, map[string]any{"job_ref": "JR-R", "importer_name": "Acme"})
	require.Equal(t, nethttp.StatusCreated, status)

	// The stream has to end on its own; base is never cancelled before the
	// request times out.
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 1, strings.Count(res.body, "event: snapshot"), "no snapshot after the role is gone")
	assert.Contains(t, res.body, "event: error")
	assert.Contains(t, res.body, "FORBIDDEN")
	assert.NotContains(t, res.body, `"total":1`)
}
