package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/job-tracker/internal/config"
	"github.com/spec-kit/job-tracker/internal/platform"
	"github.com/spec-kit/job-tracker/internal/service"
)

func setupStore(t *testing.T, employeeIDs ...string) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORE_DRIVER", config.StoreDriverSQLite)
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "jobs.db"))
	t.Setenv("FEED_DRIVER", config.FeedDriverMemory)
	t.Setenv("AUTH_REVOCATION_DRIVER", config.RevocationDriverMemory)
	t.Setenv("AUTH_BCRYPT_COST", "4")

	cfg, err := config.Load()
	require.NoError(t, err)
	ctx := context.Background()
	backends, err := platform.Open(ctx, *cfg, zap.NewNop())
	require.NoError(t, err)
	defer backends.Close()

	auth := service.NewAuthService(*cfg, service.AuthDependencies{
		ProfileRepo: backends.Profiles,
		RoleRepo:    backends.Roles,
		Revocations: backends.Revocations,
	})
	for _, id := range employeeIDs {
		_, _, err := auth.SignUp(ctx, service.SignUpInput{
			EmployeeID:      id,
			FullName:        "User " + id,
			Password:        "password123",
			ConfirmPassword: "password123",
		})
		require.NoError(t, err)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := RootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestBootstrapOnlyOnce(t *testing.T) {
	setupStore(t, "EMP1", "EMP2")

	out, err := run(t, "bootstrap", "--employee-id", "EMP1")
	require.NoError(t, err)
	assert.Contains(t, out, "is now an admin")

	_, err = run(t, "bootstrap", "--employee-id", "EMP2")
	assert.Error(t, err)

	_, err = run(t, "bootstrap", "--employee-id", "NOBODY")
	assert.Error(t, err)
}

func TestRoleCommands(t *testing.T) {
	setupStore(t, "EMP1")

	out, err := run(t, "roles", "grant", "--employee-id", "EMP1", "--role", "Declarant")
	require.NoError(t, err)
	assert.Contains(t, out, "declarant granted for EMP1")

	_, err = run(t, "roles", "grant", "--employee-id", "EMP1", "--role", "declarant")
	assert.Error(t, err, "granting twice is rejected")

	out, err = run(t, "roles", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "EMP1")
	assert.Contains(t, out, "declarant")

	_, err = run(t, "roles", "revoke", "--employee-id", "EMP1", "--role", "declarant")
	require.NoError(t, err)
	_, err = run(t, "roles", "revoke", "--employee-id", "EMP1", "--role", "declarant")
	assert.Error(t, err)

	_, err = run(t, "roles", "grant", "--employee-id", "EMP1")
	assert.Error(t, err, "role flag is required")
}

func TestImportAndReport(t *testing.T) {
	setupStore(t, "ALLOC", "DECL")
	_, err := run(t, "roles", "grant", "--employee-id", "ALLOC", "--role", "allocater")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "jobs.csv")
	require.NoError(t, os.WriteFile(path, []byte("Job Ref,Importer/Exporter\nC-1,Acme\nC-2,Globex\n,missing ref\n"), 0o600))

	_, err = run(t, "import", "--file", path, "--as", "DECL")
	assert.Error(t, err, "a user without the import capability is refused")

	out, err := run(t, "import", "--file", path, "--as", "ALLOC")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 jobs, skipped 1 incomplete rows")

	out, err = run(t, "report")
	require.NoError(t, err)
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "0.0%")
}
