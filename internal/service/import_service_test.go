package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spec-kit/job-tracker/internal/domain"
	"github.com/spec-kit/job-tracker/internal/events"
	"github.com/spec-kit/job-tracker/internal/repository"
	apperrors "github.com/spec-kit/job-tracker/pkg/util"
)

func TestImportCSV(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	allocater := env.user(t, "A1", domain.RoleAllocater)

	sub, err := env.feed.Subscribe(ctx, events.MaskInsert)
	require.NoError(t, err)
	defer sub.Close()

	file := "Job Ref,Importer/Exporter,ETD\n" +
		"JR-1,Acme,2024-05-01\n" +
		",Missing Ref,\n" +
		"JR-2,Globex,02/06/2024\n"
	result, err := env.importSvc.Import(ctx, allocater, "jobs.csv", strings.NewReader(file))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, result.JobIDs, 2)

	jobs, err := env.jobs.List(ctx, repository.JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		assert.Equal(t, domain.JobStatusPending, job.Status)
		assert.Equal(t, allocater.UserID(), job.AllocatedBy)
		assert.False(t, job.IsAllocated())
		require.NotNil(t, job.ETD)
	}

	event := nextEvent(t, sub)
	assert.Equal(t, events.EventJobsImported, event.Type)
	assert.ElementsMatch(t, result.JobIDs, event.JobIDs)
}

func TestImportXLSX(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manager := env.user(t, "M1", domain.RoleManager)

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"job_ref", "Importer Name", "etd"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"X-1", "Initech", 45413}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	result, err := env.importSvc.Import(ctx, manager, "upload.xlsx", &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	job, err := env.jobs.GetByID(ctx, result.JobIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "X-1", job.JobRef)
	require.NotNil(t, job.ETD)
	assert.Equal(t, "2024-05-01", job.ETD.Format("2006-01-02"))
}

func TestImportIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manager := env.user(t, "M1", domain.RoleManager)
	env.job(t, manager, "JR-EXISTING")

	file := "Job Ref,Importer/Exporter\nJR-NEW,Acme\nJR-EXISTING,Acme\n"
	_, err := env.importSvc.Import(ctx, manager, "jobs.csv", strings.NewReader(file))
	requireCode(t, err, apperrors.CodeDuplicateReference)

	jobs, err := env.jobs.List(ctx, repository.JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1, "a failed batch writes nothing")
	assert.Equal(t, "JR-EXISTING", jobs[0].JobRef)
}

func TestImportRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manager := env.user(t, "M1", domain.RoleManager)
	declarant := env.user(t, "D1", domain.RoleDeclarant)

	cases := []struct {
		name     string
		actor    *domain.Principal
		filename string
		content  string
		code     string
	}{
		{name: "no capability", actor: declarant, filename: "a.csv", content: "Job Ref,Importer/Exporter\nJ,I\n", code: apperrors.CodeForbidden},
		{name: "unsupported format", actor: manager, filename: "a.pdf", content: "x", code: apperrors.CodeValidation},
		{name: "zero bytes", actor: manager, filename: "a.csv", content: "", code: apperrors.CodeEmptyFile},
		{name: "header only", actor: manager, filename: "a.csv", content: "Job Ref,Importer/Exporter\n", code: apperrors.CodeEmptyFile},
		{name: "missing columns", actor: manager, filename: "a.csv", content: "Reference,Client\nJ,I\n", code: apperrors.CodeMissingColumns},
		{name: "no valid rows", actor: manager, filename: "a.csv", content: "Job Ref,Importer/Exporter\nJ,\n", code: apperrors.CodeValidation},
		{name: "bad etd", actor: manager, filename: "a.csv", content: "Job Ref,Importer/Exporter,ETD\nJ,I,soon\n", code: apperrors.CodeValidation},
		{name: "duplicate in file", actor: manager, filename: "a.csv", content: "Job Ref,Importer/Exporter\nJ,I\nJ,I\n", code: apperrors.CodeDuplicateReference},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.importSvc.Import(ctx, tc.actor, tc.filename, strings.NewReader(tc.content))
			requireCode(t, err, tc.code)
		})
	}

	jobs, err := env.jobs.List(ctx, repository.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestReportSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	manager := env.user(t, "M1", domain.RoleManager)
	declarant := env.user(t, "D1", domain.RoleDeclarant)

	done := env.job(t, manager, "JR-1")
	_, err := env.jobSvc.Claim(ctx, declarant, done.ID)
	require.NoError(t, err)
	_, err = env.jobSvc.UpdateStatus(ctx, declarant, done.ID, domain.JobStatusComplete, nil)
	require.NoError(t, err)
	env.job(t, manager, "JR-2")

	report, err := env.reportSvc.Summary(ctx, manager)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Counts[domain.JobStatusComplete])
	assert.Equal(t, 1, report.Counts[domain.JobStatusPending])
	assert.InDelta(t, 0.5, report.CompletionRate, 1e-9)

	assignees := report.Assignees()
	require.Len(t, assignees, 1)
	assert.Equal(t, "User D1", assignees[0].Name)
	assert.Equal(t, 1, assignees[0].Completed)

	_, err = env.reportSvc.Summary(ctx, declarant)
	requireCode(t, err, apperrors.CodeForbidden)
}
