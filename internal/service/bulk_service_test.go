package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adp-bulkops/internal/dto"
	"github.com/noah-isme/adp-bulkops/internal/models"
	appErrors "github.com/noah-isme/adp-bulkops/pkg/errors"
	"github.com/noah-isme/adp-bulkops/pkg/jobs"
)

type bulkFixture struct {
	runs     *runStoreStub
	outcomes *outcomeStoreStub
	writer   *roleWriterStub
	resolver *resolverStub
	svc      *BulkService
}

func newBulkFixture(t *testing.T, subjects []models.Subject) *bulkFixture {
	t.Helper()
	runs := newRunStoreStub()
	outcomes := &outcomeStoreStub{}
	writer := newRoleWriterStub()
	for _, s := range subjects {
		writer.roles[s.ID] = s.Role
	}
	resolver := &resolverStub{subjects: subjects}

	parser := NewBulkParser(1000)
	validator := NewBulkValidator(resolver, &policyStub{}, nil)
	executor := executorFixture(runs, outcomes, writer, &auditSinkStub{})
	svc := NewBulkService(parser, validator, executor, nil, nil, runs, outcomes, nil, BulkServiceConfig{SyncThreshold: 100})

	return &bulkFixture{runs: runs, outcomes: outcomes, writer: writer, resolver: resolver, svc: svc}
}

func TestBulkServiceSubmitIdentifierList(t *testing.T) {
	f := newBulkFixture(t, []models.Subject{
		subjectFixture("u-1", "alice@school.test", models.RoleStudent),
		subjectFixture("u-2", "bob@school.test", models.RoleStudent),
	})

	resp, err := f.svc.Submit(context.Background(), "admin-1", dto.SubmitBulkRunRequest{
		Identifiers:   []string{"alice@school.test", "bob@school.test"},
		TargetRole:    models.RoleTeacher,
		Justification: "new term",
	})
	require.NoError(t, err)
	require.False(t, resp.Async)
	require.NotNil(t, resp.Run)
	require.Equal(t, models.RunStatusCompleted, resp.Run.Status)
	require.Equal(t, 2, resp.Run.SuccessCount)
	require.Equal(t, "admin-1", resp.Run.InitiatedBy)
	require.Equal(t, models.RoleTeacher, f.writer.roles["u-1"])
	require.Equal(t, models.RoleTeacher, f.writer.roles["u-2"])
}

func TestBulkServiceSubmitPayload(t *testing.T) {
	f := newBulkFixture(t, []models.Subject{
		subjectFixture("u-1", "alice@school.test", models.RoleStudent),
	})

	payload := "email,role\nalice@school.test,TEACHER\n"
	resp, err := f.svc.Submit(context.Background(), "admin-1", dto.SubmitBulkRunRequest{
		Payload:       payload,
		Justification: "import",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Run)
	require.Equal(t, models.RunStatusCompleted, resp.Run.Status)
	require.Equal(t, models.RoleTeacher, f.writer.roles["u-1"])
	// Run-level justification backfills rows that carry none.
	require.Len(t, f.outcomes.outcomes, 1)
}

func TestBulkServiceValidateOnlyCreatesNoRun(t *testing.T) {
	f := newBulkFixture(t, []models.Subject{
		subjectFixture("u-1", "alice@school.test", models.RoleStudent),
	})

	resp, err := f.svc.Submit(context.Background(), "admin-1", dto.SubmitBulkRunRequest{
		Identifiers: []string{"alice@school.test"},
		TargetRole:  models.RoleTeacher,
		Options:     dto.RunOptionsRequest{ValidateOnly: true},
	})
	require.NoError(t, err)
	require.Nil(t, resp.Run)
	require.Equal(t, 1, resp.Report.ItemCount)
	require.Empty(t, f.runs.runs)
	require.Equal(t, models.RoleStudent, f.writer.roles["u-1"])
}

func TestBulkServiceRejectsBothInputForms(t *testing.T) {
	f := newBulkFixture(t, nil)

	_, err := f.svc.Submit(context.Background(), "admin-1", dto.SubmitBulkRunRequest{
		Identifiers: []string{"alice@school.test"},
		Payload:     "email\nbob@school.test\n",
		TargetRole:  models.RoleTeacher,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestBulkServiceRejectsEmptySubmission(t *testing.T) {
	f := newBulkFixture(t, nil)

	_, err := f.svc.Submit(context.Background(), "admin-1", dto.SubmitBulkRunRequest{
		TargetRole: models.RoleTeacher,
	})
	require.Equal(t, appErrors.ErrEmptyPayload, err)
}

func TestBulkServiceRejectsOversizedPayload(t *testing.T) {
	f := newBulkFixture(t, nil)
	parserSmall := NewBulkParser(2)
	f.svc.parser = parserSmall

	var sb strings.Builder
	sb.WriteString("email,role\n")
	for _, u := range []string{"a", "b", "c"} {
		sb.WriteString(u + "@school.test,TEACHER\n")
	}

	_, err := f.svc.Submit(context.Background(), "admin-1", dto.SubmitBulkRunRequest{
		Payload: sb.String(),
	})
	require.Equal(t, appErrors.ErrPayloadTooLarge, err)
	require.Empty(t, f.runs.runs)
}

func TestBulkServiceAllInvalidReturnsReportOnly(t *testing.T) {
	f := newBulkFixture(t, nil)

	resp, err := f.svc.Submit(context.Background(), "admin-1", dto.SubmitBulkRunRequest{
		Identifiers: []string{"ghost@school.test"},
		TargetRole:  models.RoleTeacher,
	})
	require.NoError(t, err)
	require.Nil(t, resp.Run)
	require.Len(t, resp.Report.Errors, 1)
	require.Equal(t, models.CodeSubjectNotFound, resp.Report.Errors[0].Code)
	require.Empty(t, f.runs.runs)
}

func TestBulkServicePreview(t *testing.T) {
	f := newBulkFixture(t, []models.Subject{
		subjectFixture("u-1", "alice@school.test", models.RoleTeacher),
	})

	report, err := f.svc.Preview(context.Background(), dto.SubmitBulkRunRequest{
		Payload: "email,role\nalice@school.test,TEACHER\nghost@school.test,TEACHER\n",
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.ItemCount)
	require.Len(t, report.Errors, 1)
	// Same-role rows surface as warnings in the preview.
	require.NotEmpty(t, report.Warnings)
	require.Empty(t, f.runs.runs)
}

func TestBulkServiceExport(t *testing.T) {
	f := newBulkFixture(t, []models.Subject{
		subjectFixture("u-1", "alice@school.test", models.RoleStudent),
	})

	resp, err := f.svc.Submit(context.Background(), "admin-1", dto.SubmitBulkRunRequest{
		Identifiers: []string{"alice@school.test"},
		TargetRole:  models.RoleTeacher,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Run)

	data, filename, err := f.svc.Export(context.Background(), resp.Run.ID)
	require.NoError(t, err)
	require.Equal(t, "bulk_run_"+resp.Run.ID+".csv", filename)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "subject_id")
	require.Contains(t, lines[1], "alice@school.test")
	require.Contains(t, lines[1], "SUCCESS")
}

func TestBulkServiceEnqueuesLargeRuns(t *testing.T) {
	f := newBulkFixture(t, []models.Subject{
		subjectFixture("u-1", "alice@school.test", models.RoleStudent),
		subjectFixture("u-2", "bob@school.test", models.RoleStudent),
	})
	f.svc.cfg.SyncThreshold = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue := jobs.NewQueue("test-runs", f.svc.HandleJob, jobs.QueueConfig{Workers: 1})
	queue.Start(ctx)
	defer queue.Stop()
	f.svc.BindQueue(queue)

	resp, err := f.svc.Submit(ctx, "admin-1", dto.SubmitBulkRunRequest{
		Identifiers: []string{"alice@school.test", "bob@school.test"},
		TargetRole:  models.RoleTeacher,
	})
	require.NoError(t, err)
	require.True(t, resp.Async)
	require.NotNil(t, resp.Run)
	require.Equal(t, models.RunStatusPending, resp.Run.Status)

	require.Eventually(t, func() bool {
		run, err := f.runs.GetByID(ctx, resp.Run.ID)
		return err == nil && run.Status == models.RunStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, models.RoleTeacher, f.writer.roles["u-1"])
	require.Equal(t, models.RoleTeacher, f.writer.roles["u-2"])
}

func TestBulkServiceMergesParseDiagnostics(t *testing.T) {
	f := newBulkFixture(t, []models.Subject{
		subjectFixture("u-1", "alice@school.test", models.RoleStudent),
	})

	payload := "email,role\n" +
		"alice@school.test,TEACHER\n" +
		"broken identifier,TEACHER\n"
	resp, err := f.svc.Submit(context.Background(), "admin-1", dto.SubmitBulkRunRequest{
		Payload: payload,
		Options: dto.RunOptionsRequest{ValidateOnly: true},
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Report.ItemCount)
	require.Len(t, resp.Report.Errors, 1)
	require.Equal(t, CodeMalformedIdentifier, resp.Report.Errors[0].Code)
	require.Equal(t, 3, resp.Report.Errors[0].Row)
}
