package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adp-bulkops/internal/models"
	appErrors "github.com/noah-isme/adp-bulkops/pkg/errors"
)

func completedRunFixture(runs *runStoreStub, outcomes *outcomeStoreStub, writer *roleWriterStub) *models.BulkRun {
	now := time.Now().UTC()
	run := &models.BulkRun{
		ID:             "run-1",
		InitiatedBy:    "admin-1",
		TargetRole:     models.RoleTeacher,
		TotalItems:     3,
		ProcessedItems: 3,
		SuccessCount:   2,
		FailureCount:   0,
		SkippedCount:   1,
		Status:         models.RunStatusCompleted,
		StartedAt:      now.Add(-time.Minute),
		CompletedAt:    &now,
	}
	runs.runs[run.ID] = run

	outcomes.outcomes = []*models.ItemOutcome{
		{ID: "item-1", RunID: run.ID, SubjectID: "u-1", Identifier: "alice@school.test",
			PreviousRole: models.RoleStudent, TargetRole: models.RoleTeacher, Outcome: models.OutcomeSuccess},
		{ID: "item-2", RunID: run.ID, SubjectID: "u-2", Identifier: "bob@school.test",
			PreviousRole: models.RoleStudent, TargetRole: models.RoleTeacher, Outcome: models.OutcomeSuccess},
		{ID: "item-3", RunID: run.ID, SubjectID: "u-3", Identifier: "carol@school.test",
			PreviousRole: models.RoleTeacher, TargetRole: models.RoleTeacher, Outcome: models.OutcomeSkipped},
	}

	writer.roles["u-1"] = models.RoleTeacher
	writer.roles["u-2"] = models.RoleTeacher
	writer.roles["u-3"] = models.RoleTeacher
	return run
}

func TestBulkRollbackRestoresPreviousRoles(t *testing.T) {
	runs := newRunStoreStub()
	outcomes := &outcomeStoreStub{}
	writer := newRoleWriterStub()
	audit := &auditSinkStub{}
	run := completedRunFixture(runs, outcomes, writer)

	svc := NewBulkRollbackService(runs, outcomes, writer, audit, nil, nil)
	result, err := svc.Rollback(context.Background(), run.ID, "super-1", "mistaken cohort")
	require.NoError(t, err)
	require.Equal(t, 2, result.RolledBackCount)
	require.Zero(t, result.FailedCount)

	require.Equal(t, models.RoleStudent, writer.roles["u-1"])
	require.Equal(t, models.RoleStudent, writer.roles["u-2"])
	// Skipped items are never touched.
	require.Equal(t, models.RoleTeacher, writer.roles["u-3"])
	require.Zero(t, writer.attempts["u-3"])

	stored, err := runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusRolledBack, stored.Status)

	require.Len(t, audit.entries, 1)
	require.True(t, audit.entries[0].IsRollback)
	require.Equal(t, 2, audit.entries[0].AffectedCount)
	require.Equal(t, "super-1", audit.entries[0].ActorID)
	require.Equal(t, "mistaken cohort", audit.entries[0].Justification)
}

func TestBulkRollbackPartialConflict(t *testing.T) {
	runs := newRunStoreStub()
	outcomes := &outcomeStoreStub{}
	writer := newRoleWriterStub()
	run := completedRunFixture(runs, outcomes, writer)

	// u-2 was changed again after the run; its rollback must conflict but
	// never block u-1.
	writer.roles["u-2"] = models.RoleAdmin

	svc := NewBulkRollbackService(runs, outcomes, writer, &auditSinkStub{}, nil, nil)
	result, err := svc.Rollback(context.Background(), run.ID, "super-1", "cleanup")
	require.NoError(t, err)
	require.Equal(t, 1, result.RolledBackCount)
	require.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Errors, 1)
	require.Equal(t, models.CodeConcurrentModification, result.Errors[0].Code)
	require.Equal(t, "u-2", result.Errors[0].SubjectID)

	require.Equal(t, models.RoleStudent, writer.roles["u-1"])
	require.Equal(t, models.RoleAdmin, writer.roles["u-2"])

	// A partial rollback still settles the run.
	stored, err := runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusRolledBack, stored.Status)
}

func TestBulkRollbackRequiresTerminalRun(t *testing.T) {
	runs := newRunStoreStub()
	outcomes := &outcomeStoreStub{}
	writer := newRoleWriterStub()
	run := completedRunFixture(runs, outcomes, writer)
	runs.runs[run.ID].Status = models.RunStatusProcessing

	svc := NewBulkRollbackService(runs, outcomes, writer, &auditSinkStub{}, nil, nil)
	_, err := svc.Rollback(context.Background(), run.ID, "super-1", "too soon")
	require.Equal(t, appErrors.ErrRunNotTerminal, err)
	require.Zero(t, writer.attempts["u-1"])
}

func TestBulkRollbackRejectsSecondRollback(t *testing.T) {
	runs := newRunStoreStub()
	outcomes := &outcomeStoreStub{}
	writer := newRoleWriterStub()
	run := completedRunFixture(runs, outcomes, writer)
	runs.runs[run.ID].Status = models.RunStatusRolledBack

	svc := NewBulkRollbackService(runs, outcomes, writer, &auditSinkStub{}, nil, nil)
	_, err := svc.Rollback(context.Background(), run.ID, "super-1", "again")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrAlreadyRolledBack, err)
}

func TestBulkRollbackUnknownRun(t *testing.T) {
	svc := NewBulkRollbackService(newRunStoreStub(), &outcomeStoreStub{}, newRoleWriterStub(), &auditSinkStub{}, nil, nil)
	_, err := svc.Rollback(context.Background(), "missing", "super-1", "x")
	require.Equal(t, appErrors.ErrNotFound, err)
}
