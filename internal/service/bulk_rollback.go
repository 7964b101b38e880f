package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/adp-bulkops/internal/dto"
	"github.com/noah-isme/adp-bulkops/internal/models"
	appErrors "github.com/noah-isme/adp-bulkops/pkg/errors"
)

// BulkRollbackService reverts the successful mutations of a terminal run by
// issuing compensating role updates. It never touches failed or skipped items.
type BulkRollbackService struct {
	runs     runStore
	outcomes outcomeStore
	store    RoleWriter
	audit    AuditSink
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewBulkRollbackService constructs the coordinator.
func NewBulkRollbackService(runs runStore, outcomes outcomeStore, store RoleWriter, audit AuditSink, metrics *MetricsService, logger *zap.Logger) *BulkRollbackService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkRollbackService{
		runs:     runs,
		outcomes: outcomes,
		store:    store,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
	}
}

// Rollback restores each successfully mutated subject to the role recorded at
// execution time. Items whose current role no longer matches the run's target
// role are reported as conflicts and left untouched; a partial rollback still
// transitions the run to ROLLED_BACK.
func (s *BulkRollbackService) Rollback(ctx context.Context, runID, actorID, reason string) (*dto.RollbackResponse, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run")
	}
	if !run.Status.Terminal() {
		return nil, appErrors.ErrRunNotTerminal
	}
	if run.Status == models.RunStatusRolledBack {
		return nil, appErrors.ErrAlreadyRolledBack
	}

	successes, err := s.outcomes.ListSuccessful(ctx, run.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run outcomes")
	}

	resp := &dto.RollbackResponse{RunID: run.ID, Errors: []dto.ItemError{}}
	for _, outcome := range successes {
		if err := s.revertItem(ctx, outcome); err != nil {
			resp.FailedCount++
			resp.Errors = append(resp.Errors, rollbackError(outcome, err))
			s.logger.Warn("rollback item failed",
				zap.String("run_id", run.ID),
				zap.String("subject_id", outcome.SubjectID),
				zap.Error(err))
			continue
		}
		resp.RolledBackCount++
	}

	s.recordSummary(ctx, run, actorID, reason, resp.RolledBackCount)

	now := time.Now().UTC()
	if err := s.runs.TransitionStatus(ctx, run.ID, run.Status, models.RunStatusRolledBack, &now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAlreadyRolledBack
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark run rolled back")
	}

	if s.metrics != nil {
		s.metrics.ObserveRollback(resp.RolledBackCount, resp.FailedCount)
	}
	s.logger.Info("run rolled back",
		zap.String("run_id", run.ID),
		zap.String("actor_id", actorID),
		zap.Int("reverted", resp.RolledBackCount),
		zap.Int("conflicts", resp.FailedCount))
	return resp, nil
}

// revertItem writes previous_role back, conditional on the subject still
// holding the role this run assigned.
func (s *BulkRollbackService) revertItem(ctx context.Context, outcome models.ItemOutcome) error {
	err := s.store.UpdateRole(ctx, outcome.SubjectID, outcome.TargetRole, outcome.PreviousRole)
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.New(models.CodeConcurrentModification, appErrors.ErrConflict.Status,
			"subject role changed since run completion")
	}
	return err
}

func (s *BulkRollbackService) recordSummary(ctx context.Context, run *models.BulkRun, actorID, reason string, reverted int) {
	entry := &models.RoleChangeEntry{
		RunID:         run.ID,
		FromRole:      run.TargetRole,
		ActorID:       actorID,
		Justification: reason,
		IsRollback:    true,
		AffectedCount: reverted,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record rollback audit entry",
			zap.String("run_id", run.ID), zap.Error(err))
	}
}

func rollbackError(outcome models.ItemOutcome, err error) dto.ItemError {
	e := dto.ItemError{
		SubjectID:  outcome.SubjectID,
		Identifier: outcome.Identifier,
		Message:    err.Error(),
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		e.Code = appErr.Code
		e.Message = appErr.Message
	} else {
		e.Code = models.CodeStoreFailure
		e.Retryable = true
	}
	return e
}
