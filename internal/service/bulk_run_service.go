package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/adp-bulkops/internal/models"
	"github.com/noah-isme/adp-bulkops/internal/repository"
	appErrors "github.com/noah-isme/adp-bulkops/pkg/errors"
)

type runStore interface {
	Create(ctx context.Context, run *models.BulkRun) error
	GetByID(ctx context.Context, id string) (*models.BulkRun, error)
	List(ctx context.Context, filter models.RunFilter) ([]models.BulkRun, error)
	TransitionStatus(ctx context.Context, id string, from, to models.RunStatus, completedAt *time.Time) error
	UpdateProgress(ctx context.Context, id string, params repository.RunProgressParams) error
}

type outcomeStore interface {
	Insert(ctx context.Context, outcome *models.ItemOutcome) error
	MarkResult(ctx context.Context, id string, params repository.OutcomeResultParams) error
	ListByRun(ctx context.Context, filter models.OutcomeFilter) ([]models.ItemOutcome, error)
	ListSuccessful(ctx context.Context, runID string) ([]models.ItemOutcome, error)
	ListFailures(ctx context.Context, runID string, limit int) ([]models.ItemOutcome, error)
}

// RoleWriter is the record store's write surface. Implementations must make
// the write conditional on the expected current role and return
// sql.ErrNoRows when the condition no longer holds.
type RoleWriter interface {
	UpdateRole(ctx context.Context, id string, from, to models.UserRole) error
}

// AuditSink accepts immutable, timestamped role-change entries.
type AuditSink interface {
	Record(ctx context.Context, entry *models.RoleChangeEntry) error
}

// BulkRunConfig bounds batch and retry behaviour.
type BulkRunConfig struct {
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// BulkRunService applies a validated item set against the record store in
// fixed-size batches, checkpointing run counters after every batch.
type BulkRunService struct {
	runs     runStore
	outcomes outcomeStore
	store    RoleWriter
	audit    AuditSink
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      BulkRunConfig
}

// NewBulkRunService constructs the executor.
func NewBulkRunService(runs runStore, outcomes outcomeStore, store RoleWriter, audit AuditSink, metrics *MetricsService, logger *zap.Logger, cfg BulkRunConfig) *BulkRunService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &BulkRunService{
		runs:     runs,
		outcomes: outcomes,
		store:    store,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// BatchSizeFor resolves the effective batch size for a run.
func (s *BulkRunService) BatchSizeFor(run *models.BulkRun) int {
	if run != nil && run.Options.BatchSize > 0 {
		return run.Options.BatchSize
	}
	return s.cfg.BatchSize
}

// TotalBatches computes the batch count for a run.
func (s *BulkRunService) TotalBatches(run *models.BulkRun) int {
	if run == nil || run.TotalItems == 0 {
		return 0
	}
	size := s.BatchSizeFor(run)
	return (run.TotalItems + size - 1) / size
}

// Execute drives a run from PENDING to a terminal state. An item failure
// never aborts its batch or the run; only a failure before the first batch
// starts (status transition, storage unreachable) propagates as an error.
func (s *BulkRunService) Execute(ctx context.Context, run *models.BulkRun, items []ValidatedItem) (*models.BulkRun, error) {
	if run.Status != models.RunStatusPending {
		return nil, errors.New("run is not pending")
	}

	if len(items) == 0 {
		now := time.Now().UTC()
		if err := s.runs.TransitionStatus(ctx, run.ID, models.RunStatusPending, models.RunStatusCompleted, &now); err != nil {
			return nil, err
		}
		run.Status = models.RunStatusCompleted
		run.CompletedAt = &now
		s.observeRun(run, time.Since(run.StartedAt))
		return run, nil
	}

	if err := s.runs.TransitionStatus(ctx, run.ID, models.RunStatusPending, models.RunStatusProcessing, nil); err != nil {
		return nil, err
	}
	run.Status = models.RunStatusProcessing
	started := time.Now()

	batchSize := s.BatchSizeFor(run)
	var processed, successes, failures, skips int
	for offset := 0; offset < len(items); offset += batchSize {
		end := offset + batchSize
		if end > len(items) {
			end = len(items)
		}
		for _, item := range items[offset:end] {
			switch s.applyItem(ctx, run, item) {
			case models.OutcomeSuccess:
				successes++
			case models.OutcomeSkipped:
				skips++
			default:
				failures++
			}
			processed++
		}

		// Durable checkpoint between batches; a crash leaves an accurate
		// progress marker for re-submission of the remainder.
		if err := s.runs.UpdateProgress(ctx, run.ID, repository.RunProgressParams{
			ProcessedItems: processed,
			SuccessCount:   successes,
			FailureCount:   failures,
			SkippedCount:   skips,
		}); err != nil {
			s.logger.Warn("failed to checkpoint run progress",
				zap.String("run_id", run.ID),
				zap.Int("processed", processed),
				zap.Error(err))
		}
	}

	final := models.RunStatusCompleted
	if failures > 0 {
		final = models.RunStatusFailed
	}
	now := time.Now().UTC()
	if err := s.runs.TransitionStatus(ctx, run.ID, models.RunStatusProcessing, final, &now); err != nil {
		s.logger.Error("failed to finalise run status",
			zap.String("run_id", run.ID),
			zap.String("status", string(final)),
			zap.Error(err))
	}

	run.Status = final
	run.CompletedAt = &now
	run.ProcessedItems = processed
	run.SuccessCount = successes
	run.FailureCount = failures
	run.SkippedCount = skips
	s.observeRun(run, time.Since(started))
	return run, nil
}

// applyItem processes one item to a terminal outcome.
func (s *BulkRunService) applyItem(ctx context.Context, run *models.BulkRun, item ValidatedItem) models.OutcomeStatus {
	outcome := &models.ItemOutcome{
		RunID:        run.ID,
		SubjectID:    item.SubjectID,
		Identifier:   item.Identifier,
		PreviousRole: item.CurrentRole,
		TargetRole:   item.TargetRole,
		Outcome:      models.OutcomePending,
	}
	if err := s.outcomes.Insert(ctx, outcome); err != nil {
		s.logger.Error("failed to write pending outcome",
			zap.String("run_id", run.ID),
			zap.String("subject_id", item.SubjectID),
			zap.Error(err))
		s.observeItem(models.OutcomeFailed)
		return models.OutcomeFailed
	}

	if item.NoOp {
		s.finishItem(ctx, outcome.ID, repository.OutcomeResultParams{
			Outcome:   models.OutcomeSkipped,
			ErrorCode: strPtr(models.CodeSameRole),
		})
		s.observeItem(models.OutcomeSkipped)
		return models.OutcomeSkipped
	}

	applyErr := s.updateWithRetry(ctx, item)
	if applyErr == nil {
		now := time.Now().UTC()
		s.finishItem(ctx, outcome.ID, repository.OutcomeResultParams{
			Outcome:   models.OutcomeSuccess,
			AppliedAt: &now,
		})
		s.emitAudit(ctx, run, item)
		s.observeItem(models.OutcomeSuccess)
		return models.OutcomeSuccess
	}

	params := repository.OutcomeResultParams{
		Outcome:      models.OutcomeFailed,
		ErrorMessage: strPtr(applyErr.Error()),
		Retryable:    true,
	}
	if errors.Is(applyErr, sql.ErrNoRows) {
		params.ErrorType = errTypePtr(models.ErrorTypeStore)
		params.ErrorCode = strPtr(models.CodeConcurrentModification)
		params.ErrorMessage = strPtr("subject role changed since validation")
	} else {
		params.ErrorType = errTypePtr(models.ErrorTypeSystem)
		params.ErrorCode = strPtr(models.CodeRetriesExhausted)
	}
	s.finishItem(ctx, outcome.ID, params)
	s.observeItem(models.OutcomeFailed)
	return models.OutcomeFailed
}

// updateWithRetry retries transient store failures with backoff. A failed
// conditional write (sql.ErrNoRows) is not transient and never retried.
func (s *BulkRunService) updateWithRetry(ctx context.Context, item ValidatedItem) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.store.UpdateRole(ctx, item.SubjectID, item.CurrentRole, item.TargetRole)
		if err == nil || errors.Is(err, sql.ErrNoRows) || attempt >= s.cfg.MaxRetries {
			return err
		}
		timer := time.NewTimer(s.cfg.RetryDelay * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (s *BulkRunService) finishItem(ctx context.Context, outcomeID string, params repository.OutcomeResultParams) {
	if err := s.outcomes.MarkResult(ctx, outcomeID, params); err != nil {
		s.logger.Error("failed to finalise item outcome",
			zap.String("outcome_id", outcomeID),
			zap.String("outcome", string(params.Outcome)),
			zap.Error(err))
	}
}

func (s *BulkRunService) emitAudit(ctx context.Context, run *models.BulkRun, item ValidatedItem) {
	if s.audit == nil {
		return
	}
	entry := &models.RoleChangeEntry{
		RunID:         run.ID,
		SubjectID:     &item.SubjectID,
		FromRole:      item.CurrentRole,
		ToRole:        item.TargetRole,
		ActorID:       run.InitiatedBy,
		Justification: item.Justification,
		AffectedCount: 1,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit entry",
			zap.String("run_id", run.ID),
			zap.String("subject_id", item.SubjectID),
			zap.Error(err))
	}
}

func (s *BulkRunService) observeRun(run *models.BulkRun, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRun(string(run.Status), run.TotalItems, elapsed)
}

func (s *BulkRunService) observeItem(outcome models.OutcomeStatus) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveItem(string(outcome))
}

// Get returns a run by id.
func (s *BulkRunService) Get(ctx context.Context, id string) (*models.BulkRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List returns runs matching a filter.
func (s *BulkRunService) List(ctx context.Context, filter models.RunFilter) ([]models.BulkRun, error) {
	return s.runs.List(ctx, filter)
}

func strPtr(v string) *string {
	return &v
}

func errTypePtr(v models.ErrorType) *models.ErrorType {
	return &v
}
