package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/adp-bulkops/internal/dto"
	"github.com/noah-isme/adp-bulkops/internal/models"
	appErrors "github.com/noah-isme/adp-bulkops/pkg/errors"
)

type statusCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// BulkStatusConfig tunes the read-side projection.
type BulkStatusConfig struct {
	DefaultBatchSize int
	PerItemLatency   time.Duration
	CacheTTL         time.Duration
	MaxErrors        int
}

// BulkStatusService is a read-side projection over runs and outcomes. It
// never mutates engine state.
type BulkStatusService struct {
	runs     runStore
	outcomes outcomeStore
	cache    statusCache
	logger   *zap.Logger
	cfg      BulkStatusConfig
}

// NewBulkStatusService constructs the aggregator.
func NewBulkStatusService(runs runStore, outcomes outcomeStore, cache statusCache, logger *zap.Logger, cfg BulkStatusConfig) *BulkStatusService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = 50
	}
	if cfg.PerItemLatency <= 0 {
		cfg.PerItemLatency = 40 * time.Millisecond
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Second
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 100
	}
	return &BulkStatusService{runs: runs, outcomes: outcomes, cache: cache, logger: logger, cfg: cfg}
}

func statusCacheKey(runID string) string {
	return fmt.Sprintf("bulk:status:%s", runID)
}

// Status returns the point-in-time projection for one run.
func (s *BulkStatusService) Status(ctx context.Context, runID string) (*dto.RunStatusResponse, error) {
	if s.cache != nil {
		var cached dto.RunStatusResponse
		if err := s.cache.Get(ctx, statusCacheKey(runID), &cached); err == nil {
			return &cached, nil
		}
	}

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run")
	}

	resp := s.project(run)

	failures, err := s.outcomes.ListFailures(ctx, run.ID, s.cfg.MaxErrors)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run errors")
	}
	resp.Errors = make([]dto.ItemError, 0, len(failures))
	for _, f := range failures {
		resp.Errors = append(resp.Errors, itemError(f))
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, statusCacheKey(run.ID), resp, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache run status", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	return resp, nil
}

func (s *BulkStatusService) project(run *models.BulkRun) *dto.RunStatusResponse {
	batchSize := run.Options.BatchSize
	if batchSize <= 0 {
		batchSize = s.cfg.DefaultBatchSize
	}

	resp := &dto.RunStatusResponse{
		RunID:          run.ID,
		Status:         run.Status,
		ProcessedItems: run.ProcessedItems,
		TotalItems:     run.TotalItems,
		SuccessCount:   run.SuccessCount,
		FailureCount:   run.FailureCount,
		SkippedCount:   run.SkippedCount,
	}
	if run.TotalItems > 0 {
		resp.ProgressPercent = float64(run.ProcessedItems) / float64(run.TotalItems) * 100
		resp.TotalBatches = (run.TotalItems + batchSize - 1) / batchSize
	}

	switch {
	case run.TotalItems == 0:
		resp.CurrentBatch = 0
	case run.Status.Terminal():
		resp.CurrentBatch = resp.TotalBatches
	default:
		resp.CurrentBatch = run.ProcessedItems/batchSize + 1
		if resp.CurrentBatch > resp.TotalBatches {
			resp.CurrentBatch = resp.TotalBatches
		}
	}

	// Estimation uses a fixed per-item constant; only meaningful mid-run.
	if run.Status == models.RunStatusProcessing {
		remaining := run.TotalItems - run.ProcessedItems
		eta := time.Now().UTC().Add(time.Duration(remaining) * s.cfg.PerItemLatency)
		resp.EstimatedCompletion = &eta
	}
	return resp
}

// Invalidate drops the cached projection, typically after a rollback.
func (s *BulkStatusService) Invalidate(ctx context.Context, runID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statusCacheKey(runID)); err != nil {
		s.logger.Warn("failed to invalidate run status cache", zap.String("run_id", runID), zap.Error(err))
	}
}

func itemError(outcome models.ItemOutcome) dto.ItemError {
	e := dto.ItemError{
		SubjectID:  outcome.SubjectID,
		Identifier: outcome.Identifier,
		Retryable:  outcome.Retryable,
	}
	if outcome.ErrorCode != nil {
		e.Code = *outcome.ErrorCode
	}
	if outcome.ErrorMessage != nil {
		e.Message = *outcome.ErrorMessage
	}
	return e
}
