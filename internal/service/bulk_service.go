package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/adp-bulkops/internal/dto"
	"github.com/noah-isme/adp-bulkops/internal/models"
	appErrors "github.com/noah-isme/adp-bulkops/pkg/errors"
	"github.com/noah-isme/adp-bulkops/pkg/export"
	"github.com/noah-isme/adp-bulkops/pkg/jobs"
)

// JobTypeBulkRun identifies queued run executions.
const JobTypeBulkRun = "bulk_run_execute"

// BulkServiceConfig tunes submission behaviour.
type BulkServiceConfig struct {
	SyncThreshold int
}

// BulkService is the submission front of the engine: it parses, validates,
// persists the run record, and either executes inline or hands off to the
// worker queue.
type BulkService struct {
	parser    *BulkParser
	validator *BulkValidator
	executor  *BulkRunService
	notify    *NotificationService
	status    *BulkStatusService
	runs      runStore
	outcomes  outcomeStore
	exporter  *export.CSVExporter
	queue     *jobs.Queue
	validate  *validator.Validate
	logger    *zap.Logger
	cfg       BulkServiceConfig

	// Validated items for queued runs, keyed by run id. A restart loses the
	// map; such runs stay PENDING and the remainder must be re-submitted.
	mu      sync.Mutex
	pending map[string][]ValidatedItem
}

// NewBulkService constructs the orchestrator. Call BindQueue before Submit
// when asynchronous execution is wanted.
func NewBulkService(parser *BulkParser, bulkValidator *BulkValidator, executor *BulkRunService, notify *NotificationService, status *BulkStatusService, runs runStore, outcomes outcomeStore, logger *zap.Logger, cfg BulkServiceConfig) *BulkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SyncThreshold <= 0 {
		cfg.SyncThreshold = 100
	}
	return &BulkService{
		parser:    parser,
		validator: bulkValidator,
		executor:  executor,
		notify:    notify,
		status:    status,
		runs:      runs,
		outcomes:  outcomes,
		exporter:  export.NewCSVExporter(),
		validate:  validator.New(),
		logger:    logger,
		cfg:       cfg,
		pending:   make(map[string][]ValidatedItem),
	}
}

// BindQueue attaches the worker queue used for oversized submissions.
func (s *BulkService) BindQueue(queue *jobs.Queue) {
	s.queue = queue
}

// HandleJob is the queue handler for asynchronous run execution.
func (s *BulkService) HandleJob(ctx context.Context, job jobs.Job) error {
	runID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
	}
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}

	s.mu.Lock()
	items, ok := s.pending[runID]
	delete(s.pending, runID)
	s.mu.Unlock()
	if !ok {
		// Items are gone after a restart; the run stays PENDING for the
		// operator to re-submit.
		s.logger.Error("no pending items for queued run", zap.String("run_id", runID))
		return nil
	}

	run, err = s.executor.Execute(ctx, run, items)
	if err != nil {
		return fmt.Errorf("execute run %s: %w", runID, err)
	}
	s.afterRun(ctx, run)
	return nil
}

// Submit validates the request and, unless validateOnly is set, creates and
// executes (or enqueues) a run.
func (s *BulkService) Submit(ctx context.Context, actorID string, req dto.SubmitBulkRunRequest) (*dto.SubmitBulkRunResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run payload")
	}
	candidates, parseErrors, parseWarnings, err := s.collect(req)
	if err != nil {
		return nil, err
	}

	options := req.Options.ToModel()
	result, err := s.validator.Validate(ctx, candidates, options)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "validation failed")
	}

	report := result.Report()
	report.Errors = append(parseErrors, report.Errors...)
	report.Warnings = append(parseWarnings, report.Warnings...)

	resp := &dto.SubmitBulkRunResponse{Report: report}
	if options.ValidateOnly || len(result.Valid) == 0 {
		return resp, nil
	}

	run := &models.BulkRun{
		InitiatedBy: actorID,
		TargetRole:  req.TargetRole,
		OrgUnitID:   req.OrgUnitID,
		TotalItems:  len(result.Valid),
		Status:      models.RunStatusPending,
		Options:     options,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create run")
	}

	if s.queue != nil && len(result.Valid) > s.cfg.SyncThreshold {
		s.mu.Lock()
		s.pending[run.ID] = result.Valid
		s.mu.Unlock()

		job := jobs.Job{ID: run.ID, Type: JobTypeBulkRun, Payload: run.ID}
		if err := s.queue.Enqueue(job); err != nil {
			s.mu.Lock()
			delete(s.pending, run.ID)
			s.mu.Unlock()
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue run")
		}
		resp.Run = run
		resp.Async = true
		s.logger.Info("run enqueued",
			zap.String("run_id", run.ID),
			zap.Int("items", len(result.Valid)))
		return resp, nil
	}

	executed, err := s.executor.Execute(ctx, run, result.Valid)
	if err != nil {
		return nil, err
	}
	s.afterRun(ctx, executed)
	resp.Run = executed
	return resp, nil
}

// Preview runs parsing and validation without creating a run.
func (s *BulkService) Preview(ctx context.Context, req dto.SubmitBulkRunRequest) (*dto.ValidationReport, error) {
	req.Options.ValidateOnly = true
	resp, err := s.Submit(ctx, "", req)
	if err != nil {
		return nil, err
	}
	return &resp.Report, nil
}

// Export renders every outcome of a run as CSV.
func (s *BulkService) Export(ctx context.Context, runID string) ([]byte, string, error) {
	run, err := s.executor.Get(ctx, runID)
	if err != nil {
		return nil, "", err
	}
	items, err := s.outcomes.ListByRun(ctx, models.OutcomeFilter{RunID: run.ID})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load outcomes")
	}

	dataset := export.Dataset{
		Headers: []string{"subject_id", "identifier", "previous_role", "target_role", "outcome", "error_code", "error_message", "applied_at"},
		Rows:    make([]map[string]string, 0, len(items)),
	}
	for _, item := range items {
		row := map[string]string{
			"subject_id":    item.SubjectID,
			"identifier":    item.Identifier,
			"previous_role": string(item.PreviousRole),
			"target_role":   string(item.TargetRole),
			"outcome":       string(item.Outcome),
		}
		if item.ErrorCode != nil {
			row["error_code"] = *item.ErrorCode
		}
		if item.ErrorMessage != nil {
			row["error_message"] = *item.ErrorMessage
		}
		if item.AppliedAt != nil {
			row["applied_at"] = item.AppliedAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	data, err := s.exporter.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	filename := fmt.Sprintf("bulk_run_%s.csv", run.ID)
	return data, filename, nil
}

// collect turns the request into candidate mutations, from either the
// identifier list or the raw payload.
func (s *BulkService) collect(req dto.SubmitBulkRunRequest) ([]CandidateMutation, []dto.RowIssue, []dto.RowIssue, error) {
	hasList := len(req.Identifiers) > 0
	hasPayload := req.Payload != ""

	switch {
	case hasList && hasPayload:
		return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, "provide identifiers or a payload, not both")
	case !hasList && !hasPayload:
		return nil, nil, nil, appErrors.ErrEmptyPayload
	case hasList:
		candidates := make([]CandidateMutation, 0, len(req.Identifiers))
		for i, identifier := range req.Identifiers {
			candidates = append(candidates, CandidateMutation{
				Row:           i + 1,
				Identifier:    identifier,
				TargetRole:    req.TargetRole,
				OrgUnitID:     req.OrgUnitID,
				Justification: req.Justification,
			})
		}
		return candidates, nil, nil, nil
	}

	defaultRole := req.TargetRole
	if defaultRole == "" {
		defaultRole = models.DefaultRole
	}
	parsed := s.parser.Parse(req.Payload, defaultRole)
	if parsed.Fatal() {
		switch parsed.Errors[0].Code {
		case CodeEmptyInput:
			return nil, nil, nil, appErrors.ErrEmptyPayload
		case CodeTooManyRows:
			return nil, nil, nil, appErrors.ErrPayloadTooLarge
		default:
			return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, parsed.Errors[0].Message)
		}
	}

	for i := range parsed.Items {
		if parsed.Items[i].Justification == "" {
			parsed.Items[i].Justification = req.Justification
		}
		if parsed.Items[i].OrgUnitID == nil {
			parsed.Items[i].OrgUnitID = req.OrgUnitID
		}
	}
	return parsed.Items, parsed.Errors, parsed.Warnings, nil
}

// afterRun fires best-effort post-run work: notifications and status cache
// invalidation.
func (s *BulkService) afterRun(ctx context.Context, run *models.BulkRun) {
	if s.status != nil {
		s.status.Invalidate(ctx, run.ID)
	}
	if s.notify == nil || !run.Options.SendNotifications {
		return
	}
	successes, err := s.outcomes.ListSuccessful(ctx, run.ID)
	if err != nil {
		s.logger.Warn("failed to load outcomes for notification",
			zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	s.notify.NotifyRun(ctx, run, successes)
}
