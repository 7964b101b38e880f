package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/adp-bulkops/internal/models"
)

// RunRepository persists bulk run aggregates.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs the repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, initiated_by, target_role, org_unit_id, total_items, processed_items,
       success_count, failure_count, skipped_count, status, options, started_at, completed_at`

// Create inserts a new run row.
func (r *RunRepository) Create(ctx context.Context, run *models.BulkRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	const query = `INSERT INTO bulk_runs
	(id, initiated_by, target_role, org_unit_id, total_items, processed_items, success_count, failure_count, skipped_count, status, options, started_at, completed_at)
	VALUES (:id, :initiated_by, :target_role, :org_unit_id, :total_items, :processed_items, :success_count, :failure_count, :skipped_count, :status, :options, :started_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create bulk run: %w", err)
	}
	return nil
}

// GetByID fetches a run by identifier.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.BulkRun, error) {
	query := fmt.Sprintf(`SELECT %s FROM bulk_runs WHERE id = $1`, runColumns)
	var run models.BulkRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns runs matching the filter (latest first).
func (r *RunRepository) List(ctx context.Context, filter models.RunFilter) ([]models.BulkRun, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM bulk_runs", runColumns))

	conditions := make([]string, 0, 3)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.InitiatedBy != "" {
		args = append(args, filter.InitiatedBy)
		conditions = append(conditions, fmt.Sprintf("initiated_by = $%d", len(args)))
	}
	if filter.TargetRole != "" {
		args = append(args, filter.TargetRole)
		conditions = append(conditions, fmt.Sprintf("target_role = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY started_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var runs []models.BulkRun
	if err := r.db.SelectContext(ctx, &runs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list bulk runs: %w", err)
	}
	return runs, nil
}

// TransitionStatus moves a run between lifecycle states. The update is
// guarded on the expected current status; a stale expectation yields
// sql.ErrNoRows so callers can surface a conflict.
func (r *RunRepository) TransitionStatus(ctx context.Context, id string, from, to models.RunStatus, completedAt *time.Time) error {
	const query = `UPDATE bulk_runs SET status = $1, completed_at = COALESCE($2, completed_at)
	WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, to, completedAt, id, from)
	if err != nil {
		return fmt.Errorf("transition run status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check run transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RunProgressParams groups the counter columns checkpointed between batches.
type RunProgressParams struct {
	ProcessedItems int
	SuccessCount   int
	FailureCount   int
	SkippedCount   int
}

// UpdateProgress persists counter state after a batch completes. Progress
// never moves backwards; the guard keeps a late writer from clobbering a
// fresher checkpoint.
func (r *RunRepository) UpdateProgress(ctx context.Context, id string, params RunProgressParams) error {
	const query = `UPDATE bulk_runs
	SET processed_items = $1, success_count = $2, failure_count = $3, skipped_count = $4
	WHERE id = $5 AND processed_items <= $1`
	result, err := r.db.ExecContext(ctx, query,
		params.ProcessedItems, params.SuccessCount, params.FailureCount, params.SkippedCount, id)
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check run progress rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
