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

// OutcomeRepository persists per-item outcome rows.
type OutcomeRepository struct {
	db *sqlx.DB
}

// NewOutcomeRepository constructs the repository.
func NewOutcomeRepository(db *sqlx.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

const outcomeColumns = `id, run_id, subject_id, identifier, previous_role, target_role, outcome,
       error_type, error_code, error_message, retryable, applied_at, created_at`

// Insert writes a new outcome row, normally in the PENDING state.
func (r *OutcomeRepository) Insert(ctx context.Context, outcome *models.ItemOutcome) error {
	if outcome.ID == "" {
		outcome.ID = uuid.NewString()
	}
	if outcome.Outcome == "" {
		outcome.Outcome = models.OutcomePending
	}
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO bulk_run_items
	(id, run_id, subject_id, identifier, previous_role, target_role, outcome, error_type, error_code, error_message, retryable, applied_at, created_at)
	VALUES (:id, :run_id, :subject_id, :identifier, :previous_role, :target_role, :outcome, :error_type, :error_code, :error_message, :retryable, :applied_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, outcome); err != nil {
		return fmt.Errorf("insert item outcome: %w", err)
	}
	return nil
}

// OutcomeResultParams carries the terminal classification for one item.
type OutcomeResultParams struct {
	Outcome      models.OutcomeStatus
	ErrorType    *models.ErrorType
	ErrorCode    *string
	ErrorMessage *string
	Retryable    bool
	AppliedAt    *time.Time
}

// MarkResult finalises a PENDING row. Terminal rows are immutable, so the
// update is guarded and a second write yields sql.ErrNoRows.
func (r *OutcomeRepository) MarkResult(ctx context.Context, id string, params OutcomeResultParams) error {
	query := fmt.Sprintf(`UPDATE bulk_run_items
	SET outcome = :outcome, error_type = :error_type, error_code = :error_code,
	    error_message = :error_message, retryable = :retryable, applied_at = :applied_at
	WHERE id = :id AND outcome = '%s'`, models.OutcomePending)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":            id,
		"outcome":       params.Outcome,
		"error_type":    params.ErrorType,
		"error_code":    params.ErrorCode,
		"error_message": params.ErrorMessage,
		"retryable":     params.Retryable,
		"applied_at":    params.AppliedAt,
	})
	if err != nil {
		return fmt.Errorf("mark item outcome: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check item outcome rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByRun returns a run's outcome rows in processing order.
func (r *OutcomeRepository) ListByRun(ctx context.Context, filter models.OutcomeFilter) ([]models.ItemOutcome, error) {
	builder := strings.Builder{}
	args := []interface{}{filter.RunID}
	builder.WriteString(fmt.Sprintf("SELECT %s FROM bulk_run_items WHERE run_id = $1", outcomeColumns))

	if len(filter.Outcome) > 0 {
		placeholders := make([]string, len(filter.Outcome))
		for i, status := range filter.Outcome {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		builder.WriteString(fmt.Sprintf(" AND outcome IN (%s)", strings.Join(placeholders, ",")))
	}
	builder.WriteString(" ORDER BY created_at ASC, id ASC")

	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset))
	}

	var outcomes []models.ItemOutcome
	if err := r.db.SelectContext(ctx, &outcomes, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list item outcomes: %w", err)
	}
	return outcomes, nil
}

// ListSuccessful returns the rows eligible for rollback.
func (r *OutcomeRepository) ListSuccessful(ctx context.Context, runID string) ([]models.ItemOutcome, error) {
	return r.ListByRun(ctx, models.OutcomeFilter{
		RunID:   runID,
		Outcome: []models.OutcomeStatus{models.OutcomeSuccess},
	})
}

// ListFailures returns failed rows, capped for status payloads.
func (r *OutcomeRepository) ListFailures(ctx context.Context, runID string, limit int) ([]models.ItemOutcome, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.ListByRun(ctx, models.OutcomeFilter{
		RunID:   runID,
		Outcome: []models.OutcomeStatus{models.OutcomeFailed},
		Limit:   limit,
	})
}
