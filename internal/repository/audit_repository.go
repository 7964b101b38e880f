package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/adp-bulkops/internal/models"
)

// AuditRepository is the durable sink for role-change audit entries.
// Entries are append-only; there is no update or delete path.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends a role-change entry.
func (r *AuditRepository) Record(ctx context.Context, entry *models.RoleChangeEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO role_change_audit
	(id, run_id, subject_id, from_role, to_role, actor_id, justification, is_rollback, affected_count, created_at)
	VALUES (:id, :run_id, :subject_id, :from_role, :to_role, :actor_id, :justification, :is_rollback, :affected_count, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// ListByRun returns a run's audit trail, oldest first.
func (r *AuditRepository) ListByRun(ctx context.Context, runID string) ([]models.RoleChangeEntry, error) {
	const query = `SELECT id, run_id, subject_id, from_role, to_role, actor_id, justification, is_rollback, affected_count, created_at
	FROM role_change_audit WHERE run_id = $1 ORDER BY created_at ASC`
	var entries []models.RoleChangeEntry
	if err := r.db.SelectContext(ctx, &entries, query, runID); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
