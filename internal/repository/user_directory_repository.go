package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/adp-bulkops/internal/models"
)

// UserDirectoryRepository is the record-store surface over the users table:
// batched lookups plus conditional role writes.
type UserDirectoryRepository struct {
	db *sqlx.DB
}

// NewUserDirectoryRepository constructs the repository.
func NewUserDirectoryRepository(db *sqlx.DB) *UserDirectoryRepository {
	return &UserDirectoryRepository{db: db}
}

const subjectColumns = `id, email, full_name, role, org_unit_id, active, updated_at`

// FindByIdentifiers resolves a mixed batch of emails and user ids in one
// query. Unmatched identifiers are simply absent from the result.
func (r *UserDirectoryRepository) FindByIdentifiers(ctx context.Context, identifiers []string) ([]models.Subject, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}
	emails := make([]string, 0, len(identifiers))
	ids := make([]string, 0, len(identifiers))
	for _, identifier := range identifiers {
		identifier = strings.TrimSpace(identifier)
		if identifier == "" {
			continue
		}
		if strings.Contains(identifier, "@") {
			emails = append(emails, strings.ToLower(identifier))
		} else {
			ids = append(ids, identifier)
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE LOWER(email) = ANY($1) OR id = ANY($2)`, subjectColumns)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, pq.Array(emails), pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find subjects by identifiers: %w", err)
	}
	return subjects, nil
}

// UpdateRole performs the conditional role write. The WHERE clause compares
// the current role so two concurrent runs cannot silently clobber each
// other; a stale expectation yields sql.ErrNoRows.
func (r *UserDirectoryRepository) UpdateRole(ctx context.Context, id string, from, to models.UserRole) error {
	const query = `UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2 AND role = $3`
	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("update subject role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check role update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
