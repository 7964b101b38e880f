package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/adp-bulkops/internal/models"
)

// PolicyRepository loads role-transition rules backing the policy oracle.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// FindRules returns the rules matching a transition, org-scoped rules first
// so the caller can apply the most specific one.
func (r *PolicyRepository) FindRules(ctx context.Context, from, to models.UserRole, orgUnitID *string) ([]models.TransitionRule, error) {
	const query = `SELECT id, from_role, to_role, org_unit_id, allowed, requires_approval, approver_role, reason
	FROM role_transition_policies
	WHERE from_role = $1 AND to_role = $2 AND (org_unit_id IS NULL OR org_unit_id = $3)
	ORDER BY org_unit_id DESC NULLS LAST`
	var rules []models.TransitionRule
	if err := r.db.SelectContext(ctx, &rules, query, from, to, orgUnitID); err != nil {
		return nil, fmt.Errorf("find transition rules: %w", err)
	}
	return rules, nil
}
