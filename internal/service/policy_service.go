package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/adp-bulkops/internal/models"
)

type transitionRuleStore interface {
	FindRules(ctx context.Context, from, to models.UserRole, orgUnitID *string) ([]models.TransitionRule, error)
}

// PolicyService is the default policy oracle. Persisted rules win; in their
// absence a built-in matrix applies: SUPERADMIN never changes hands in bulk,
// elevations need approval, demotions pass.
type PolicyService struct {
	rules  transitionRuleStore
	logger *zap.Logger
}

// NewPolicyService constructs the oracle.
func NewPolicyService(rules transitionRuleStore, logger *zap.Logger) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{rules: rules, logger: logger}
}

var roleRank = map[models.UserRole]int{
	models.RoleStudent:    0,
	models.RoleTeacher:    1,
	models.RoleAdmin:      2,
	models.RoleSuperAdmin: 3,
}

// CheckTransition implements PolicyOracle.
func (s *PolicyService) CheckTransition(ctx context.Context, subjectID string, from, to models.UserRole, orgUnitID *string) (models.TransitionVerdict, error) {
	if from == to {
		return models.TransitionVerdict{Allowed: true}, nil
	}

	if s.rules != nil {
		rules, err := s.rules.FindRules(ctx, from, to, orgUnitID)
		if err != nil {
			return models.TransitionVerdict{}, err
		}
		if len(rules) > 0 {
			// Org-scoped rules sort first; the most specific rule decides.
			rule := rules[0]
			verdict := models.TransitionVerdict{
				Allowed:          rule.Allowed,
				RequiresApproval: rule.RequiresApproval,
				ApproverRole:     rule.ApproverRole,
			}
			if rule.Reason != nil {
				verdict.Reason = *rule.Reason
			}
			return verdict, nil
		}
	}

	return defaultVerdict(from, to), nil
}

func defaultVerdict(from, to models.UserRole) models.TransitionVerdict {
	if to == models.RoleSuperAdmin || from == models.RoleSuperAdmin {
		return models.TransitionVerdict{
			Allowed: false,
			Reason:  "superadmin role cannot be assigned or revoked in bulk",
		}
	}
	if roleRank[to] > roleRank[from] {
		approver := models.RoleAdmin
		if to == models.RoleAdmin {
			approver = models.RoleSuperAdmin
		}
		return models.TransitionVerdict{
			Allowed:          true,
			RequiresApproval: true,
			ApproverRole:     &approver,
		}
	}
	return models.TransitionVerdict{Allowed: true}
}
