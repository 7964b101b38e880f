package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adp-bulkops/internal/models"
)

type ruleStoreStub struct {
	rules []models.TransitionRule
	err   error
}

func (s *ruleStoreStub) FindRules(ctx context.Context, from, to models.UserRole, orgUnitID *string) ([]models.TransitionRule, error) {
	return s.rules, s.err
}

func TestPolicyServiceDemotionAllowed(t *testing.T) {
	svc := NewPolicyService(&ruleStoreStub{}, nil)

	verdict, err := svc.CheckTransition(context.Background(), "u-1", models.RoleTeacher, models.RoleStudent, nil)
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
	require.False(t, verdict.RequiresApproval)
}

func TestPolicyServiceElevationNeedsApproval(t *testing.T) {
	svc := NewPolicyService(&ruleStoreStub{}, nil)

	verdict, err := svc.CheckTransition(context.Background(), "u-1", models.RoleStudent, models.RoleTeacher, nil)
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
	require.True(t, verdict.RequiresApproval)
	require.Equal(t, models.RoleAdmin, *verdict.ApproverRole)
}

func TestPolicyServiceAdminElevationNeedsSuperadmin(t *testing.T) {
	svc := NewPolicyService(&ruleStoreStub{}, nil)

	verdict, err := svc.CheckTransition(context.Background(), "u-1", models.RoleTeacher, models.RoleAdmin, nil)
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
	require.Equal(t, models.RoleSuperAdmin, *verdict.ApproverRole)
}

func TestPolicyServiceSuperadminNeverInBulk(t *testing.T) {
	svc := NewPolicyService(&ruleStoreStub{}, nil)

	for _, pair := range [][2]models.UserRole{
		{models.RoleAdmin, models.RoleSuperAdmin},
		{models.RoleSuperAdmin, models.RoleStudent},
	} {
		verdict, err := svc.CheckTransition(context.Background(), "u-1", pair[0], pair[1], nil)
		require.NoError(t, err)
		require.False(t, verdict.Allowed)
		require.NotEmpty(t, verdict.Reason)
	}
}

func TestPolicyServicePersistedRuleWins(t *testing.T) {
	reason := "teacher churn freeze"
	store := &ruleStoreStub{rules: []models.TransitionRule{{
		ID:       "rule-1",
		FromRole: models.RoleTeacher,
		ToRole:   models.RoleStudent,
		Allowed:  false,
		Reason:   &reason,
	}}}
	svc := NewPolicyService(store, nil)

	verdict, err := svc.CheckTransition(context.Background(), "u-1", models.RoleTeacher, models.RoleStudent, nil)
	require.NoError(t, err)
	require.False(t, verdict.Allowed)
	require.Equal(t, reason, verdict.Reason)
}

func TestPolicyServiceSameRoleShortCircuits(t *testing.T) {
	store := &ruleStoreStub{err: context.DeadlineExceeded}
	svc := NewPolicyService(store, nil)

	verdict, err := svc.CheckTransition(context.Background(), "u-1", models.RoleTeacher, models.RoleTeacher, nil)
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
}
