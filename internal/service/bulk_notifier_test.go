package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adp-bulkops/internal/models"
)

type notifierStub struct {
	mu       sync.Mutex
	sent     []string
	template string
	payloads []map[string]string
	err      error
}

func (n *notifierStub) Send(ctx context.Context, subjectID, template string, payload map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, subjectID)
	n.template = template
	n.payloads = append(n.payloads, payload)
	return nil
}

func notifierRun(sendNotifications bool) *models.BulkRun {
	return &models.BulkRun{
		ID:      "run-1",
		Options: models.RunOptions{SendNotifications: sendNotifications},
	}
}

func notifierOutcomes() []models.ItemOutcome {
	return []models.ItemOutcome{
		{SubjectID: "u-1", PreviousRole: models.RoleStudent, TargetRole: models.RoleTeacher, Outcome: models.OutcomeSuccess},
		{SubjectID: "u-2", PreviousRole: models.RoleStudent, TargetRole: models.RoleTeacher, Outcome: models.OutcomeFailed},
		{SubjectID: "u-3", PreviousRole: models.RoleTeacher, TargetRole: models.RoleTeacher, Outcome: models.OutcomeSkipped},
	}
}

func TestNotificationServiceOnlySuccessfulItems(t *testing.T) {
	stub := &notifierStub{}
	svc := NewNotificationService(stub, nil, NotifierConfig{Enabled: true})

	svc.NotifyRun(context.Background(), notifierRun(true), notifierOutcomes())

	require.Equal(t, []string{"u-1"}, stub.sent)
	require.Equal(t, "role_changed", stub.template)
	require.Equal(t, "STUDENT", stub.payloads[0]["previous_role"])
	require.Equal(t, "TEACHER", stub.payloads[0]["new_role"])
}

func TestNotificationServiceRespectsRunOption(t *testing.T) {
	stub := &notifierStub{}
	svc := NewNotificationService(stub, nil, NotifierConfig{Enabled: true})

	svc.NotifyRun(context.Background(), notifierRun(false), notifierOutcomes())
	require.Empty(t, stub.sent)
}

func TestNotificationServiceDisabledGlobally(t *testing.T) {
	stub := &notifierStub{}
	svc := NewNotificationService(stub, nil, NotifierConfig{Enabled: false})

	svc.NotifyRun(context.Background(), notifierRun(true), notifierOutcomes())
	require.Empty(t, stub.sent)
}

func TestNotificationServiceDeliveryFailureIsSwallowed(t *testing.T) {
	stub := &notifierStub{err: errors.New("smtp down")}
	svc := NewNotificationService(stub, nil, NotifierConfig{Enabled: true})

	// Must not panic or propagate.
	svc.NotifyRun(context.Background(), notifierRun(true), notifierOutcomes())
	require.Empty(t, stub.sent)
}
