package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/adp-bulkops/internal/models"
)

// Notifier delivers a templated message to one subject. Implementations are
// expected to be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, subjectID, template string, payload map[string]string) error
}

// NotifierConfig tunes dispatch behaviour.
type NotifierConfig struct {
	Enabled     bool
	Concurrency int
	Template    string
}

// NotificationService fans run outcomes out to the platform notifier.
// Delivery is strictly best-effort: a failed send is logged and dropped,
// never surfaced to the caller.
type NotificationService struct {
	notifier Notifier
	logger   *zap.Logger
	cfg      NotifierConfig
}

// NewNotificationService constructs the dispatcher.
func NewNotificationService(notifier Notifier, logger *zap.Logger, cfg NotifierConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Template == "" {
		cfg.Template = "role_changed"
	}
	return &NotificationService{notifier: notifier, logger: logger, cfg: cfg}
}

// NotifyRun sends one message per successful outcome. Skipped and failed
// items produce no notification.
func (s *NotificationService) NotifyRun(ctx context.Context, run *models.BulkRun, outcomes []models.ItemOutcome) {
	if !s.cfg.Enabled || s.notifier == nil || !run.Options.SendNotifications {
		return
	}

	sem := make(chan struct{}, s.cfg.Concurrency)
	for _, outcome := range outcomes {
		if outcome.Outcome != models.OutcomeSuccess {
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			s.logger.Warn("notification dispatch interrupted",
				zap.String("run_id", run.ID), zap.Error(ctx.Err()))
			return
		}
		go func(o models.ItemOutcome) {
			defer func() { <-sem }()
			s.send(ctx, run, o)
		}(outcome)
	}
	// Drain so callers can rely on dispatch finishing before the run is
	// reported as fully settled.
	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}
}

func (s *NotificationService) send(ctx context.Context, run *models.BulkRun, outcome models.ItemOutcome) {
	payload := map[string]string{
		"run_id":        run.ID,
		"previous_role": string(outcome.PreviousRole),
		"new_role":      string(outcome.TargetRole),
	}
	if run.Options.IsTemporary && run.Options.ExpiresAt != nil {
		payload["expires_at"] = run.Options.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if err := s.notifier.Send(ctx, outcome.SubjectID, s.cfg.Template, payload); err != nil {
		s.logger.Warn("notification delivery failed",
			zap.String("run_id", run.ID),
			zap.String("subject_id", outcome.SubjectID),
			zap.Error(err))
	}
}
