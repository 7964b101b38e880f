package dto

import (
	"time"

	"github.com/noah-isme/adp-bulkops/internal/models"
)

// SubmitBulkRunRequest accepts either a list of subject identifiers or a raw
// delimited payload, never both.
type SubmitBulkRunRequest struct {
	Identifiers   []string          `json:"identifiers,omitempty" validate:"max=10000"`
	Payload       string            `json:"payload,omitempty"`
	TargetRole    models.UserRole   `json:"targetRole" validate:"omitempty,oneof=SUPERADMIN ADMIN TEACHER STUDENT"`
	OrgUnitID     *string           `json:"orgUnitId,omitempty"`
	Justification string            `json:"justification" validate:"max=1000"`
	Options       RunOptionsRequest `json:"options"`
}

// RunOptionsRequest mirrors models.RunOptions at the API boundary.
type RunOptionsRequest struct {
	BatchSize         int        `json:"batchSize" binding:"omitempty,min=1,max=500"`
	ValidateOnly      bool       `json:"validateOnly"`
	SkipDuplicates    bool       `json:"skipDuplicates"`
	SendNotifications bool       `json:"sendNotifications"`
	IsTemporary       bool       `json:"isTemporary"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
}

// ToModel converts the request options into the persisted form.
func (r RunOptionsRequest) ToModel() models.RunOptions {
	return models.RunOptions{
		BatchSize:         r.BatchSize,
		ValidateOnly:      r.ValidateOnly,
		SkipDuplicates:    r.SkipDuplicates,
		SendNotifications: r.SendNotifications,
		IsTemporary:       r.IsTemporary,
		ExpiresAt:         r.ExpiresAt,
	}
}

// RowIssue is a row-scoped diagnostic from parsing or validation.
type RowIssue struct {
	Row      int    `json:"row,omitempty"`
	Field    string `json:"field,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	RawValue string `json:"rawValue,omitempty"`
}

// ValidationReport aggregates parse and validation diagnostics for a payload.
type ValidationReport struct {
	Errors        []RowIssue `json:"errors"`
	Warnings      []RowIssue `json:"warnings"`
	ItemCount     int        `json:"itemCount"`
	AffectedCount int        `json:"affectedCount"`
}

// SubmitBulkRunResponse returns the run plus the validation report. For
// asynchronous runs only the run id and status are meaningful at first.
type SubmitBulkRunResponse struct {
	Run    *models.BulkRun  `json:"run,omitempty"`
	Report ValidationReport `json:"report"`
	Async  bool             `json:"async"`
}

// ItemError describes one item-level failure in status or rollback output.
type ItemError struct {
	SubjectID  string `json:"subjectId,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

// RunStatusResponse is the aggregator's point-in-time projection of a run.
type RunStatusResponse struct {
	RunID               string           `json:"runId"`
	Status              models.RunStatus `json:"status"`
	ProgressPercent     float64          `json:"progressPercent"`
	CurrentBatch        int              `json:"currentBatch"`
	TotalBatches        int              `json:"totalBatches"`
	ProcessedItems      int              `json:"processedItems"`
	TotalItems          int              `json:"totalItems"`
	SuccessCount        int              `json:"successCount"`
	FailureCount        int              `json:"failureCount"`
	SkippedCount        int              `json:"skippedCount"`
	EstimatedCompletion *time.Time       `json:"estimatedCompletion,omitempty"`
	Errors              []ItemError      `json:"errors"`
}

// RollbackRequest carries the operator's stated reason for reverting a run.
type RollbackRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RollbackResponse summarises a compensating rollback.
type RollbackResponse struct {
	RunID           string      `json:"runId"`
	RolledBackCount int         `json:"rolledBackCount"`
	FailedCount     int         `json:"failedCount"`
	Errors          []ItemError `json:"errors"`
}

// RunQuery mirrors supported run listing filters.
type RunQuery struct {
	Status      []models.RunStatus
	InitiatedBy string
	Page        int
	PageSize    int
}
