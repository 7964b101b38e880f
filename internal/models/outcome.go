package models

import "time"

// OutcomeStatus is the terminal classification of one processed item.
type OutcomeStatus string

const (
	OutcomePending OutcomeStatus = "PENDING"
	OutcomeSuccess OutcomeStatus = "SUCCESS"
	OutcomeFailed  OutcomeStatus = "FAILED"
	OutcomeSkipped OutcomeStatus = "SKIPPED"
)

// ErrorType distinguishes classes of item failures so callers can decide
// what is worth re-submitting.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypePolicy     ErrorType = "policy"
	ErrorTypeStore      ErrorType = "store"
	ErrorTypeSystem     ErrorType = "system"
)

// Item-level error codes surfaced in outcomes and validation reports.
const (
	CodeSubjectNotFound        = "SUBJECT_NOT_FOUND"
	CodePolicyViolation        = "POLICY_VIOLATION"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeSameRole               = "SAME_ROLE"
	CodeStoreFailure           = "STORE_FAILURE"
	CodeRetriesExhausted       = "RETRIES_EXHAUSTED"
)

// ItemOutcome is one row per processed item in a run. Rows are written once
// and never updated after reaching a terminal status; previous_role is the
// sole source of truth for rollback.
type ItemOutcome struct {
	ID           string        `db:"id" json:"id"`
	RunID        string        `db:"run_id" json:"run_id"`
	SubjectID    string        `db:"subject_id" json:"subject_id"`
	Identifier   string        `db:"identifier" json:"identifier"`
	PreviousRole UserRole      `db:"previous_role" json:"previous_role"`
	TargetRole   UserRole      `db:"target_role" json:"target_role"`
	Outcome      OutcomeStatus `db:"outcome" json:"outcome"`
	ErrorType    *ErrorType    `db:"error_type" json:"error_type,omitempty"`
	ErrorCode    *string       `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	Retryable    bool          `db:"retryable" json:"retryable"`
	AppliedAt    *time.Time    `db:"applied_at" json:"applied_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// OutcomeFilter constrains outcome listing queries.
type OutcomeFilter struct {
	RunID   string
	Outcome []OutcomeStatus
	Limit   int
	Offset  int
}
