package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RunStatus captures the lifecycle states of a bulk run.
type RunStatus string

const (
	RunStatusPending    RunStatus = "PENDING"
	RunStatusProcessing RunStatus = "PROCESSING"
	RunStatusCompleted  RunStatus = "COMPLETED"
	RunStatusFailed     RunStatus = "FAILED"
	RunStatusRolledBack RunStatus = "ROLLED_BACK"
)

// Terminal reports whether the status admits no further processing.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusRolledBack
}

// RunOptions are the caller-supplied knobs for one bulk run, persisted as JSONB.
type RunOptions struct {
	BatchSize         int        `json:"batchSize,omitempty"`
	ValidateOnly      bool       `json:"validateOnly,omitempty"`
	SkipDuplicates    bool       `json:"skipDuplicates,omitempty"`
	SendNotifications bool       `json:"sendNotifications,omitempty"`
	IsTemporary       bool       `json:"isTemporary,omitempty"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
}

// Value marshals options to JSON for persistence.
func (o RunOptions) Value() (driver.Value, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal run options: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the options struct.
func (o *RunOptions) Scan(value interface{}) error {
	if value == nil {
		*o = RunOptions{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for RunOptions", value)
	}
	if len(data) == 0 {
		*o = RunOptions{}
		return nil
	}
	if err := json.Unmarshal(data, o); err != nil {
		return fmt.Errorf("unmarshal run options: %w", err)
	}
	return nil
}

// BulkRun is the aggregate record of one bulk role-assignment operation.
// Counter fields satisfy successCount+failureCount+skippedCount ==
// processedItems <= totalItems at every checkpoint.
type BulkRun struct {
	ID             string     `db:"id" json:"id"`
	InitiatedBy    string     `db:"initiated_by" json:"initiated_by"`
	TargetRole     UserRole   `db:"target_role" json:"target_role"`
	OrgUnitID      *string    `db:"org_unit_id" json:"org_unit_id,omitempty"`
	TotalItems     int        `db:"total_items" json:"total_items"`
	ProcessedItems int        `db:"processed_items" json:"processed_items"`
	SuccessCount   int        `db:"success_count" json:"success_count"`
	FailureCount   int        `db:"failure_count" json:"failure_count"`
	SkippedCount   int        `db:"skipped_count" json:"skipped_count"`
	Status         RunStatus  `db:"status" json:"status"`
	Options        RunOptions `db:"options" json:"options"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// RunFilter constrains run listing queries.
type RunFilter struct {
	Status      []RunStatus
	InitiatedBy string
	TargetRole  UserRole
	Limit       int
	Offset      int
}
