package models

import "time"

// RoleChangeEntry is an immutable audit record of a single role transition
// or of a rollback summary. Entries are append-only.
type RoleChangeEntry struct {
	ID            string    `db:"id" json:"id"`
	RunID         string    `db:"run_id" json:"run_id"`
	SubjectID     *string   `db:"subject_id" json:"subject_id,omitempty"`
	FromRole      UserRole  `db:"from_role" json:"from_role"`
	ToRole        UserRole  `db:"to_role" json:"to_role"`
	ActorID       string    `db:"actor_id" json:"actor_id"`
	Justification string    `db:"justification" json:"justification"`
	IsRollback    bool      `db:"is_rollback" json:"is_rollback"`
	AffectedCount int       `db:"affected_count" json:"affected_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
