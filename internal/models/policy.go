package models

// TransitionRule is a persisted role-transition policy row. Rules with an
// org unit scope override rules without one.
type TransitionRule struct {
	ID               string    `db:"id" json:"id"`
	FromRole         UserRole  `db:"from_role" json:"from_role"`
	ToRole           UserRole  `db:"to_role" json:"to_role"`
	OrgUnitID        *string   `db:"org_unit_id" json:"org_unit_id,omitempty"`
	Allowed          bool      `db:"allowed" json:"allowed"`
	RequiresApproval bool      `db:"requires_approval" json:"requires_approval"`
	ApproverRole     *UserRole `db:"approver_role" json:"approver_role,omitempty"`
	Reason           *string   `db:"reason" json:"reason,omitempty"`
}

// TransitionVerdict is the Policy Oracle's answer for one transition.
type TransitionVerdict struct {
	Allowed          bool      `json:"allowed"`
	RequiresApproval bool      `json:"requires_approval"`
	ApproverRole     *UserRole `json:"approver_role,omitempty"`
	Reason           string    `json:"reason,omitempty"`
}
