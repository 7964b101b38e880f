package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/adp-bulkops/internal/dto"
	"github.com/noah-isme/adp-bulkops/internal/models"
)

// Validation codes beyond the parse-level ones.
const (
	CodeMissingTargetRole  = "MISSING_TARGET_ROLE"
	CodeRequiresApproval   = "REQUIRES_APPROVAL"
	CodeMissingExpiration  = "MISSING_EXPIRATION"
	CodeInvalidExpiration  = "INVALID_EXPIRATION"
	CodePolicyCheckFailed  = "POLICY_CHECK_FAILED"
	CodeInactiveSubject    = "INACTIVE_SUBJECT"
)

// SubjectResolver resolves subject identifiers against the user directory in
// a single batched call.
type SubjectResolver interface {
	FindByIdentifiers(ctx context.Context, identifiers []string) ([]models.Subject, error)
}

// PolicyOracle decides whether a role transition is permitted and whether it
// needs approval.
type PolicyOracle interface {
	CheckTransition(ctx context.Context, subjectID string, from, to models.UserRole, orgUnitID *string) (models.TransitionVerdict, error)
}

// ValidatedItem carries everything the executor needs so it never re-derives
// policy. Items are emitted in candidate order.
type ValidatedItem struct {
	Identifier       string
	SubjectID        string
	CurrentRole      models.UserRole
	TargetRole       models.UserRole
	OrgUnitID        *string
	Justification    string
	RequiresApproval bool
	ApproverRole     *models.UserRole
	NoOp             bool
}

// ValidationResult is the validator's structured report.
type ValidationResult struct {
	Valid         []ValidatedItem
	Errors        []dto.RowIssue
	Warnings      []dto.RowIssue
	AffectedCount int
}

// Report converts the result into its API projection.
func (r ValidationResult) Report() dto.ValidationReport {
	report := dto.ValidationReport{
		Errors:        r.Errors,
		Warnings:      r.Warnings,
		ItemCount:     len(r.Valid),
		AffectedCount: r.AffectedCount,
	}
	if report.Errors == nil {
		report.Errors = []dto.RowIssue{}
	}
	if report.Warnings == nil {
		report.Warnings = []dto.RowIssue{}
	}
	return report
}

// BulkValidator checks candidates structurally, resolves subjects, and
// consults the policy oracle. It never mutates state.
type BulkValidator struct {
	resolver SubjectResolver
	policy   PolicyOracle
	logger   *zap.Logger
}

// NewBulkValidator constructs the validator.
func NewBulkValidator(resolver SubjectResolver, policy PolicyOracle, logger *zap.Logger) *BulkValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkValidator{resolver: resolver, policy: policy, logger: logger}
}

// Validate produces the validated item set and report for one run.
func (v *BulkValidator) Validate(ctx context.Context, candidates []CandidateMutation, options models.RunOptions) (ValidationResult, error) {
	result := ValidationResult{}

	// Temporary-assignment rule applies to every item uniformly, so it is a
	// run-level error checked before any per-item work.
	if options.IsTemporary {
		if options.ExpiresAt == nil {
			result.Errors = append(result.Errors, dto.RowIssue{
				Code:    CodeMissingExpiration,
				Message: "temporary assignments require an expiration timestamp",
			})
			return result, nil
		}
		if !options.ExpiresAt.After(time.Now().UTC()) {
			result.Errors = append(result.Errors, dto.RowIssue{
				Code:    CodeInvalidExpiration,
				Message: "expiration timestamp must be in the future",
			})
			return result, nil
		}
	}

	structural := make([]CandidateMutation, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c.Identifier == "" {
			result.Errors = append(result.Errors, dto.RowIssue{
				Row: c.Row, Field: columnEmail,
				Code: CodeMissingIdentifier, Message: "missing subject identifier",
			})
			continue
		}
		if !validIdentifier(c.Identifier) {
			result.Errors = append(result.Errors, dto.RowIssue{
				Row: c.Row, Field: columnEmail,
				Code: CodeMalformedIdentifier, Message: "malformed subject identifier",
				RawValue: c.Identifier,
			})
			continue
		}
		if c.TargetRole == "" {
			result.Errors = append(result.Errors, dto.RowIssue{
				Row: c.Row, Field: columnRole,
				Code: CodeMissingTargetRole, Message: "missing target role",
			})
			continue
		}
		if !models.KnownRole(c.TargetRole) {
			result.Errors = append(result.Errors, dto.RowIssue{
				Row: c.Row, Field: columnRole,
				Code: CodeUnknownRole, Message: "unrecognized target role",
				RawValue: string(c.TargetRole),
			})
			continue
		}

		key := strings.ToLower(c.Identifier)
		if _, dup := seen[key]; dup {
			// First occurrence wins; later ones collapse.
			if !options.SkipDuplicates {
				result.Warnings = append(result.Warnings, dto.RowIssue{
					Row: c.Row, Field: columnEmail,
					Code: CodeDuplicate, Message: "duplicate subject collapsed",
					RawValue: c.Identifier,
				})
			}
			continue
		}
		seen[key] = struct{}{}
		structural = append(structural, c)
	}

	if len(structural) == 0 {
		return result, nil
	}

	identifiers := make([]string, 0, len(structural))
	for _, c := range structural {
		identifiers = append(identifiers, c.Identifier)
	}
	subjects, err := v.resolver.FindByIdentifiers(ctx, identifiers)
	if err != nil {
		return result, err
	}
	byIdentifier := make(map[string]models.Subject, len(subjects)*2)
	for _, s := range subjects {
		byIdentifier[strings.ToLower(s.Email)] = s
		byIdentifier[strings.ToLower(s.ID)] = s
	}

	for _, c := range structural {
		subject, ok := byIdentifier[strings.ToLower(c.Identifier)]
		if !ok {
			result.Errors = append(result.Errors, dto.RowIssue{
				Row: c.Row, Field: columnEmail,
				Code: models.CodeSubjectNotFound, Message: "no matching subject in the directory",
				RawValue: c.Identifier,
			})
			continue
		}
		if !subject.Active {
			result.Warnings = append(result.Warnings, dto.RowIssue{
				Row: c.Row,
				Code: CodeInactiveSubject, Message: "subject account is inactive",
				RawValue: c.Identifier,
			})
		}

		item := ValidatedItem{
			Identifier:    c.Identifier,
			SubjectID:     subject.ID,
			CurrentRole:   subject.Role,
			TargetRole:    c.TargetRole,
			OrgUnitID:     c.OrgUnitID,
			Justification: c.Justification,
		}
		if item.OrgUnitID == nil {
			item.OrgUnitID = subject.OrgUnitID
		}

		if subject.Role == c.TargetRole {
			result.Warnings = append(result.Warnings, dto.RowIssue{
				Row: c.Row,
				Code: models.CodeSameRole, Message: "subject already holds the target role",
				RawValue: c.Identifier,
			})
			item.NoOp = true
			result.Valid = append(result.Valid, item)
			continue
		}

		verdict, err := v.policy.CheckTransition(ctx, subject.ID, subject.Role, c.TargetRole, item.OrgUnitID)
		if err != nil {
			v.logger.Warn("policy check failed",
				zap.String("subject_id", subject.ID),
				zap.Error(err))
			result.Errors = append(result.Errors, dto.RowIssue{
				Row: c.Row,
				Code: CodePolicyCheckFailed, Message: "policy oracle unavailable for this item",
				RawValue: c.Identifier,
			})
			continue
		}
		if !verdict.Allowed {
			msg := verdict.Reason
			if msg == "" {
				msg = "role transition is not permitted"
			}
			result.Errors = append(result.Errors, dto.RowIssue{
				Row: c.Row,
				Code: models.CodePolicyViolation, Message: msg,
				RawValue: c.Identifier,
			})
			continue
		}
		if verdict.RequiresApproval {
			item.RequiresApproval = true
			item.ApproverRole = verdict.ApproverRole
			result.Warnings = append(result.Warnings, dto.RowIssue{
				Row: c.Row,
				Code: CodeRequiresApproval, Message: "transition proceeds but requires approval",
				RawValue: c.Identifier,
			})
		}

		result.Valid = append(result.Valid, item)
	}

	result.AffectedCount = len(result.Valid)
	return result, nil
}
