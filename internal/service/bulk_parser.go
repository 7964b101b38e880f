package service

import (
	"encoding/csv"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/noah-isme/adp-bulkops/internal/dto"
	"github.com/noah-isme/adp-bulkops/internal/models"
)

// Payload-level and row-level parse codes.
const (
	CodeEmptyInput           = "EMPTY_INPUT"
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	CodeTooManyRows          = "TOO_MANY_ROWS"
	CodeMalformedIdentifier  = "MALFORMED_IDENTIFIER"
	CodeMissingIdentifier    = "MISSING_IDENTIFIER"
	CodeUnknownRole          = "UNKNOWN_ROLE"
	CodeMalformedRow         = "MALFORMED_ROW"
	CodeDuplicate            = "DUPLICATE"
	CodeNoRoleDefaulted      = "NO_ROLE_DEFAULTED"
)

// Recognised payload columns. Anything else is carried as row metadata.
const (
	columnEmail         = "email"
	columnUserID        = "user_id"
	columnRole          = "role"
	columnOrgUnit       = "org_unit_id"
	columnJustification = "justification"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	idPattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
)

// CandidateMutation is one parsed row before validation. Never mutated after
// creation.
type CandidateMutation struct {
	Row           int
	Identifier    string
	TargetRole    models.UserRole
	OrgUnitID     *string
	Justification string
	Metadata      map[string]string
}

// ParseResult collects candidates plus row- and payload-scoped diagnostics.
type ParseResult struct {
	Items    []CandidateMutation
	Errors   []dto.RowIssue
	Warnings []dto.RowIssue
}

// Fatal reports whether a payload-level error aborted parsing.
func (r ParseResult) Fatal() bool {
	return len(r.Items) == 0 && len(r.Errors) > 0 && r.Errors[0].Row == 0
}

// BulkParser converts raw delimited payloads into candidate mutations.
// Quoting follows RFC 4180: delimiters and newlines are legal inside quoted
// fields.
type BulkParser struct {
	maxRows int
}

// NewBulkParser constructs a parser with the configured row ceiling.
func NewBulkParser(maxRows int) *BulkParser {
	if maxRows <= 0 {
		maxRows = 10000
	}
	return &BulkParser{maxRows: maxRows}
}

// Parse reads the payload into candidates. Rows without a role value fall
// back to defaultRole with a warning; pass models.DefaultRole when the run
// did not name a target role.
func (p *BulkParser) Parse(raw string, defaultRole models.UserRole) ParseResult {
	result := ParseResult{}
	if strings.TrimSpace(raw) == "" {
		result.Errors = append(result.Errors, dto.RowIssue{
			Code:    CodeEmptyInput,
			Message: "payload is empty",
		})
		return result
	}
	if defaultRole == "" {
		defaultRole = models.DefaultRole
	}

	reader := csv.NewReader(strings.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		result.Errors = append(result.Errors, dto.RowIssue{
			Code:    CodeMalformedRow,
			Message: "unreadable header row",
		})
		return result
	}

	columns := make(map[int]string, len(header))
	hasIdentifier := false
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		columns[i] = name
		if name == columnEmail || name == columnUserID {
			hasIdentifier = true
		}
	}
	if !hasIdentifier {
		result.Errors = append(result.Errors, dto.RowIssue{
			Field:   columnEmail,
			Code:    CodeMissingRequiredField,
			Message: "payload must contain an email or user_id column",
		})
		return result
	}

	seen := make(map[string]struct{})
	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if row-1 > p.maxRows {
			return ParseResult{Errors: []dto.RowIssue{{
				Code:    CodeTooManyRows,
				Message: "payload exceeds the configured row ceiling",
			}}}
		}
		if err != nil {
			issue := dto.RowIssue{Row: row, Code: CodeMalformedRow, Message: "unparseable row"}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				issue.Message = parseErr.Err.Error()
			}
			result.Errors = append(result.Errors, issue)
			continue
		}
		candidate, issues, warnings := p.parseRow(row, record, columns, defaultRole)
		result.Warnings = append(result.Warnings, warnings...)
		if len(issues) > 0 {
			result.Errors = append(result.Errors, issues...)
			continue
		}

		key := strings.ToLower(candidate.Identifier)
		if _, dup := seen[key]; dup {
			result.Warnings = append(result.Warnings, dto.RowIssue{
				Row:      row,
				Field:    columnEmail,
				Code:     CodeDuplicate,
				Message:  "subject identifier appears more than once",
				RawValue: candidate.Identifier,
			})
		}
		seen[key] = struct{}{}
		result.Items = append(result.Items, candidate)
	}

	return result
}

func (p *BulkParser) parseRow(row int, record []string, columns map[int]string, defaultRole models.UserRole) (CandidateMutation, []dto.RowIssue, []dto.RowIssue) {
	candidate := CandidateMutation{Row: row, TargetRole: defaultRole}
	var issues, warnings []dto.RowIssue

	identifierField := columnEmail
	roleSet := false
	for i, value := range record {
		value = strings.TrimSpace(value)
		name, ok := columns[i]
		if !ok {
			continue
		}
		switch name {
		case columnEmail, columnUserID:
			if value == "" {
				continue
			}
			candidate.Identifier = value
			identifierField = name
		case columnRole:
			if value == "" {
				continue
			}
			role := models.UserRole(strings.ToUpper(value))
			if !models.KnownRole(role) {
				issues = append(issues, dto.RowIssue{
					Row:      row,
					Field:    columnRole,
					Code:     CodeUnknownRole,
					Message:  "unrecognized role literal",
					RawValue: value,
				})
				continue
			}
			candidate.TargetRole = role
			roleSet = true
		case columnOrgUnit:
			if value != "" {
				v := value
				candidate.OrgUnitID = &v
			}
		case columnJustification:
			candidate.Justification = value
		default:
			if value != "" {
				if candidate.Metadata == nil {
					candidate.Metadata = make(map[string]string)
				}
				candidate.Metadata[name] = value
			}
		}
	}

	if candidate.Identifier == "" {
		issues = append(issues, dto.RowIssue{
			Row:     row,
			Field:   identifierField,
			Code:    CodeMissingIdentifier,
			Message: "row has no subject identifier",
		})
	} else if !validIdentifier(candidate.Identifier) {
		issues = append(issues, dto.RowIssue{
			Row:      row,
			Field:    identifierField,
			Code:     CodeMalformedIdentifier,
			Message:  "identifier is neither a valid email nor a valid user id",
			RawValue: candidate.Identifier,
		})
	}

	// The warning only applies when the run itself named no target role.
	if !roleSet && len(issues) == 0 && defaultRole == models.DefaultRole {
		warnings = append(warnings, dto.RowIssue{
			Row:     row,
			Field:   columnRole,
			Code:    CodeNoRoleDefaulted,
			Message: "no role specified, defaulting",
		})
	}

	return candidate, issues, warnings
}

func validIdentifier(identifier string) bool {
	if strings.Contains(identifier, "@") {
		return emailPattern.MatchString(identifier)
	}
	return idPattern.MatchString(identifier)
}
