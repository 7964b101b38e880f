package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adp-bulkops/internal/models"
)

func TestBulkParserParsesRows(t *testing.T) {
	payload := "email,role,justification\n" +
		"alice@school.test,TEACHER,promotion\n" +
		"bob@school.test,STUDENT,\n"

	parser := NewBulkParser(100)
	result := parser.Parse(payload, models.DefaultRole)

	require.Empty(t, result.Errors)
	require.Len(t, result.Items, 2)
	require.Equal(t, "alice@school.test", result.Items[0].Identifier)
	require.Equal(t, models.RoleTeacher, result.Items[0].TargetRole)
	require.Equal(t, "promotion", result.Items[0].Justification)
	require.Equal(t, 2, result.Items[0].Row)
	require.Equal(t, 3, result.Items[1].Row)
}

func TestBulkParserEmptyPayload(t *testing.T) {
	parser := NewBulkParser(100)
	result := parser.Parse("   \n  ", models.DefaultRole)

	require.True(t, result.Fatal())
	require.Equal(t, CodeEmptyInput, result.Errors[0].Code)
}

func TestBulkParserRequiresIdentifierColumn(t *testing.T) {
	parser := NewBulkParser(100)
	result := parser.Parse("role,justification\nTEACHER,x\n", models.DefaultRole)

	require.True(t, result.Fatal())
	require.Equal(t, CodeMissingRequiredField, result.Errors[0].Code)
}

func TestBulkParserRowCeiling(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("email,role\n")
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&sb, "user%d@school.test,TEACHER\n", i)
	}

	parser := NewBulkParser(5)
	result := parser.Parse(sb.String(), models.DefaultRole)

	// One row past the ceiling rejects the whole payload.
	require.True(t, result.Fatal())
	require.Equal(t, CodeTooManyRows, result.Errors[0].Code)
	require.Empty(t, result.Items)
}

func TestBulkParserRowScopedErrors(t *testing.T) {
	payload := "email,role\n" +
		"alice@school.test,TEACHER\n" +
		"not an email,TEACHER\n" +
		",TEACHER\n" +
		"carol@school.test,WIZARD\n"

	parser := NewBulkParser(100)
	result := parser.Parse(payload, models.DefaultRole)

	// Bad rows are reported and skipped, good rows survive.
	require.Len(t, result.Items, 1)
	require.Len(t, result.Errors, 3)
	require.Equal(t, CodeMalformedIdentifier, result.Errors[0].Code)
	require.Equal(t, 3, result.Errors[0].Row)
	require.Equal(t, CodeMissingIdentifier, result.Errors[1].Code)
	require.Equal(t, CodeUnknownRole, result.Errors[2].Code)
	require.Equal(t, "WIZARD", result.Errors[2].RawValue)
}

func TestBulkParserQuotedFields(t *testing.T) {
	payload := "email,role,justification\n" +
		"alice@school.test,TEACHER,\"covers maths, physics\"\n"

	parser := NewBulkParser(100)
	result := parser.Parse(payload, models.DefaultRole)

	require.Empty(t, result.Errors)
	require.Len(t, result.Items, 1)
	require.Equal(t, "covers maths, physics", result.Items[0].Justification)
}

func TestBulkParserDuplicateWarning(t *testing.T) {
	payload := "email,role\n" +
		"alice@school.test,TEACHER\n" +
		"ALICE@school.test,STUDENT\n"

	parser := NewBulkParser(100)
	result := parser.Parse(payload, models.DefaultRole)

	require.Empty(t, result.Errors)
	require.Len(t, result.Items, 2)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, CodeDuplicate, result.Warnings[0].Code)
	require.Equal(t, 3, result.Warnings[0].Row)
}

func TestBulkParserDefaultsRoleWithWarning(t *testing.T) {
	payload := "email\nalice@school.test\n"

	parser := NewBulkParser(100)
	result := parser.Parse(payload, models.DefaultRole)

	require.Len(t, result.Items, 1)
	require.Equal(t, models.DefaultRole, result.Items[0].TargetRole)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, CodeNoRoleDefaulted, result.Warnings[0].Code)
}

func TestBulkParserRunLevelRoleSuppressesWarning(t *testing.T) {
	payload := "email\nalice@school.test\n"

	parser := NewBulkParser(100)
	result := parser.Parse(payload, models.RoleTeacher)

	require.Len(t, result.Items, 1)
	require.Equal(t, models.RoleTeacher, result.Items[0].TargetRole)
	require.Empty(t, result.Warnings)
}

func TestBulkParserUnknownColumnsBecomeMetadata(t *testing.T) {
	payload := "email,role,cohort\nalice@school.test,TEACHER,2026A\n"

	parser := NewBulkParser(100)
	result := parser.Parse(payload, models.DefaultRole)

	require.Len(t, result.Items, 1)
	require.Equal(t, "2026A", result.Items[0].Metadata["cohort"])
}
