package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adp-bulkops/internal/models"
)

func TestUserDirectoryFindByIdentifiers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserDirectoryRepository(db)
	rows := sqlmock.NewRows([]string{"id", "email", "full_name", "role", "org_unit_id", "active", "updated_at"}).
		AddRow("u-1", "alice@school.test", "Alice A", "STUDENT", "ou-1", true, time.Now()).
		AddRow("u-2", "bob@school.test", "Bob B", "TEACHER", "ou-1", true, time.Now())

	// Emails are lowercased and split from raw ids into a single query.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, full_name, role, org_unit_id, active, updated_at FROM users")).
		WithArgs(pq.Array([]string{"alice@school.test"}), pq.Array([]string{"u-2"})).
		WillReturnRows(rows)

	subjects, err := repo.FindByIdentifiers(context.Background(), []string{" Alice@School.Test ", "u-2"})
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	require.Equal(t, models.RoleStudent, subjects[0].Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserDirectoryFindByIdentifiersEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserDirectoryRepository(db)
	subjects, err := repo.FindByIdentifiers(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, subjects)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserDirectoryUpdateRoleConditional(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserDirectoryRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2 AND role = $3")).
		WithArgs("TEACHER", "u-1", "STUDENT").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateRole(context.Background(), "u-1", models.RoleStudent, models.RoleTeacher)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserDirectoryUpdateRoleStaleExpectation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserDirectoryRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET role")).
		WithArgs("TEACHER", "u-1", "STUDENT").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateRole(context.Background(), "u-1", models.RoleStudent, models.RoleTeacher)
	require.Equal(t, sql.ErrNoRows, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
