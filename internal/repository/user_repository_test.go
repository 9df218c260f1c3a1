package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelhub/review-api/internal/models"
)

func TestUserRepositoryFindByID(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "full_name", "role", "base_rate", "grade_id", "active", "created_at", "updated_at"}).
		AddRow("worker-1", "w@example.com", "Worker One", string(models.RoleWorker), int64(50000), nil, true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1 LIMIT 1")).
		WithArgs("worker-1").
		WillReturnRows(rows)

	user, err := repo.FindByID(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleWorker, user.Role)
	require.NotNil(t, user.BaseRate)
	assert.Equal(t, int64(50000), *user.BaseRate)
	assert.Nil(t, user.GradeID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDMissing(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "ghost")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUserRepositoryRateProfile(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"id", "full_name", "base_rate", "grade_rate"}).
		AddRow("worker-1", "Worker One", nil, int64(40000))
	mock.ExpectQuery(`LEFT JOIN pricing_grades g ON g.id = u.grade_id\s+WHERE u.id = \$1\s+FOR SHARE OF u`).
		WithArgs("worker-1").
		WillReturnRows(rows)

	profile, err := repo.RateProfile(context.Background(), nil, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "worker-1", profile.WorkerID)
	assert.Nil(t, profile.BaseRate)
	require.NotNil(t, profile.GradeRate)
	assert.Equal(t, int64(40000), *profile.GradeRate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositorySetBaseRate(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewUserRepository(db)

	rate := int64(70000)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET base_rate = $2")).
		WithArgs("worker-1", rate, sqlmock.AnyArg(), string(models.RoleWorker)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetBaseRate(context.Background(), "worker-1", &rate))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET base_rate = $2")).
		WithArgs("admin-1", nil, sqlmock.AnyArg(), string(models.RoleWorker)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.SetBaseRate(context.Background(), "admin-1", nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
