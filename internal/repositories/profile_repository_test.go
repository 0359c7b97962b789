package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

var profileColumns = []string{"user_id", "name", "avatar_url", "updated_at"}

func newMockProfileRepo(t *testing.T) (*ProfileRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProfileRepo(sqlx.NewDb(db, "sqlmock"), 0), mock
}

func TestGetProfile(t *testing.T) {
	repo, mock := newMockProfileRepo(t)

	mock.ExpectQuery(`FROM profiles WHERE user_id=\$1`).
		WithArgs("A").
		WillReturnRows(sqlmock.NewRows(profileColumns).AddRow("A", "Alice", "https://img/a.png", at(1)))

	profile, err := repo.GetProfile(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.Name)
	assert.Equal(t, "https://img/a.png", profile.AvatarURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfileNotFound(t *testing.T) {
	repo, mock := newMockProfileRepo(t)

	mock.ExpectQuery(`FROM profiles`).WithArgs("X").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetProfile(context.Background(), "X")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.NotErrorIs(t, err, ErrRemoteRead)
}

func TestGetProfileReadError(t *testing.T) {
	repo, mock := newMockProfileRepo(t)

	mock.ExpectQuery(`FROM profiles`).WithArgs("X").WillReturnError(errors.New("connection reset"))

	_, err := repo.GetProfile(context.Background(), "X")
	assert.ErrorIs(t, err, ErrRemoteRead)
}

func TestUpsertProfile(t *testing.T) {
	repo, mock := newMockProfileRepo(t)

	mock.ExpectQuery(`(?s)INSERT INTO profiles .* ON CONFLICT \(user_id\) DO UPDATE`).
		WithArgs("U", "Uma", "").
		WillReturnRows(sqlmock.NewRows(profileColumns).AddRow("U", "Uma", "", at(5)))

	saved, err := repo.UpsertProfile(context.Background(), models.Profile{UserID: "U", Name: "Uma"})
	require.NoError(t, err)
	assert.Equal(t, at(5), saved.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProfileWriteError(t *testing.T) {
	repo, mock := newMockProfileRepo(t)

	mock.ExpectQuery(`INSERT INTO profiles`).WillReturnError(errors.New("disk full"))

	_, err := repo.UpsertProfile(context.Background(), models.Profile{UserID: "U", Name: "Uma"})
	assert.ErrorIs(t, err, ErrRemoteWrite)
}
