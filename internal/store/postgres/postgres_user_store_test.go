package postgres

import (
	"context"
	"database/sql"
	"errors"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"testing"
)

func TestNewPostgresUserStore(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userStore := NewPostgresUserStore(db)
	require.NotNil(t, userStore)
	var _ store.UserStore = userStore
}

func TestPostgresUserStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userStore := NewPostgresUserStore(db)

	mock.ExpectQuery("INSERT INTO genfire_schema.users").
		WithArgs("newuser", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	id, err := userStore.Create(context.Background(), "newuser", "password123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserStore_Find(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userStore := NewPostgresUserStore(db)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, username, password FROM genfire_schema.users").
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password"}).AddRow(1, "admin", string(hash)))

	user, err := userStore.Find(context.Background(), "admin", "secret")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.Empty(t, user.Password)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserStore_Find_WrongPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userStore := NewPostgresUserStore(db)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, username, password FROM genfire_schema.users").
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password"}).AddRow(1, "admin", string(hash)))

	user, err := userStore.Find(context.Background(), "admin", "guess")
	assert.Nil(t, user)
	assert.True(t, errors.Is(err, custom_errors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserStore_FindByUsername_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userStore := NewPostgresUserStore(db)

	mock.ExpectQuery("SELECT id, username FROM genfire_schema.users").
		WithArgs("nonexistent").
		WillReturnError(sql.ErrNoRows)

	user, err := userStore.FindByUsername(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserStore_FindByUsername_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userStore := NewPostgresUserStore(db)

	mock.ExpectQuery("SELECT id, username FROM genfire_schema.users").
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).AddRow(1, "admin"))

	user, err := userStore.FindByUsername(context.Background(), "admin")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "admin", user.Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserStore_Delete_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userStore := NewPostgresUserStore(db)

	mock.ExpectExec("DELETE FROM genfire_schema.users").
		WithArgs("nonexistent").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = userStore.Delete(context.Background(), "nonexistent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no user found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
