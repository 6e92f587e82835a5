package postgres

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbs/store"
)

func domainUserFixture() domain.User {
	return domain.User{
		Username:     "alice",
		DisplayName:  "Alice",
		PasswordHash: "hash",
		Role:         domain.RoleUser,
	}
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestSessionGetNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE bbs_sessions SET last_activity").
		WithArgs(sqlmock.AnyArg(), "k1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT key, user_id").
		WithArgs("k1").
		WillReturnRows(sqlmock.NewRows([]string{
			"key", "user_id", "username", "role", "current_area", "command_history", "data",
			"created_at", "last_activity", "client_addr", "client_agent",
		}))

	_, err := s.SessionGet(ctx, "k1")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionGetFound(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE bbs_sessions SET last_activity").
		WithArgs(sqlmock.AnyArg(), "k1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT key, user_id").
		WithArgs("k1").
		WillReturnRows(sqlmock.NewRows([]string{
			"key", "user_id", "username", "role", "current_area", "command_history", "data",
			"created_at", "last_activity", "client_addr", "client_agent",
		}).AddRow("k1", "", "", "", "main", []byte(`[]`), []byte(`{}`), now, now, "", ""))

	session, err := s.SessionGet(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, "main", session.CurrentArea)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateConflict(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO bbs_users").
		WillReturnError(&fakePQError{msg: `duplicate key value violates unique constraint "bbs_users_username_key"`})

	_, err := s.UserCreate(ctx, domainUserFixture())
	require.ErrorIs(t, err, store.ErrConflict)
}

type fakePQError struct{ msg string }

func (e *fakePQError) Error() string { return e.msg }
