package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Client) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewFromPool(mock)
}

func TestClient_Exec(t *testing.T) {
	t.Parallel()
	mock, c := newMock(t)
	mock.ExpectExec("DELETE FROM users").WithArgs("a@b.c").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	tag, err := c.Exec(context.Background(), "DELETE FROM users WHERE email = $1", "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tag.RowsAffected())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_ExecErrorCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		code sserr.Code
	}{
		{"deadline", context.DeadlineExceeded, sserr.CodeTimeoutDatabase},
		{"canceled", context.Canceled, sserr.CodeTimeoutDatabase},
		{"other", errors.New("syntax error"), sserr.CodeInternalDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock, c := newMock(t)
			mock.ExpectExec("UPDATE").WillReturnError(tt.err)

			_, err := c.Exec(context.Background(), "UPDATE orders SET status = 'X'")
			assert.Equal(t, tt.code, sserr.GetCode(err))
		})
	}
}

func TestClient_Query(t *testing.T) {
	t.Parallel()
	mock, c := newMock(t)
	mock.ExpectQuery("SELECT id FROM orders").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("o-1").AddRow("o-2"))

	rows, err := c.Query(context.Background(), "SELECT id FROM orders")
	require.NoError(t, err)
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"o-1", "o-2"}, ids)
}

func TestClient_Migrate(t *testing.T) {
	t.Parallel()
	mock, c := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCommit()

	require.NoError(t, c.Migrate(context.Background(), "CREATE TABLE a ()", "CREATE TABLE b ()"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_MigrateRollsBack(t *testing.T) {
	t.Parallel()
	mock, c := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := c.Migrate(context.Background(), "CREATE TABLE a ()")
	assert.Equal(t, sserr.CodeInternalDatabase, sserr.GetCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_Health(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	c := NewFromPool(mock)

	mock.ExpectPing()
	assert.NoError(t, c.Health(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Equal(t, sserr.CodeUnavailableDependency, sserr.GetCode(c.Health(context.Background())))
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}

	assert.True(t, IsUniqueViolation(dup))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", wrapError(dup, "postgres: exec failed"))))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	cfg := Config{URI: "postgres://u:p@db:5432/bytebites"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultMaxConns, cfg.MaxConns)
	assert.True(t, cfg.Enabled())

	assert.Error(t, (&Config{URI: "mysql://db"}).Validate())
	assert.Error(t, (&Config{URI: "postgres://db", MinConns: 5, MaxConns: 2}).Validate())
	assert.False(t, (&Config{}).Enabled())
}
