package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bytebites/bytebites-core/pkg/auth"
	"github.com/bytebites/bytebites-core/pkg/clients/postgres"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Schema creates the users table.
const Schema = `CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	roles         TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	insertUser = `INSERT INTO users (id, email, password_hash, roles, created_at)
VALUES ($1, $2, $3, $4, $5)`
	selectUserByEmail = `SELECT id, email, password_hash, roles, created_at FROM users WHERE email = $1`
)

// DB is the subset of *postgres.Client used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Migrate(ctx context.Context, statements ...string) error
}

var _ DB = (*postgres.Client)(nil)

// PostgresStore is a Store backed by the users table. Roles are stored in
// their comma-joined form.
type PostgresStore struct {
	db DB
}

// NewPostgresStore returns a store using db.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the users table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, Schema)
}

func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.Exec(ctx, insertUser, u.ID, u.Email, u.PasswordHash, auth.FormatRoles(u.Roles), u.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sserr.DuplicateIdentity(u.Email)
		}
		return err
	}
	return nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	var (
		u     User
		id    uuid.UUID
		roles string
		at    time.Time
	)
	err := s.db.QueryRow(ctx, selectUserByEmail, email).Scan(&id, &u.Email, &u.PasswordHash, &roles, &at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sserr.New(sserr.CodeNotFoundUser, "user not found")
	}
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase, "users: lookup failed")
	}
	u.ID = id
	u.Roles = auth.ParseRoles(roles)
	u.CreatedAt = at
	return &u, nil
}

var _ Store = (*PostgresStore)(nil)
