package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/driveclone/apiserver/types"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	uniqueViolation      = "23505"
	usernameUniqueIndex  = "accounts_username_key"
	emailUniqueIndex     = "accounts_email_key"
	accountSelectColumns = `id, username, email, password_hash, created_at`
)

// AccountRepository handles persistence for accounts in Postgres.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByUsername matches the stored username exactly. Callers pass the
// normalized form.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (types.Account, error) {
	const query = `
		SELECT ` + accountSelectColumns + `
		FROM accounts
		WHERE username = $1`
	var account types.Account
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

// FindConflict reports ErrDuplicateEmail or ErrDuplicateUsername when an
// existing account already holds either identity. Email is checked first.
func (r *AccountRepository) FindConflict(ctx context.Context, username, email string) error {
	const query = `
		SELECT
			EXISTS (SELECT 1 FROM accounts WHERE lower(email) = lower($2)),
			EXISTS (SELECT 1 FROM accounts WHERE lower(username) = lower($1))`
	var emailTaken, usernameTaken bool
	if err := r.db.QueryRowContext(ctx, query, username, email).Scan(&emailTaken, &usernameTaken); err != nil {
		return err
	}
	switch {
	case emailTaken:
		return ErrDuplicateEmail
	case usernameTaken:
		return ErrDuplicateUsername
	}
	return nil
}

// Create inserts the account. A concurrent registration that wins the race
// surfaces here as a duplicate error from the unique indexes.
func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.CreatedAt = time.Now().UTC()

	const query = `
		INSERT INTO accounts (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.CreatedAt,
	); err != nil {
		return types.Account{}, mapUniqueViolation(err)
	}
	return account, nil
}

// Ping checks connectivity to the database.
func (r *AccountRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch {
	case strings.Contains(pqErr.Constraint, emailUniqueIndex):
		return ErrDuplicateEmail
	case strings.Contains(pqErr.Constraint, usernameUniqueIndex):
		return ErrDuplicateUsername
	}
	return ErrDuplicateIdentity
}
