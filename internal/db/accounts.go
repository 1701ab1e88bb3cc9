package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tripdesk/backoffice/internal/model"
)

const accountColumns = `
	id, username, email, password_hash, kind, first_name, last_name,
	active, locked, failed_attempts, last_access_at, created_at, updated_at
`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.Kind,
		&a.FirstName,
		&a.LastName,
		&a.Active,
		&a.Locked,
		&a.FailedAttempts,
		&a.LastAccessAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts the account and, in the same transaction, links it
// to roleName when that role exists. The boolean reports whether the role was
// assigned. A unique violation on username or email maps to ErrConflict.
func (db *Postgres) CreateAccount(ctx context.Context, account *model.Account, roleName string) (*model.Account, bool, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	created, err := scanAccount(tx.QueryRow(ctx, `
		INSERT INTO accounts (id, username, email, password_hash, kind, first_name, last_name, created_at, updated_at)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7, NOW(), NOW())
		RETURNING `+accountColumns,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.Kind,
		account.FirstName,
		account.LastName,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, ErrConflict
		}
		return nil, false, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO account_roles (account_id, role_id)
		SELECT $1, id FROM roles WHERE name = $2
	`, created.ID, roleName)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return created, tag.RowsAffected() == 1, nil
}

// IdentifiersTaken reports separately whether the username and the email
// are already in use. Email comparison is case-insensitive.
func (db *Postgres) IdentifiersTaken(ctx context.Context, username, email string) (bool, bool, error) {
	var usernameTaken, emailTaken bool
	err := db.Pool.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM accounts WHERE username = $1),
			EXISTS (SELECT 1 FROM accounts WHERE LOWER(email) = LOWER($2))
	`, username, email).Scan(&usernameTaken, &emailTaken)
	if err != nil {
		return false, false, err
	}
	return usernameTaken, emailTaken, nil
}

func (db *Postgres) GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return scanAccount(db.Pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id))
}

// GetAccountByLogin resolves either a username or an email, ignoring case.
// An exact username match wins, then a case-folded username match, then the
// email. Usernames differing only in case resolve to the oldest account.
func (db *Postgres) GetAccountByLogin(ctx context.Context, login string) (*model.Account, error) {
	return scanAccount(db.Pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)
		ORDER BY (username = $1) DESC, (LOWER(username) = LOWER($1)) DESC, created_at, id
		LIMIT 1
	`, login))
}

func (db *Postgres) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return scanAccount(db.Pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE LOWER(email) = LOWER($1)
	`, email))
}

// RecordFailedLogin increments the counter and sets the lock flag once the
// new value reaches threshold, in a single statement.
func (db *Postgres) RecordFailedLogin(ctx context.Context, id uuid.UUID, threshold int) (int, bool, error) {
	var attempts int
	var locked bool
	err := db.Pool.QueryRow(ctx, `
		UPDATE accounts
		SET failed_attempts = failed_attempts + 1,
			locked = locked OR (failed_attempts + 1 >= $2),
			updated_at = NOW()
		WHERE id = $1
		RETURNING failed_attempts, locked
	`, id, threshold).Scan(&attempts, &locked)
	if err != nil {
		if IsNoRows(err) {
			return 0, false, ErrNotFound
		}
		return 0, false, err
	}
	return attempts, locked, nil
}

// RecordSuccessfulLogin resets the counter and stamps last access. It only
// applies while the account is unlocked; false means a concurrent failure
// locked it first.
func (db *Postgres) RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE accounts
		SET failed_attempts = 0, last_access_at = $2, updated_at = NOW()
		WHERE id = $1 AND locked = FALSE
	`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (db *Postgres) UnlockAccount(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE accounts
		SET locked = FALSE, failed_attempts = 0, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the stored hash. Lockout state is left alone;
// ResetPasswordWithToken is the path that clears it.
func (db *Postgres) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
