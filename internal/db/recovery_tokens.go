package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tripdesk/backoffice/internal/model"
)

const recoveryTokenColumns = `
	id, account_id, token_hash, purpose, created_at, expires_at, used, used_at, origin_addr
`

func scanRecoveryToken(row pgx.Row) (*model.RecoveryToken, error) {
	var t model.RecoveryToken
	err := row.Scan(
		&t.ID,
		&t.AccountID,
		&t.TokenHash,
		&t.Purpose,
		&t.CreatedAt,
		&t.ExpiresAt,
		&t.Used,
		&t.UsedAt,
		&t.OriginAddr,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ReplaceRecoveryToken deactivates every active token of the same account
// and purpose, then inserts the new one, in one transaction. It returns the
// number of tokens deactivated.
func (db *Postgres) ReplaceRecoveryToken(ctx context.Context, token *model.RecoveryToken) (int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE recovery_tokens
		SET used = TRUE, used_at = $3
		WHERE account_id = $1 AND purpose = $2 AND used = FALSE
	`, token.AccountID, token.Purpose, token.CreatedAt)
	if err != nil {
		return 0, err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO recovery_tokens (id, account_id, token_hash, purpose, created_at, expires_at, origin_addr)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		token.ID,
		token.AccountID,
		token.TokenHash,
		token.Purpose,
		token.CreatedAt,
		token.ExpiresAt,
		token.OriginAddr,
	); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetActiveRecoveryToken returns the token only while it is unused and
// unexpired at now for the given purpose.
func (db *Postgres) GetActiveRecoveryToken(ctx context.Context, tokenHash, purpose string, now time.Time) (*model.RecoveryToken, error) {
	return scanRecoveryToken(db.Pool.QueryRow(ctx, `
		SELECT `+recoveryTokenColumns+`
		FROM recovery_tokens
		WHERE token_hash = $1 AND purpose = $2 AND used = FALSE AND expires_at > $3
	`, tokenHash, purpose, now))
}

// ResetPasswordWithToken consumes an active token, stores the new password
// hash with the lockout cleared and deactivates the account's other tokens of
// the same purpose, all in one transaction. The boolean is false when the
// token was already used or expired; nothing changes in that case. Only one
// concurrent caller can win the token.
func (db *Postgres) ResetPasswordWithToken(ctx context.Context, tokenHash, purpose, passwordHash string, now time.Time) (uuid.UUID, bool, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var accountID uuid.UUID
	err = tx.QueryRow(ctx, `
		UPDATE recovery_tokens
		SET used = TRUE, used_at = $3
		WHERE token_hash = $1 AND purpose = $2 AND used = FALSE AND expires_at > $3
		RETURNING account_id
	`, tokenHash, purpose, now).Scan(&accountID)
	if err != nil {
		if IsNoRows(err) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $2,
			locked = FALSE,
			failed_attempts = 0,
			updated_at = NOW()
		WHERE id = $1
	`, accountID, passwordHash)
	if err != nil {
		return uuid.Nil, false, err
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, false, ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
		UPDATE recovery_tokens
		SET used = TRUE, used_at = $3
		WHERE account_id = $1 AND purpose = $2 AND used = FALSE
	`, accountID, purpose, now); err != nil {
		return uuid.Nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, false, err
	}
	return accountID, true, nil
}

func (db *Postgres) DeleteExpiredRecoveryTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM recovery_tokens
		WHERE expires_at <= $1
	`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
