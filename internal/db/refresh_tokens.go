package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tripdesk/backoffice/internal/model"
)

const refreshTokenColumns = `
	id, account_id, token_hash, created_at, expires_at, revoked, revoked_at,
	superseded_by, origin_addr, client_info
`

func scanRefreshToken(row pgx.Row) (*model.RefreshToken, error) {
	var t model.RefreshToken
	err := row.Scan(
		&t.ID,
		&t.AccountID,
		&t.TokenHash,
		&t.CreatedAt,
		&t.ExpiresAt,
		&t.Revoked,
		&t.RevokedAt,
		&t.SupersededBy,
		&t.OriginAddr,
		&t.ClientInfo,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (db *Postgres) InsertRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, account_id, token_hash, created_at, expires_at, origin_addr, client_info)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		token.ID,
		token.AccountID,
		token.TokenHash,
		token.CreatedAt,
		token.ExpiresAt,
		token.OriginAddr,
		token.ClientInfo,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// GetRefreshTokenByHash returns the record in any state.
func (db *Postgres) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	return scanRefreshToken(db.Pool.QueryRow(ctx, `
		SELECT `+refreshTokenColumns+`
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash))
}

// ClaimRefreshToken revokes the token only if it is still active at now and
// returns the claimed record. Of any number of concurrent callers exactly
// one gets a record; the rest get ErrNotFound.
func (db *Postgres) ClaimRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*model.RefreshToken, error) {
	return scanRefreshToken(db.Pool.QueryRow(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2
		RETURNING `+refreshTokenColumns,
		tokenHash, now))
}

// SetSupersededBy records the digest of the token that replaced tokenHash.
func (db *Postgres) SetSupersededBy(ctx context.Context, tokenHash, replacementHash string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET superseded_by = $2
		WHERE token_hash = $1
	`, tokenHash, replacementHash)
	return err
}

// RevokeRefreshToken revokes one of the account's tokens. It reports whether
// an active token was actually revoked.
func (db *Postgres) RevokeRefreshToken(ctx context.Context, accountID uuid.UUID, tokenHash string, now time.Time) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $3
		WHERE account_id = $1 AND token_hash = $2 AND revoked = FALSE
	`, accountID, tokenHash, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (db *Postgres) RevokeAccountRefreshTokens(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE account_id = $1 AND revoked = FALSE
	`, accountID, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (db *Postgres) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at <= $1
	`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
