package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripdesk/backoffice/internal/model"
)

var refreshRowColumns = []string{
	"id", "account_id", "token_hash", "created_at", "expires_at", "revoked", "revoked_at",
	"superseded_by", "origin_addr", "client_info",
}

func TestClaimRefreshToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("claims active token", func(t *testing.T) {
		store, mock := newMockStore(t)
		id, accountID := uuid.New(), uuid.New()
		mock.ExpectQuery("UPDATE refresh_tokens\\s+SET revoked = TRUE").
			WithArgs("digest", now).
			WillReturnRows(pgxmock.NewRows(refreshRowColumns).AddRow(
				id, accountID, "digest", now.Add(-time.Hour), now.Add(time.Hour), true, &now,
				(*string)(nil), "10.0.0.1", "curl",
			))

		token, err := store.ClaimRefreshToken(context.Background(), "digest", now)
		require.NoError(t, err)
		assert.Equal(t, accountID, token.AccountID)
		assert.True(t, token.Revoked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race or inactive", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("UPDATE refresh_tokens").
			WithArgs("digest", now).
			WillReturnError(pgx.ErrNoRows)

		_, err := store.ClaimRefreshToken(context.Background(), "digest", now)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRevokeAccountRefreshTokens_ReturnsCount(t *testing.T) {
	store, mock := newMockStore(t)
	accountID := uuid.New()
	now := time.Now()

	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(accountID, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := store.RevokeAccountRefreshTokens(context.Background(), accountID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeRefreshToken_AlreadyRevoked(t *testing.T) {
	store, mock := newMockStore(t)
	accountID := uuid.New()
	now := time.Now()

	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(accountID, "digest", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	revoked, err := store.RevokeRefreshToken(context.Background(), accountID, "digest", now)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestReplaceRecoveryToken_InvalidatesThenInserts(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	token := &model.RecoveryToken{
		ID:         uuid.New(),
		AccountID:  uuid.New(),
		TokenHash:  "digest",
		Purpose:    model.TokenPurposeRecovery,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
		OriginAddr: "10.0.0.1",
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE recovery_tokens").
		WithArgs(token.AccountID, token.Purpose, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO recovery_tokens").
		WithArgs(token.ID, token.AccountID, token.TokenHash, token.Purpose, token.CreatedAt, token.ExpiresAt, token.OriginAddr).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := store.ReplaceRecoveryToken(context.Background(), token)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetPasswordWithToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("consumes token and updates password together", func(t *testing.T) {
		store, mock := newMockStore(t)
		accountID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE recovery_tokens\\s+SET used = TRUE.*RETURNING account_id").
			WithArgs("digest", model.TokenPurposeRecovery, now).
			WillReturnRows(pgxmock.NewRows([]string{"account_id"}).AddRow(accountID))
		mock.ExpectExec("UPDATE accounts\\s+SET password_hash").
			WithArgs(accountID, "new-hash").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("UPDATE recovery_tokens\\s+SET used = TRUE").
			WithArgs(accountID, model.TokenPurposeRecovery, now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectCommit()

		got, ok, err := store.ResetPasswordWithToken(context.Background(), "digest", model.TokenPurposeRecovery, "new-hash", now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, accountID, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("used token changes nothing", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE recovery_tokens").
			WithArgs("digest", model.TokenPurposeRecovery, now).
			WillReturnRows(pgxmock.NewRows([]string{"account_id"}))
		mock.ExpectRollback()

		_, ok, err := store.ResetPasswordWithToken(context.Background(), "digest", model.TokenPurposeRecovery, "new-hash", now)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("password update failure rolls back the consume", func(t *testing.T) {
		store, mock := newMockStore(t)
		accountID := uuid.New()
		boom := errors.New("connection reset")

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE recovery_tokens").
			WithArgs("digest", model.TokenPurposeRecovery, now).
			WillReturnRows(pgxmock.NewRows([]string{"account_id"}).AddRow(accountID))
		mock.ExpectExec("UPDATE accounts").
			WithArgs(accountID, "new-hash").
			WillReturnError(boom)
		mock.ExpectRollback()

		_, ok, err := store.ResetPasswordWithToken(context.Background(), "digest", model.TokenPurposeRecovery, "new-hash", now)
		assert.ErrorIs(t, err, boom)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeleteExpiredTokens(t *testing.T) {
	store, mock := newMockStore(t)
	before := time.Now()

	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs(before).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec("DELETE FROM recovery_tokens").
		WithArgs(before).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	refresh, err := store.DeleteExpiredRefreshTokens(context.Background(), before)
	require.NoError(t, err)
	recovery, err := store.DeleteExpiredRecoveryTokens(context.Background(), before)
	require.NoError(t, err)

	assert.EqualValues(t, 4, refresh)
	assert.EqualValues(t, 2, recovery)
	assert.NoError(t, mock.ExpectationsWereMet())
}
