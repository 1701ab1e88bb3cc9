package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/tripdesk/backoffice/internal/db"
	"github.com/tripdesk/backoffice/internal/logger"
	"github.com/tripdesk/backoffice/internal/model"
	"go.uber.org/zap"
)

// IssueSession mints an access token and a new persisted refresh token for
// account. Roles are loaded when the caller has not done so.
func (s *AuthService) IssueSession(ctx context.Context, account *model.Account, meta ClientMeta) (*model.Session, error) {
	session, _, err := s.issueSession(ctx, account, meta)
	return session, err
}

func (s *AuthService) issueSession(ctx context.Context, account *model.Account, meta ClientMeta) (*model.Session, string, error) {
	if account.Roles == nil {
		if err := s.loadRoles(ctx, account); err != nil {
			return nil, "", oops.Code("AUTH_SESSION_FAILED").With("operation", "load roles").Wrap(err)
		}
	}

	accessToken, accessExpiresAt, err := s.issuer.Issue(account)
	if err != nil {
		return nil, "", oops.Code("AUTH_SESSION_FAILED").With("operation", "sign access token").Wrap(err)
	}

	refreshToken, refreshHash, err := newOpaqueToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_SESSION_FAILED").With("operation", "generate refresh token").Wrap(err)
	}

	now := s.now()
	if err := s.store.InsertRefreshToken(ctx, &model.RefreshToken{
		ID:         uuid.New(),
		AccountID:  account.ID,
		TokenHash:  refreshHash,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.refreshTTL),
		OriginAddr: meta.OriginAddr,
		ClientInfo: meta.ClientInfo,
	}); err != nil {
		return nil, "", oops.Code("AUTH_SESSION_FAILED").With("operation", "persist refresh token").Wrap(err)
	}

	return &model.Session{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: accessExpiresAt,
	}, refreshHash, nil
}

// RefreshSession exchanges a refresh token for a new session exactly once.
// The presented token is revoked by a conditional update before the new pair
// is minted, so of two racing callers only one succeeds.
func (s *AuthService) RefreshSession(ctx context.Context, refreshToken string, meta ClientMeta) (*model.Session, error) {
	if refreshToken == "" {
		refreshTotal.WithLabelValues("invalid").Inc()
		return nil, oops.Code("AUTH_REFRESH_INVALID").Wrap(ErrInvalidOrExpiredToken)
	}

	hash := digestToken(refreshToken)
	now := s.now()

	record, err := s.store.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			refreshTotal.WithLabelValues("invalid").Inc()
			return nil, oops.Code("AUTH_REFRESH_INVALID").Wrap(ErrInvalidOrExpiredToken)
		}
		refreshTotal.WithLabelValues("error").Inc()
		return nil, oops.Code("AUTH_REFRESH_FAILED").With("operation", "get refresh token").Wrap(err)
	}

	log := logger.From(ctx).With(logger.AccountID(record.AccountID.String()))

	if !record.IsActiveAt(now) {
		if record.Revoked {
			s.handleReuse(ctx, log, record)
		} else {
			refreshTotal.WithLabelValues("invalid").Inc()
		}
		return nil, oops.Code("AUTH_REFRESH_INVALID").Wrap(ErrInvalidOrExpiredToken)
	}

	account, err := s.getAccount(ctx, record.AccountID)
	if err != nil {
		refreshTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if err := s.lockout.Gate(account); err != nil {
		refreshTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if _, err := s.store.ClaimRefreshToken(ctx, hash, now); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			refreshTotal.WithLabelValues("invalid").Inc()
			return nil, oops.Code("AUTH_REFRESH_INVALID").With("race", true).Wrap(ErrInvalidOrExpiredToken)
		}
		refreshTotal.WithLabelValues("error").Inc()
		return nil, oops.Code("AUTH_REFRESH_FAILED").With("operation", "claim refresh token").Wrap(err)
	}

	session, newHash, err := s.issueSession(ctx, account, meta)
	if err != nil {
		refreshTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := s.store.SetSupersededBy(ctx, hash, newHash); err != nil {
		// the chain link is audit data; the rotation itself already committed
		log.Warn("failed to record superseded_by", logger.Err(err))
	}

	refreshTotal.WithLabelValues("success").Inc()
	return session, nil
}

func (s *AuthService) handleReuse(ctx context.Context, log *zap.Logger, record *model.RefreshToken) {
	refreshTotal.WithLabelValues("reuse").Inc()
	if !s.revokeFamilyOnReuse {
		log.Info("revoked refresh token presented again")
		return
	}
	revoked, err := s.store.RevokeAccountRefreshTokens(ctx, record.AccountID, s.now())
	if err != nil {
		log.Error("failed to revoke sessions after refresh token reuse", logger.Err(err))
		return
	}
	log.Warn("refresh token reuse detected, revoked all sessions", zap.Int64("revoked", revoked))
}

// Logout revokes one refresh token of the account, or all of them when
// refreshToken is empty. Repeating it is not an error. The returned count is
// the number of tokens that were active before the call.
func (s *AuthService) Logout(ctx context.Context, accountID uuid.UUID, refreshToken string) (int64, error) {
	now := s.now()

	if refreshToken != "" {
		revoked, err := s.store.RevokeRefreshToken(ctx, accountID, digestToken(refreshToken), now)
		if err != nil {
			return 0, oops.Code("AUTH_LOGOUT_FAILED").With("account_id", accountID.String()).Wrap(err)
		}
		if !revoked {
			return 0, nil
		}
		return 1, nil
	}

	revoked, err := s.store.RevokeAccountRefreshTokens(ctx, accountID, now)
	if err != nil {
		return 0, oops.Code("AUTH_LOGOUT_FAILED").With("account_id", accountID.String()).Wrap(err)
	}
	logger.From(ctx).Info("all sessions revoked",
		logger.AccountID(accountID.String()),
		zap.Int64("revoked", revoked),
	)
	return revoked, nil
}
