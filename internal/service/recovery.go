package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/tripdesk/backoffice/internal/db"
	"github.com/tripdesk/backoffice/internal/logger"
	"github.com/tripdesk/backoffice/internal/model"
	tmpl "github.com/tripdesk/backoffice/internal/template"
	"go.uber.org/zap"
)

// RequestPasswordRecovery issues a new recovery token for the account that
// owns email, deactivating any earlier one, and returns the raw value.
// Unknown emails yield ErrNotFound; hiding that is the HTTP layer's job.
func (s *AuthService) RequestPasswordRecovery(ctx context.Context, email, callbackBaseURL string, meta ClientMeta) (string, error) {
	callback, err := parseCallbackURL(callbackBaseURL)
	if err != nil {
		return "", err
	}

	account, err := s.store.GetAccountByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			recoveryRequestsTotal.WithLabelValues("unknown").Inc()
			return "", oops.Code("AUTH_ACCOUNT_NOT_FOUND").Wrap(ErrNotFound)
		}
		recoveryRequestsTotal.WithLabelValues("error").Inc()
		return "", oops.Code("AUTH_RECOVERY_FAILED").With("operation", "get account").Wrap(err)
	}

	raw, hash, err := newOpaqueToken()
	if err != nil {
		recoveryRequestsTotal.WithLabelValues("error").Inc()
		return "", oops.Code("AUTH_RECOVERY_FAILED").With("operation", "generate token").Wrap(err)
	}

	now := s.now()
	token := &model.RecoveryToken{
		ID:         uuid.New(),
		AccountID:  account.ID,
		TokenHash:  hash,
		Purpose:    model.TokenPurposeRecovery,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.recoveryTTL),
		OriginAddr: meta.OriginAddr,
	}
	invalidated, err := s.store.ReplaceRecoveryToken(ctx, token)
	if err != nil {
		recoveryRequestsTotal.WithLabelValues("error").Inc()
		return "", oops.Code("AUTH_RECOVERY_FAILED").
			With("operation", "store token").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	q := callback.Query()
	q.Set("token", raw)
	callback.RawQuery = q.Encode()

	s.notifier.Recovery(ctx, account, tmpl.LinkData{
		URL:       callback.String(),
		ExpiresAt: token.ExpiresAt,
		TTL:       s.recoveryTTL,
	})

	recoveryRequestsTotal.WithLabelValues("issued").Inc()
	logger.From(ctx).Info("recovery token issued",
		logger.AccountID(account.ID.String()),
		zap.Int64("invalidated", invalidated),
	)
	return raw, nil
}

// ResetPassword consumes an active recovery token, sets the new password and
// clears any lockout.
func (s *AuthService) ResetPassword(ctx context.Context, token, newSecret, confirm string, meta ClientMeta) (bool, error) {
	if token == "" {
		return false, oops.Code("AUTH_RECOVERY_TOKEN_INVALID").Wrap(ErrInvalidOrExpiredToken)
	}

	hash := digestToken(token)
	now := s.now()

	record, err := s.store.GetActiveRecoveryToken(ctx, hash, model.TokenPurposeRecovery, now)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return false, oops.Code("AUTH_RECOVERY_TOKEN_INVALID").Wrap(ErrInvalidOrExpiredToken)
		}
		return false, oops.Code("AUTH_RESET_FAILED").With("operation", "get token").Wrap(err)
	}

	if newSecret != confirm {
		return false, validationError("AUTH_PASSWORD_MISMATCH", "passwords do not match")
	}
	if ok, reason := CheckStrength(newSecret); !ok {
		return false, oops.Code("AUTH_WEAK_SECRET").With("reason", reason).Wrap(ErrWeakSecret)
	}

	passwordHash, err := s.hasher.Hash(newSecret)
	if err != nil {
		return false, oops.Code("AUTH_RESET_FAILED").With("operation", "hash password").Wrap(err)
	}

	accountID, ok, err := s.store.ResetPasswordWithToken(ctx, hash, model.TokenPurposeRecovery, passwordHash, s.now())
	if err != nil {
		return false, s.accountError(err, record.AccountID, "AUTH_RESET_FAILED")
	}
	if !ok {
		return false, oops.Code("AUTH_RECOVERY_TOKEN_INVALID").With("race", true).Wrap(ErrInvalidOrExpiredToken)
	}

	log := logger.From(ctx).With(logger.AccountID(accountID.String()))
	log.Info("password reset", zap.String("origin", meta.OriginAddr))
	return true, nil
}

func parseCallbackURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, validationError("AUTH_INVALID_CALLBACK", "callbackBaseUrl must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, validationError("AUTH_INVALID_CALLBACK", "callbackBaseUrl must use http or https")
	}
	return u, nil
}
