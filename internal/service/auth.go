package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/tripdesk/backoffice/internal/config"
	"github.com/tripdesk/backoffice/internal/db"
	"github.com/tripdesk/backoffice/internal/logger"
	"github.com/tripdesk/backoffice/internal/model"
	"go.uber.org/zap"
)

const (
	refreshCookieName = "tripdesk_refresh"
	minJWTSecretBytes = 32

	RoleCustomer      = "Customer"
	RoleEmployee      = "Employee"
	RoleAdministrator = "Administrator"

	PermissionAccountsUnlock = "accounts.unlock"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,64}$`)

type accountStore interface {
	CreateAccount(ctx context.Context, account *model.Account, roleName string) (*model.Account, bool, error)
	IdentifiersTaken(ctx context.Context, username, email string) (bool, bool, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	GetAccountByLogin(ctx context.Context, login string) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	RecordFailedLogin(ctx context.Context, id uuid.UUID, threshold int) (int, bool, error)
	RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	UnlockAccount(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

type roleReader interface {
	GetAccountRoles(ctx context.Context, accountID uuid.UUID) ([]model.Role, error)
}

type refreshTokenStore interface {
	InsertRefreshToken(ctx context.Context, token *model.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	ClaimRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*model.RefreshToken, error)
	SetSupersededBy(ctx context.Context, tokenHash, replacementHash string) error
	RevokeRefreshToken(ctx context.Context, accountID uuid.UUID, tokenHash string, now time.Time) (bool, error)
	RevokeAccountRefreshTokens(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error)
}

type recoveryTokenStore interface {
	ReplaceRecoveryToken(ctx context.Context, token *model.RecoveryToken) (int64, error)
	GetActiveRecoveryToken(ctx context.Context, tokenHash, purpose string, now time.Time) (*model.RecoveryToken, error)
	// ResetPasswordWithToken은 토큰 소비와 비밀번호 변경을 하나의 트랜잭션으로 처리한다.
	ResetPasswordWithToken(ctx context.Context, tokenHash, purpose, passwordHash string, now time.Time) (uuid.UUID, bool, error)
}

// AuthStore is everything the orchestrator persists. *db.Postgres
// implements it.
type AuthStore interface {
	accountStore
	roleReader
	refreshTokenStore
	recoveryTokenStore
}

var _ AuthStore = (*db.Postgres)(nil)

type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

// ClientMeta describes where a request came from. Both fields are optional.
type ClientMeta struct {
	OriginAddr string
	ClientInfo string
}

type AuthService struct {
	store               AuthStore
	hasher              *PasswordHasher
	issuer              *AccessTokenIssuer
	lockout             LockoutPolicy
	notifier            *Notifier
	refreshTTL          time.Duration
	recoveryTTL         time.Duration
	revokeFamilyOnReuse bool
	cookieCfg           CookieConfig
	now                 func() time.Time
}

func NewAuthService(store AuthStore, notifier *Notifier, cfg config.AuthConfig) (*AuthService, error) {
	if len(cfg.JWTSecret) < minJWTSecretBytes {
		return nil, fmt.Errorf("%w: JWT_SECRET must be at least %d bytes", ErrMisconfigured, minJWTSecretBytes)
	}

	accessMinutes, err := parsePositiveInt(cfg.AccessTokenExpirationMinutes, 60)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_ACCESS_TOKEN_EXPIRATION_MINUTES", ErrMisconfigured)
	}

	refreshDays, err := parsePositiveInt(cfg.RefreshTokenExpirationDays, 7)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_REFRESH_TOKEN_EXPIRATION_DAYS", ErrMisconfigured)
	}

	maxFailed, err := parsePositiveInt(cfg.MaxFailedAttempts, defaultMaxFailedAttempts)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_MAX_FAILED_ATTEMPTS", ErrMisconfigured)
	}

	recoveryTTL, err := parseDuration(cfg.RecoveryTokenTTL, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_RECOVERY_TOKEN_TTL", ErrMisconfigured)
	}

	bcryptCost, err := parsePositiveInt(cfg.BcryptCost, 10)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_BCRYPT_COST", ErrMisconfigured)
	}
	hasher, err := NewPasswordHasher(bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_BCRYPT_COST", ErrMisconfigured)
	}

	revokeFamily, err := parseBool(cfg.RevokeFamilyOnReuse, false)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_REVOKE_FAMILY_ON_REUSE", ErrMisconfigured)
	}

	cookieSecure, err := parseBool(cfg.CookieSecure, true)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_COOKIE_SECURE", ErrMisconfigured)
	}

	cookieSameSite, err := parseSameSite(cfg.CookieSameSite)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_COOKIE_SAMESITE", ErrMisconfigured)
	}

	if cookieSameSite == http.SameSiteNoneMode && !cookieSecure {
		return nil, fmt.Errorf("%w: SameSite=None requires Secure cookie", ErrMisconfigured)
	}

	cookiePath := cfg.CookiePath
	if strings.TrimSpace(cookiePath) == "" {
		cookiePath = "/"
	}

	refreshTTL := time.Duration(refreshDays) * 24 * time.Hour

	return &AuthService{
		store:               store,
		hasher:              hasher,
		issuer:              NewAccessTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, time.Duration(accessMinutes)*time.Minute),
		lockout:             LockoutPolicy{MaxFailed: maxFailed},
		notifier:            notifier,
		refreshTTL:          refreshTTL,
		recoveryTTL:         recoveryTTL,
		revokeFamilyOnReuse: revokeFamily,
		cookieCfg: CookieConfig{
			Name:     refreshCookieName,
			Path:     cookiePath,
			Domain:   cfg.CookieDomain,
			Secure:   cookieSecure,
			SameSite: cookieSameSite,
			MaxAge:   int(refreshTTL.Seconds()),
		},
		now: time.Now,
	}, nil
}

func (s *AuthService) CookieConfig() CookieConfig {
	return s.cookieCfg
}

func (s *AuthService) AccessTokenTTL() time.Duration {
	return s.issuer.TTL()
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.Account, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if kind == "" {
		kind = model.AccountKindCustomer
	}

	if !usernamePattern.MatchString(username) {
		return nil, validationError("AUTH_INVALID_USERNAME", "username must be 3-64 characters of letters, digits, '.', '_' or '-'")
	}
	if !isValidEmail(email) {
		return nil, validationError("AUTH_INVALID_EMAIL", "email address is not valid")
	}
	if kind != model.AccountKindCustomer && kind != model.AccountKindStaff {
		return nil, validationError("AUTH_INVALID_KIND", "kind must be customer or staff")
	}
	if req.Password != req.ConfirmPassword {
		return nil, validationError("AUTH_PASSWORD_MISMATCH", "passwords do not match")
	}

	usernameTaken, emailTaken, err := s.store.IdentifiersTaken(ctx, username, email)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "check identifiers").Wrap(err)
	}
	if usernameTaken {
		return nil, duplicateError("username is already taken")
	}
	if emailTaken {
		return nil, duplicateError("email is already registered")
	}

	if ok, reason := CheckStrength(req.Password); !ok {
		return nil, oops.Code("AUTH_WEAK_SECRET").With("reason", reason).Wrap(ErrWeakSecret)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	role := RoleEmployee
	if kind == model.AccountKindCustomer {
		role = RoleCustomer
	}

	created, assigned, err := s.store.CreateAccount(ctx, &model.Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Kind:         kind,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
	}, role)
	if err != nil {
		if errors.Is(err, db.ErrConflict) {
			// lost a race against a concurrent registration
			return nil, duplicateError("username or email is already registered")
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create account").Wrap(err)
	}

	log := logger.From(ctx).With(logger.AccountID(created.ID.String()))
	if !assigned {
		log.Warn("default role not found, account created without roles", zap.String("role", role))
	}

	if err := s.loadRoles(ctx, created); err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "load roles").Wrap(err)
	}

	s.notifier.Welcome(ctx, created)
	log.Info("account registered", zap.String("kind", kind))

	return created, nil
}

// Login verifies the credentials and applies the lockout transitions.
// Unknown accounts and wrong passwords both yield ErrNoMatch.
func (s *AuthService) Login(ctx context.Context, usernameOrEmail, secret string) (*model.Account, error) {
	login := strings.TrimSpace(usernameOrEmail)

	account, err := s.store.GetAccountByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.hasher.verifyDummy(secret)
			loginTotal.WithLabelValues("no_match").Inc()
			return nil, oops.Code("AUTH_NO_MATCH").Wrap(ErrNoMatch)
		}
		loginTotal.WithLabelValues("error").Inc()
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get account").Wrap(err)
	}

	log := logger.From(ctx).With(logger.AccountID(account.ID.String()))

	if err := s.lockout.Gate(account); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			loginTotal.WithLabelValues("locked").Inc()
		} else {
			loginTotal.WithLabelValues("inactive").Inc()
		}
		return nil, err
	}

	if !s.hasher.Verify(secret, account.PasswordHash) {
		attempts, locked, err := s.store.RecordFailedLogin(ctx, account.ID, s.lockout.Threshold())
		if err != nil {
			loginTotal.WithLabelValues("error").Inc()
			return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "record failure").Wrap(err)
		}
		if locked {
			if attempts == s.lockout.Threshold() {
				lockoutsTotal.Inc()
				log.Warn("account locked after failed attempts")
			}
			loginTotal.WithLabelValues("locked").Inc()
			return nil, oops.Code("AUTH_ACCOUNT_LOCKED").
				With("account_id", account.ID.String()).
				Wrap(ErrAccountLocked)
		}
		loginTotal.WithLabelValues("no_match").Inc()
		return nil, oops.Code("AUTH_NO_MATCH").Wrap(ErrNoMatch)
	}

	now := s.now()
	applied, err := s.store.RecordSuccessfulLogin(ctx, account.ID, now)
	if err != nil {
		loginTotal.WithLabelValues("error").Inc()
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "record success").Wrap(err)
	}
	if !applied {
		// a concurrent failure locked the account between read and write
		loginTotal.WithLabelValues("locked").Inc()
		return nil, oops.Code("AUTH_ACCOUNT_LOCKED").
			With("account_id", account.ID.String()).
			Wrap(ErrAccountLocked)
	}
	account.FailedAttempts = 0
	account.LastAccessAt = &now

	if err := s.loadRoles(ctx, account); err != nil {
		loginTotal.WithLabelValues("error").Inc()
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "load roles").Wrap(err)
	}

	loginTotal.WithLabelValues("success").Inc()
	log.Info("login succeeded")
	return account, nil
}

// ValidateCredentialsOnly checks the credentials without touching counters,
// lockout state or last access. Locked, inactive and unknown accounts are
// reported as false.
func (s *AuthService) ValidateCredentialsOnly(ctx context.Context, usernameOrEmail, secret string) (bool, error) {
	account, err := s.store.GetAccountByLogin(ctx, strings.TrimSpace(usernameOrEmail))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.hasher.verifyDummy(secret)
			return false, nil
		}
		return false, oops.Code("AUTH_VALIDATE_FAILED").With("operation", "get account").Wrap(err)
	}
	if s.lockout.Gate(account) != nil {
		return false, nil
	}
	return s.hasher.Verify(secret, account.PasswordHash), nil
}

func (s *AuthService) ChangePassword(ctx context.Context, accountID uuid.UUID, current, newSecret, confirm string) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, account.PasswordHash) {
		return validationError("AUTH_WRONG_PASSWORD", "current password is incorrect")
	}
	if newSecret != confirm {
		return validationError("AUTH_PASSWORD_MISMATCH", "passwords do not match")
	}
	if ok, reason := CheckStrength(newSecret); !ok {
		return oops.Code("AUTH_WEAK_SECRET").With("reason", reason).Wrap(ErrWeakSecret)
	}

	hash, err := s.hasher.Hash(newSecret)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	if err := s.store.UpdatePassword(ctx, account.ID, hash); err != nil {
		return s.accountError(err, account.ID, "AUTH_CHANGE_PASSWORD_FAILED")
	}

	logger.From(ctx).Info("password changed", logger.AccountID(account.ID.String()))
	return nil
}

// UnlockAccount is the administrative Locked -> Active transition. Callers
// are responsible for authorization.
func (s *AuthService) UnlockAccount(ctx context.Context, accountID uuid.UUID) error {
	if err := s.store.UnlockAccount(ctx, accountID); err != nil {
		return s.accountError(err, accountID, "AUTH_UNLOCK_FAILED")
	}
	logger.From(ctx).Info("account unlocked", logger.AccountID(accountID.String()))
	return nil
}

func (s *AuthService) ParseAccessToken(tokenStr string) (*model.AuthUser, error) {
	return s.issuer.Parse(tokenStr)
}

func (s *AuthService) getAccount(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	account, err := s.store.GetAccountByID(ctx, id)
	if err != nil {
		return nil, s.accountError(err, id, "AUTH_ACCOUNT_LOOKUP_FAILED")
	}
	return account, nil
}

func (s *AuthService) accountError(err error, id uuid.UUID, code string) error {
	if errors.Is(err, db.ErrNotFound) {
		return oops.Code("AUTH_ACCOUNT_NOT_FOUND").With("account_id", id.String()).Wrap(ErrNotFound)
	}
	return oops.Code(code).With("account_id", id.String()).Wrap(err)
}

func (s *AuthService) loadRoles(ctx context.Context, account *model.Account) error {
	roles, err := s.store.GetAccountRoles(ctx, account.ID)
	if err != nil {
		return err
	}
	account.Roles = roles
	return nil
}

func duplicateError(reason string) error {
	return oops.Code("AUTH_DUPLICATE_IDENTIFIER").With("reason", reason).Wrap(ErrDuplicateIdentifier)
}

func isValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func parsePositiveInt(value string, fallback int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return parsed, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return parsed, nil
}

func parseBool(value string, fallback bool) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, err
	}
	return parsed, nil
}

func parseSameSite(value string) (http.SameSite, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return http.SameSiteLaxMode, nil
	}
	switch value {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, ErrValidation
	}
}
