package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	AccountKindCustomer = "customer"
	AccountKindStaff    = "staff"
)

const (
	TokenPurposeRecovery          = "recovery"
	TokenPurposeEmailVerification = "email_verification"
)

type Account struct {
	ID             uuid.UUID
	Username       string
	Email          string
	PasswordHash   string
	Kind           string
	FirstName      string
	LastName       string
	Active         bool
	Locked         bool
	FailedAttempts int
	LastAccessAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Roles          []Role
}

// RoleNames returns the names of the loaded roles in assignment order.
func (a *Account) RoleNames() []string {
	names := make([]string, 0, len(a.Roles))
	for _, r := range a.Roles {
		names = append(names, r.Name)
	}
	return names
}

// PermissionNames returns the distinct union of permissions across roles.
func (a *Account) PermissionNames() []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, r := range a.Roles {
		for _, p := range r.Permissions {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			names = append(names, p)
		}
	}
	return names
}

type Role struct {
	ID          int64
	Name        string
	Permissions []string
}

type RefreshToken struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	TokenHash    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Revoked      bool
	RevokedAt    *time.Time
	SupersededBy *string
	OriginAddr   string
	ClientInfo   string
}

// IsActiveAt reports whether the token is neither revoked nor expired at t.
func (t *RefreshToken) IsActiveAt(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

type RecoveryToken struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	TokenHash  string
	Purpose    string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Used       bool
	UsedAt     *time.Time
	OriginAddr string
}

// IsActiveAt reports whether the token is unused and unexpired at t.
func (t *RecoveryToken) IsActiveAt(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// Session is returned to the caller and never persisted as a whole.
type Session struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// AuthUser is the identity extracted from a verified access token.
type AuthUser struct {
	ID          uuid.UUID
	Username    string
	Email       string
	Kind        string
	Roles       []string
	Permissions []string
}

// HasPermission reports whether name is among the token's permissions.
func (u *AuthUser) HasPermission(name string) bool {
	for _, p := range u.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

type RegisterRequest struct {
	Username        string `json:"username" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
	Kind            string `json:"kind"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
}

type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	AccountID    string `json:"accountId"`
	RefreshToken string `json:"refreshToken"`
}

type RecoverRequest struct {
	Email           string `json:"email" binding:"required"`
	CallbackBaseURL string `json:"callbackBaseUrl" binding:"required"`
}

type ResetPasswordRequest struct {
	Token           string `json:"token" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

type ChangePasswordRequest struct {
	AccountID       string `json:"accountId"`
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

type AccountSummary struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Kind         string     `json:"kind"`
	FirstName    string     `json:"firstName,omitempty"`
	LastName     string     `json:"lastName,omitempty"`
	Active       bool       `json:"active"`
	Roles        []string   `json:"roles"`
	LastAccessAt *time.Time `json:"lastAccessAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// NewAccountSummary omits lockout state and the failure counter.
func NewAccountSummary(a *Account) AccountSummary {
	return AccountSummary{
		ID:           a.ID.String(),
		Username:     a.Username,
		Email:        a.Email,
		Kind:         a.Kind,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Active:       a.Active,
		Roles:        a.RoleNames(),
		LastAccessAt: a.LastAccessAt,
		CreatedAt:    a.CreatedAt,
	}
}

type TokenResponse struct {
	AccessToken     string    `json:"accessToken"`
	RefreshToken    string    `json:"refreshToken"`
	ExpiresIn       int64     `json:"expiresIn"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
}

type LoginResponse struct {
	Account AccountSummary `json:"account"`
	TokenResponse
}

type RecoverResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	DebugToken string `json:"debugToken,omitempty"`
}
