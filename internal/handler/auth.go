package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tripdesk/backoffice/internal/logger"
	"github.com/tripdesk/backoffice/internal/model"
	"github.com/tripdesk/backoffice/internal/service"
)

// AuthService is the part of *service.AuthService the HTTP layer drives.
type AuthService interface {
	CookieConfig() service.CookieConfig
	AccessTokenTTL() time.Duration
	Register(ctx context.Context, req model.RegisterRequest) (*model.Account, error)
	Login(ctx context.Context, usernameOrEmail, secret string) (*model.Account, error)
	IssueSession(ctx context.Context, account *model.Account, meta service.ClientMeta) (*model.Session, error)
	RefreshSession(ctx context.Context, refreshToken string, meta service.ClientMeta) (*model.Session, error)
	Logout(ctx context.Context, accountID uuid.UUID, refreshToken string) (int64, error)
	RequestPasswordRecovery(ctx context.Context, email, callbackBaseURL string, meta service.ClientMeta) (string, error)
	ResetPassword(ctx context.Context, token, newSecret, confirm string, meta service.ClientMeta) (bool, error)
	ChangePassword(ctx context.Context, accountID uuid.UUID, current, newSecret, confirm string) error
	UnlockAccount(ctx context.Context, accountID uuid.UUID) error
	ParseAccessToken(tokenStr string) (*model.AuthUser, error)
}

var _ AuthService = (*service.AuthService)(nil)

const recoverAckMessage = "if the email is registered, a recovery link has been sent"

type AuthHandler struct {
	svc        AuthService
	production bool
}

// production hides diagnostic fields such as the recovery debug token.
func NewAuthHandler(svc AuthService, production bool) *AuthHandler {
	return &AuthHandler{svc: svc, production: production}
}

// Register godoc
// @Summary Register a new account
// @Description Creates an active account with the default Customer role.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RegisterRequest true "Account details"
// @Success 201 {object} model.AccountSummary
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	account, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model.NewAccountSummary(account))
}

// Login godoc
// @Summary Login
// @Description Verifies credentials and opens a session. The refresh token is also set as an HttpOnly cookie.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LoginRequest true "Username or email and password"
// @Success 200 {object} model.LoginResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	ctx := c.Request.Context()
	account, err := h.svc.Login(ctx, req.UsernameOrEmail, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	session, err := h.svc.IssueSession(ctx, account, clientMeta(c))
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, session.RefreshToken)
	c.JSON(http.StatusOK, model.LoginResponse{
		Account:       model.NewAccountSummary(account),
		TokenResponse: h.tokenResponse(session),
	})
}

// Refresh godoc
// @Summary Rotate refresh token
// @Description Exchanges a refresh token for a new pair. The body token wins over the tripdesk_refresh cookie. Each refresh token works once.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RefreshRequest false "Refresh token"
// @Success 200 {object} model.TokenResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken, _ = c.Cookie(h.svc.CookieConfig().Name)
	}

	session, err := h.svc.RefreshSession(c.Request.Context(), refreshToken, clientMeta(c))
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrExpiredToken) {
			h.clearRefreshCookie(c)
		}
		writeAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, session.RefreshToken)
	c.JSON(http.StatusOK, h.tokenResponse(session))
}

// Logout godoc
// @Summary Logout
// @Description Revokes the given refresh token, or every refresh token of the account when none is given. Repeating it is harmless.
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.LogoutRequest false "Account and optional refresh token"
// @Success 200 {object} model.AuthLogoutResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req model.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	accountID, ok := subjectAccount(c, req.AccountID)
	if !ok {
		return
	}

	revoked, err := h.svc.Logout(c.Request.Context(), accountID, req.RefreshToken)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, model.AuthLogoutResponse{Status: "logged_out", Revoked: revoked})
}

// Recover godoc
// @Summary Request password recovery
// @Description Always answers with the same acknowledgement whether or not the email is registered.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RecoverRequest true "Email and callback base URL"
// @Success 200 {object} model.RecoverResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/recover [post]
func (h *AuthHandler) Recover(c *gin.Context) {
	var req model.RecoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	token, err := h.svc.RequestPasswordRecovery(c.Request.Context(), req.Email, req.CallbackBaseURL, clientMeta(c))
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		writeAuthError(c, err)
		return
	}

	resp := model.RecoverResponse{Status: "accepted", Message: recoverAckMessage}
	if !h.production {
		resp.DebugToken = token
	}
	c.JSON(http.StatusOK, resp)
}

// ResetPassword godoc
// @Summary Reset password with a recovery token
// @Description Consumes the recovery token, sets the new password and clears any lockout.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.ResetPasswordRequest true "Recovery token and new password"
// @Success 200 {object} model.StatusResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req model.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	if _, err := h.svc.ResetPassword(c.Request.Context(), req.Token, req.NewPassword, req.ConfirmPassword, clientMeta(c)); err != nil {
		// 이 경로에서는 만료/사용된 토큰도 입력 오류로 취급
		if errors.Is(err, service.ErrInvalidOrExpiredToken) {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid or expired token"})
			return
		}
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.StatusResponse{Status: "password_reset"})
}

// ChangePassword godoc
// @Summary Change password
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.ChangePasswordRequest true "Current and new password"
// @Success 200 {object} model.StatusResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req model.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid request"})
		return
	}

	accountID, ok := subjectAccount(c, req.AccountID)
	if !ok {
		return
	}

	if err := h.svc.ChangePassword(c.Request.Context(), accountID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.StatusResponse{Status: "password_changed"})
}

// Me godoc
// @Summary Get current account
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.AuthMeResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, model.AuthMeResponse{
		AccountID:   user.ID.String(),
		Username:    user.Username,
		Email:       user.Email,
		Kind:        user.Kind,
		Roles:       user.Roles,
		Permissions: user.Permissions,
	})
}

func (h *AuthHandler) tokenResponse(session *model.Session) model.TokenResponse {
	return model.TokenResponse{
		AccessToken:     session.AccessToken,
		RefreshToken:    session.RefreshToken,
		ExpiresIn:       int64(h.svc.AccessTokenTTL().Seconds()),
		AccessExpiresAt: session.AccessExpiresAt,
	}
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	cfg := h.svc.CookieConfig()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.Name, token, cfg.MaxAge, cfg.Path, cfg.Domain, cfg.Secure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	cfg := h.svc.CookieConfig()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.Name, "", -1, cfg.Path, cfg.Domain, cfg.Secure, true)
}

// subjectAccount resolves the account a self-service request targets. An
// empty id means the token subject; any other account is refused.
func subjectAccount(c *gin.Context, requested string) (uuid.UUID, bool) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "unauthorized"})
		return uuid.Nil, false
	}
	if requested == "" {
		return user.ID, true
	}
	id, err := uuid.Parse(requested)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid accountId"})
		return uuid.Nil, false
	}
	if id != user.ID {
		c.JSON(http.StatusForbidden, model.ErrorResponse{Error: "forbidden"})
		return uuid.Nil, false
	}
	return id, true
}

func clientMeta(c *gin.Context) service.ClientMeta {
	return service.ClientMeta{
		OriginAddr: c.ClientIP(),
		ClientInfo: c.Request.UserAgent(),
	}
}

func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: reasonOr(err, "invalid input")})
	case errors.Is(err, service.ErrDuplicateIdentifier):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: reasonOr(err, "username or email already registered")})
	case errors.Is(err, service.ErrNoMatch):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "invalid username or password"})
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "invalid or expired token"})
	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusForbidden, model.ErrorResponse{Error: "account is locked"})
	case errors.Is(err, service.ErrAccountInactive):
		c.JSON(http.StatusForbidden, model.ErrorResponse{Error: "account is inactive"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "not found"})
	default:
		logger.From(c.Request.Context()).Error("request failed",
			logger.Op(c.FullPath()),
			logger.Err(err),
		)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "server error"})
	}
}

func reasonOr(err error, fallback string) string {
	if reason := service.Reason(err); reason != "" {
		return reason
	}
	return fallback
}
