package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tripdesk/backoffice/internal/model"
)

type AdminHandler struct {
	svc AuthService
}

func NewAdminHandler(svc AuthService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// UnlockAccount godoc
// @Summary Unlock an account
// @Description Clears the lock flag and the failed login counter.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} model.StatusResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /admin/accounts/{id}/unlock [post]
func (h *AdminHandler) UnlockAccount(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid account id"})
		return
	}

	if err := h.svc.UnlockAccount(c.Request.Context(), accountID); err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.StatusResponse{Status: "unlocked"})
}
