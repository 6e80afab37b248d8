package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docxingest/internal/service"
)

// AuthHandler handles operator authentication endpoints.
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Token handles POST /api/v1/auth/token
// @Summary      Issue operator token
// @Description  Exchanges the operator key for a short-lived access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body body TokenRequest true "Operator key"
// @Success      200 {object} APIResponse{data=service.Token}
// @Failure      400 {object} APIResponse
// @Failure      401 {object} APIResponse
// @Router       /auth/token [post]
func (h *AuthHandler) Token(c *gin.Context) {
	var input service.TokenInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	token, err := h.authService.IssueToken(input)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, token)
}
