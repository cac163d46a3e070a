package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/davisshaver/siwe-login/internal/common/errors"
	"github.com/davisshaver/siwe-login/internal/common/middleware"
)

// Handler handles HTTP requests for wallet login
type Handler struct {
	service *Service
}

// NewHandler creates a new auth handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers auth routes on the router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.GET("/nonce", h.Nonce)
		auth.POST("/login", h.Login)
	}
}

// Nonce godoc
// @Summary Issue a login nonce
// @Description Returns a fresh single-use nonce as a plain-text body. The client embeds it in the message the wallet signs.
// @Tags auth
// @Produce plain
// @Success 200 {string} string "Nonce token"
// @Router /api/v1/auth/nonce [get]
func (h *Handler) Nonce(c *gin.Context) {
	c.String(http.StatusOK, h.service.Nonce())
}

// Login godoc
// @Summary Log in with a signed message
// @Description Verifies a signed sign-in message, provisions the user if needed and returns a session token.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Signed login payload"
// @Success 200 {object} middleware.SuccessResponse{data=LoginResponse} "Login succeeded, or redirect for ungated addresses"
// @Failure 400 {object} middleware.ErrorResponse "Malformed request or incomplete payload"
// @Failure 401 {object} middleware.ErrorResponse "Signature verification failed"
// @Failure 403 {object} middleware.ErrorResponse "Nonce, token gate or registration failure"
// @Failure 503 {object} middleware.ErrorResponse "Chain RPC unavailable"
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, apperrors.MalformedRequest().WithError(err))
		return
	}

	result, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	if result.RedirectURL != "" {
		middleware.RespondOK(c, LoginResponse{
			Type:        "redirect",
			Address:     result.Address,
			RedirectURL: result.RedirectURL,
		})
		return
	}
	middleware.RespondOK(c, LoginResponse{
		OK:      true,
		Token:   result.Token,
		Address: result.Address,
		Role:    result.Role,
		Created: result.Created,
	})
}
