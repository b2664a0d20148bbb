package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-site-api/internal/middleware"
	"github.com/noah-isme/school-site-api/internal/models"
	"github.com/noah-isme/school-site-api/pkg/response"
)

type adminAuthenticator interface {
	Login(req models.LoginRequest) (*models.LoginResponse, error)
}

// AuthHandler wires the admin login endpoint.
type AuthHandler struct {
	auth adminAuthenticator
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(auth adminAuthenticator) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login godoc
// @Summary Authenticate the site administrator
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /admin/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	req.IP = c.ClientIP()

	res, err := h.auth.Login(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Session godoc
// @Summary Current admin session
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/session [get]
func (h *AuthHandler) Session(c *gin.Context) {
	claims := middleware.AdminFromContext(c)
	if claims == nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	data := gin.H{"username": claims.Username, "role": claims.Role}
	if claims.ExpiresAt != nil {
		data["expires_at"] = claims.ExpiresAt.Time
	}
	response.JSON(c, http.StatusOK, data, nil)
}
