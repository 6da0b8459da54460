package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"options-dashboard/auth"
	"options-dashboard/services"
)

// AuthController handles token issuance and identity lookup
type AuthController struct {
	authenticator *auth.Authenticator
	contracts     *services.ContractService
	logger        *logrus.Logger
}

// NewAuthController creates a new auth controller
func NewAuthController(authenticator *auth.Authenticator, contracts *services.ContractService, log *logrus.Logger) *AuthController {
	if log == nil {
		log = logrus.New()
	}
	return &AuthController{
		authenticator: authenticator,
		contracts:     contracts,
		logger:        log,
	}
}

// LoginRequest is the password grant form
type LoginRequest struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// HandleLogin exchanges a username and password for a bearer token
// POST /token
func (ac *AuthController) HandleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, "form", err)
		return
	}

	token, err := ac.authenticator.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, ac.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// HandleMe returns the caller's identity
// GET /users/me
func (ac *AuthController) HandleMe(c *gin.Context) {
	identity, err := ac.contracts.Me(c.Request.Context(), bearerToken(c))
	if err != nil {
		respondError(c, ac.logger, err)
		return
	}

	c.JSON(http.StatusOK, identity)
}
