// Package auth provides REST API handlers for accounts and sessions.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/calculus-api/internal/api/middleware"
	"github.com/aimd54/calculus-api/internal/api/response"
	"github.com/aimd54/calculus-api/internal/config"
	"github.com/aimd54/calculus-api/internal/models"
	authsvc "github.com/aimd54/calculus-api/internal/service/auth"
	"github.com/aimd54/calculus-api/pkg/logger"
)

// Service interface for account operations.
type Service interface {
	Register(ctx context.Context, req authsvc.Registration) (*models.User, error)
	Login(ctx context.Context, login, password string) (*models.User, *authsvc.Token, error)
	Me(ctx context.Context, userID uint) (*models.User, error)
	UpdateProfile(ctx context.Context, userID uint, req authsvc.ProfileUpdate) (*models.User, error)
}

// Handler handles auth API requests.
type Handler struct {
	service Service
	cfg     *config.AuthConfig
	log     *logger.Logger
}

// NewHandler creates a new auth handler.
func NewHandler(service *authsvc.Service, cfg *config.AuthConfig, log *logger.Logger) *Handler {
	return &Handler{service: service, cfg: cfg, log: log}
}

// NewHandlerWithInterfaces creates a new auth handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(service Service, cfg *config.AuthConfig, log *logger.Logger) *Handler {
	return &Handler{service: service, cfg: cfg, log: log}
}

// Profile is the account view returned to its owner.
type Profile struct {
	*models.User
	Level       int `json:"level"`
	NextLevelXP int `json:"next_level_xp"`
}

func profileOf(user *models.User) Profile {
	return Profile{User: user, Level: user.Level(), NextLevelXP: user.NextLevelXP()}
}

type loginRequest struct {
	Login    string `json:"login"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

// Register creates an account.
// POST /api/auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req authsvc.Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	user, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, h.log, err, "Failed to register user")
		return
	}

	c.JSON(http.StatusCreated, profileOf(user))
}

// Login issues an access token for a username or email and password.
// The token is returned in the body and set as a cookie.
// POST /api/auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	login := req.Login
	for _, alt := range []string{req.Username, req.Email} {
		if strings.TrimSpace(login) == "" {
			login = alt
		}
	}
	if strings.TrimSpace(login) == "" {
		response.BadRequest(c, "username or email is required")
		return
	}

	user, token, err := h.service.Login(c.Request.Context(), login, req.Password)
	if err != nil {
		response.Error(c, h.log, err, "Failed to log in")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, token.AccessToken, int(h.cfg.TokenTTL().Seconds()), "/", "", h.cfg.CookieSecure, true)

	c.JSON(http.StatusOK, gin.H{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
		"expires_at":   token.ExpiresAt,
		"user":         profileOf(user),
	})
}

// Logout clears the access token cookie.
// POST /api/auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, "", -1, "/", "", h.cfg.CookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated account.
// GET /api/auth/me.
func (h *Handler) Me(c *gin.Context) {
	user, err := h.service.Me(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, h.log, err, "Failed to load account")
		return
	}
	c.JSON(http.StatusOK, profileOf(user))
}

// UpdateProfile changes the display name and avatar.
// PUT /api/auth/profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req authsvc.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		response.Error(c, h.log, err, "Failed to update profile")
		return
	}

	h.log.Info().Uint("user_id", user.ID).Msg("Profile updated")
	c.JSON(http.StatusOK, profileOf(user))
}
