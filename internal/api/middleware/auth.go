// Package middleware provides gin middleware shared by the API handlers.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/calculus-api/internal/apperr"
	"github.com/aimd54/calculus-api/internal/models"
)

const userKey = "user"

// Authenticator resolves an access token to its active user.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*models.User, error)
}

// Auth authenticates requests from a bearer token or the access token cookie.
type Auth struct {
	authenticator Authenticator
	cookieName    string
}

// NewAuth creates the auth middleware.
func NewAuth(authenticator Authenticator, cookieName string) *Auth {
	return &Auth{authenticator: authenticator, cookieName: cookieName}
}

// RequireAuth rejects requests without a valid token.
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := a.token(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		user, err := a.authenticator.Authenticate(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.Message(err)})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present and lets anonymous
// requests through otherwise.
func (a *Auth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := a.token(c); raw != "" {
			if user, err := a.authenticator.Authenticate(c.Request.Context(), raw); err == nil {
				c.Set(userKey, user)
			}
		}
		c.Next()
	}
}

// token prefers the Authorization header over the cookie.
func (a *Auth) token(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if a.cookieName != "" {
		if cookie, err := c.Cookie(a.cookieName); err == nil {
			return cookie
		}
	}
	return ""
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// UserID returns the authenticated user's id, or 0 for anonymous requests.
func UserID(c *gin.Context) uint {
	if user := CurrentUser(c); user != nil {
		return user.ID
	}
	return 0
}

// SetUser attaches a user to the request context.
func SetUser(c *gin.Context, user *models.User) {
	c.Set(userKey, user)
}
