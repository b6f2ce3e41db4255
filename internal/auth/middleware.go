package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gamecatalog/backend/internal/models"
	"gamecatalog/backend/pkg/apperror"
	"gamecatalog/backend/pkg/jwt"
)

const (
	userIDKey = "userID"
	userKey   = "user"
)

// UserLoader fetches the account behind a token.
type UserLoader interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
}

// AuthMiddleware requires a valid bearer token and sets userID on the context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must be 'Bearer <token>'"})
			return
		}

		userID, err := jwt.ParseToken(secret, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RequireAccess loads the authenticated user and aborts with 403 unless the
// authorizer grants action on kind. It must be used AFTER AuthMiddleware.
func RequireAccess(authz *Authorizer, users UserLoader, action Action, kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := loadUser(c, users)
		if !ok {
			return
		}

		if !authz.CanAccess(user, action, kind) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied: " + string(action) + " " + string(kind)})
			return
		}

		c.Next()
	}
}

func loadUser(c *gin.Context, users UserLoader) (*models.User, bool) {
	if user, ok := c.Get(userKey); ok {
		return user.(*models.User), true
	}

	userID := c.GetUint(userIDKey)
	if userID == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return nil, false
	}

	user, err := users.GetUser(c.Request.Context(), userID)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authenticated user not found"})
			return nil, false
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return nil, false
	}

	c.Set(userKey, user)
	return user, true
}

// CurrentUser returns the user loaded by RequireAccess.
func CurrentUser(c *gin.Context) *models.User {
	if user, ok := c.Get(userKey); ok {
		return user.(*models.User)
	}
	return nil
}

// CurrentUserID returns the id set by AuthMiddleware, or 0.
func CurrentUserID(c *gin.Context) uint {
	return c.GetUint(userIDKey)
}
