package middleware

import (
	"net/http"

	"github.com/JoseLuisQL/SAD-sub003/internal/services"
	"github.com/gin-gonic/gin"
)

type AuthMiddleware struct {
	users *services.UserService
}

func NewAuthMiddleware(users *services.UserService) *AuthMiddleware {
	return &AuthMiddleware{users: users}
}

// RequireAuth resolves the session cookie into an explicit caller identity
// on the request context. Every handler reads it from there and threads it
// into the service call; no service reaches back into the session.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionToken, err := c.Cookie("session_token")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		userID, valid := am.users.IsValidSession(sessionToken)
		if !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		user, err := am.users.GetUser(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}

		c.Set("userID", user.ID)
		c.Set("username", user.Username)
		c.Set("role", user.Role)
		c.Next()
	}
}

// CallerID returns the authenticated caller set by RequireAuth.
func CallerID(c *gin.Context) uint {
	return c.GetUint("userID")
}
