package handlers

import (
	"net/http"

	"github.com/JoseLuisQL/SAD-sub003/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	users          *services.UserService
	sessionSeconds int
	logger         *zap.Logger
}

func NewAuthHandler(users *services.UserService, sessionSeconds int, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:          users,
		sessionSeconds: sessionSeconds,
		logger:         logger.With(zap.String("handler", "auth")),
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (ah *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	user, token, err := ah.users.Authenticate(c.Request.Context(), req.Username, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		ah.logger.Warn("Login failed", zap.String("username", req.Username), zap.Error(err))
		respondError(c, err)
		return
	}

	c.SetCookie("session_token", token, ah.sessionSeconds, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
	})
}

func (ah *AuthHandler) Logout(c *gin.Context) {
	if token, err := c.Cookie("session_token"); err == nil {
		ah.users.InvalidateSession(token)
	}
	c.SetCookie("session_token", "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}
