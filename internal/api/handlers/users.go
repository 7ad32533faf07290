package handlers

import (
	"net/http"
	"strconv"

	"github.com/JoseLuisQL/SAD-sub003/internal/api/middleware"
	"github.com/JoseLuisQL/SAD-sub003/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserHandler struct {
	users         *services.UserService
	notifications *services.NotificationService
	logger        *zap.Logger
}

func NewUserHandler(users *services.UserService, notifications *services.NotificationService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:         users,
		notifications: notifications,
		logger:        logger.With(zap.String("handler", "user")),
	}
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, gin.H{
			"id":         u.ID,
			"username":   u.Username,
			"role":       u.Role,
			"department": u.Department,
			"active":     u.ActiveStatus,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (h *UserHandler) Profile(c *gin.Context) {
	callerID := middleware.CallerID(c)

	user, err := h.users.GetUser(c.Request.Context(), callerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"role":       user.Role,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"department": user.Department,
	})
}

func (h *UserHandler) ListNotifications(c *gin.Context) {
	callerID := middleware.CallerID(c)

	notifications, err := h.notifications.ListUnread(c.Request.Context(), callerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *UserHandler) MarkNotificationRead(c *gin.Context) {
	callerID := middleware.CallerID(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), callerID, uint(id)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}
