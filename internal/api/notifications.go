package api

import (
	"log/slog"
	"net/http"

	"github.com/Atul7206/stuwork-backend/internal/model"
	"github.com/Atul7206/stuwork-backend/internal/pkg/realtime"

	"github.com/gin-gonic/gin"
)

// handleListNotifications 返回当前用户的全部通知，新的在前。
func (s *Server) handleListNotifications(c *gin.Context) {
	notifications, err := s.notifications.ListByUser(c.Request.Context(), c.GetUint("userID"))
	if err != nil {
		s.logger.Error("list notifications failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// handleMarkRead 把一条通知标记为已读。
//
// 只能标记属于自己的通知，别人的通知对调用者表现为不存在。
func (s *Server) handleMarkRead(c *gin.Context) {
	id, ok := paramUint(c, "id")
	if !ok {
		return
	}
	found, err := s.notifications.MarkRead(c.Request.Context(), id, c.GetUint("userID"))
	if err != nil {
		s.logger.Error("mark notification read failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"message": "Notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// handleMarkAllRead 把当前用户所有未读通知标记为已读，幂等。
func (s *Server) handleMarkAllRead(c *gin.Context) {
	if err := s.notifications.MarkAllRead(c.Request.Context(), c.GetUint("userID")); err != nil {
		s.logger.Error("mark all notifications read failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}

// createNotification 落库并推送一条通知。
//
// 通知是业务操作的副产物：持久化或推送失败只记日志，不影响主流程的响应。
func (s *Server) createNotification(c *gin.Context, userID uint, message, notifType string, relatedJobID *uint) {
	n := &model.Notification{
		UserID:       userID,
		Message:      message,
		Type:         notifType,
		RelatedJobID: relatedJobID,
	}
	if err := s.notifications.Create(c.Request.Context(), n); err != nil {
		s.logger.Error("create notification failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("type", notifType),
			slog.String("error", err.Error()))
		return
	}
	s.publisher.Publish(userID, realtime.EventNewNotification, n)
}
