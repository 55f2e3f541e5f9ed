package api

import (
	"log/slog"
	"net/http"

	"github.com/Atul7206/stuwork-backend/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

// handleWS 处理实时推送通道的握手。
//
// 浏览器的 WebSocket API 不能带自定义请求头，令牌走查询参数。
// 认证失败在升级前以普通 HTTP 响应拒绝。
func (s *Server) handleWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Authentication error: No token provided"})
		return
	}

	userID, _, err := middleware.ParseToken(s.cfg.Security.JWTSecret, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Authentication error: Invalid token"})
		return
	}
	if _, err := s.users.FindByID(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Authentication error: User not found"})
		return
	}

	if err := s.hub.Join(c.Writer, c.Request, userID); err != nil {
		// 升级失败时 gorilla 已经写过响应
		s.logger.Warn("websocket upgrade failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()))
	}
}
