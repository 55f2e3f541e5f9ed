package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type customClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// ParseToken 校验会话令牌并返回 (userID, role)。
//
// WebSocket 握手也复用这里的校验逻辑。
func ParseToken(jwtSecret string, tokenStr string) (uint, string, error) {
	claims := &customClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return 0, "", errors.New("invalid token subject")
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, "", errors.New("invalid user id")
	}
	role := strings.TrimSpace(strings.ToLower(claims.Role))
	return uint(uid), role, nil
}

// AuthMiddleware 校验 Bearer 令牌并将 userID / role 写入上下文。
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Missing authorization"})
			c.Abort()
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid authorization header"})
			c.Abort()
			return
		}

		userID, role, err := ParseToken(jwtSecret, parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("userID", userID)
		c.Set("role", role)
		c.Next()
	}
}

// RequireRole 是按操作声明的授权谓词：角色不在允许集合内直接 403。
//
// 资源归属校验（job.employer == caller）仍在各 handler 内完成，因为需要先取资源。
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString("role")
		if _, ok := allowed[role]; !ok {
			c.JSON(http.StatusForbidden, gin.H{"message": "Insufficient role"})
			c.Abort()
			return
		}
		c.Next()
	}
}
