package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Atul7206/stuwork-backend/internal/model"
	"github.com/Atul7206/stuwork-backend/internal/pkg/metrics"
	"github.com/Atul7206/stuwork-backend/internal/pkg/notify"
	"github.com/Atul7206/stuwork-backend/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserStore 是 Handler 依赖的用户存取接口。
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	UpdatePassword(ctx context.Context, id uint, hash string) error
	UpdateProfile(ctx context.Context, id uint, updates map[string]interface{}) (*model.User, error)
}

// OTPStore 是验证码存取接口。
type OTPStore interface {
	// Replace 写入新验证码并覆盖同 (email, purpose) 的旧记录。
	Replace(ctx context.Context, otp *model.OTP) error
	// FindValid 按精确规则查找可用验证码：email、code、purpose 全等，
	// 未使用且未过期。找不到返回 gorm.ErrRecordNotFound。
	FindValid(ctx context.Context, email, code, purpose string, now time.Time) (*model.OTP, error)
	MarkUsed(ctx context.Context, id uint) error
	DeleteByEmailPurpose(ctx context.Context, email, purpose string) error
}

// Handler 提供注册 / 登录 / 验证码 / 资料接口。
type Handler struct {
	users     UserStore
	otps      OTPStore
	mailer    notify.Mailer
	limiter   *ratelimit.RateLimiter
	jwtSecret []byte
	tokenTTL  time.Duration
	otpTTL    time.Duration
	logger    *slog.Logger
}

// NewHandler 创建 Auth Handler。limiter 可以为 nil（限流关闭）。
func NewHandler(users UserStore, otps OTPStore, mailer notify.Mailer, limiter *ratelimit.RateLimiter,
	jwtSecret string, tokenTTL, otpTTL time.Duration, logger *slog.Logger) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}
	if otpTTL <= 0 {
		otpTTL = 5 * time.Minute
	}
	return &Handler{
		users:     users,
		otps:      otps,
		mailer:    mailer,
		limiter:   limiter,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		otpTTL:    otpTTL,
		logger:    logger,
	}
}

type sendOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resendOTPRequest struct {
	Email   string `json:"email" binding:"required,email"`
	Purpose string `json:"purpose"`
}

type registerRequest struct {
	Name     string   `json:"name" binding:"required"`
	Email    string   `json:"email" binding:"required,email"`
	Password string   `json:"password" binding:"required,min=6"`
	Role     string   `json:"role"`
	Phone    string   `json:"phone"`
	Skills   []string `json:"skills"`
	OTP      string   `json:"otp" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	OTP         string `json:"otp" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6"`
}

type updateProfileRequest struct {
	Name       *string   `json:"name"`
	Phone      *string   `json:"phone"`
	Skills     *[]string `json:"skills"`
	Experience *string   `json:"experience"`
	Address    *string   `json:"address"`
}

type customClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// SendOTP 为注册发送验证码。
//
// 邮箱已被占用时拒绝；旧的未用验证码在签发时被覆盖。
func (h *Handler) SendOTP(c *gin.Context) {
	var req sendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email is required"})
		return
	}
	email := normalizeEmail(req.Email)

	if !h.allowSend(c, email) {
		return
	}

	_, err := h.users.FindByEmail(c.Request.Context(), email)
	if err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "User already exists with this email"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	if !h.issueOTP(c, email, model.PurposeRegistration) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP sent successfully to your email", "email": email})
}

// ResendOTP 重新签发验证码，旧码作废。
func (h *Handler) ResendOTP(c *gin.Context) {
	var req resendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email is required"})
		return
	}
	email := normalizeEmail(req.Email)
	purpose := req.Purpose
	if purpose == "" {
		purpose = model.PurposeRegistration
	}
	if purpose != model.PurposeRegistration && purpose != model.PurposePasswordReset {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid purpose"})
		return
	}

	if !h.allowSend(c, email) {
		return
	}
	if !h.issueOTP(c, email, purpose) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP resent successfully"})
}

// VerifyOTPRegister 校验验证码并创建账户。
func (h *Handler) VerifyOTPRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "All required fields must be provided"})
		return
	}
	email := normalizeEmail(req.Email)

	role := req.Role
	if role == "" {
		role = model.RoleStudent
	}
	switch role {
	case model.RoleStudent, model.RoleEmployer, model.RoleAdmin:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid role"})
		return
	}

	_, err := h.users.FindByEmail(c.Request.Context(), email)
	if err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "User already exists"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	record, err := h.otps.FindValid(c.Request.Context(), email, strings.TrimSpace(req.OTP), model.PurposeRegistration, time.Now())
	if err != nil {
		metrics.OTPVerifyFailedTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired OTP"})
		return
	}
	if err := h.otps.MarkUsed(c.Request.Context(), record.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	user := &model.User{
		Name:       strings.TrimSpace(req.Name),
		Email:      email,
		Password:   string(hash),
		Role:       role,
		Phone:      req.Phone,
		Skills:     req.Skills,
		IsVerified: true,
	}
	if err := h.users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "User already exists"})
			return
		}
		h.logger.Error("create user failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	// 欢迎邮件失败不回滚注册
	if err := h.mailer.SendWelcomeEmail(email, user.Name); err != nil {
		h.logger.Warn("send welcome email failed", slog.String("email", email), slog.String("error", err.Error()))
	}

	token, err := h.issueToken(user.ID, user.Role)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	h.logger.Info("user registered", slog.String("email", email), slog.String("role", role))
	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"token":   token,
		"user":    user.PublicView(),
	})
}

// Login 校验凭证并签发会话令牌。
//
// 未知邮箱和密码错误返回完全相同的响应，避免账号枚举。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email and password are required"})
		return
	}
	email := normalizeEmail(req.Email)

	user, err := h.users.FindByEmail(c.Request.Context(), email)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid credentials"})
		return
	}

	token, err := h.issueToken(user.ID, user.Role)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	h.logger.Info("user logged in", slog.String("email", email), slog.String("role", user.Role))
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
		"user":    user.PublicView(),
	})
}

// ForgotPassword 为已注册邮箱签发重置密码验证码。
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req sendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email is required"})
		return
	}
	email := normalizeEmail(req.Email)

	if _, err := h.users.FindByEmail(c.Request.Context(), email); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "No account found with this email"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	if !h.allowSend(c, email) {
		return
	}
	if !h.issueOTP(c, email, model.PurposePasswordReset) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset OTP sent successfully"})
}

// ResetPassword 用验证码重置密码并清空该邮箱所有重置码。
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "All fields are required"})
		return
	}
	email := normalizeEmail(req.Email)

	record, err := h.otps.FindValid(c.Request.Context(), email, strings.TrimSpace(req.OTP), model.PurposePasswordReset, time.Now())
	if err != nil {
		metrics.OTPVerifyFailedTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired OTP"})
		return
	}

	user, err := h.users.FindByEmail(c.Request.Context(), email)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}

	if err := h.otps.MarkUsed(c.Request.Context(), record.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	if err := h.users.UpdatePassword(c.Request.Context(), user.ID, string(hash)); err != nil {
		h.logger.Error("update password failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	if err := h.otps.DeleteByEmailPurpose(c.Request.Context(), email, model.PurposePasswordReset); err != nil {
		h.logger.Warn("purge reset otps failed", slog.String("email", email), slog.String("error", err.Error()))
	}

	h.logger.Info("password reset", slog.String("email", email))
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
}

// GetProfile 返回当前用户资料（不含密码哈希）。
func (h *Handler) GetProfile(c *gin.Context) {
	user, err := h.users.FindByID(c.Request.Context(), c.GetUint("userID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile 更新资料字段。邮箱、角色、密码不走这里。
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid name"})
			return
		}
		updates["name"] = name
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Skills != nil {
		// map 更新不走 gorm 序列化器，列表字段手动编码
		encoded, err := json.Marshal(*req.Skills)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid skills"})
			return
		}
		updates["skills"] = string(encoded)
	}
	if req.Experience != nil {
		updates["experience"] = *req.Experience
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No updates"})
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), c.GetUint("userID"), updates)
	if err != nil {
		h.logger.Error("update profile failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated", "user": user})
}

// allowSend 执行发码限流，拒绝时自己写响应并返回 false。
func (h *Handler) allowSend(c *gin.Context, email string) bool {
	allowed, err := h.limiter.Allow(c.Request.Context(), email)
	if err != nil {
		// 限流器故障放行，不挡核心流程
		h.logger.Warn("otp rate limiter unavailable", slog.String("error", err.Error()))
		return true
	}
	if !allowed {
		metrics.RateLimitRejectedTotal.Inc()
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "Too many OTP requests"})
		return false
	}
	return true
}

// issueOTP 生成并存储验证码，然后投递；失败时自己写响应并返回 false。
func (h *Handler) issueOTP(c *gin.Context, email, purpose string) bool {
	code, err := generateCode(6)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return false
	}

	record := &model.OTP{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(h.otpTTL),
	}
	if err := h.otps.Replace(c.Request.Context(), record); err != nil {
		h.logger.Error("store otp failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return false
	}

	if err := h.mailer.SendOTPEmail(email, code, purpose); err != nil {
		h.logger.Warn("send otp email failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to send OTP email"})
		return false
	}

	metrics.OTPIssuedTotal.WithLabelValues(purpose).Inc()
	h.logger.Info("otp issued", slog.String("email", email), slog.String("purpose", purpose))
	return true
}

func (h *Handler) issueToken(userID uint, role string) (string, error) {
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// generateCode 生成 n 位均匀随机数字验证码。
func generateCode(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid code length")
	}
	buf := make([]byte, n)
	for i := range buf {
		// 拒绝采样保证 0-9 均匀分布
		for {
			var b [1]byte
			if _, err := rand.Read(b[:]); err != nil {
				return "", err
			}
			if b[0] < 250 {
				buf[i] = '0' + b[0]%10
				break
			}
		}
	}
	return string(buf), nil
}
