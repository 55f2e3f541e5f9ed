package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Atul7206/stuwork-backend/internal/api/auth"
	"github.com/Atul7206/stuwork-backend/internal/api/middleware"
	"github.com/Atul7206/stuwork-backend/internal/config"
	"github.com/Atul7206/stuwork-backend/internal/model"
	"github.com/Atul7206/stuwork-backend/internal/pkg/metrics"
	"github.com/Atul7206/stuwork-backend/internal/pkg/notify"
	"github.com/Atul7206/stuwork-backend/internal/pkg/ratelimit"
	"github.com/Atul7206/stuwork-backend/internal/pkg/realtime"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、实时推送中心以及 Gin 路由引擎。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *gin.Engine

	db  *gorm.DB
	rdb *redis.Client

	auth          *auth.Handler
	jobs          JobStore
	notifications NotificationStore
	users         UserStore

	hub       *realtime.Hub
	publisher realtime.Publisher
}

// NewServer 连接外部依赖、执行迁移并完成路由注册。
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(gormmysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	// 唯一索引是并发正确性的一部分（验证码覆盖、防重复投递），必须随迁移建立
	if err := db.WithContext(ctx).AutoMigrate(
		&model.User{},
		&model.OTP{},
		&model.Job{},
		&model.Application{},
		&model.Notification{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	metrics.InitMetrics()

	mailer := notify.NewEmailSender(&cfg.Email, cfg.App.FrontendURL, logger)
	limiter := ratelimit.NewRedisRateLimiter(rdb, logger, "stuwork:otp", cfg.App.OTPRateLimit, cfg.App.OTPRateBurst)
	hub := realtime.NewHub(logger, cfg.App.FrontendURL)

	s := &Server{
		cfg:           cfg,
		logger:        logger,
		db:            db,
		rdb:           rdb,
		jobs:          dbJobStore{db: db},
		notifications: dbNotificationStore{db: db},
		users:         dbUserStore{db: db},
		hub:           hub,
		publisher:     hub,
	}
	s.auth = auth.NewHandler(
		auth.NewGormUserStore(db),
		auth.NewGormOTPStore(db),
		mailer,
		limiter,
		cfg.Security.JWTSecret,
		cfg.App.TokenTTL,
		cfg.App.OTPTTL,
		logger,
	)

	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.App.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	s.router = router
	s.registerRoutes()

	return s, nil
}

// Router 返回 HTTP 处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 释放服务器持有的连接。
func (s *Server) Close() error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Warn("close redis failed", slog.String("error", err.Error()))
		}
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws", s.handleWS)
	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Route not found"})
	})

	authRequired := middleware.AuthMiddleware(s.cfg.Security.JWTSecret)
	employerOnly := middleware.RequireRole(model.RoleEmployer, model.RoleAdmin)
	studentOnly := middleware.RequireRole(model.RoleStudent)

	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/send-otp", s.auth.SendOTP)
		authGroup.POST("/resend-otp", s.auth.ResendOTP)
		authGroup.POST("/verify-otp-register", s.auth.VerifyOTPRegister)
		authGroup.POST("/login", s.auth.Login)
		authGroup.POST("/forgot-password", s.auth.ForgotPassword)
		authGroup.POST("/reset-password", s.auth.ResetPassword)
		authGroup.GET("/profile", authRequired, s.auth.GetProfile)
		authGroup.PUT("/profile", authRequired, s.auth.UpdateProfile)
	}

	jobs := api.Group("/jobs")
	{
		jobs.GET("", s.handleListJobs)
		jobs.GET("/:id", s.handleGetJob)

		jobs.POST("", authRequired, employerOnly, s.handleCreateJob)
		jobs.PUT("/:id", authRequired, employerOnly, s.handleUpdateJob)
		jobs.PUT("/:id/complete", authRequired, employerOnly, s.handleCompleteJob)
		jobs.POST("/:id/apply", authRequired, studentOnly, s.handleApplyJob)
		jobs.GET("/employer/my-jobs", authRequired, employerOnly, s.handleMyJobs)
		jobs.GET("/student/my-applications", authRequired, studentOnly, s.handleMyApplications)
		jobs.PUT("/:id/application/:applicationId/status", authRequired, employerOnly, s.handleApplicationStatus)
	}

	notifications := api.Group("/notifications", authRequired)
	{
		notifications.GET("", s.handleListNotifications)
		notifications.PUT("/mark-all-read", s.handleMarkAllRead)
		notifications.PUT("/:id/read", s.handleMarkRead)
	}
}

// handleHealth 检查 MySQL 和 Redis 连通性。
func (s *Server) handleHealth(c *gin.Context) {
	overall := "ok"
	status := http.StatusOK
	dbStatus := "up"
	redisStatus := "up"

	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		dbStatus = "down"
	}
	if err := s.rdb.Ping(c.Request.Context()).Err(); err != nil {
		redisStatus = "down"
	}
	if dbStatus == "down" || redisStatus == "down" {
		overall = "degraded"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": overall,
		"mysql":  dbStatus,
		"redis":  redisStatus,
	})
}
