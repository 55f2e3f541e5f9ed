package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/Atul7206/stuwork-backend/internal/model"
)

// StartJanitor 启动过期验证码的周期清理循环。
//
// 过期验证码在查询时本来就匹配不到，清理只是回收存储；
// 单次清理失败记日志后等下一轮。
func (s *Server) StartJanitor(ctx context.Context) {
	interval := s.cfg.App.JanitorInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	s.logger.Info("otp janitor started", slog.String("interval", interval.String()))

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepExpiredOTPs(ctx)
			}
		}
	}()
}

func (s *Server) sweepExpiredOTPs(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("PANIC in otp janitor", slog.Any("panic", r))
		}
	}()

	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res := s.db.WithContext(sweepCtx).
		Where("expires_at < ? OR is_used = ?", time.Now(), true).
		Delete(&model.OTP{})
	if res.Error != nil {
		s.logger.Error("janitor failed to sweep otps", slog.String("error", res.Error.Error()))
		return
	}
	if res.RowsAffected > 0 {
		s.logger.Info("janitor swept expired otps", slog.Int64("count", res.RowsAffected))
	}
}
