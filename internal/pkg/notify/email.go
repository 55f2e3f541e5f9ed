package notify

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Atul7206/stuwork-backend/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailSender 通过 SMTP 投递邮件。
//
// SMTP 未配置时进入控制台模式：验证码打到日志里并视为投递成功，
// 方便本地开发不接邮件服务。
type EmailSender struct {
	cfg         *config.EmailConfig
	frontendURL string
	logger      *slog.Logger
}

// NewEmailSender 创建邮件投递器。
func NewEmailSender(cfg *config.EmailConfig, frontendURL string, logger *slog.Logger) *EmailSender {
	return &EmailSender{
		cfg:         cfg,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

// configured 判断 SMTP 是否配置完整。
func (n *EmailSender) configured() bool {
	return n.cfg.SMTPHost != "" && n.cfg.SMTPUser != "" && n.cfg.FromEmail != ""
}

// SendOTPEmail 发送验证码邮件。投递失败返回错误（发码接口按 500 处理）。
func (n *EmailSender) SendOTPEmail(toEmail, code, purpose string) error {
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}

	if !n.configured() {
		// 控制台模式
		n.logger.Info("otp issued (console mode)",
			slog.String("to", toEmail),
			slog.String("code", code),
			slog.String("purpose", purpose),
		)
		return nil
	}

	subject := "Verify Your Email - Stuwork"
	if purpose == "password_reset" {
		subject = "Password Reset OTP - Stuwork"
	}

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Stuwork</h2>
    <p>Your OTP is:</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">%s</div>
    <p>This OTP is valid for 5 minutes.</p>
    <p>If you did not request this, please ignore this email.</p>
  </div>
</body>
</html>`, code)

	if err := n.send(toEmail, subject, body); err != nil {
		return fmt.Errorf("send otp email: %w", err)
	}

	n.logger.Info("otp email sent", slog.String("to", toEmail), slog.String("purpose", purpose))
	return nil
}

// SendWelcomeEmail 发送欢迎邮件。调用方按 best-effort 处理返回错误。
func (n *EmailSender) SendWelcomeEmail(toEmail, name string) error {
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}

	if !n.configured() {
		n.logger.Info("welcome email skipped (console mode)", slog.String("to", toEmail))
		return nil
	}

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Welcome to Stuwork, %s 🎉</h2>
    <p>Your account has been successfully verified.</p>
    <a href="%s/dashboard">Go to Dashboard</a>
  </div>
</body>
</html>`, name, n.frontendURL)

	if err := n.send(toEmail, "Welcome to Stuwork!", body); err != nil {
		return fmt.Errorf("send welcome email: %w", err)
	}

	n.logger.Info("welcome email sent", slog.String("to", toEmail))
	return nil
}

func (n *EmailSender) send(toEmail, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	return d.DialAndSend(m)
}
