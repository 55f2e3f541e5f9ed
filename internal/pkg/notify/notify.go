package notify

// Mailer 定义邮件投递接口。
type Mailer interface {
	// SendOTPEmail 发送验证码邮件。purpose 决定邮件标题（注册 / 重置密码）。
	SendOTPEmail(toEmail, code, purpose string) error

	// SendWelcomeEmail 在注册成功后发送欢迎邮件。
	SendWelcomeEmail(toEmail, name string) error
}
