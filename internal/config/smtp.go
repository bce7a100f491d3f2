package config

import "strings"

// SMTP 告警汇总邮件配置；字段名与环境变量沿用 SMTP_*。
type SMTP struct {
	Server   string `mapstructure:"smtp_server"`
	Port     int    `mapstructure:"smtp_port"`
	User     string `mapstructure:"smtp_user"`
	Password string `mapstructure:"smtp_password"`
	AuthCode string `mapstructure:"smtp_auth_code"`
	From     string `mapstructure:"smtp_from"`
	To       string `mapstructure:"smtp_to"`
}

// SMTP 环境变量名
const (
	envSMTPServer   = "SMTP_SERVER"
	envSMTPPort     = "SMTP_PORT"
	envSMTPUser     = "SMTP_USER"
	envSMTPPassword = "SMTP_PASSWORD"
	envSMTPAuthCode = "SMTP_AUTH_CODE"
	envSMTPFrom     = "SMTP_FROM"
	envSMTPTo       = "SMTP_TO"
)

var smtpEnv = map[string]string{
	"smtp.smtp_server":    envSMTPServer,
	"smtp.smtp_port":      envSMTPPort,
	"smtp.smtp_user":      envSMTPUser,
	"smtp.smtp_password":  envSMTPPassword,
	"smtp.smtp_auth_code": envSMTPAuthCode,
	"smtp.smtp_from":      envSMTPFrom,
	"smtp.smtp_to":        envSMTPTo,
}

// normalize 授权码优先于密码；未设 From 时用 User。
func (s *SMTP) normalize() {
	if s.AuthCode != "" {
		s.Password = s.AuthCode
	}
	if s.From == "" && s.User != "" {
		s.From = s.User
	}
}

func (s *SMTP) Enabled() bool {
	srv := strings.TrimSpace(s.Server)
	from := strings.TrimSpace(s.From)
	to := strings.TrimSpace(s.To)
	return srv != "" && from != "" && to != ""
}
