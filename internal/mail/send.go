// Package mail 按 SMTP 配置发送每轮扫描的告警汇总 HTML 邮件。
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"smallCapScanner/internal/model"
	"smallCapScanner/internal/trace"
)

const (
	smtpTimeout     = 15 * time.Second
	defaultSMTPPort = 587
	implicitTLSPort = 465
	digestSubject   = "Small-cap breakout alerts"
)

type SMTPConfig struct {
	Server   string
	Port     int
	User     string
	Password string
	From     string
	To       string
}

func (s *SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Server) != "" &&
		strings.TrimSpace(s.From) != "" &&
		strings.TrimSpace(s.To) != ""
}

func (s *SMTPConfig) recipients() []string {
	var out []string
	for _, t := range strings.Split(s.To, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SendDigest 发送告警汇总；未配置或无告警时直接返回 nil。
func SendDigest(ctx context.Context, cfg *SMTPConfig, alerts []model.Alert) error {
	if cfg == nil || !cfg.Enabled() {
		return nil
	}
	if len(alerts) == 0 {
		return nil
	}
	trace.Log(ctx, "mail: SendDigest to=%s count=%d", cfg.To, len(alerts))
	body := buildHTMLTable(alerts)
	if err := send(ctx, cfg, digestSubject, body, cfg.recipients()); err != nil {
		trace.Warn(ctx, "mail: send err=%v", err)
		return err
	}
	trace.Log(ctx, "mail: sent ok")
	return nil
}

func buildHTMLTable(alerts []model.Alert) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="UTF-8"><title>Breakout alerts</title></head><body>`)
	b.WriteString(`<h2>Small-cap breakout alerts</h2><p>Price $1-$200 · shares &le; 200M · change &ge; 5% · relative volume &ge; 5x.</p>`)
	b.WriteString(`<table border="1" cellspacing="0" cellpadding="8" style="border-collapse: collapse; font-size: 14px;">`)
	b.WriteString(`<thead><tr style="background: #eee;"><th>Time</th><th>Symbol</th><th>Price</th><th>Change %</th><th>Rel Vol</th><th>Shares (M)</th></tr></thead><tbody>`)
	for _, a := range alerts {
		b.WriteString(fmt.Sprintf("<tr><td>%s</td><td>%s</td><td>$%.2f</td><td>%.2f</td><td>%.1fx</td><td>%.2f</td></tr>",
			a.Time.Format("15:04:05"), html.EscapeString(a.Symbol), a.Price, a.ChangePct, a.RelVolume, a.SharesMillions()))
	}
	b.WriteString("</tbody></table></body></html>")
	return b.String()
}

func send(ctx context.Context, cfg *SMTPConfig, subject, htmlBody string, to []string) error {
	port := cfg.Port
	if port == 0 {
		port = defaultSMTPPort
	}
	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: smtpTimeout}

	var conn net.Conn
	var err error
	if port == implicitTLSPort {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: cfg.Server})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(smtpTimeout))

	client, err := smtp.NewClient(conn, cfg.Server)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: cfg.Server}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if cfg.Password != "" {
		auth := smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Server)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(cfg.From); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	for _, t := range to {
		if err := client.Rcpt(t); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", t, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(buildMessage(cfg.From, to, subject, htmlBody))); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return client.Quit()
}

func buildMessage(from string, to []string, subject, htmlBody string) string {
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n",
		from, strings.Join(to, ","), subject)
	return headers + htmlBody
}

// MustSendDigest 发送失败只记日志，不影响扫描循环。
func MustSendDigest(ctx context.Context, cfg *SMTPConfig, alerts []model.Alert) {
	if len(alerts) == 0 {
		trace.Debug(ctx, "mail: 本轮无告警，不发邮件")
		return
	}
	if cfg == nil || !cfg.Enabled() {
		trace.Debug(ctx, "mail: 未配置 SMTP，跳过")
		return
	}
	if err := SendDigest(ctx, cfg, alerts); err != nil {
		trace.Warn(ctx, "mail: 发送失败 err=%v", err)
		return
	}
	trace.Log(ctx, "mail: 已发送 to=%s count=%d", cfg.To, len(alerts))
}
