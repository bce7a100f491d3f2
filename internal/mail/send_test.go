package mail

import (
	"context"
	"strings"
	"testing"
	"time"

	"smallCapScanner/internal/model"
)

func TestBuildHTMLTable(t *testing.T) {
	alerts := []model.Alert{
		{Symbol: "ABC", Price: 11, ChangePct: 10, RelVolume: 10, Shares: 5e7, Time: time.Date(2024, 3, 4, 14, 30, 5, 0, time.UTC)},
		{Symbol: "<X>", Price: 2.345, ChangePct: 7.5, RelVolume: 6.25, Shares: 1.2e7},
	}
	body := buildHTMLTable(alerts)
	for _, want := range []string{
		"<td>ABC</td><td>$11.00</td><td>10.00</td><td>10.0x</td><td>50.00</td>",
		"<td>14:30:05</td>",
		"&lt;X&gt;",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(body, "<X>") {
		t.Error("symbol not escaped")
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := buildMessage("bot@example.com", []string{"a@example.com", "b@example.com"}, digestSubject, "<p>x</p>")
	if !strings.HasPrefix(msg, "From: bot@example.com\r\nTo: a@example.com,b@example.com\r\nSubject: "+digestSubject+"\r\n") {
		t.Errorf("headers = %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\n<p>x</p>") {
		t.Errorf("body = %q", msg)
	}
}

func TestRecipients(t *testing.T) {
	cfg := &SMTPConfig{To: " a@example.com, ,b@example.com "}
	got := cfg.recipients()
	if strings.Join(got, "|") != "a@example.com|b@example.com" {
		t.Errorf("recipients = %v", got)
	}
}

func TestSendDigestSkips(t *testing.T) {
	ctx := context.Background()
	alerts := []model.Alert{{Symbol: "ABC"}}
	if err := SendDigest(ctx, nil, alerts); err != nil {
		t.Errorf("nil config: %v", err)
	}
	if err := SendDigest(ctx, &SMTPConfig{Server: "smtp.example.com"}, alerts); err != nil {
		t.Errorf("incomplete config: %v", err)
	}
	// 配置完整但无告警时不连接服务器
	full := &SMTPConfig{Server: "127.0.0.1", Port: 1, From: "a@example.com", To: "b@example.com"}
	if err := SendDigest(ctx, full, nil); err != nil {
		t.Errorf("no alerts: %v", err)
	}
}

func TestSendDigestDialError(t *testing.T) {
	cfg := &SMTPConfig{Server: "127.0.0.1", Port: 1, From: "a@example.com", To: "b@example.com"}
	if err := SendDigest(context.Background(), cfg, []model.Alert{{Symbol: "ABC"}}); err == nil {
		t.Error("expected dial error")
	}
	MustSendDigest(context.Background(), cfg, []model.Alert{{Symbol: "ABC"}})
}
