package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
)

// ErrNotConfigured is returned by LogNotifier: the alert was only logged
var ErrNotConfigured = errors.New("email is not configured")

// Notifier delivers alerts
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// NewNotifier returns an SMTPNotifier when cfg is usable, otherwise a LogNotifier
func NewNotifier(cfg model.SMTPConfig, log *zap.Logger) Notifier {
	if cfg.Configured() {
		return NewSMTPNotifier(cfg)
	}
	logging.OrNop(log).Info("email not configured, alerts will be logged only")
	return LogNotifier{Log: log}
}

// LogNotifier records the alert it would have sent and reports ErrNotConfigured
type LogNotifier struct {
	Log *zap.Logger
}

// Send logs a simulated send
func (n LogNotifier) Send(_ context.Context, alert Alert) error {
	logging.OrNop(n.Log).Warn("email not configured, simulated send",
		zap.String("to", alert.To),
		zap.String("brand", alert.Brand),
		zap.String("verdict", string(alert.Verdict)),
	)
	return ErrNotConfigured
}

// SMTPNotifier sends alerts through an SMTP relay with STARTTLS. Each send
// is a single attempt bounded by the configured timeout.
type SMTPNotifier struct {
	cfg model.SMTPConfig

	// dial is replaced in tests
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewSMTPNotifier creates an SMTP notifier
func NewSMTPNotifier(cfg model.SMTPConfig) *SMTPNotifier {
	d := &net.Dialer{}
	return &SMTPNotifier{cfg: cfg, dial: d.DialContext}
}

// Send delivers alert as an HTML email
func (n *SMTPNotifier) Send(ctx context.Context, alert Alert) error {
	if alert.To == "" {
		return errors.New("alert has no recipient")
	}

	timeout := n.cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	conn, err := n.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	// app passwords are often pasted with spaces
	password := strings.ReplaceAll(n.cfg.Password, " ", "")
	if ok, _ := client.Extension("AUTH"); ok && password != "" {
		if err := client.Auth(smtp.PlainAuth("", n.cfg.Sender, password, n.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(n.cfg.Sender); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(alert.To); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(BuildMessage(n.cfg.Sender, alert)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}

	return client.Quit()
}

// BuildMessage renders the RFC 5322 message for alert
func BuildMessage(from string, alert Alert) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + alert.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", alert.Subject()) + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(alert.HTML(), "\n", "\r\n"))
	return []byte(b.String())
}
