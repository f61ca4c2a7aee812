package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/tracing"
)

// SMTPConfig configures the mail sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender sends alerts as HTML mail. smtp.SendMail upgrades to STARTTLS
// when the server offers it; PLAIN auth is only used when credentials are set.
type SMTPSender struct {
	cfg      SMTPConfig
	logger   *zap.Logger
	sendMail sendMailFunc
	now      func() time.Time
}

// NewSMTPSender creates a mail sender.
func NewSMTPSender(cfg SMTPConfig, logger *zap.Logger) *SMTPSender {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPSender{
		cfg:      cfg,
		logger:   logger.Named("smtp"),
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

// Name implements Sender.
func (s *SMTPSender) Name() string {
	return "smtp"
}

// Send implements Sender. net/smtp has no context support, so the send runs
// in a goroutine and ctx only bounds how long the caller waits.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	ctx, span := tracing.NotifySpan(ctx, s.Name())
	defer span.End()

	if len(s.cfg.To) == 0 {
		err := fmt.Errorf("no recipients configured")
		tracing.RecordError(span, err)
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	body := s.buildMessage(msg)

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(addr, auth, s.cfg.From, s.cfg.To, body)
	}()

	select {
	case err := <-done:
		if err != nil {
			tracing.RecordError(span, err)
			return fmt.Errorf("smtp send failed: %w", err)
		}
	case <-ctx.Done():
		tracing.RecordError(span, ctx.Err())
		return ctx.Err()
	}

	s.logger.Info("Alert mail sent",
		zap.String("subject", msg.Subject),
		zap.Int("recipients", len(s.cfg.To)),
	)
	tracing.SetSuccess(span)
	return nil
}

func (s *SMTPSender) buildMessage(msg Message) []byte {
	var buf bytes.Buffer
	header := func(k, v string) {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString("\r\n")
	}

	header("From", s.cfg.From)
	header("To", strings.Join(s.cfg.To, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", s.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="utf-8"`)
	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)
	return buf.Bytes()
}
