package notifier

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// SMTPConfig configures an SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	UseTLS   bool

	// DialTimeout bounds connection setup when ctx has no earlier deadline.
	DialTimeout time.Duration
	// RatePerSecond caps sends; zero disables the limiter.
	RatePerSecond float64
	// FailureThreshold consecutive failures open the breaker for BreakerTimeout.
	FailureThreshold uint32
	BreakerTimeout   time.Duration
}

func (c SMTPConfig) withDefaults() SMTPConfig {
	if c.Port == 0 {
		c.Port = 587
	}
	if c.From == "" {
		c.From = DefaultFrom
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 30 * time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.BreakerTimeout == 0 {
		c.BreakerTimeout = time.Minute
	}
	return c
}

type sendFunc func(ctx context.Context, to string, msg []byte) error

// SMTPMailer sends HTML email over SMTP.
type SMTPMailer struct {
	cfg     SMTPConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  zerolog.Logger
	send    sendFunc
}

// NewSMTPMailer creates a mailer for cfg.
func NewSMTPMailer(cfg SMTPConfig, logger zerolog.Logger) *SMTPMailer {
	cfg = cfg.withDefaults()
	m := &SMTPMailer{
		cfg:    cfg,
		logger: logger.With().Str("component", "smtp_mailer").Logger(),
	}
	if cfg.RatePerSecond > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	m.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "smtp",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	m.send = m.sendSMTP
	return m
}

// SendDigest delivers one message. Rate limiting, an open breaker and
// transport errors are all reported as *DeliveryError.
func (m *SMTPMailer) SendDigest(ctx context.Context, to, subject, html string) error {
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return &DeliveryError{Recipient: to, Err: fmt.Errorf("invalid recipient: %w", err)}
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return &DeliveryError{Recipient: to, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	msg := m.buildMessage(addr.Address, subject, html)
	_, err = m.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, m.send(ctx, addr.Address, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("smtp unavailable: %w", err)
		}
		return &DeliveryError{Recipient: to, Err: err}
	}
	return nil
}

func (m *SMTPMailer) buildMessage(to, subject, html string) []byte {
	var msg strings.Builder

	from := m.cfg.From
	if m.cfg.FromName != "" {
		from = (&mail.Address{Name: m.cfg.FromName, Address: m.cfg.From}).String()
	}

	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	msg.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(html)

	return []byte(msg.String())
}

func (m *SMTPMailer) sendSMTP(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	dialer := &net.Dialer{Timeout: m.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if m.cfg.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: m.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if m.cfg.User != "" && m.cfg.Password != "" {
		auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if _, err := writer.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	// The message is accepted once DATA closes.
	_ = client.Quit()
	return nil
}
