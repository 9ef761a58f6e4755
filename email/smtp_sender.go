package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// SMTPSender sends emails via SMTP
type SMTPSender struct {
	config       SMTPConfig
	fromAddress  string
	fromName     string
	appName      string
	supportEmail string
}

// NewSMTPSenderFromConfig creates a new SMTP sender from ProviderConfig
func NewSMTPSenderFromConfig(pc *ProviderConfig) (Sender, error) {
	cfg := pc.SMTP
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp: host is required")
	}
	if cfg.Port == 0 {
		if cfg.UseSSL {
			cfg.Port = 465
		} else {
			cfg.Port = 587
		}
	}
	appName := pc.AppName
	if appName == "" {
		appName = "eveauth"
	}
	fromName := pc.FromName
	if fromName == "" {
		fromName = appName
	}

	return &SMTPSender{
		config:       cfg,
		fromAddress:  pc.FromAddress,
		fromName:     fromName,
		appName:      appName,
		supportEmail: pc.SupportEmail,
	}, nil
}

// SendCredentialNotice sends a credential notification email
func (s *SMTPSender) SendCredentialNotice(ctx context.Context, data CredentialNoticeData) error {
	if data.AppName == "" {
		data.AppName = s.appName
	}

	htmlBody, err := renderCredentialNoticeHTML(data, s.supportEmail)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.SendEmail(ctx, EmailData{
		To:          data.To,
		Subject:     noticeSubject(data),
		TextBody:    renderCredentialNoticeText(data),
		HTMLBody:    htmlBody,
		FromAddress: s.fromAddress,
		FromName:    s.fromName,
	})
}

// SendEmail sends a generic email
func (s *SMTPSender) SendEmail(ctx context.Context, data EmailData) error {
	fromAddr := data.FromAddress
	if fromAddr == "" {
		fromAddr = s.fromAddress
	}
	fromName := data.FromName
	if fromName == "" {
		fromName = s.fromName
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	// Build email headers and body
	headers := make(map[string]string)
	headers["From"] = fmt.Sprintf("%s <%s>", fromName, fromAddr)
	headers["To"] = data.To
	headers["Subject"] = data.Subject
	headers["MIME-Version"] = "1.0"

	var msg strings.Builder

	if data.HTMLBody != "" {
		// Build multipart message
		boundary := "boundary-eveauth-email"
		headers["Content-Type"] = fmt.Sprintf("multipart/alternative; boundary=%s", boundary)

		for k, v := range headers {
			msg.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
		}
		msg.WriteString("\r\n")

		// Plain text part
		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		msg.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		msg.WriteString(data.TextBody)
		msg.WriteString("\r\n")

		// HTML part
		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		msg.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		msg.WriteString(data.HTMLBody)
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	} else {
		headers["Content-Type"] = "text/plain; charset=UTF-8"
		for k, v := range headers {
			msg.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
		}
		msg.WriteString("\r\n")
		msg.WriteString(data.TextBody)
	}

	// Set up authentication
	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if s.config.UseSSL {
		return s.sendEmailSSL(addr, auth, data.To, msg.String())
	}

	return s.sendEmailTLS(addr, auth, data.To, msg.String())
}

// Health checks if the SMTP server is reachable
func (s *SMTPSender) Health(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	done := make(chan error, 1)

	go func() {
		conn, err := smtp.Dial(addr)
		if err != nil {
			done <- fmt.Errorf("failed to connect to SMTP server: %w", err)
			return
		}
		conn.Close()
		done <- nil
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("SMTP health check timeout")
	}
}

// ProviderType returns the provider type
func (s *SMTPSender) ProviderType() ProviderType {
	return ProviderTypeSMTP
}

func (s *SMTPSender) sendEmailTLS(addr string, auth smtp.Auth, to, message string) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if s.config.UseTLS {
		tlsConfig := &tls.Config{
			ServerName:         s.config.Host,
			InsecureSkipVerify: s.config.SkipVerify,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	fromAddr := s.fromAddress
	if fromAddr == "" {
		fromAddr = s.config.Username
	}

	if err := client.Mail(fromAddr); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	_, err = w.Write([]byte(message))
	if err != nil {
		return fmt.Errorf("failed to write email body: %w", err)
	}
	err = w.Close()
	if err != nil {
		return fmt.Errorf("failed to close email body: %w", err)
	}

	return client.Quit()
}

func (s *SMTPSender) sendEmailSSL(addr string, auth smtp.Auth, to, message string) error {
	tlsConfig := &tls.Config{
		ServerName:         s.config.Host,
		InsecureSkipVerify: s.config.SkipVerify,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server via SSL: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	fromAddr := s.fromAddress
	if fromAddr == "" {
		fromAddr = s.config.Username
	}

	if err := client.Mail(fromAddr); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	_, err = w.Write([]byte(message))
	if err != nil {
		return fmt.Errorf("failed to write email body: %w", err)
	}
	err = w.Close()
	if err != nil {
		return fmt.Errorf("failed to close email body: %w", err)
	}

	return client.Quit()
}
