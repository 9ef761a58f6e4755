package email

import (
	"context"
)

// ProviderType represents the type of email provider
type ProviderType string

const (
	ProviderTypeConsole ProviderType = "console"
	ProviderTypeSMTP    ProviderType = "smtp"
)

// ProviderConfig represents configuration for an email provider
type ProviderConfig struct {
	ProviderType ProviderType
	FromAddress  string
	FromName     string
	AppName      string
	SupportEmail string
	SMTP         SMTPConfig
}

// SMTPConfig holds SMTP-specific configuration
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	UseTLS     bool
	UseSSL     bool
	SkipVerify bool
}

// NoticeKind says why a credential owner is being notified.
type NoticeKind string

const (
	// NoticeRevoked: the upstream rejected the credential and it was deleted.
	NoticeRevoked NoticeKind = "revoked"
	// NoticeViolation: the credential no longer satisfies the key policy.
	NoticeViolation NoticeKind = "violation"
)

// CredentialNoticeData contains data for credential notification emails
type CredentialNoticeData struct {
	To        string
	Username  string
	KeyID     int64
	Kind      NoticeKind
	Violation string
	AppName   string
}

// EmailData represents generic email data
type EmailData struct {
	To          string
	Subject     string
	TextBody    string
	HTMLBody    string
	FromAddress string
	FromName    string
	ReplyTo     string
}

// Sender defines the interface for sending emails
type Sender interface {
	// SendCredentialNotice tells a user about a change to one of their credentials
	SendCredentialNotice(ctx context.Context, data CredentialNoticeData) error

	// SendEmail sends a generic email
	SendEmail(ctx context.Context, data EmailData) error

	// Health checks if the email service is available
	Health(ctx context.Context) error

	// ProviderType returns the type of the provider
	ProviderType() ProviderType
}

// Factory creates a Sender from a ProviderConfig
func Factory(config *ProviderConfig) (Sender, error) {
	switch config.ProviderType {
	case ProviderTypeSMTP:
		return NewSMTPSenderFromConfig(config)
	default:
		return NewConsoleSender(), nil
	}
}
