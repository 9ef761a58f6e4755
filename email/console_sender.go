package email

import (
	"context"

	"github.com/legit-games/eveauth/logging"
)

// ConsoleSender logs emails instead of sending them (for development/testing)
type ConsoleSender struct{}

func NewConsoleSender() Sender {
	return &ConsoleSender{}
}

// SendCredentialNotice logs the notice
func (c *ConsoleSender) SendCredentialNotice(ctx context.Context, data CredentialNoticeData) error {
	logging.Ctx(ctx).Info().
		Str("to", data.To).
		Int64("key", data.KeyID).
		Str("kind", string(data.Kind)).
		Str("violation", data.Violation).
		Msg("email: credential notice")
	return nil
}

// SendEmail logs the email
func (c *ConsoleSender) SendEmail(ctx context.Context, data EmailData) error {
	logging.Ctx(ctx).Info().
		Str("to", data.To).
		Str("subject", data.Subject).
		Str("body", data.TextBody).
		Msg("email: send")
	return nil
}

func (c *ConsoleSender) Health(ctx context.Context) error {
	return nil
}

func (c *ConsoleSender) ProviderType() ProviderType {
	return ProviderTypeConsole
}

// NoOpSender is a no-operation sender that discards emails silently
type NoOpSender struct{}

func NewNoOpSender() Sender {
	return &NoOpSender{}
}

func (n *NoOpSender) SendCredentialNotice(ctx context.Context, data CredentialNoticeData) error {
	return nil
}

func (n *NoOpSender) SendEmail(ctx context.Context, data EmailData) error {
	return nil
}

func (n *NoOpSender) Health(ctx context.Context) error {
	return nil
}

func (n *NoOpSender) ProviderType() ProviderType {
	return ProviderTypeConsole
}
