package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFactory(t *testing.T) {
	s, err := Factory(&ProviderConfig{ProviderType: ProviderTypeConsole})
	require.NoError(t, err)
	require.Equal(t, ProviderTypeConsole, s.ProviderType())
	require.NoError(t, s.SendCredentialNotice(context.Background(), CredentialNoticeData{To: "a@example.com", KeyID: 1, Kind: NoticeRevoked}))

	_, err = Factory(&ProviderConfig{ProviderType: ProviderTypeSMTP})
	require.Error(t, err)

	s, err = Factory(&ProviderConfig{ProviderType: ProviderTypeSMTP, SMTP: SMTPConfig{Host: "mail.example.com"}})
	require.NoError(t, err)
	require.Equal(t, ProviderTypeSMTP, s.ProviderType())
	require.Equal(t, 587, s.(*SMTPSender).config.Port)
}

func TestCredentialNoticeRendering(t *testing.T) {
	data := CredentialNoticeData{Username: "pilot", KeyID: 42, Kind: NoticeViolation, Violation: "Character", AppName: "eveauth"}
	require.Equal(t, "eveauth: API key 42 needs attention", noticeSubject(data))

	text := renderCredentialNoticeText(data)
	require.Contains(t, text, "Hello pilot,")
	require.Contains(t, text, "already belongs to another account")

	html, err := renderCredentialNoticeHTML(data, "help@example.com")
	require.NoError(t, err)
	require.Contains(t, html, "<strong>pilot</strong>")
	require.Contains(t, html, "mailto:help@example.com")

	revoked := CredentialNoticeData{KeyID: 7, Kind: NoticeRevoked, AppName: "eveauth"}
	require.Equal(t, "eveauth: API key 7 was removed", noticeSubject(revoked))
	require.Contains(t, renderCredentialNoticeText(revoked), "has been removed")
}
