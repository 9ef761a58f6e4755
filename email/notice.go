package email

import (
	"fmt"
	"html/template"
	"strings"
)

func noticeSubject(data CredentialNoticeData) string {
	if data.Kind == NoticeRevoked {
		return fmt.Sprintf("%s: API key %d was removed", data.AppName, data.KeyID)
	}
	return fmt.Sprintf("%s: API key %d needs attention", data.AppName, data.KeyID)
}

func noticeLine(data CredentialNoticeData) string {
	switch {
	case data.Kind == NoticeRevoked:
		return fmt.Sprintf("Your API key %d was rejected by the game API and has been removed. Characters only exposed through it are no longer linked to your account.", data.KeyID)
	case data.Violation == "Character":
		return fmt.Sprintf("Your API key %d exposes a character that already belongs to another account. The character stays with its current owner.", data.KeyID)
	case data.Violation == "Kind":
		return fmt.Sprintf("Your API key %d is not of the recommended kind.", data.KeyID)
	case data.Violation == "Mask":
		return fmt.Sprintf("Your API key %d is missing access the service recommends.", data.KeyID)
	}
	return fmt.Sprintf("Your API key %d was updated.", data.KeyID)
}

var noticeTemplate = template.Must(template.New("credential_notice").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="margin-top: 0;">{{.AppName}}</h2>
    <p>Hello{{if .Username}} <strong>{{.Username}}</strong>{{end}},</p>
    <p>{{.Line}}</p>
    <hr style="border: none; border-top: 1px solid #e0e0e0; margin: 25px 0;">
    <p style="color: #999; font-size: 12px; margin-bottom: 0;">
        This is an automated message from {{.AppName}}.
        {{if .SupportEmail}}If you need help, contact us at <a href="mailto:{{.SupportEmail}}">{{.SupportEmail}}</a>.{{end}}
    </p>
</body>
</html>`))

func renderCredentialNoticeHTML(data CredentialNoticeData, supportEmail string) (string, error) {
	var buf strings.Builder
	err := noticeTemplate.Execute(&buf, map[string]string{
		"Subject":      noticeSubject(data),
		"AppName":      data.AppName,
		"Username":     data.Username,
		"Line":         noticeLine(data),
		"SupportEmail": supportEmail,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderCredentialNoticeText(data CredentialNoticeData) string {
	var buf strings.Builder
	if data.Username != "" {
		fmt.Fprintf(&buf, "Hello %s,\n\n", data.Username)
	} else {
		buf.WriteString("Hello,\n\n")
	}
	buf.WriteString(noticeLine(data))
	buf.WriteString("\n")
	return buf.String()
}
