package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/resend/resend-go/v3"
)

// ResendNotifier emails run summaries through the Resend API.
type ResendNotifier struct {
	client      *resend.Client
	fromAddress string
	recipients  []string
}

// NewResendNotifier creates a notifier. fromAddress must be verified in Resend.
func NewResendNotifier(apiKey, fromAddress string, recipients []string) *ResendNotifier {
	return &ResendNotifier{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
		recipients:  recipients,
	}
}

// Send emails msg to every recipient in one request.
func (r *ResendNotifier) Send(ctx context.Context, msg Message) error {
	if len(r.recipients) == 0 {
		return nil
	}
	subject, html, err := renderMessage(msg)
	if err != nil {
		return err
	}
	_, err = r.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      r.recipients,
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("resend: failed to send run summary: %w", err)
	}
	return nil
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.5; color: #333; max-width: 760px; margin: 0 auto; padding: 20px;">
    <div style="background: {{if .OK}}#11998e{{else}}#c0392b{{end}}; padding: 20px 30px; border-radius: 10px 10px 0 0;">
        <h1 style="color: white; margin: 0; font-size: 20px;">{{.Title}}</h1>
    </div>
    <div style="background: #ffffff; padding: 20px 30px; border: 1px solid #e0e0e0; border-top: none; border-radius: 0 0 10px 10px;">
        <p><strong>{{.S.Pass}}</strong> pass, <strong>{{.S.Warn}}</strong> warn, <strong>{{.S.Fail}}</strong> fail, <strong>{{.S.Skip}}</strong> skip across {{.S.Tests}} tests in {{.S.Duration}}.</p>
        <p>Target: <code>{{.S.BaseURL}}</code></p>
        {{- if .S.Failed}}
        <p>Failing tests:</p>
        <ul>{{range .S.Failed}}<li>{{.}}</li>{{end}}</ul>
        {{- end}}
        {{- if .S.ReportURL}}
        <p><a href="{{.S.ReportURL}}">Full report</a></p>
        {{- end}}
        {{- if .Body}}
        <hr style="border: none; border-top: 1px solid #e0e0e0; margin: 20px 0;">
        {{.Body}}
        {{- end}}
    </div>
</body>
</html>`))

// renderMessage returns the subject and HTML body for msg. The embedded
// report body has already been sanitized by the report package.
func renderMessage(msg Message) (subject, html string, err error) {
	var buf bytes.Buffer
	data := struct {
		Title string
		OK    bool
		S     any
		Body  template.HTML
	}{
		Title: msg.Summary.Title(),
		OK:    msg.Summary.OK(),
		S:     msg.Summary,
		Body:  template.HTML(msg.HTML),
	}
	if err := summaryTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("notify: render summary: %w", err)
	}
	return strings.TrimSpace(data.Title), buf.String(), nil
}
