// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// NotificationEmailData holds data for the notification email.
type NotificationEmailData struct {
	SiteName string
	Title    string
	Message  string
	Link     string // absolute URL, optional
}

// BuildNotificationEmail creates the out-of-band copy of an in-app
// notification with both HTML and text bodies.
func BuildNotificationEmail(data NotificationEmailData) Email {
	return Email{
		To:       "", // Set by caller
		Subject:  fmt.Sprintf("%s: %s", data.SiteName, data.Title),
		TextBody: buildNotificationText(data),
		HTMLBody: buildNotificationHTML(data),
	}
}

func buildNotificationText(data NotificationEmailData) string {
	var buf bytes.Buffer
	buf.WriteString(data.Title + "\n\n")
	buf.WriteString(data.Message + "\n")
	if data.Link != "" {
		buf.WriteString("\nView it here:\n" + data.Link + "\n")
	}
	buf.WriteString(fmt.Sprintf("\nYou are receiving this because you have an account on %s.\n", data.SiteName))
	return buf.String()
}

var notificationHTML = template.Must(template.New("notification").Parse(notificationHTMLTemplate))

func buildNotificationHTML(data NotificationEmailData) string {
	var buf bytes.Buffer
	_ = notificationHTML.Execute(&buf, data)
	return buf.String()
}

const notificationHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; background-color: #f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f3f4f6;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 480px; background-color: #ffffff; border-radius: 8px;">
          <tr>
            <td style="padding: 24px 32px; border-bottom: 1px solid #e5e7eb;">
              <h1 style="margin: 0; font-size: 20px; font-weight: 600; color: #047857;">{{.SiteName}}</h1>
            </td>
          </tr>
          <tr>
            <td style="padding: 32px;">
              <h2 style="margin: 0 0 16px; font-size: 18px; color: #1f2937;">{{.Title}}</h2>
              <p style="margin: 0 0 24px; font-size: 15px; color: #374151; line-height: 1.5;">{{.Message}}</p>
              {{if .Link}}
              <a href="{{.Link}}" style="display: inline-block; padding: 12px 24px; background-color: #047857; color: #ffffff; text-decoration: none; border-radius: 6px; font-weight: 500;">View details</a>
              {{end}}
            </td>
          </tr>
          <tr>
            <td style="padding: 16px 32px; font-size: 12px; color: #9ca3af; border-top: 1px solid #e5e7eb;">
              You are receiving this because you have an account on {{.SiteName}}.
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`
