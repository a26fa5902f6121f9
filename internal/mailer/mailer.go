package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"go-rbac-auth/internal/model"
)

const resetSubject = "Reset your password"

//go:embed templates/*.html
var templateFS embed.FS

var resetTemplate = template.Must(template.ParseFS(templateFS, "templates/password_reset.html"))

type resetView struct {
	Subject  string
	Name     string
	Link     string
	ValidFor string
	Year     int
}

// RenderPasswordReset returns the subject and HTML body of the reset mail.
func RenderPasswordReset(n model.ResetNotification, now time.Time) (string, string, error) {
	var buf bytes.Buffer
	err := resetTemplate.Execute(&buf, resetView{
		Subject:  resetSubject,
		Name:     n.Name,
		Link:     n.Link,
		ValidFor: humanDuration(n.ExpiresIn),
		Year:     now.Year(),
	})
	if err != nil {
		return "", "", fmt.Errorf("render password reset mail: %w", err)
	}
	return resetSubject, buf.String(), nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a limited time"
	case d%(24*time.Hour) == 0:
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "24 hours"
		}
		return fmt.Sprintf("%d days", days)
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}

// LogMailer is used when no SMTP host is configured. It records that a reset mail
// would have been sent without logging the link, which carries the token.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(_ context.Context, n model.ResetNotification) error {
	slog.Info("password reset mail not sent, smtp is not configured", "recipient", n.To)
	return nil
}
