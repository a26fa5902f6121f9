package mailer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"go-rbac-auth/internal/model"
)

type captureDialer struct {
	messages []*gomail.Message
	err      error
}

func (d *captureDialer) DialAndSend(m ...*gomail.Message) error {
	d.messages = append(d.messages, m...)
	return d.err
}

func TestRenderPasswordReset(t *testing.T) {
	t.Parallel()

	subject, body, err := RenderPasswordReset(model.ResetNotification{
		To:        "ada@example.com",
		Name:      "Ada <script>",
		Link:      "https://app.example.com/reset?email=ada%40example.com&token=abc",
		ExpiresIn: 24 * time.Hour,
	}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Equal(t, "Reset your password", subject)
	require.Contains(t, body, "valid for 24 hours")
	require.Contains(t, body, "2026")
	require.Contains(t, body, "Ada &lt;script&gt;")
	require.Contains(t, body, `href="https://app.example.com/reset?email=ada%40example.com&amp;token=abc"`)
}

func TestHumanDuration(t *testing.T) {
	t.Parallel()

	require.Equal(t, "24 hours", humanDuration(24*time.Hour))
	require.Equal(t, "2 days", humanDuration(48*time.Hour))
	require.Equal(t, "6 hours", humanDuration(6*time.Hour))
	require.Equal(t, "90 minutes", humanDuration(90*time.Minute))
	require.Equal(t, "a limited time", humanDuration(0))
}

func TestSMTPMailerSend(t *testing.T) {
	t.Parallel()

	d := &captureDialer{}
	m := &SMTPMailer{from: "no-reply@example.com", dialer: d, now: time.Now}

	err := m.SendPasswordReset(context.Background(), model.ResetNotification{
		To: "ada@example.com", Name: "Ada", Link: "https://app.example.com/reset?token=abc", ExpiresIn: time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, d.messages, 1)

	msg := d.messages[0]
	require.Equal(t, []string{"ada@example.com"}, msg.GetHeader("To"))
	require.Equal(t, []string{"no-reply@example.com"}, msg.GetHeader("From"))

	var raw bytes.Buffer
	_, err = msg.WriteTo(&raw)
	require.NoError(t, err)
	require.Contains(t, raw.String(), "text/html")
}

func TestSMTPMailerErrors(t *testing.T) {
	t.Parallel()

	d := &captureDialer{err: errors.New("connection refused")}
	m := &SMTPMailer{from: "no-reply@example.com", dialer: d, now: time.Now}

	err := m.SendPasswordReset(context.Background(), model.ResetNotification{To: "ada@example.com"})
	require.ErrorContains(t, err, "connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.SendPasswordReset(ctx, model.ResetNotification{To: "ada@example.com"})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, d.messages, 1)
}
