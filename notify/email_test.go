package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"argus/core"
)

type capturedMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newTestEmailHandler(config EmailConfig, captured *[]capturedMail, sendErr error) *EmailHandler {
	h := NewEmailHandler(config, zap.NewNop().Sugar())
	h.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*captured = append(*captured, capturedMail{addr: addr, auth: a, from: from, to: to, msg: string(msg)})
		return sendErr
	}
	return h
}

func TestEmailSend(t *testing.T) {
	var sent []capturedMail
	h := newTestEmailHandler(EmailConfig{
		SMTPHost:    "smtp.example.com",
		SMTPPort:    587,
		Username:    "argus",
		Password:    "secret",
		FromAddress: "argus@example.com",
		Recipients: map[string][]string{
			"default": {"secops@example.com"},
		},
	}, &sent, nil)

	require.NoError(t, h.Send(context.Background(), consoleAlert()))
	require.Len(t, sent, 1)

	mail := sent[0]
	assert.Equal(t, "smtp.example.com:587", mail.addr)
	assert.NotNil(t, mail.auth)
	assert.Equal(t, "argus@example.com", mail.from)
	assert.Equal(t, []string{"secops@example.com"}, mail.to)
	assert.Contains(t, mail.msg, "Subject: [ARGUS-ALERT-HIGH] Destructive command executed")
	assert.Contains(t, mail.msg, "Rule: dangerous_commands")
	assert.Contains(t, mail.msg, "action_details.command: rm -rf /")
}

func TestEmailSeverityRouting(t *testing.T) {
	var sent []capturedMail
	h := newTestEmailHandler(EmailConfig{
		SMTPHost:    "smtp.example.com",
		SMTPPort:    587,
		FromAddress: "argus@example.com",
		Recipients: map[string][]string{
			"CRITICAL": {"oncall@example.com"},
			"default":  {"secops@example.com"},
		},
	}, &sent, nil)

	critical := consoleAlert()
	critical.Severity = core.SeverityCritical
	require.NoError(t, h.Send(context.Background(), critical))

	// HIGH has no dedicated list and falls back to default.
	require.NoError(t, h.Send(context.Background(), consoleAlert()))

	require.Len(t, sent, 2)
	assert.Equal(t, []string{"oncall@example.com"}, sent[0].to)
	assert.Equal(t, []string{"secops@example.com"}, sent[1].to)
}

func TestEmailNoRecipientsIsNoop(t *testing.T) {
	var sent []capturedMail
	h := newTestEmailHandler(EmailConfig{
		SMTPHost:    "smtp.example.com",
		FromAddress: "argus@example.com",
	}, &sent, nil)

	require.NoError(t, h.Send(context.Background(), consoleAlert()))
	assert.Empty(t, sent)
}

func TestEmailNoAuthWithoutUsername(t *testing.T) {
	var sent []capturedMail
	h := newTestEmailHandler(EmailConfig{
		SMTPHost:    "smtp.example.com",
		SMTPPort:    25,
		FromAddress: "argus@example.com",
		Recipients:  map[string][]string{"default": {"secops@example.com"}},
	}, &sent, nil)

	require.NoError(t, h.Send(context.Background(), consoleAlert()))
	require.Len(t, sent, 1)
	assert.Nil(t, sent[0].auth)
}

func TestEmailTransportFailure(t *testing.T) {
	var sent []capturedMail
	h := newTestEmailHandler(EmailConfig{
		SMTPHost:    "smtp.example.com",
		FromAddress: "argus@example.com",
		Recipients:  map[string][]string{"default": {"secops@example.com"}},
	}, &sent, errors.New("connection refused"))

	assert.Error(t, h.Send(context.Background(), consoleAlert()))
}
