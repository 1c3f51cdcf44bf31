package email

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRegistrationNotice(t *testing.T) {
	subject, body := RegistrationNotice("Ana Lima", "ana@example.org", "Pune", 2019)

	assert.Equal(t, "New registration pending approval: Ana Lima", subject)
	assert.Contains(t, body, "Email:  ana@example.org")
	assert.Contains(t, body, "Batch:  2019")
	assert.Contains(t, body, "fellowsctl approve ana@example.org")
}

func TestCompose_StripsHeaderBreaks(t *testing.T) {
	msg := string(compose("noreply@fellows.local", "m@example.org", "Hi\r\nBcc: evil@example.org", "body"))

	head, body, found := strings.Cut(msg, "\r\n\r\n")
	require.True(t, found)
	assert.Equal(t, "body", body)
	assert.NotContains(t, head, "\r\nBcc:")
	assert.Contains(t, head, "Subject: Hi  Bcc: evil@example.org")
}

func TestNoopSender_Logs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewNoopSender(zap.New(core))

	require.NoError(t, s.Send(context.Background(), "m@example.org", "subject", "body"))

	entries := logs.All()
	require.Len(t, entries, 1, "body stays below info level")
	assert.Equal(t, "m@example.org", entries[0].ContextMap()["to"])
	assert.NotContains(t, entries[0].ContextMap(), "body")
	assert.EqualValues(t, 1, s.Dropped())
}

func TestSMTPSender_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSMTPSender("localhost", 2525, "", "", "noreply@fellows.local").Send(ctx, "m@example.org", "s", "b")

	assert.ErrorIs(t, err, context.Canceled)
}
