// Package email delivers the manager notices sent on registration.
package email

import (
	"context"
	"fmt"
	"strings"
)

// EmailSender delivers transactional email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// RegistrationNotice renders the message managers receive when a fellow
// registers and waits for approval.
func RegistrationNotice(name, address, campus string, batch int) (subject, body string) {
	subject = "New registration pending approval: " + name
	body = fmt.Sprintf(
		"A new fellow has registered and is waiting for approval.\n\nName:   %s\nEmail:  %s\nCampus: %s\nBatch:  %d\n\nApprove with: fellowsctl approve %s\n",
		name, address, campus, batch, address,
	)
	return subject, body
}

// headerValue strips line breaks so user-supplied text cannot add headers.
func headerValue(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// compose builds an RFC 5322 plain-text message.
func compose(from, to, subject, body string) []byte {
	return []byte(strings.Join([]string{
		"From: " + headerValue(from),
		"To: " + headerValue(to),
		"Subject: " + headerValue(subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n"))
}
