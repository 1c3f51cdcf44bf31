package identity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrUnresolved is returned when an Apple sign-in cannot be tied to exactly
// one account.
var ErrUnresolved = errors.New("apple identity does not resolve to a single account")

// AppleLink records the email an Apple subject last shared with us.
type AppleLink struct {
	Subject string `json:"subject" db:"subject"`
	Email   string `json:"email"   db:"email"`
}

// linkRepo is the storage interface consumed by AppleResolver.
type linkRepo interface {
	UpsertLink(ctx context.Context, link AppleLink) error
	EmailsForSubject(ctx context.Context, subject string) ([]string, error)
}

// AppleResolver maps Apple subjects to account emails. Apple shares the
// user's email on the first sign-in only; later sign-ins carry just the
// subject, so the pairing is remembered.
type AppleResolver struct {
	repo   linkRepo
	logger *zap.Logger
}

var _ SubjectLookup = (*AppleResolver)(nil)

// NewAppleResolver creates an AppleResolver.
func NewAppleResolver(repo linkRepo, logger *zap.Logger) *AppleResolver {
	return &AppleResolver{repo: repo, logger: logger}
}

// Resolve returns the email to sign in with. A supplied email wins. Otherwise
// the subject must be linked to exactly one account that has a profile.
func (r *AppleResolver) Resolve(ctx context.Context, email, subject string) (string, error) {
	if email != "" {
		return email, nil
	}
	return r.EmailForSubject(ctx, subject)
}

// EmailForSubject returns the single profiled account email linked to subject.
func (r *AppleResolver) EmailForSubject(ctx context.Context, subject string) (string, error) {
	if subject == "" {
		return "", ErrUnresolved
	}
	emails, err := r.repo.EmailsForSubject(ctx, subject)
	if err != nil {
		return "", fmt.Errorf("lookup apple subject: %w", err)
	}
	if len(emails) != 1 {
		r.logger.Info("apple subject unresolved", zap.Int("candidates", len(emails)))
		return "", ErrUnresolved
	}
	return emails[0], nil
}

// Link remembers that subject shared email. No-op unless both are set.
func (r *AppleResolver) Link(ctx context.Context, subject, email string) error {
	if subject == "" || email == "" {
		return nil
	}
	if err := r.repo.UpsertLink(ctx, AppleLink{Subject: subject, Email: email}); err != nil {
		return fmt.Errorf("link apple subject: %w", err)
	}
	return nil
}
