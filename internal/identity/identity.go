// Package identity verifies third-party sign-in credentials.
//
// It provides:
//   - Verifier        one implementation per provider (Google, Apple, WeChat, MF)
//   - Registry        selects the Verifier for a Provider
//   - AppleResolver   maps Apple subject ids to the email last shared with us
//
// Verifiers never persist state. Their only side effects are outbound calls
// to the provider, each bounded by a timeout.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider names a sign-in provider as sent by clients.
type Provider string

const (
	ProviderGoogle Provider = "GOOGLE"
	ProviderApple  Provider = "APPLE"
	ProviderWeChat Provider = "WECHAT"
	ProviderMF     Provider = "MF"
)

// ParseProvider upper-cases s and reports whether it names a known provider.
func ParseProvider(s string) (Provider, bool) {
	p := Provider(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case ProviderGoogle, ProviderApple, ProviderWeChat, ProviderMF:
		return p, true
	}
	return p, false
}

// Claim is what the client asserts about itself. Subject is only used by
// providers that may withhold the email (Apple).
type Claim struct {
	Email   string
	Subject string
}

// VerifiedIdentity is what a provider vouched for.
type VerifiedIdentity struct {
	Email      string
	Subject    string
	PictureURL string
}

// ErrClaimMismatch is returned when the credential is valid but does not
// belong to the claimed identity, or when the provider cannot vouch at all.
var ErrClaimMismatch = errors.New("identity does not match claim")

// ProviderError is a provider-specific verification failure, such as a
// malformed or expired credential or a failed code exchange.
type ProviderError struct {
	Provider Provider
	Reason   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Verifier validates a provider credential against a claim.
type Verifier interface {
	Verify(ctx context.Context, claim Claim, credential string) (*VerifiedIdentity, error)
}

// Registry selects the Verifier for a provider.
type Registry map[Provider]Verifier

// Verifier returns the verifier registered for p.
func (r Registry) Verifier(p Provider) (Verifier, error) {
	v, ok := r[p]
	if !ok {
		return nil, fmt.Errorf("no verifier registered for provider %q", p)
	}
	return v, nil
}

// Unimplemented never vouches for anyone. It stands in for providers whose
// sign-in is accepted by the API but not yet supported.
type Unimplemented struct{}

// Verify always returns ErrClaimMismatch.
func (Unimplemented) Verify(context.Context, Claim, string) (*VerifiedIdentity, error) {
	return nil, ErrClaimMismatch
}

// checkEmail compares the claimed and verified emails, ignoring the case of
// the domain part.
func checkEmail(claimed, verified string) error {
	if claimed == "" || !sameEmail(claimed, verified) {
		return ErrClaimMismatch
	}
	return nil
}

func sameEmail(a, b string) bool {
	ai, bi := strings.LastIndex(a, "@"), strings.LastIndex(b, "@")
	if ai < 0 || bi < 0 {
		return a == b
	}
	return a[:ai] == b[:bi] && strings.EqualFold(a[ai+1:], b[bi+1:])
}
