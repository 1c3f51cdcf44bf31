package identity

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Apple endpoints and constants.
const (
	AppleIssuer   = "https://appleid.apple.com"
	AppleTokenURL = "https://appleid.apple.com/auth/token"

	appleSecretTTL = 5 * time.Minute
)

// AppleConfig holds the Sign in with Apple credentials.
type AppleConfig struct {
	TeamID        string
	KeyID         string
	ClientID      string
	PrivateKeyPEM []byte
	TokenURL      string        // defaults to AppleTokenURL
	Timeout       time.Duration // bounds the code exchange, default 10s
}

type appleClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// SubjectLookup returns the one account email an Apple subject is linked to,
// or ErrUnresolved.
type SubjectLookup interface {
	EmailForSubject(ctx context.Context, subject string) (string, error)
}

// AppleVerifier exchanges an authorization code at Apple's token endpoint and
// verifies the returned ID token against Apple's published keys.
type AppleVerifier struct {
	cfg      AppleConfig
	key      *ecdsa.PrivateKey
	keyfunc  jwt.Keyfunc
	subjects SubjectLookup
	client   *http.Client
	now      func() time.Time
}

// NewAppleVerifier creates an AppleVerifier. keyfunc resolves Apple's ID
// token signing keys; subjects vouches for ID tokens that carry no email;
// client performs the code exchange.
func NewAppleVerifier(cfg AppleConfig, keyfunc jwt.Keyfunc, subjects SubjectLookup, client *http.Client) (*AppleVerifier, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse apple private key: %w", err)
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = AppleTokenURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &AppleVerifier{cfg: cfg, key: key, keyfunc: keyfunc, subjects: subjects, client: client, now: time.Now}, nil
}

// clientSecret builds the ES256 client assertion Apple requires in place of
// a static secret. It is rebuilt for every exchange.
func (a *AppleVerifier) clientSecret() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.cfg.TeamID,
		Subject:   a.cfg.ClientID,
		Audience:  jwt.ClaimStrings{AppleIssuer},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(appleSecretTTL)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = a.cfg.KeyID
	signed, err := tok.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign client secret: %w", err)
	}
	return signed, nil
}

// Verify exchanges the authorization code and checks the resulting identity
// against claim. When Apple returns an email it must match claim.Email.
// Otherwise the verified subject must already be linked to claim.Email and
// the returned identity carries no email.
func (a *AppleVerifier) Verify(ctx context.Context, claim Claim, code string) (*VerifiedIdentity, error) {
	secret, err := a.clientSecret()
	if err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: secret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  a.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderApple, Reason: "authorization code exchange failed", Err: err}
	}
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return nil, &ProviderError{Provider: ProviderApple, Reason: "token response carries no id_token"}
	}

	claims := &appleClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, a.keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(AppleIssuer),
		jwt.WithAudience(a.cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderApple, Reason: "invalid id token", Err: err}
	}
	if claims.Email == "" && claims.Subject == "" {
		return nil, &ProviderError{Provider: ProviderApple, Reason: "id token carries neither email nor subject"}
	}

	if claim.Subject != "" && claims.Subject != "" && claim.Subject != claims.Subject {
		return nil, ErrClaimMismatch
	}
	if claims.Email != "" {
		if err := checkEmail(claim.Email, claims.Email); err != nil {
			return nil, err
		}
	} else if err := a.checkSubject(ctx, claim.Email, claims.Subject); err != nil {
		return nil, err
	}

	return &VerifiedIdentity{Email: claims.Email, Subject: claims.Subject}, nil
}

// checkSubject requires subject to be linked to exactly the claimed email.
func (a *AppleVerifier) checkSubject(ctx context.Context, claimed, subject string) error {
	if a.subjects == nil || subject == "" {
		return ErrClaimMismatch
	}
	linked, err := a.subjects.EmailForSubject(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrUnresolved) {
			return ErrClaimMismatch
		}
		return fmt.Errorf("lookup apple subject: %w", err)
	}
	return checkEmail(claimed, linked)
}
