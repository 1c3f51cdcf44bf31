package identity

import (
	"context"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GoogleIssuers are the accepted "iss" values on Google ID tokens.
var GoogleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

type googleClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// GoogleVerifier validates Google ID tokens against Google's published keys.
type GoogleVerifier struct {
	keyfunc   jwt.Keyfunc
	clientIDs []string
	now       func() time.Time
}

// NewGoogleVerifier creates a GoogleVerifier. clientIDs lists every OAuth
// client (Android, iOS, web) whose tokens are accepted.
func NewGoogleVerifier(keyfunc jwt.Keyfunc, clientIDs []string) *GoogleVerifier {
	return &GoogleVerifier{keyfunc: keyfunc, clientIDs: clientIDs, now: time.Now}
}

// Verify validates the ID token and checks it belongs to claim.Email.
func (g *GoogleVerifier) Verify(_ context.Context, claim Claim, credential string) (*VerifiedIdentity, error) {
	claims := &googleClaims{}
	_, err := jwt.ParseWithClaims(credential, claims, g.keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderGoogle, Reason: "invalid id token", Err: err}
	}

	if !slices.Contains(GoogleIssuers, claims.Issuer) {
		return nil, &ProviderError{Provider: ProviderGoogle, Reason: "wrong issuer"}
	}
	if !g.audienceAllowed(claims.Audience) {
		return nil, &ProviderError{Provider: ProviderGoogle, Reason: "token was issued to another client"}
	}
	if claims.Email == "" {
		return nil, &ProviderError{Provider: ProviderGoogle, Reason: "token carries no email"}
	}

	if err := checkEmail(claim.Email, claims.Email); err != nil {
		return nil, err
	}
	return &VerifiedIdentity{
		Email:      claims.Email,
		Subject:    claims.Subject,
		PictureURL: claims.Picture,
	}, nil
}

func (g *GoogleVerifier) audienceAllowed(aud jwt.ClaimStrings) bool {
	for _, a := range aud {
		if slices.Contains(g.clientIDs, a) {
			return true
		}
	}
	return false
}
