package identity

import (
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"go.uber.org/zap"
)

// Published key sets.
const (
	GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	AppleJWKSURL  = "https://appleid.apple.com/auth/keys"
)

// NewRemoteKeySet fetches the JWKS at url and keeps it fresh in the
// background. Unknown key ids trigger a rate-limited refresh, so provider key
// rotation is picked up without a restart. Call EndBackground on shutdown.
func NewRemoteKeySet(url string, client *http.Client, logger *zap.Logger) (*keyfunc.JWKS, error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		Client: client,
		RefreshErrorHandler: func(err error) {
			logger.Warn("jwks background refresh failed", zap.String("url", url), zap.Error(err))
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("load jwks from %s: %w", url, err)
	}
	return jwks, nil
}
