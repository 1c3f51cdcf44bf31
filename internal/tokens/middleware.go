package tokens

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/fellows/internal/apierr"
	"go.uber.org/zap"
)

const ctxPrincipal = "fellows.principal"

// authenticator is satisfied by *Store.
type authenticator interface {
	Authenticate(ctx context.Context, key string) (*Principal, error)
}

// RequireToken returns a Gin middleware that enforces a valid token in the
// Authorization header. Both "Token <key>" and "Bearer <key>" are accepted.
func RequireToken(store authenticator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := keyFromHeader(c.GetHeader("Authorization"))
		if !ok {
			abort(c, apierr.InvalidToken)
			return
		}

		p, err := store.Authenticate(c.Request.Context(), key)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidToken):
				abort(c, apierr.InvalidToken)
			case errors.Is(err, ErrAccountInactive):
				abort(c, apierr.PermissionDenied)
			case errors.Is(err, ErrTokenExpired):
				abort(c, apierr.TokenExpired)
			case errors.Is(err, ErrTokenIdle):
				abort(c, apierr.TokenExpired.WithMessage("Token has been idle for too long. Please login again."))
			default:
				logger.Error("authenticate token", zap.Error(err))
				abort(c, apierr.Unexpected)
			}
			return
		}

		c.Set(ctxPrincipal, p)
		c.Next()
	}
}

// PrincipalFromCtx returns the principal injected by RequireToken, or nil.
func PrincipalFromCtx(c *gin.Context) *Principal {
	if v, ok := c.Get(ctxPrincipal); ok {
		p, _ := v.(*Principal)
		return p
	}
	return nil
}

// SetPrincipal stores p on the context. Used by tests and alternate auth paths.
func SetPrincipal(c *gin.Context, p *Principal) {
	c.Set(ctxPrincipal, p)
}

func keyFromHeader(h string) (string, bool) {
	scheme, key, found := strings.Cut(strings.TrimSpace(h), " ")
	if !found {
		return "", false
	}
	if !strings.EqualFold(scheme, "Token") && !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	key = strings.TrimSpace(key)
	return key, key != ""
}

func abort(c *gin.Context, e *apierr.Error) {
	c.AbortWithStatusJSON(e.Status, e.Body())
}
