// Package handler exposes the JSON API over Gin.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/fellows/internal/apierr"
	"github.com/jmerrifield20/fellows/internal/reporting"
	"github.com/jmerrifield20/fellows/internal/tokens"
	"go.uber.org/zap"
)

// base carries what every handler needs to render failures.
type base struct {
	reporter reporting.Reporter
	logger   *zap.Logger
}

func newBase(reporter reporting.Reporter, logger *zap.Logger) base {
	if reporter == nil {
		reporter = reporting.Nop{}
	}
	return base{reporter: reporter, logger: logger}
}

// fail renders err. Functional and validation errors keep their status;
// anything else is logged, reported and answered with 500.
func (b base) fail(c *gin.Context, op string, err error) {
	var (
		ve *apierr.ValidationError
		ae *apierr.Error
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(ve.Status(), ve.Body())
	case errors.As(err, &ae):
		c.JSON(ae.Status, ae.Body())
	default:
		b.logger.Error(op, zap.Error(err), zap.String("path", c.Request.URL.Path))
		b.reporter.Capture(c, op, err)
		c.JSON(apierr.Unexpected.Status, apierr.Unexpected.Body())
	}
}

// bind decodes the JSON body into dst, rendering a 400 on failure.
func (b base) bind(c *gin.Context, op string, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		b.fail(c, op, decodeError(err))
		return false
	}
	return true
}

// decodeError maps a body decoding failure to a field-level 400.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		field, _, _ := strings.Cut(typeErr.Field, ".")
		return apierr.Field(field, fmt.Sprintf("Incorrect type. Expected %s, received %s.", typeErr.Type, typeErr.Value))
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.NonField("Request body is too large.")
	}
	return apierr.NonField("Malformed JSON body.")
}

// success renders {"type":"success", "message": msg} plus extra fields.
func success(c *gin.Context, status int, msg string, extra gin.H) {
	body := gin.H{"type": "success"}
	if msg != "" {
		body["message"] = msg
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

// principal returns the caller set by the token middleware. Routes that use
// it are always mounted behind that middleware.
func principal(c *gin.Context) (*tokens.Principal, bool) {
	p := tokens.PrincipalFromCtx(c)
	if p == nil {
		c.AbortWithStatusJSON(apierr.InvalidToken.Status, apierr.InvalidToken.Body())
		return nil, false
	}
	return p, true
}
