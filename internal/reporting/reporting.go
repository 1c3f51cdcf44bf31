// Package reporting sends unexpected server errors and panics to Sentry.
package reporting

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/fellows/internal/apierr"
	"go.uber.org/zap"
)

// Reporter records unexpected errors.
type Reporter interface {
	Capture(c *gin.Context, handler string, err error)
	Flush(timeout time.Duration) bool
}

// Config configures the Sentry client. An empty DSN disables reporting.
type Config struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
	Debug       bool
	// BeforeSend may inspect or drop events before they leave the process.
	BeforeSend func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event
}

// New returns a Sentry-backed Reporter, or a Nop reporter when cfg.DSN is empty.
func New(cfg Config) (Reporter, error) {
	if cfg.DSN == "" {
		return Nop{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       cfg.SampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
		BeforeSend:       cfg.BeforeSend,
	})
	if err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}
	return &Sentry{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Sentry reports to a Sentry project.
type Sentry struct {
	hub *sentry.Hub
}

// Capture sends err tagged with the handler name and request details.
func (s *Sentry) Capture(c *gin.Context, handler string, err error) {
	if err == nil {
		return
	}
	hub := s.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("handler", handler)
		if c != nil && c.Request != nil {
			scope.SetRequest(c.Request)
			scope.SetTag("route", c.FullPath())
			if reqID := c.GetHeader("X-Request-ID"); reqID != "" {
				scope.SetTag("request_id", reqID)
			}
		}
		hub.CaptureException(err)
	})
}

// Flush waits for queued events.
func (s *Sentry) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}

func (s *Sentry) recoverPanic(c *gin.Context, v any) {
	hub := s.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetRequest(c.Request)
		scope.SetTag("route", c.FullPath())
		hub.RecoverWithContext(c.Request.Context(), v)
	})
}

// Nop discards everything.
type Nop struct{}

// Capture does nothing.
func (Nop) Capture(*gin.Context, string, error) {}

// Flush reports success immediately.
func (Nop) Flush(time.Duration) bool { return true }

// Recovery returns a Gin middleware that turns panics into a 500 Unexpected
// response, logging them and forwarding them to a Sentry reporter.
func Recovery(r Reporter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			logger.Error("panic serving request",
				zap.Any("panic", v),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Stack("stack"),
			)
			if s, ok := r.(*Sentry); ok {
				s.recoverPanic(c, v)
			}
			c.AbortWithStatusJSON(apierr.Unexpected.Status, apierr.Unexpected.Body())
		}()
		c.Next()
	}
}
