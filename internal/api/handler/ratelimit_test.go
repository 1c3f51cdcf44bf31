package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/fellows/internal/api/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_ThrottlesBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handler.RateLimiter(ctx, 1, 2))
	r.GET("/api/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := do(t, r, call{method: http.MethodGet, path: "/api/"})
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}

	w := do(t, r, call{method: http.MethodGet, path: "/api/"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	body := decodeObject(t, w)
	assert.Equal(t, "failure", body["type"])
	assert.Equal(t, "Request was throttled.", body["message"])
}
