package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/fellows/internal/apierr"
	"github.com/jmerrifield20/fellows/internal/tokens"
	"github.com/stretchr/testify/require"
)

const testToken = "0123456789abcdef0123456789abcdef01234567"

// fakeAuth accepts testToken for account 1 and rejects everything else.
func fakeAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Token "+testToken {
			c.AbortWithStatusJSON(apierr.InvalidToken.Status, apierr.InvalidToken.Body())
			return
		}
		tokens.SetPrincipal(c, &tokens.Principal{AccountID: 1, Email: "ana@example.org"})
		c.Next()
	}
}

type registrar interface {
	Register(rg *gin.RouterGroup)
}

func newRouter(h registrar) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r.Group("/api"))
	return r
}

type call struct {
	method string
	path   string
	body   string
	authed bool
}

func do(t *testing.T, r http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authed {
		req.Header.Set("Authorization", "Token "+testToken)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeObject(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func decodeArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
