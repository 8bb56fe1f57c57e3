package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"judgehost/internal/common/http/middleware"
	"judgehost/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTraceContextPropagatesIDs(t *testing.T) {
	r := gin.New()
	r.Use(middleware.TraceContextMiddleware())
	var trace, sub interface{}
	r.GET("/s/:id", func(c *gin.Context) {
		trace = c.Request.Context().Value(contextkey.TraceID)
		sub = c.Request.Context().Value(contextkey.SubmissionID)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/s/abc", nil)
	req.Header.Set("X-Trace-Id", "trace-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if trace != "trace-1" || sub != "abc" {
		t.Fatalf("unexpected context values trace=%v submission=%v", trace, sub)
	}
	if w.Header().Get("X-Trace-Id") != "trace-1" || w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("ids not echoed: %v", w.Header())
	}
}

func TestTokenAuth(t *testing.T) {
	r := gin.New()
	r.Use(middleware.TokenAuthMiddleware("secret"))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		name string
		req  func() *http.Request
		want int
	}{
		{"header", func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			req.Header.Set("X-Sandbox-Token", "secret")
			return req
		}, http.StatusNoContent},
		{"query", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/x?token=secret", nil)
		}, http.StatusNoContent},
		{"form", func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(url.Values{"token": {"secret"}}.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			return req
		}, http.StatusNoContent},
		{"wrong", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/x?token=nope", nil)
		}, http.StatusUnauthorized},
		{"missing", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/x", nil)
		}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, tc.req())
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
	}
}
