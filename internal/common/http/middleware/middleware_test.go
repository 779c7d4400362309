package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appErr "coderunner/pkg/errors"
	"coderunner/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTraceContextMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(TraceContextMiddleware())
	var seen interface{}
	r.GET("/", func(c *gin.Context) {
		seen = c.Request.Context().Value(contextkey.TraceID)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(traceIDHeader, "trace-1")
	r.ServeHTTP(w, req)
	if seen != "trace-1" || w.Header().Get(traceIDHeader) != "trace-1" {
		t.Fatalf("trace id not propagated: ctx=%v header=%q", seen, w.Header().Get(traceIDHeader))
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("request id should be generated")
	}
}

func TestCORSEchoesOriginWithCredentials(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware(DefaultCORSConfig()))
	r.POST("/run", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/run", nil)
	req.Header.Set("Origin", "https://example.org")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "https://example.org" || w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("unexpected headers %v", w.Header())
	}
}

func TestCORSRejectsUnknownOriginPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware(CORSConfig{Enabled: true, AllowedOrigins: []string{"https://a.example"}}))
	r.POST("/run", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/run", nil)
	req.Header.Set("Origin", "https://b.example")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
}

type stubLimiter struct {
	err      error
	subjects []string
}

func (s *stubLimiter) Allow(ctx context.Context, subject string) error {
	s.subjects = append(s.subjects, subject)
	return s.err
}

func serveLimited(limiter Limiter) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(RateLimitMiddleware(limiter))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4000"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := &stubLimiter{}
	if w := serveLimited(limiter); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(limiter.subjects) != 1 || limiter.subjects[0] != "ip:192.0.2.7" {
		t.Fatalf("unexpected subjects %v", limiter.subjects)
	}

	limiter.err = appErr.New(appErr.TooManyRequests)
	if w := serveLimited(limiter); w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	limiter.err = errors.New("redis down")
	if w := serveLimited(limiter); w.Code != http.StatusOK {
		t.Fatalf("store failure should fail open, got %d", w.Code)
	}
	if w := serveLimited(nil); w.Code != http.StatusOK {
		t.Fatalf("nil limiter should pass, got %d", w.Code)
	}
}

func TestBodyLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimitMiddleware(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
