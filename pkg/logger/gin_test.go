package logger

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMiddlewarePropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Middleware(l))
	r.GET("/ping", func(c *gin.Context) {
		FromGin(c).Info("handler ran")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(headerRequestID, "rid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(headerRequestID); got != "rid-1" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	out := buf.String()
	if strings.Count(out, `"request_id":"rid-1"`) < 2 {
		t.Fatalf("expected handler and summary lines to share the request id:\n%s", out)
	}
	if !strings.Contains(out, `"path":"/ping"`) || !strings.Contains(out, `"client_ip"`) {
		t.Fatalf("summary line missing request attributes:\n%s", out)
	}
}

func TestMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if w.Header().Get(headerRequestID) == "" {
		t.Fatal("expected a generated request id on the response")
	}
}

func TestFromGinWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if FromGin(c) == nil {
		t.Fatal("expected default logger fallback")
	}
}
