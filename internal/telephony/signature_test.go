package telephony

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func signatureRouter(enabled bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireSignature("token", "https://voice.example.com", enabled))
	r.POST("/sms/webhook", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestRequireSignatureAcceptsValid(t *testing.T) {
	form := url.Values{"From": {"+15551234567"}, "Body": {"STOP"}}
	sig := ComputeSignature("token", "https://voice.example.com/sms/webhook", form)

	req := httptest.NewRequest(http.MethodPost, "/sms/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(headerTwilioSignature, sig)

	w := httptest.NewRecorder()
	signatureRouter(true).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireSignatureRejectsInvalid(t *testing.T) {
	form := url.Values{"From": {"+15551234567"}}
	req := httptest.NewRequest(http.MethodPost, "/sms/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(headerTwilioSignature, "bogus")

	w := httptest.NewRecorder()
	signatureRouter(true).ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRequireSignatureDisabledPassesThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/sms/webhook", strings.NewReader("From=%2B15551234567"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	signatureRouter(false).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
