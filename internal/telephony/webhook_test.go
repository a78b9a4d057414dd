package telephony

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func postForm(t *testing.T, path string, form url.Values) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseSpeechResult(t *testing.T) {
	r := postForm(t, "/calls/respond/ca-1", url.Values{
		"CallSid":      {"CA123"},
		"SpeechResult": {"yes I'm interested, how about Tuesday at 2pm"},
		"Confidence":   {"0.83"},
		"CallStatus":   {"in-progress"},
	})
	got, err := ParseSpeechResult(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.CallSid != "CA123" || got.CallStatus != "in-progress" {
		t.Fatalf("unexpected parse: %+v", got)
	}
	if got.Confidence != 0.83 {
		t.Fatalf("unexpected confidence: %v", got.Confidence)
	}
	if !strings.Contains(got.SpeechResult, "Tuesday") {
		t.Fatalf("unexpected speech: %q", got.SpeechResult)
	}
}

func TestParseSpeechResultRejectsEmptySpeech(t *testing.T) {
	r := postForm(t, "/calls/respond/ca-1", url.Values{"CallSid": {"CA123"}})
	if _, err := ParseSpeechResult(r); err != ErrInvalidPayload {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestParseStatusEvent(t *testing.T) {
	r := postForm(t, "/calls/status/ca-1", url.Values{
		"CallSid":      {"CA123"},
		"CallStatus":   {"completed"},
		"CallDuration": {"95"},
	})
	got, err := ParseStatusEvent(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.CallStatus != "completed" || got.DurationSeconds != 95 {
		t.Fatalf("unexpected parse: %+v", got)
	}
}

func TestParseStatusEventRequiresStatus(t *testing.T) {
	r := postForm(t, "/calls/status/ca-1", url.Values{"CallSid": {"CA123"}})
	if _, err := ParseStatusEvent(r); err != ErrInvalidPayload {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestParseInboundSMS(t *testing.T) {
	r := postForm(t, "/sms/webhook", url.Values{
		"MessageSid": {"SM1"},
		"From":       {"+15551234567"},
		"To":         {"+15550001111"},
		"Body":       {" STOP "},
	})
	got, err := ParseInboundSMS(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.From != "+15551234567" || got.Body != "STOP" {
		t.Fatalf("unexpected parse: %+v", got)
	}
}

func TestParseInboundSMSRequiresFrom(t *testing.T) {
	r := postForm(t, "/sms/webhook", url.Values{"Body": {"hello"}})
	if _, err := ParseInboundSMS(r); err != ErrInvalidPayload {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}
