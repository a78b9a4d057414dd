package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d-towns/matsource-sub000/internal/appointments"
	"github.com/d-towns/matsource-sub000/internal/calls"
	"github.com/d-towns/matsource-sub000/internal/conversation"
	"github.com/d-towns/matsource-sub000/internal/events"
	"github.com/d-towns/matsource-sub000/internal/genai"
	"github.com/d-towns/matsource-sub000/internal/leads"
	"github.com/d-towns/matsource-sub000/internal/lifecycle"
	"github.com/d-towns/matsource-sub000/internal/reminders"
	"github.com/d-towns/matsource-sub000/internal/telephony"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	reply    string
	analysis genai.CallAnalysis
}

func (f *fakeGenerator) Converse(context.Context, genai.LeadContext, []genai.Message) (string, error) {
	return f.reply, nil
}

func (f *fakeGenerator) ClassifySentiment(context.Context, string) (genai.Sentiment, error) {
	return genai.SentimentNeutral, nil
}

func (f *fakeGenerator) AnalyzeCall(context.Context, genai.LeadContext, []genai.Message) (genai.CallAnalysis, error) {
	return f.analysis, nil
}

func (f *fakeGenerator) ComposeReminder(context.Context, string, string, time.Time) (string, error) {
	return "reminder", nil
}

func (f *fakeGenerator) ComposeSMSReply(context.Context, genai.LeadContext, string) (string, error) {
	return "Happy to help!", nil
}

type fakeTransport struct {
	sid      string
	placeErr error
}

func (f *fakeTransport) PlaceCall(context.Context, telephony.PlaceCallRequest) (string, error) {
	if f.placeErr != nil {
		return "", f.placeErr
	}
	return f.sid, nil
}

func (f *fakeTransport) SendSMS(context.Context, string, string) (string, error) {
	return "SM123", nil
}

type env struct {
	router    *gin.Engine
	leads     *leads.MemoryStore
	attempts  *calls.MemoryStore
	appts     *appointments.MemoryStore
	contexts  *conversation.MemoryContextStore
	transport *fakeTransport
}

func newEnv(t *testing.T, gen *fakeGenerator, transport *fakeTransport) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	leadStore := leads.NewMemoryStore()
	attemptStore := calls.NewMemoryStore()
	apptStore := appointments.NewMemoryStore()
	contexts := conversation.NewMemoryContextStore()
	eventSvc := events.NewService(events.NewMemoryRepo())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	booker := appointments.NewBooker(apptStore, true)
	booker.SetClock(func() time.Time { return testNow })

	links := conversation.NewLinks("https://voice.example.com")
	orch := conversation.NewOrchestrator(attemptStore, leadStore, contexts, gen, links, log, conversation.OrchestratorConfig{
		BusinessName: "Bright Smiles Dental",
	})
	orch.SetClock(func() time.Time { return testNow })

	rec := lifecycle.NewReconciler(attemptStore, leadStore, booker, contexts, gen, transport, orch, links, eventSvc, log, lifecycle.ReconcilerConfig{})
	rec.SetClock(func() time.Time { return testNow })

	sms := reminders.NewSMSHandler(leadStore, apptStore, gen, eventSvc, log, "Bright Smiles Dental")
	sms.SetClock(func() time.Time { return testNow })

	h := Handlers{
		Leads:        leadStore,
		Attempts:     attemptStore,
		Appointments: apptStore,
		Booker:       booker,
		Orchestrator: orch,
		Reconciler:   rec,
		SMS:          sms,
		Events:       eventSvc,
	}

	r := gin.New()
	r.POST("/calls/twiml/:id", h.VoiceTwiML)
	r.POST("/calls/respond/:id", h.VoiceRespond)
	r.POST("/calls/no-input/:id", h.VoiceNoInput)
	r.POST("/calls/partial/:id", h.VoicePartial)
	r.POST("/calls/barge-in/:id", h.VoiceBargeIn)
	r.POST("/calls/status/:id", h.VoiceStatus)
	r.POST("/sms/webhook", h.InboundSMS)
	r.POST("/v1/leads", h.CreateLead)
	r.GET("/v1/leads/:id", h.GetLead)
	r.POST("/v1/calls", h.StartCall)
	r.POST("/v1/appointments", h.CreateAppointment)

	return &env{router: r, leads: leadStore, attempts: attemptStore, appts: apptStore, contexts: contexts, transport: transport}
}

func (e *env) seedLeadAndAttempt(t *testing.T) (leads.Lead, calls.CallAttempt) {
	t.Helper()
	lead, err := e.leads.Create(context.Background(), leads.Lead{Name: "Jane Doe", Phone: "+15551234567"})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	attempt, err := e.attempts.Create(context.Background(), calls.CallAttempt{LeadID: lead.ID})
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	return lead, attempt
}

func postForm(r http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVoiceTwiMLGreets(t *testing.T) {
	e := newEnv(t, &fakeGenerator{}, &fakeTransport{sid: "CA1"})
	_, attempt := e.seedLeadAndAttempt(t)

	w := postForm(e.router, "/calls/twiml/"+attempt.ID, url.Values{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<Say>Hi Jane!") {
		t.Fatalf("expected greeting, got %s", body)
	}
	if !strings.Contains(body, `action="https://voice.example.com/calls/respond/`+attempt.ID+`"`) {
		t.Fatalf("expected gather action, got %s", body)
	}
}

func TestVoiceTwiMLUnknownAttemptApologizes(t *testing.T) {
	e := newEnv(t, &fakeGenerator{}, &fakeTransport{sid: "CA1"})

	w := postForm(e.router, "/calls/twiml/nope", url.Values{})
	if w.Code != http.StatusOK {
		t.Fatalf("webhooks must answer 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "something went wrong") || !strings.Contains(body, "<Hangup>") {
		t.Fatalf("expected apology and hangup, got %s", body)
	}
}

func TestVoiceRespondWithoutSpeechFallsBackToSilence(t *testing.T) {
	e := newEnv(t, &fakeGenerator{reply: "unused"}, &fakeTransport{sid: "CA1"})
	_, attempt := e.seedLeadAndAttempt(t)

	w := postForm(e.router, "/calls/respond/"+attempt.ID, url.Values{"CallSid": {"CA1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Are you still there?") {
		t.Fatalf("expected silence re-prompt, got %s", w.Body.String())
	}
}

func TestVoiceStatusFinalizesOnce(t *testing.T) {
	e := newEnv(t, &fakeGenerator{}, &fakeTransport{sid: "CA1"})
	lead, attempt := e.seedLeadAndAttempt(t)

	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"no-answer"}}
	for i := 0; i < 2; i++ {
		if w := postForm(e.router, "/calls/status/"+attempt.ID, form); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}

	got, _ := e.attempts.GetByID(context.Background(), attempt.ID)
	if got.Status != calls.CallStatusNoAnswer {
		t.Fatalf("expected no_answer, got %s", got.Status)
	}
	gotLead, _ := e.leads.GetByID(context.Background(), lead.ID)
	if gotLead.Status != leads.LeadStatusNoAnswer {
		t.Fatalf("expected lead no_answer, got %s", gotLead.Status)
	}
}

func TestVoiceStatusBadPayloadStill200(t *testing.T) {
	e := newEnv(t, &fakeGenerator{}, &fakeTransport{sid: "CA1"})
	_, attempt := e.seedLeadAndAttempt(t)

	w := postForm(e.router, "/calls/status/"+attempt.ID, url.Values{"CallSid": {"CA1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unparseable status, got %d", w.Code)
	}
}

func TestInboundSMSRepliesWithMessage(t *testing.T) {
	e := newEnv(t, &fakeGenerator{}, &fakeTransport{sid: "CA1"})
	lead, _ := e.seedLeadAndAttempt(t)
	if _, err := e.appts.Create(context.Background(), appointments.Appointment{LeadID: lead.ID, ScheduledTime: testNow.Add(24 * time.Hour)}); err != nil {
		t.Fatalf("create appointment: %v", err)
	}

	w := postForm(e.router, "/sms/webhook", url.Values{"From": {"+15551234567"}, "Body": {"yes"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<Message>") || !strings.Contains(w.Body.String(), "confirmed") {
		t.Fatalf("expected confirmation message, got %s", w.Body.String())
	}
}

func TestCreateLeadNormalizesPhone(t *testing.T) {
	e := newEnv(t, &fakeGenerator{}, &fakeTransport{sid: "CA1"})

	w := postJSON(e.router, "/v1/leads", `{"name":"Jane Doe","phone":"(212) 555-0123","source":"website"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var lead leads.Lead
	if err := json.Unmarshal(w.Body.Bytes(), &lead); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if lead.Phone != "+12125550123" {
		t.Fatalf("expected normalized phone, got %q", lead.Phone)
	}

	// Same number formatted differently is a duplicate.
	w = postJSON(e.router, "/v1/leads", `{"name":"Jane Again","phone":"+1 212 555 0123"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestCreateLeadRejectsBadPhone(t *testing.T) {
	e := newEnv(t, &fakeGenerator{}, &fakeTransport{sid: "CA1"})

	w := postJSON(e.router, "/v1/leads", `{"name":"Jane","phone":"not-a-number"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStartCall(t *testing.T) {
	e := newEnv(t, &fakeGenerator{}, &fakeTransport{sid: "CA999"})
	lead, _ := e.seedLeadAndAttempt(t)

	w := postJSON(e.router, "/v1/calls", `{"lead_id":"`+lead.ID+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var attempt calls.CallAttempt
	if err := json.Unmarshal(w.Body.Bytes(), &attempt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if attempt.ProviderCallID != "CA999" {
		t.Fatalf("expected provider call id, got %q", attempt.ProviderCallID)
	}
}

func TestStartCallTransportFailure(t *testing.T) {
	transport := &fakeTransport{placeErr: &telephony.TransportError{Op: "place_call", StatusCode: 400, ProviderCode: 21211, Message: "invalid", Err: errors.New("invalid")}}
	e := newEnv(t, &fakeGenerator{}, transport)
	lead, _ := e.seedLeadAndAttempt(t)

	w := postJSON(e.router, "/v1/calls", `{"lead_id":"`+lead.ID+`"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestStartCallUnknownLead(t *testing.T) {
	e := newEnv(t, &fakeGenerator{}, &fakeTransport{sid: "CA1"})

	w := postJSON(e.router, "/v1/calls", `{"lead_id":"nope"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCreateAppointmentConflict(t *testing.T) {
	e := newEnv(t, &fakeGenerator{}, &fakeTransport{sid: "CA1"})
	lead, _ := e.seedLeadAndAttempt(t)

	body := `{"lead_id":"` + lead.ID + `","scheduled_time":"2026-03-03T14:00:00Z"}`
	if w := postJSON(e.router, "/v1/appointments", body); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if w := postJSON(e.router, "/v1/appointments", body); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for overlapping slot, got %d", w.Code)
	}
}

func TestCreateAppointmentPastTime(t *testing.T) {
	e := newEnv(t, &fakeGenerator{}, &fakeTransport{sid: "CA1"})
	lead, _ := e.seedLeadAndAttempt(t)

	w := postJSON(e.router, "/v1/appointments", `{"lead_id":"`+lead.ID+`","scheduled_time":"2020-01-01T10:00:00Z"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for past time, got %d", w.Code)
	}
}
