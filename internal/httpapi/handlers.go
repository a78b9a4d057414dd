package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d-towns/matsource-sub000/internal/appointments"
	"github.com/d-towns/matsource-sub000/internal/calls"
	"github.com/d-towns/matsource-sub000/internal/conversation"
	"github.com/d-towns/matsource-sub000/internal/events"
	"github.com/d-towns/matsource-sub000/internal/leads"
	"github.com/d-towns/matsource-sub000/internal/lifecycle"
	"github.com/d-towns/matsource-sub000/internal/reminders"
	"github.com/d-towns/matsource-sub000/internal/telephony"
	"github.com/d-towns/matsource-sub000/pkg/logger"
	"github.com/d-towns/matsource-sub000/pkg/phone"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON
// (or TwiML on provider webhooks).

type Handlers struct {
	Leads        leads.Store
	Attempts     calls.Store
	Appointments appointments.Store
	Booker       *appointments.Booker
	Orchestrator *conversation.Orchestrator
	Reconciler   *lifecycle.Reconciler
	SMS          *reminders.SMSHandler
	Events       *events.Service
}

// apologyDoc is spoken when a webhook references a call attempt we don't
// know. The provider expects TwiML on these routes; a 404 would make it
// play its own error message to the callee.
var apologyDoc = telephony.SayAndHangup("I'm sorry, something went wrong on our end. We'll follow up with you shortly. Goodbye!")

// --- Voice webhooks ---

// VoiceTwiML serves the initial call instructions.
func (h Handlers) VoiceTwiML(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.Orchestrator.BeginCall(c.Request.Context(), id)
	if err != nil {
		logger.FromGin(c).Error("begin call failed", "call_attempt_id", id, "error", err)
		doc = apologyDoc
	}
	h.renderVoice(c, doc)
}

// VoiceRespond handles a completed caller utterance from a Gather.
func (h Handlers) VoiceRespond(c *gin.Context) {
	id := c.Param("id")
	speech, err := telephony.ParseSpeechResult(c.Request)
	if err != nil {
		// No usable speech in the payload; treat it as a missed turn.
		h.VoiceNoInput(c)
		return
	}

	doc, err := h.Orchestrator.RespondToTurn(c.Request.Context(), id, speech.SpeechResult)
	if err != nil {
		logger.FromGin(c).Error("respond to turn failed", "call_attempt_id", id, "error", err)
		doc = apologyDoc
	}
	h.renderVoice(c, doc)
}

// VoiceNoInput handles the no-input fallback redirect.
func (h Handlers) VoiceNoInput(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.Orchestrator.RespondToSilence(c.Request.Context(), id)
	if err != nil {
		logger.FromGin(c).Error("respond to silence failed", "call_attempt_id", id, "error", err)
		doc = apologyDoc
	}
	h.renderVoice(c, doc)
}

// VoicePartial acknowledges interim speech results. They are best-effort
// telemetry only; no conversation state changes here.
func (h Handlers) VoicePartial(c *gin.Context) {
	if partial, err := telephony.ParsePartialSpeechResult(c.Request); err == nil && partial.StableSpeech != "" {
		logger.FromGin(c).Debug("partial speech", "call_attempt_id", c.Param("id"), "stable", partial.StableSpeech)
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(telephony.RenderEmptyResponse()))
}

// VoiceBargeIn handles speech that interrupted the assistant mid-utterance.
func (h Handlers) VoiceBargeIn(c *gin.Context) {
	id := c.Param("id")
	speech, err := telephony.ParseSpeechResult(c.Request)
	if err != nil {
		c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(telephony.RenderEmptyResponse()))
		return
	}

	doc, err := h.Orchestrator.RespondToInterruption(c.Request.Context(), id, speech.SpeechResult)
	if err != nil {
		logger.FromGin(c).Error("respond to interruption failed", "call_attempt_id", id, "error", err)
		doc = apologyDoc
	}
	h.renderVoice(c, doc)
}

// VoiceStatus receives call status callbacks. It always answers 200: a
// non-2xx would make the provider retry an event we may have already
// applied, and there is nothing a retry could fix.
func (h Handlers) VoiceStatus(c *gin.Context) {
	id := c.Param("id")
	ev, err := telephony.ParseStatusEvent(c.Request)
	if err != nil {
		logger.FromGin(c).Warn("unparseable status callback", "call_attempt_id", id, "error", err)
		c.Status(http.StatusOK)
		return
	}
	if err := h.Reconciler.OnStatusEvent(c.Request.Context(), id, ev); err != nil {
		logger.FromGin(c).Error("status event failed", "call_attempt_id", id, "status", ev.CallStatus, "error", err)
	}
	c.Status(http.StatusOK)
}

// --- Messaging webhook ---

// InboundSMS answers incoming text messages.
func (h Handlers) InboundSMS(c *gin.Context) {
	msg, err := telephony.ParseInboundSMS(c.Request)
	if err != nil {
		c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(telephony.RenderEmptyResponse()))
		return
	}

	reply := h.SMS.Handle(c.Request.Context(), msg.From, msg.Body)
	out, err := telephony.RenderMessagingResponse(reply)
	if err != nil {
		logger.FromGin(c).Error("render messaging response failed", "error", err)
		out = telephony.RenderEmptyResponse()
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(out))
}

func (h Handlers) renderVoice(c *gin.Context, doc telephony.PromptDocument) {
	out, err := telephony.RenderTwiML(doc)
	if err != nil {
		logger.FromGin(c).Error("render twiml failed", "error", err)
		out, _ = telephony.RenderTwiML(apologyDoc)
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(out))
}

// --- Leads ---

type createLeadRequest struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
	Source string `json:"source"`
	Notes  string `json:"notes"`
}

func (h Handlers) CreateLead(c *gin.Context) {
	var req createLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Name == "" || req.Phone == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "name, phone required"})
		return
	}
	normalized, err := phone.NormalizeE164(req.Phone)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid phone number"})
		return
	}

	lead, err := h.Leads.Create(c.Request.Context(), leads.Lead{
		Name:   req.Name,
		Phone:  normalized,
		Email:  req.Email,
		Source: req.Source,
		Notes:  req.Notes,
	})
	if err != nil {
		if errors.Is(err, leads.ErrDuplicatePhone) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "phone already registered"})
			return
		}
		if errors.Is(err, leads.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.FromGin(c).Error("create lead failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, lead)
}

func (h Handlers) GetLead(c *gin.Context) {
	lead, err := h.Leads.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lead not found"})
			return
		}
		logger.FromGin(c).Error("get lead failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, lead)
}

func (h Handlers) ListLeads(c *gin.Context) {
	status := leads.LeadStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}
	list, err := h.Leads.List(c.Request.Context(), status, intQuery(c, "limit"), intQuery(c, "offset"))
	if err != nil {
		logger.FromGin(c).Error("list leads failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": list})
}

func (h Handlers) LeadEvents(c *gin.Context) {
	list, err := h.Events.ListByLead(c.Request.Context(), c.Param("id"), intQuery(c, "limit"))
	if err != nil {
		logger.FromGin(c).Error("list events failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": list})
}

// --- Calls ---

type startCallRequest struct {
	LeadID string `json:"lead_id"`
}

func (h Handlers) StartCall(c *gin.Context) {
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.LeadID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "lead_id required"})
		return
	}

	attempt, err := h.Reconciler.InitiateCall(c.Request.Context(), req.LeadID)
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lead not found"})
			return
		}
		var tErr *telephony.TransportError
		if errors.As(err, &tErr) {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "call placement failed", "provider_code": tErr.ProviderCode})
			return
		}
		logger.FromGin(c).Error("start call failed", "lead_id", req.LeadID, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "start failed"})
		return
	}
	c.JSON(http.StatusCreated, attempt)
}

func (h Handlers) ListLeadCalls(c *gin.Context) {
	list, err := h.Attempts.ListByLead(c.Request.Context(), c.Param("id"), intQuery(c, "limit"), intQuery(c, "offset"))
	if err != nil {
		logger.FromGin(c).Error("list calls failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_attempts": list})
}

// --- Appointments ---

type createAppointmentRequest struct {
	LeadID          string `json:"lead_id"`
	CallAttemptID   string `json:"call_attempt_id"`
	ScheduledTime   string `json:"scheduled_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
}

func (h Handlers) CreateAppointment(c *gin.Context) {
	var req createAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	scheduled, err := time.Parse(time.RFC3339, req.ScheduledTime)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "scheduled_time must be RFC3339"})
		return
	}

	appt, err := h.Booker.Book(c.Request.Context(), appointments.Appointment{
		LeadID:          req.LeadID,
		CallAttemptID:   req.CallAttemptID,
		ScheduledTime:   scheduled,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
	})
	if err != nil {
		if errors.Is(err, appointments.ErrConflict) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, appointments.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.FromGin(c).Error("create appointment failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, appt)
}

func (h Handlers) ListLeadAppointments(c *gin.Context) {
	list, err := h.Appointments.ListByLead(c.Request.Context(), c.Param("id"))
	if err != nil {
		logger.FromGin(c).Error("list appointments failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": list})
}

func intQuery(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
