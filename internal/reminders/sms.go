package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/d-towns/matsource-sub000/internal/appointments"
	"github.com/d-towns/matsource-sub000/internal/events"
	"github.com/d-towns/matsource-sub000/internal/genai"
	"github.com/d-towns/matsource-sub000/internal/leads"
	"github.com/d-towns/matsource-sub000/pkg/phone"
)

// maxSMSReplyLen truncates model-generated replies to a safe SMS length.
const maxSMSReplyLen = 320

const (
	replyUnknownSender = "We couldn't find your record. Please contact customer service to manage your appointment."
	replyNoAppointment = "You have no upcoming appointments with us. Reply HELP for assistance."
	replyHelp          = "Reply YES to confirm your appointment, STOP to cancel, or RESCHEDULE to pick a new time."
	replyReschedule    = "To reschedule, please call our office and we'll find a time that works for you."
	replyFallback      = "Thanks for your message! Someone from our team will follow up with you shortly."
)

// SMSHandler processes inbound text messages. It always produces a reply
// body and never returns an error: a broken model or store degrades to a
// static response, not a dropped webhook.
type SMSHandler struct {
	leads  leads.Store
	appts  appointments.Store
	gen    genai.Generator
	events *events.Service
	log    *slog.Logger
	clock  func() time.Time

	businessName string
}

func NewSMSHandler(leadStore leads.Store, appts appointments.Store, gen genai.Generator, eventLog *events.Service, log *slog.Logger, businessName string) *SMSHandler {
	if businessName == "" {
		businessName = "our office"
	}
	return &SMSHandler{
		leads:        leadStore,
		appts:        appts,
		gen:          gen,
		events:       eventLog,
		log:          log,
		clock:        time.Now,
		businessName: businessName,
	}
}

// SetClock overrides the time source for tests.
func (h *SMSHandler) SetClock(clock func() time.Time) { h.clock = clock }

// Handle returns the reply body for an inbound message.
func (h *SMSHandler) Handle(ctx context.Context, from, body string) string {
	number := from
	if normalized, err := phone.NormalizeE164(from); err == nil {
		number = normalized
	}

	lead, err := h.leads.GetByPhone(ctx, number)
	if err != nil {
		if !errors.Is(err, leads.ErrNotFound) {
			h.log.Error("lookup lead by phone", "error", err)
		}
		return replyUnknownSender
	}

	reply, action := h.dispatch(ctx, lead, body)
	if err := h.events.LogInboundSMS(ctx, lead.ID, action); err != nil {
		h.log.Warn("event log failed", "lead_id", lead.ID, "error", err)
	}
	return reply
}

func (h *SMSHandler) dispatch(ctx context.Context, lead leads.Lead, body string) (reply, action string) {
	upper := strings.ToUpper(strings.TrimSpace(body))

	switch {
	case upper == "HELP":
		return replyHelp, "help"

	case upper == "STOP" || upper == "CANCEL" || upper == "UNSUBSCRIBE":
		return h.cancel(ctx, lead)

	case upper == "CONFIRM" || containsWord(upper, "YES"):
		return h.confirm(ctx, lead)

	case containsWord(upper, "RESCHEDULE") || containsWord(upper, "CHANGE"):
		return replyReschedule, "reschedule"

	default:
		return h.freeform(ctx, lead, body), "freeform"
	}
}

func (h *SMSHandler) cancel(ctx context.Context, lead leads.Lead) (string, string) {
	appt, err := h.appts.NearestUpcoming(ctx, lead.ID, h.clock().UTC())
	if err != nil {
		if !errors.Is(err, appointments.ErrNotFound) {
			h.log.Error("lookup upcoming appointment", "lead_id", lead.ID, "error", err)
		}
		return replyNoAppointment, "cancel_no_appointment"
	}

	if err := h.appts.UpdateStatus(ctx, appt.ID, appointments.StatusCancelled); err != nil {
		h.log.Error("cancel appointment", "appointment_id", appt.ID, "error", err)
		return replyFallback, "cancel_failed"
	}
	if err := h.appts.AppendNote(ctx, appt.ID, "cancelled by SMS"); err != nil {
		h.log.Warn("append cancel note failed", "appointment_id", appt.ID, "error", err)
	}
	return fmt.Sprintf("Your appointment on %s has been cancelled. Text us any time to book a new one.",
		appt.ScheduledTime.Format("Monday, January 2 at 3:04 PM")), "cancel"
}

func (h *SMSHandler) confirm(ctx context.Context, lead leads.Lead) (string, string) {
	appt, err := h.appts.NearestUpcoming(ctx, lead.ID, h.clock().UTC())
	if err != nil {
		if !errors.Is(err, appointments.ErrNotFound) {
			h.log.Error("lookup upcoming appointment", "lead_id", lead.ID, "error", err)
		}
		return replyNoAppointment, "confirm_no_appointment"
	}

	if err := h.appts.UpdateStatus(ctx, appt.ID, appointments.StatusConfirmed); err != nil {
		h.log.Error("confirm appointment", "appointment_id", appt.ID, "error", err)
		return replyFallback, "confirm_failed"
	}
	return fmt.Sprintf("You're confirmed for %s. See you then!",
		appt.ScheduledTime.Format("Monday, January 2 at 3:04 PM")), "confirm"
}

func (h *SMSHandler) freeform(ctx context.Context, lead leads.Lead, body string) string {
	reply, err := h.gen.ComposeSMSReply(ctx, genai.LeadContext{
		Name:         lead.Name,
		Phone:        lead.Phone,
		Source:       lead.Source,
		Notes:        lead.Notes,
		BusinessName: h.businessName,
	}, body)
	if err != nil {
		h.log.Warn("sms reply generation failed", "lead_id", lead.ID, "error", err)
		return replyFallback
	}
	if len(reply) > maxSMSReplyLen {
		reply = reply[:maxSMSReplyLen]
	}
	return reply
}

func containsWord(upper, word string) bool {
	for _, f := range strings.Fields(upper) {
		if strings.Trim(f, ".,!?") == word {
			return true
		}
	}
	return false
}
