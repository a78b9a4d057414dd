package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/d-towns/matsource-sub000/internal/appointments"
	"github.com/d-towns/matsource-sub000/internal/calls"
	"github.com/d-towns/matsource-sub000/internal/conversation"
	"github.com/d-towns/matsource-sub000/internal/events"
	"github.com/d-towns/matsource-sub000/internal/genai"
	"github.com/d-towns/matsource-sub000/internal/leads"
	"github.com/d-towns/matsource-sub000/internal/telephony"
)

// MapProviderStatus translates a provider call status into the internal
// status machine and reports whether it is terminal.
//
// busy and no-answer collapse into no_answer (the lead was unreachable,
// worth retrying later); failed and canceled collapse into failed.
// Unknown non-terminal statuses (queued, initiated, ringing) map to
// pending.
func MapProviderStatus(provider string) (calls.CallStatus, bool) {
	switch provider {
	case "completed":
		return calls.CallStatusCompleted, true
	case "busy", "no-answer":
		return calls.CallStatusNoAnswer, true
	case "failed", "canceled":
		return calls.CallStatusFailed, true
	case "in-progress", "answered":
		return calls.CallStatusInProgress, false
	default:
		return calls.CallStatusPending, false
	}
}

// Reconciler owns the call attempt lifecycle: placing outbound calls and
// settling attempts when the provider reports a terminal status.
//
// Invariants:
// - Finalization side effects (analysis, appointment booking, lead status)
//   run at most once per attempt, no matter how often the provider
//   re-delivers a terminal status event.
// - A generation failure during analysis never un-finalizes the attempt;
//   the result falls back to undetermined.
type Reconciler struct {
	attempts  calls.Store
	leads     leads.Store
	booker    *appointments.Booker
	contexts  conversation.ContextStore
	gen       genai.Generator
	transport telephony.Transport
	orch      *conversation.Orchestrator
	links     conversation.Links
	events    *events.Service
	log       *slog.Logger
	clock     func() time.Time

	dialTimeoutSeconds int
}

type ReconcilerConfig struct {
	// DialTimeoutSeconds is how long the provider lets the phone ring
	// before reporting no-answer.
	DialTimeoutSeconds int
}

func NewReconciler(
	attempts calls.Store,
	leadStore leads.Store,
	booker *appointments.Booker,
	contexts conversation.ContextStore,
	gen genai.Generator,
	transport telephony.Transport,
	orch *conversation.Orchestrator,
	links conversation.Links,
	eventLog *events.Service,
	log *slog.Logger,
	cfg ReconcilerConfig,
) *Reconciler {
	if cfg.DialTimeoutSeconds <= 0 {
		cfg.DialTimeoutSeconds = 30
	}
	return &Reconciler{
		attempts:           attempts,
		leads:              leadStore,
		booker:             booker,
		contexts:           contexts,
		gen:                gen,
		transport:          transport,
		orch:               orch,
		links:              links,
		events:             eventLog,
		log:                log,
		clock:              time.Now,
		dialTimeoutSeconds: cfg.DialTimeoutSeconds,
	}
}

// SetClock overrides the time source for tests.
func (r *Reconciler) SetClock(clock func() time.Time) { r.clock = clock }

// InitiateCall creates a call attempt for the lead and places the outbound
// call. On transport failure the attempt is finalized as failed and the
// lead reverts to pending, so it stays eligible for a retry.
func (r *Reconciler) InitiateCall(ctx context.Context, leadID string) (calls.CallAttempt, error) {
	lead, err := r.leads.GetByID(ctx, leadID)
	if err != nil {
		return calls.CallAttempt{}, err
	}

	attempt, err := r.attempts.Create(ctx, calls.CallAttempt{LeadID: lead.ID})
	if err != nil {
		return calls.CallAttempt{}, err
	}
	if err := r.leads.UpdateStatus(ctx, lead.ID, leads.LeadStatusInProgress); err != nil {
		return calls.CallAttempt{}, err
	}
	if _, err := r.orch.Seed(ctx, attempt, lead); err != nil {
		r.log.Warn("seed conversation failed", "call_attempt_id", attempt.ID, "error", err)
	}

	sid, err := r.transport.PlaceCall(ctx, telephony.PlaceCallRequest{
		To:                lead.Phone,
		TwiMLURL:          r.links.TwiML(attempt.ID),
		StatusCallbackURL: r.links.Status(attempt.ID),
		TimeoutSeconds:    r.dialTimeoutSeconds,
	})
	if err != nil {
		if _, ferr := r.attempts.Finalize(ctx, attempt.ID, calls.FinalizeParams{Status: calls.CallStatusFailed, EndTime: r.clock().UTC()}); ferr != nil {
			r.log.Error("finalize failed attempt", "call_attempt_id", attempt.ID, "error", ferr)
		}
		if nerr := r.attempts.AppendNote(ctx, attempt.ID, fmt.Sprintf("call placement failed: %v", err)); nerr != nil {
			r.log.Warn("append placement note failed", "call_attempt_id", attempt.ID, "error", nerr)
		}
		if lerr := r.leads.UpdateStatus(ctx, lead.ID, leads.LeadStatusPending); lerr != nil {
			r.log.Error("revert lead status", "lead_id", lead.ID, "error", lerr)
		}
		return calls.CallAttempt{}, err
	}

	if err := r.attempts.SetProviderCallID(ctx, attempt.ID, sid); err != nil {
		r.log.Error("record provider call id", "call_attempt_id", attempt.ID, "error", err)
	}
	attempt.ProviderCallID = sid
	attempt.Status = calls.CallStatusPending

	if err := r.events.LogCallInitiated(ctx, lead.ID, attempt.ID, sid); err != nil {
		r.log.Warn("event log failed", "call_attempt_id", attempt.ID, "error", err)
	}
	return attempt, nil
}

// OnStatusEvent settles the attempt for a provider status callback. It is
// safe to call repeatedly with the same event: only the first terminal
// delivery runs the finalization pipeline.
func (r *Reconciler) OnStatusEvent(ctx context.Context, callAttemptID string, ev telephony.StatusEvent) error {
	attempt, err := r.attempts.GetByID(ctx, callAttemptID)
	if err != nil {
		return err
	}

	status, terminal := MapProviderStatus(ev.CallStatus)
	if !terminal {
		if status == calls.CallStatusInProgress {
			return r.attempts.MarkInProgress(ctx, attempt.ID)
		}
		return nil
	}

	applied, err := r.attempts.Finalize(ctx, attempt.ID, calls.FinalizeParams{
		Status:          status,
		EndTime:         r.clock().UTC(),
		DurationSeconds: ev.DurationSeconds,
	})
	if err != nil {
		return err
	}
	if !applied {
		// Duplicate terminal delivery; everything already ran.
		return nil
	}

	result := r.settle(ctx, attempt, status)

	if err := r.events.LogCallFinalized(ctx, attempt.LeadID, attempt.ID, string(status), string(result)); err != nil {
		r.log.Warn("event log failed", "call_attempt_id", attempt.ID, "error", err)
	}
	if err := r.contexts.Discard(ctx, attempt.ID); err != nil {
		r.log.Warn("discard conversation failed", "call_attempt_id", attempt.ID, "error", err)
	}
	return nil
}

// settle runs the once-per-attempt post-call pipeline: transcript capture,
// analysis, appointment booking and the lead status transition. It never
// returns an error; partial failures degrade to less specific outcomes.
func (r *Reconciler) settle(ctx context.Context, attempt calls.CallAttempt, status calls.CallStatus) calls.CallResult {
	result := calls.CallResultUndetermined
	transcript := ""
	leadStatus := leads.LeadStatusPending

	switch status {
	case calls.CallStatusNoAnswer:
		leadStatus = leads.LeadStatusNoAnswer
	case calls.CallStatusFailed:
		leadStatus = leads.LeadStatusFailed
	case calls.CallStatusCompleted:
		result, transcript, leadStatus = r.analyze(ctx, attempt)
	}

	if err := r.attempts.SetOutcome(ctx, attempt.ID, result, transcript); err != nil {
		r.log.Error("record call outcome", "call_attempt_id", attempt.ID, "error", err)
	}
	if err := r.leads.UpdateStatus(ctx, attempt.LeadID, leadStatus); err != nil {
		r.log.Error("update lead status", "lead_id", attempt.LeadID, "error", err)
	}
	return result
}

func (r *Reconciler) analyze(ctx context.Context, attempt calls.CallAttempt) (calls.CallResult, string, leads.LeadStatus) {
	cctx, err := r.contexts.Load(ctx, attempt.ID)
	if err != nil {
		if !errors.Is(err, conversation.ErrContextNotFound) {
			r.log.Warn("load conversation failed", "call_attempt_id", attempt.ID, "error", err)
		}
		return calls.CallResultUndetermined, "", leads.LeadStatusPending
	}
	transcript := cctx.Transcript()
	if !cctx.HasUserTurns() {
		// The callee never spoke; nothing to analyze.
		return calls.CallResultUndetermined, transcript, leads.LeadStatusPending
	}

	analysis, err := r.gen.AnalyzeCall(ctx, leadContext(cctx), messages(cctx))
	if err != nil {
		r.log.Warn("call analysis failed", "call_attempt_id", attempt.ID, "error", err)
		return calls.CallResultUndetermined, transcript, leads.LeadStatusPending
	}

	switch {
	case analysis.AppointmentScheduled:
		if r.book(ctx, attempt, analysis) {
			return calls.CallResultAppointmentSet, transcript, leads.LeadStatusAppointmentSet
		}
		// Booking fell through (bad datetime, past time, conflict);
		// keep the lead warm for a follow-up call.
		return calls.CallResultCallBackLater, transcript, leads.LeadStatusPending
	case analysis.CallbackRequested:
		return calls.CallResultCallBackLater, transcript, leads.LeadStatusPending
	case hasIntent(analysis, "wrong_number"):
		return calls.CallResultWrongNumber, transcript, leads.LeadStatusFailed
	case analysis.Sentiment == genai.SentimentNegative:
		return calls.CallResultNotInterested, transcript, leads.LeadStatusPending
	default:
		return calls.CallResultUndetermined, transcript, leads.LeadStatusPending
	}
}

func (r *Reconciler) book(ctx context.Context, attempt calls.CallAttempt, analysis genai.CallAnalysis) bool {
	scheduled, err := time.Parse(time.RFC3339, analysis.ScheduledDateTime)
	if err != nil {
		r.log.Warn("unparseable appointment time from analysis",
			"call_attempt_id", attempt.ID, "scheduled_datetime", analysis.ScheduledDateTime, "error", err)
		if nerr := r.attempts.AppendNote(ctx, attempt.ID, "analysis reported an appointment but the time could not be parsed"); nerr != nil {
			r.log.Warn("append booking note failed", "call_attempt_id", attempt.ID, "error", nerr)
		}
		return false
	}

	appt, err := r.booker.Book(ctx, appointments.Appointment{
		LeadID:        attempt.LeadID,
		CallAttemptID: attempt.ID,
		ScheduledTime: scheduled,
	})
	if err != nil {
		r.log.Warn("booking from analysis failed", "call_attempt_id", attempt.ID, "error", err)
		if nerr := r.attempts.AppendNote(ctx, attempt.ID, fmt.Sprintf("appointment booking failed: %v", err)); nerr != nil {
			r.log.Warn("append booking note failed", "call_attempt_id", attempt.ID, "error", nerr)
		}
		return false
	}

	if err := r.events.LogAppointmentBooked(ctx, attempt.LeadID, attempt.ID, appt.ID, appt.ScheduledTime); err != nil {
		r.log.Warn("event log failed", "call_attempt_id", attempt.ID, "error", err)
	}
	return true
}

func hasIntent(analysis genai.CallAnalysis, intent string) bool {
	for _, i := range analysis.Intents {
		if i == intent {
			return true
		}
	}
	return false
}

func leadContext(c *conversation.Context) genai.LeadContext {
	return genai.LeadContext{
		Name:         c.LeadName,
		Phone:        c.LeadPhone,
		Source:       c.LeadSource,
		Notes:        c.LeadNotes,
		BusinessName: c.BusinessName,
	}
}

func messages(c *conversation.Context) []genai.Message {
	out := make([]genai.Message, 0, len(c.Turns))
	for _, t := range c.Turns {
		role := genai.RoleUser
		if t.Role == conversation.TurnRoleAssistant {
			role = genai.RoleAssistant
		}
		out = append(out, genai.Message{Role: role, Content: t.Content})
	}
	return out
}
