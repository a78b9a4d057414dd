package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d-towns/matsource-sub000/internal/calls"
	"github.com/d-towns/matsource-sub000/internal/genai"
	"github.com/d-towns/matsource-sub000/internal/leads"
	"github.com/d-towns/matsource-sub000/internal/telephony"
	"github.com/d-towns/matsource-sub000/pkg/utils"
)

const (
	// fallbackUtterance keeps the call alive when the language model is
	// unavailable; the attempt is never failed for a generation error.
	fallbackUtterance = "I'm sorry, I'm having a little trouble understanding right now. Could you say that again?"

	silenceReprompt = "Are you still there? I didn't catch anything just now."

	silenceGoodbye = "It seems now isn't a good time. We'll reach out again soon. Goodbye!"

	endedGoodbye = "Thanks for your time. Goodbye!"

	// maxMissedTurns is how many consecutive no-input timeouts are
	// tolerated before the call is wound down.
	maxMissedTurns = 2

	turnLockTTL = 30 * time.Second
)

// LockFunc acquires a short-lived mutual-exclusion lock for a key. It
// returns a release func and whether the lock was obtained. Locking is
// best-effort: the orchestrator proceeds even when acquisition fails.
type LockFunc func(ctx context.Context, key string) (release func(context.Context) error, acquired bool, err error)

// RedisTurnLock builds a LockFunc over redis so overlapping webhooks for
// the same call attempt serialize across instances.
func RedisTurnLock(rdb *redis.Client) LockFunc {
	return func(ctx context.Context, key string) (func(context.Context) error, bool, error) {
		return utils.AcquireLock(ctx, rdb, key, turnLockTTL)
	}
}

// Orchestrator drives one conversation turn at a time. Each webhook maps to
// exactly one method, and every method returns the prompt document the
// telephony layer should render back to the provider.
type Orchestrator struct {
	attempts calls.Store
	leads    leads.Store
	contexts ContextStore
	gen      genai.Generator
	links    Links
	log      *slog.Logger
	lock     LockFunc

	businessName  string
	speechTimeout int
	clock         func() time.Time
}

type OrchestratorConfig struct {
	BusinessName         string
	SpeechTimeoutSeconds int
}

func NewOrchestrator(attempts calls.Store, leadStore leads.Store, contexts ContextStore, gen genai.Generator, links Links, log *slog.Logger, cfg OrchestratorConfig) *Orchestrator {
	if cfg.SpeechTimeoutSeconds <= 0 {
		cfg.SpeechTimeoutSeconds = 5
	}
	if cfg.BusinessName == "" {
		cfg.BusinessName = "our office"
	}
	return &Orchestrator{
		attempts:      attempts,
		leads:         leadStore,
		contexts:      contexts,
		gen:           gen,
		links:         links,
		log:           log,
		businessName:  cfg.BusinessName,
		speechTimeout: cfg.SpeechTimeoutSeconds,
		clock:         time.Now,
	}
}

// SetLock installs an optional cross-instance turn lock.
func (o *Orchestrator) SetLock(lock LockFunc) { o.lock = lock }

// SetClock overrides the time source for tests.
func (o *Orchestrator) SetClock(clock func() time.Time) { o.clock = clock }

// BeginCall produces the opening prompt when the provider fetches the
// initial call instructions. The greeting is deterministic so a slow or
// failing model can never delay call pickup.
func (o *Orchestrator) BeginCall(ctx context.Context, callAttemptID string) (telephony.PromptDocument, error) {
	cctx, err := o.loadOrSeed(ctx, callAttemptID)
	if err != nil {
		return telephony.PromptDocument{}, err
	}

	greeting := o.greeting(cctx)
	cctx.AddTurn(Turn{Role: TurnRoleAssistant, Content: greeting, Timestamp: o.clock()})
	if err := o.contexts.Save(ctx, cctx); err != nil {
		return telephony.PromptDocument{}, err
	}
	return telephony.SayAndListen(greeting, o.listen(callAttemptID)), nil
}

// RespondToTurn handles a completed caller utterance.
func (o *Orchestrator) RespondToTurn(ctx context.Context, callAttemptID, speech string) (telephony.PromptDocument, error) {
	return o.respond(ctx, callAttemptID, speech, false)
}

// RespondToInterruption handles speech that arrived while the assistant was
// still talking. The turn is processed exactly like a completed utterance;
// the barge-in only tags the stored turn for later analysis.
func (o *Orchestrator) RespondToInterruption(ctx context.Context, callAttemptID, speech string) (telephony.PromptDocument, error) {
	return o.respond(ctx, callAttemptID, speech, true)
}

func (o *Orchestrator) respond(ctx context.Context, callAttemptID, speech string, bargeIn bool) (telephony.PromptDocument, error) {
	release := o.acquire(ctx, callAttemptID)
	defer release()

	attempt, err := o.attempts.GetByID(ctx, callAttemptID)
	if err != nil {
		return telephony.PromptDocument{}, err
	}
	if attempt.Status.Terminal() {
		// The call already reached a terminal state; say goodbye
		// without touching the stored conversation.
		return telephony.SayAndHangup(endedGoodbye), nil
	}

	cctx, err := o.loadOrSeed(ctx, callAttemptID)
	if err != nil {
		return telephony.PromptDocument{}, err
	}

	sentiment, err := o.gen.ClassifySentiment(ctx, speech)
	if err != nil {
		o.log.Warn("sentiment classification failed", "call_attempt_id", callAttemptID, "error", err)
		sentiment = genai.SentimentNeutral
	}

	cctx.AddTurn(Turn{
		Role:      TurnRoleUser,
		Content:   speech,
		Timestamp: o.clock(),
		Sentiment: string(sentiment),
		BargeIn:   bargeIn,
	})

	reply, err := o.gen.Converse(ctx, o.leadContext(cctx), o.messages(cctx))
	if err != nil {
		o.log.Warn("reply generation failed, using fallback", "call_attempt_id", callAttemptID, "error", err)
		reply = fallbackUtterance
	}

	cctx.AddTurn(Turn{Role: TurnRoleAssistant, Content: reply, Timestamp: o.clock()})
	cctx.MissedTurns = 0

	// The reconciler may have finalized the attempt while the model call
	// was in flight; its context is already discarded and saving now would
	// resurrect it for a dead call.
	attempt, err = o.attempts.GetByID(ctx, callAttemptID)
	if err != nil {
		return telephony.PromptDocument{}, err
	}
	if attempt.Status.Terminal() {
		return telephony.SayAndHangup(endedGoodbye), nil
	}

	if err := o.contexts.Save(ctx, cctx); err != nil {
		return telephony.PromptDocument{}, err
	}
	return telephony.SayAndListen(reply, o.listen(callAttemptID)), nil
}

// RespondToSilence handles a no-input timeout. The first miss re-prompts;
// a second consecutive miss winds the call down.
func (o *Orchestrator) RespondToSilence(ctx context.Context, callAttemptID string) (telephony.PromptDocument, error) {
	release := o.acquire(ctx, callAttemptID)
	defer release()

	attempt, err := o.attempts.GetByID(ctx, callAttemptID)
	if err != nil {
		return telephony.PromptDocument{}, err
	}
	if attempt.Status.Terminal() {
		return telephony.SayAndHangup(endedGoodbye), nil
	}

	cctx, err := o.loadOrSeed(ctx, callAttemptID)
	if err != nil {
		return telephony.PromptDocument{}, err
	}

	cctx.MissedTurns++
	if cctx.MissedTurns < maxMissedTurns {
		cctx.AddTurn(Turn{Role: TurnRoleAssistant, Content: silenceReprompt, Timestamp: o.clock()})
		if err := o.contexts.Save(ctx, cctx); err != nil {
			return telephony.PromptDocument{}, err
		}
		return telephony.SayAndListen(silenceReprompt, o.listen(callAttemptID)), nil
	}

	cctx.AddTurn(Turn{Role: TurnRoleAssistant, Content: silenceGoodbye, Timestamp: o.clock()})
	if err := o.contexts.Save(ctx, cctx); err != nil {
		return telephony.PromptDocument{}, err
	}
	if err := o.attempts.AppendNote(ctx, callAttemptID, "ended call after repeated silence"); err != nil {
		o.log.Warn("append silence note failed", "call_attempt_id", callAttemptID, "error", err)
	}
	return telephony.SayAndHangup(silenceGoodbye), nil
}

// Seed creates and stores a fresh conversation context for an attempt. The
// call initiator uses it so the first webhook never races lead lookup.
func (o *Orchestrator) Seed(ctx context.Context, attempt calls.CallAttempt, lead leads.Lead) (*Context, error) {
	cctx := &Context{
		CallAttemptID: attempt.ID,
		LeadID:        lead.ID,
		LeadName:      lead.Name,
		LeadPhone:     lead.Phone,
		LeadSource:    lead.Source,
		LeadNotes:     lead.Notes,
		BusinessName:  o.businessName,
		StartedAt:     o.clock(),
	}
	if err := o.contexts.Save(ctx, cctx); err != nil {
		return nil, err
	}
	return cctx, nil
}

func (o *Orchestrator) loadOrSeed(ctx context.Context, callAttemptID string) (*Context, error) {
	cctx, err := o.contexts.Load(ctx, callAttemptID)
	if err == nil {
		return cctx, nil
	}
	if !errors.Is(err, ErrContextNotFound) {
		return nil, err
	}

	attempt, err := o.attempts.GetByID(ctx, callAttemptID)
	if err != nil {
		return nil, err
	}
	lead, err := o.leads.GetByID(ctx, attempt.LeadID)
	if err != nil {
		return nil, fmt.Errorf("load lead for attempt %s: %w", callAttemptID, err)
	}
	return o.Seed(ctx, attempt, lead)
}

func (o *Orchestrator) acquire(ctx context.Context, callAttemptID string) func() {
	if o.lock == nil {
		return func() {}
	}
	release, acquired, err := o.lock(ctx, "conversation:turn:"+callAttemptID)
	if err != nil || !acquired {
		if err != nil {
			o.log.Warn("turn lock unavailable", "call_attempt_id", callAttemptID, "error", err)
		}
		return func() {}
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			o.log.Warn("turn lock release failed", "call_attempt_id", callAttemptID, "error", err)
		}
	}
}

func (o *Orchestrator) greeting(c *Context) string {
	name := firstName(c.LeadName)
	if name == "" {
		return fmt.Sprintf("Hi there! This is the scheduling assistant for %s, calling about your recent inquiry. Do you have a quick moment to find a time that works for you?", c.BusinessName)
	}
	return fmt.Sprintf("Hi %s! This is the scheduling assistant for %s, calling about your recent inquiry. Do you have a quick moment to find a time that works for you?", name, c.BusinessName)
}

func (o *Orchestrator) listen(callAttemptID string) telephony.ListenInstruction {
	return telephony.ListenInstruction{
		ActionURL:      o.links.Respond(callAttemptID),
		NoInputURL:     o.links.NoInput(callAttemptID),
		PartialURL:     o.links.Partial(callAttemptID),
		TimeoutSeconds: o.speechTimeout,
	}
}

func (o *Orchestrator) leadContext(c *Context) genai.LeadContext {
	return genai.LeadContext{
		Name:         c.LeadName,
		Phone:        c.LeadPhone,
		Source:       c.LeadSource,
		Notes:        c.LeadNotes,
		BusinessName: c.BusinessName,
	}
}

func (o *Orchestrator) messages(c *Context) []genai.Message {
	out := make([]genai.Message, 0, len(c.Turns))
	for _, t := range c.Turns {
		role := genai.RoleUser
		if t.Role == TurnRoleAssistant {
			role = genai.RoleAssistant
		}
		out = append(out, genai.Message{Role: role, Content: t.Content})
	}
	return out
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
