package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/d-towns/matsource-sub000/internal/calls"
	"github.com/d-towns/matsource-sub000/internal/genai"
	"github.com/d-towns/matsource-sub000/internal/leads"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	reply       string
	converseErr error
	sentiment   genai.Sentiment
	calls       int

	// onConverse runs before each reply, to simulate events that race the
	// model call.
	onConverse func()
}

func (f *fakeGenerator) Converse(_ context.Context, _ genai.LeadContext, _ []genai.Message) (string, error) {
	f.calls++
	if f.onConverse != nil {
		f.onConverse()
	}
	if f.converseErr != nil {
		return "", f.converseErr
	}
	return f.reply, nil
}

func (f *fakeGenerator) ClassifySentiment(context.Context, string) (genai.Sentiment, error) {
	if f.sentiment == "" {
		return genai.SentimentNeutral, nil
	}
	return f.sentiment, nil
}

func (f *fakeGenerator) AnalyzeCall(context.Context, genai.LeadContext, []genai.Message) (genai.CallAnalysis, error) {
	return genai.CallAnalysis{}, errors.New("not used")
}

func (f *fakeGenerator) ComposeReminder(context.Context, string, string, time.Time) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeGenerator) ComposeSMSReply(context.Context, genai.LeadContext, string) (string, error) {
	return "", errors.New("not used")
}

type fixture struct {
	orch     *Orchestrator
	attempts *calls.MemoryStore
	leads    *leads.MemoryStore
	contexts *MemoryContextStore
	gen      *fakeGenerator
	attempt  calls.CallAttempt
}

func newFixture(t *testing.T, gen *fakeGenerator) *fixture {
	t.Helper()
	attemptStore := calls.NewMemoryStore()
	leadStore := leads.NewMemoryStore()
	contexts := NewMemoryContextStore()

	lead, err := leadStore.Create(context.Background(), leads.Lead{
		Name:   "Jane Doe",
		Phone:  "+15551234567",
		Source: "website",
	})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	attempt, err := attemptStore.Create(context.Background(), calls.CallAttempt{LeadID: lead.ID})
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := NewOrchestrator(attemptStore, leadStore, contexts, gen, NewLinks("https://voice.example.com"), log, OrchestratorConfig{
		BusinessName:         "Bright Smiles Dental",
		SpeechTimeoutSeconds: 5,
	})
	orch.SetClock(func() time.Time { return testNow })
	return &fixture{orch: orch, attempts: attemptStore, leads: leadStore, contexts: contexts, gen: gen, attempt: attempt}
}

func TestBeginCallGreetsByFirstName(t *testing.T) {
	f := newFixture(t, &fakeGenerator{})

	doc, err := f.orch.BeginCall(context.Background(), f.attempt.ID)
	if err != nil {
		t.Fatalf("BeginCall: %v", err)
	}
	if doc.Speak == nil || !strings.Contains(doc.Speak.Text, "Hi Jane!") {
		t.Fatalf("expected greeting by first name, got %+v", doc.Speak)
	}
	if !strings.Contains(doc.Speak.Text, "Bright Smiles Dental") {
		t.Fatalf("expected business name in greeting, got %q", doc.Speak.Text)
	}
	if doc.Listen == nil {
		t.Fatal("expected listen instruction")
	}
	if doc.Listen.ActionURL != "https://voice.example.com/calls/respond/"+f.attempt.ID {
		t.Fatalf("unexpected action url %q", doc.Listen.ActionURL)
	}
	if doc.Listen.NoInputURL != "https://voice.example.com/calls/no-input/"+f.attempt.ID {
		t.Fatalf("unexpected no-input url %q", doc.Listen.NoInputURL)
	}
	if f.gen.calls != 0 {
		t.Fatal("greeting must not hit the language model")
	}

	cctx, err := f.contexts.Load(context.Background(), f.attempt.ID)
	if err != nil {
		t.Fatalf("load context: %v", err)
	}
	if len(cctx.Turns) != 1 || cctx.Turns[0].Role != TurnRoleAssistant {
		t.Fatalf("expected one assistant turn, got %+v", cctx.Turns)
	}
}

func TestRespondToTurnRecordsBothSides(t *testing.T) {
	f := newFixture(t, &fakeGenerator{reply: "Does Tuesday at 2 PM work?", sentiment: genai.SentimentPositive})

	doc, err := f.orch.RespondToTurn(context.Background(), f.attempt.ID, "yes I'm interested")
	if err != nil {
		t.Fatalf("RespondToTurn: %v", err)
	}
	if doc.Speak == nil || doc.Speak.Text != "Does Tuesday at 2 PM work?" {
		t.Fatalf("unexpected speak %+v", doc.Speak)
	}
	if doc.Listen == nil {
		t.Fatal("expected listen instruction")
	}

	cctx, err := f.contexts.Load(context.Background(), f.attempt.ID)
	if err != nil {
		t.Fatalf("load context: %v", err)
	}
	if len(cctx.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(cctx.Turns))
	}
	if cctx.Turns[0].Role != TurnRoleUser || cctx.Turns[0].Sentiment != "positive" {
		t.Fatalf("unexpected user turn %+v", cctx.Turns[0])
	}
	if cctx.MissedTurns != 0 {
		t.Fatalf("expected missed turns reset, got %d", cctx.MissedTurns)
	}
}

func TestRespondToTurnGenerationFailureFallsBack(t *testing.T) {
	f := newFixture(t, &fakeGenerator{converseErr: &genai.GenerationError{Op: "converse", Err: errors.New("down")}})

	doc, err := f.orch.RespondToTurn(context.Background(), f.attempt.ID, "hello?")
	if err != nil {
		t.Fatalf("RespondToTurn: %v", err)
	}
	if doc.Speak == nil || doc.Speak.Text != fallbackUtterance {
		t.Fatalf("expected fallback utterance, got %+v", doc.Speak)
	}
	if doc.Listen == nil {
		t.Fatal("call must keep listening after a generation failure")
	}

	attempt, err := f.attempts.GetByID(context.Background(), f.attempt.ID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if attempt.Status.Terminal() {
		t.Fatalf("attempt must not be finalized on generation failure, status %s", attempt.Status)
	}
}

func TestRespondToSilenceRepromptsThenHangsUp(t *testing.T) {
	f := newFixture(t, &fakeGenerator{})

	doc, err := f.orch.RespondToSilence(context.Background(), f.attempt.ID)
	if err != nil {
		t.Fatalf("first silence: %v", err)
	}
	if doc.Hangup {
		t.Fatal("first silence must re-prompt, not hang up")
	}
	if doc.Listen == nil {
		t.Fatal("first silence must keep listening")
	}

	doc, err = f.orch.RespondToSilence(context.Background(), f.attempt.ID)
	if err != nil {
		t.Fatalf("second silence: %v", err)
	}
	if !doc.Hangup {
		t.Fatal("second consecutive silence must hang up")
	}
	if doc.Listen != nil {
		t.Fatal("hangup document must not listen")
	}

	attempt, err := f.attempts.GetByID(context.Background(), f.attempt.ID)
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if !strings.Contains(attempt.Notes, "repeated silence") {
		t.Fatalf("expected silence note on attempt, got %q", attempt.Notes)
	}
}

func TestRespondToTurnResetsSilenceCounter(t *testing.T) {
	f := newFixture(t, &fakeGenerator{reply: "Great!"})

	if _, err := f.orch.RespondToSilence(context.Background(), f.attempt.ID); err != nil {
		t.Fatalf("silence: %v", err)
	}
	if _, err := f.orch.RespondToTurn(context.Background(), f.attempt.ID, "sorry, I'm here"); err != nil {
		t.Fatalf("turn: %v", err)
	}

	// Another single silence must re-prompt again rather than hang up.
	doc, err := f.orch.RespondToSilence(context.Background(), f.attempt.ID)
	if err != nil {
		t.Fatalf("silence after turn: %v", err)
	}
	if doc.Hangup {
		t.Fatal("silence counter was not reset by the intervening turn")
	}
}

func TestRespondToTurnOnTerminalAttempt(t *testing.T) {
	f := newFixture(t, &fakeGenerator{reply: "should not be used"})

	if _, err := f.attempts.Finalize(context.Background(), f.attempt.ID, calls.FinalizeParams{Status: calls.CallStatusCompleted}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	doc, err := f.orch.RespondToTurn(context.Background(), f.attempt.ID, "hello again")
	if err != nil {
		t.Fatalf("RespondToTurn: %v", err)
	}
	if !doc.Hangup {
		t.Fatal("expected hangup on terminal attempt")
	}
	if f.gen.calls != 0 {
		t.Fatal("terminal attempt must not reach the language model")
	}
	if _, err := f.contexts.Load(context.Background(), f.attempt.ID); !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("terminal turn must not create conversation state, got %v", err)
	}
}

func TestRespondToTurnFinalizedMidTurn(t *testing.T) {
	gen := &fakeGenerator{reply: "Does Tuesday work?"}
	f := newFixture(t, gen)
	gen.onConverse = func() {
		if _, err := f.attempts.Finalize(context.Background(), f.attempt.ID, calls.FinalizeParams{Status: calls.CallStatusCompleted}); err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if err := f.contexts.Discard(context.Background(), f.attempt.ID); err != nil {
			t.Fatalf("discard: %v", err)
		}
	}

	doc, err := f.orch.RespondToTurn(context.Background(), f.attempt.ID, "still there?")
	if err != nil {
		t.Fatalf("RespondToTurn: %v", err)
	}
	if !doc.Hangup {
		t.Fatal("expected hangup when the attempt finalized mid-turn")
	}
	if doc.Listen != nil {
		t.Fatal("finalized call must not keep listening")
	}
	if _, err := f.contexts.Load(context.Background(), f.attempt.ID); !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("discarded context must stay discarded, got %v", err)
	}
}

func TestRespondToInterruptionTagsBargeIn(t *testing.T) {
	f := newFixture(t, &fakeGenerator{reply: "Sure, go ahead."})

	if _, err := f.orch.RespondToInterruption(context.Background(), f.attempt.ID, "wait, actually"); err != nil {
		t.Fatalf("RespondToInterruption: %v", err)
	}

	cctx, err := f.contexts.Load(context.Background(), f.attempt.ID)
	if err != nil {
		t.Fatalf("load context: %v", err)
	}
	var user *Turn
	for i := range cctx.Turns {
		if cctx.Turns[i].Role == TurnRoleUser {
			user = &cctx.Turns[i]
		}
	}
	if user == nil || !user.BargeIn {
		t.Fatalf("expected barge-in tagged user turn, got %+v", cctx.Turns)
	}
}

func TestRespondToTurnUnknownAttempt(t *testing.T) {
	f := newFixture(t, &fakeGenerator{})

	_, err := f.orch.RespondToTurn(context.Background(), "no-such-attempt", "hi")
	if !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected calls.ErrNotFound, got %v", err)
	}
}
