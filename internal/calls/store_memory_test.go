package calls

import (
	"context"
	"testing"
	"time"
)

func TestStatusTerminal(t *testing.T) {
	for _, s := range []CallStatus{CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer} {
		if !s.Terminal() {
			t.Fatalf("expected %q terminal", s)
		}
	}
	for _, s := range []CallStatus{CallStatusPending, CallStatusInProgress} {
		if s.Terminal() {
			t.Fatalf("expected %q non-terminal", s)
		}
	}
}

func TestFinalizeIsOneShot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, err := s.Create(ctx, CallAttempt{LeadID: "lead-1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := s.MarkInProgress(ctx, a.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	end := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	did, err := s.Finalize(ctx, a.ID, FinalizeParams{Status: CallStatusCompleted, EndTime: end, DurationSeconds: 95})
	if err != nil || !did {
		t.Fatalf("expected first finalize to apply, got did=%v err=%v", did, err)
	}

	// Second terminal event must be a no-op reported as not-applied.
	did, err = s.Finalize(ctx, a.ID, FinalizeParams{Status: CallStatusFailed, EndTime: end.Add(time.Minute)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if did {
		t.Fatalf("expected second finalize to be a no-op")
	}

	got, _ := s.GetByID(ctx, a.ID)
	if got.Status != CallStatusCompleted {
		t.Fatalf("terminal status overwritten: %q", got.Status)
	}
	if got.DurationSeconds != 95 {
		t.Fatalf("unexpected duration: %d", got.DurationSeconds)
	}
	if got.EndTime == nil || !got.EndTime.Equal(end) {
		t.Fatalf("unexpected end time: %v", got.EndTime)
	}
}

func TestFinalizeRejectsNonTerminalTarget(t *testing.T) {
	s := NewMemoryStore()
	a, _ := s.Create(context.Background(), CallAttempt{LeadID: "lead-1"})
	if _, err := s.Finalize(context.Background(), a.ID, FinalizeParams{Status: CallStatusInProgress}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMarkInProgressIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a, _ := s.Create(ctx, CallAttempt{LeadID: "lead-1"})

	if err := s.MarkInProgress(ctx, a.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := s.MarkInProgress(ctx, a.ID); err != nil {
		t.Fatalf("expected repeated mark to be a no-op, got %v", err)
	}

	if _, err := s.Finalize(ctx, a.ID, FinalizeParams{Status: CallStatusCompleted}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// A late in-progress event after finalization must not resurrect the call.
	if err := s.MarkInProgress(ctx, a.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got, _ := s.GetByID(ctx, a.ID)
	if got.Status != CallStatusCompleted {
		t.Fatalf("terminal status lost: %q", got.Status)
	}
}

func TestGetByProviderCallID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a, _ := s.Create(ctx, CallAttempt{LeadID: "lead-1"})
	if err := s.SetProviderCallID(ctx, a.ID, "CA123"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got, err := s.GetByProviderCallID(ctx, "CA123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != a.ID {
		t.Fatalf("expected same attempt")
	}
}
