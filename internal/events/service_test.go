package events

import (
	"context"
	"testing"
	"time"
)

func TestService_AppendRequiresLeadAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeCallInitiated}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{LeadID: "l"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogCallInitiated(context.Background(), "lead1", "attempt1", "CA123"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	when := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	if err := svc.LogAppointmentBooked(context.Background(), "lead1", "attempt1", "appt1", when); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Type != EventTypeCallInitiated || evs[0].ProviderCallID != "CA123" {
		t.Fatalf("unexpected first event %+v", evs[0])
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp stamped")
	}
	if evs[1].Type != EventTypeAppointmentBooked || evs[1].AppointmentID != "appt1" {
		t.Fatalf("unexpected second event %+v", evs[1])
	}
}

func TestService_ListByLead(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	_ = svc.LogCallInitiated(context.Background(), "lead1", "a1", "CA1")
	_ = svc.LogCallInitiated(context.Background(), "lead2", "a2", "CA2")
	_ = svc.LogReminderSent(context.Background(), "lead1", "appt1")

	evs, err := svc.ListByLead(context.Background(), "lead1", 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events for lead1, got %d", len(evs))
	}
	if evs[0].Type != EventTypeReminderSent {
		t.Fatalf("expected newest first, got %+v", evs[0])
	}
}
