package leads

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRejectsDuplicatePhone(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Create(ctx, Lead{Name: "Jane Doe", Phone: "+15551234567"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_, err := s.Create(ctx, Lead{Name: "Other", Phone: "+15551234567"})
	if !errors.Is(err, ErrDuplicatePhone) {
		t.Fatalf("expected ErrDuplicatePhone, got %v", err)
	}
}

func TestMemoryStoreGetByPhone(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.Create(ctx, Lead{Name: "Jane Doe", Phone: "+15551234567"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created.Status != LeadStatusPending {
		t.Fatalf("expected pending default, got %q", created.Status)
	}

	got, err := s.GetByPhone(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("expected same lead")
	}

	if _, err := s.GetByPhone(ctx, "+15550000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreAppendNote(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	l, _ := s.Create(ctx, Lead{Name: "Jane", Phone: "+15551234567"})
	if err := s.AppendNote(ctx, l.ID, "first"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := s.AppendNote(ctx, l.ID, "second"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got, _ := s.GetByID(ctx, l.ID)
	if got.Notes != "first\nsecond" {
		t.Fatalf("unexpected notes: %q", got.Notes)
	}
}

func TestMemoryStoreUpdateStatusValidates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	l, _ := s.Create(ctx, Lead{Name: "Jane", Phone: "+15551234567"})

	if err := s.UpdateStatus(ctx, l.ID, LeadStatus("bogus")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err := s.UpdateStatus(ctx, l.ID, LeadStatusAppointmentSet); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got, _ := s.GetByID(ctx, l.ID)
	if got.Status != LeadStatusAppointmentSet {
		t.Fatalf("unexpected status: %q", got.Status)
	}
}
