package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/d-towns/matsource-sub000/internal/appointments"
	"github.com/d-towns/matsource-sub000/internal/events"
	"github.com/d-towns/matsource-sub000/internal/genai"
	"github.com/d-towns/matsource-sub000/internal/leads"
	"github.com/d-towns/matsource-sub000/internal/telephony"
)

// Scheduler sends SMS reminders for appointments starting inside the
// configured window. A cron entry triggers the sweep; each appointment is
// claimed with a conditional update before the SMS goes out, so a reminder
// is sent at most once even with multiple instances sweeping.
type Scheduler struct {
	appts     appointments.Store
	leads     leads.Store
	transport telephony.Transport
	gen       genai.Generator
	events    *events.Service
	log       *slog.Logger
	clock     func() time.Time

	cronSpec     string
	window       time.Duration
	concurrency  int
	businessName string

	cron *cron.Cron
}

type SchedulerConfig struct {
	// CronSpec is a standard 5-field cron expression. Defaults to hourly.
	CronSpec string
	// Window is how far ahead of the visit the reminder goes out.
	Window time.Duration
	// Concurrency bounds parallel sends within one sweep.
	Concurrency  int
	BusinessName string
}

func NewScheduler(
	appts appointments.Store,
	leadStore leads.Store,
	transport telephony.Transport,
	gen genai.Generator,
	eventLog *events.Service,
	log *slog.Logger,
	cfg SchedulerConfig,
) *Scheduler {
	if cfg.CronSpec == "" {
		cfg.CronSpec = "0 * * * *"
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BusinessName == "" {
		cfg.BusinessName = "our office"
	}
	return &Scheduler{
		appts:        appts,
		leads:        leadStore,
		transport:    transport,
		gen:          gen,
		events:       eventLog,
		log:          log,
		clock:        time.Now,
		cronSpec:     cfg.CronSpec,
		window:       cfg.Window,
		concurrency:  cfg.Concurrency,
		businessName: cfg.BusinessName,
	}
}

// SetClock overrides the time source for tests.
func (s *Scheduler) SetClock(clock func() time.Time) { s.clock = clock }

// Start registers the cron entry and runs one sweep immediately so a
// restart never skips reminders that came due while the service was down.
func (s *Scheduler) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.cronSpec, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.log.Error("reminder sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("register reminder cron %q: %w", s.cronSpec, err)
	}
	c.Start()
	s.cron = c

	go func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.log.Error("startup reminder sweep failed", "error", err)
		}
	}()
	return nil
}

// Stop halts the cron loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep sends reminders for every appointment due inside the window.
// Failures are isolated per appointment: one bad send never blocks the
// rest of the batch.
func (s *Scheduler) Sweep(ctx context.Context) error {
	now := s.clock().UTC()
	due, err := s.appts.ListDueReminders(ctx, now, s.window)
	if err != nil {
		return fmt.Errorf("list due reminders: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	s.log.Info("reminder sweep", "due", len(due))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, appt := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(a appointments.Appointment) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.remind(ctx, a); err != nil {
				s.log.Error("send reminder failed", "appointment_id", a.ID, "error", err)
			}
		}(appt)
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) remind(ctx context.Context, appt appointments.Appointment) error {
	// Claim before sending: at-most-once beats retry-on-failure here,
	// since a duplicate reminder annoys the customer more than a missed
	// one costs us.
	claimed, err := s.appts.MarkReminderSent(ctx, appt.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	lead, err := s.leads.GetByID(ctx, appt.LeadID)
	if err != nil {
		return fmt.Errorf("load lead %s: %w", appt.LeadID, err)
	}

	body, err := s.gen.ComposeReminder(ctx, lead.Name, s.businessName, appt.ScheduledTime)
	if err != nil {
		s.log.Warn("reminder composition failed, using template", "appointment_id", appt.ID, "error", err)
		body = fmt.Sprintf("Hi %s, this is a reminder of your appointment with %s on %s. Reply YES to confirm or STOP to cancel.",
			lead.Name, s.businessName, appt.ScheduledTime.Format("Monday, January 2 at 3:04 PM"))
	}

	if _, err := s.transport.SendSMS(ctx, lead.Phone, body); err != nil {
		if nerr := s.appts.AppendNote(ctx, appt.ID, fmt.Sprintf("reminder SMS failed: %v", err)); nerr != nil {
			s.log.Warn("append reminder note failed", "appointment_id", appt.ID, "error", nerr)
		}
		return err
	}

	if err := s.events.LogReminderSent(ctx, lead.ID, appt.ID); err != nil {
		s.log.Warn("event log failed", "appointment_id", appt.ID, "error", err)
	}
	return nil
}
