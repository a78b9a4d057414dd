package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/d-towns/matsource-sub000/internal/appointments"
	"github.com/d-towns/matsource-sub000/internal/calls"
	"github.com/d-towns/matsource-sub000/internal/config"
	"github.com/d-towns/matsource-sub000/internal/conversation"
	"github.com/d-towns/matsource-sub000/internal/events"
	"github.com/d-towns/matsource-sub000/internal/genai"
	"github.com/d-towns/matsource-sub000/internal/httpapi"
	"github.com/d-towns/matsource-sub000/internal/leads"
	"github.com/d-towns/matsource-sub000/internal/lifecycle"
	"github.com/d-towns/matsource-sub000/internal/reminders"
	"github.com/d-towns/matsource-sub000/internal/telephony"
	"github.com/d-towns/matsource-sub000/pkg/logger"
	"github.com/d-towns/matsource-sub000/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Stores.
	leadStore := leads.NewPostgresStore(db)
	attemptStore := calls.NewPostgresStore(db)
	apptStore := appointments.NewPostgresStore(db)
	eventSvc := events.NewService(events.NewPostgresRepo(db))
	contexts := conversation.NewRedisContextStore(rdb)

	// Adapters.
	transport := telephony.NewTwilioClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	gen := genai.NewOpenAIGenerator(cfg.OpenAI.APIKey, genai.OpenAIConfig{
		ChatModel:       cfg.OpenAI.ChatModel,
		TranscribeModel: cfg.OpenAI.TranscribeModel,
		TTSModel:        cfg.OpenAI.TTSModel,
		TTSVoice:        cfg.OpenAI.TTSVoice,
		RequestTimeout:  cfg.OpenAI.RequestTimeout,
	})

	// Domain services.
	booker := appointments.NewBooker(apptStore, cfg.Voice.EnforceAppointmentConflicts)
	links := conversation.NewLinks(cfg.Twilio.PublicBaseURL)
	orch := conversation.NewOrchestrator(attemptStore, leadStore, contexts, gen, links, log, conversation.OrchestratorConfig{
		BusinessName:         cfg.Voice.BusinessName,
		SpeechTimeoutSeconds: cfg.Voice.SpeechTimeoutSeconds,
	})
	orch.SetLock(conversation.RedisTurnLock(rdb))

	rec := lifecycle.NewReconciler(attemptStore, leadStore, booker, contexts, gen, transport, orch, links, eventSvc, log, lifecycle.ReconcilerConfig{})

	sms := reminders.NewSMSHandler(leadStore, apptStore, gen, eventSvc, log, cfg.Voice.BusinessName)

	scheduler := reminders.NewScheduler(apptStore, leadStore, transport, gen, eventSvc, log, reminders.SchedulerConfig{
		CronSpec:     cfg.Scheduler.ReminderCron,
		Window:       cfg.Scheduler.ReminderWindow,
		Concurrency:  cfg.Scheduler.SweepConcurrency,
		BusinessName: cfg.Voice.BusinessName,
	})
	if err := scheduler.Start(); err != nil {
		log.Error("reminder scheduler init failed", "err", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Leads:        leadStore,
		Attempts:     attemptStore,
		Appointments: apptStore,
		Booker:       booker,
		Orchestrator: orch,
		Reconciler:   rec,
		SMS:          sms,
		Events:       eventSvc,
	}
	webhookAuth := telephony.RequireSignature(cfg.Twilio.AuthToken, cfg.Twilio.PublicBaseURL, cfg.Twilio.ValidateSignature)
	registerRoutes(r, h, webhookAuth, db, rdb)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
