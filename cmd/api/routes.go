package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/d-towns/matsource-sub000/internal/httpapi"
	"github.com/d-towns/matsource-sub000/pkg/utils"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, webhookAuth gin.HandlerFunc, db *sql.DB, rdb *redis.Client) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks. Twilio posts form-encoded payloads here; every
	// route answers TwiML (or empty 200) and is guarded by signature
	// validation when enabled.
	hooks := r.Group("/")
	hooks.Use(webhookAuth)
	{
		hooks.POST("/calls/twiml/:id", h.VoiceTwiML)
		hooks.POST("/calls/respond/:id", h.VoiceRespond)
		hooks.POST("/calls/no-input/:id", h.VoiceNoInput)
		hooks.POST("/calls/partial/:id", h.VoicePartial)
		hooks.POST("/calls/barge-in/:id", h.VoiceBargeIn)
		hooks.POST("/calls/status/:id", h.VoiceStatus)
		hooks.POST("/sms/webhook", h.InboundSMS)
	}

	// internal API group
	v1 := r.Group("/v1")
	{
		leadsGroup := v1.Group("/leads")
		{
			leadsGroup.POST("", h.CreateLead)
			leadsGroup.GET("", h.ListLeads)
			leadsGroup.GET("/:id", h.GetLead)
			leadsGroup.GET("/:id/calls", h.ListLeadCalls)
			leadsGroup.GET("/:id/appointments", h.ListLeadAppointments)
			leadsGroup.GET("/:id/events", h.LeadEvents)
		}

		v1.POST("/calls", h.StartCall)
		v1.POST("/appointments", h.CreateAppointment)
	}
}
