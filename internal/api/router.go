package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"postpartum-htn-backend/config"
	"postpartum-htn-backend/internal/metrics"
	"postpartum-htn-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, server config.ServerConfig, auth config.AuthConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Initialize middleware
	rateLimiter := mw.RateLimiter(rate.Limit(server.RateLimitPerSec), server.RateLimitBurst)

	// Protocol definitions are static; case state never goes through the cache.
	ttl := time.Duration(server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API group
	api := r.Group("/api")
	api.Use(mw.Auth(auth.JWTSecret), rateLimiter)
	{
		api.GET("/protocols", caching, h.GetProtocols)
		api.GET("/protocols/:algorithm", caching, h.GetProtocol)

		api.POST("/patients", h.CreatePatient)
		api.GET("/patients", h.ListPatients)
		api.GET("/patients/:id", h.GetPatient)
		api.GET("/patients/:id/case", h.GetCase)
		api.GET("/patients/:id/timer", h.GetTimer)
		api.GET("/patients/:id/readings", h.ListReadings)
		api.POST("/patients/:id/readings", h.RecordReading)
		api.GET("/patients/:id/audit", h.ListAudit)

		api.POST("/patients/:id/session", h.StartSession)
		api.POST("/patients/:id/session/algorithm", h.SelectAlgorithm)
		api.POST("/patients/:id/session/doses", h.OrderDose)
		api.POST("/patients/:id/session/acknowledge", h.AcknowledgeSession)
		api.POST("/patients/:id/session/resolve", h.ResolveSession)
		api.POST("/patients/:id/session/escalate", h.EscalateSession)
		api.POST("/patients/:id/medications/:dose_id/administer", h.AdministerDose)

		api.GET("/sessions/:id/stream", h.StreamSession)

		api.GET("/notifications", h.ListNotifications)
		api.POST("/notifications/:id/acknowledge", h.AcknowledgeNotification)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
