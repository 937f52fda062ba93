package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"studio-sync-backend/config"
	"studio-sync-backend/internal/mw"
	"studio-sync-backend/internal/session"
	"studio-sync-backend/internal/store"
	syncer "studio-sync-backend/internal/sync"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.Store, sessions *session.Manager, scheduler *syncer.Scheduler, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()
	if cfg.Server.RequestIPHeader != "" {
		// Behind the reverse proxy the remote address is the proxy's; the
		// rate limiter needs the real client IP from the configured header.
		r.TrustedPlatform = cfg.Server.RequestIPHeader
	}

	handler := NewHandler(cfg, s, sessions, scheduler, webpushOptions)

	rateLimit := rate.Limit(cfg.Server.RateLimitPerSec)
	if rateLimit <= 0 {
		rateLimit = rate.Limit(10)
	}
	rateLimiter := mw.RateLimiter(rateLimit, 5)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	caching := mw.Cache(cache.New(cacheTTL, 2*cacheTTL), cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/bookings", caching, handler.GetBookings)
		api.GET("/bookings/:external_id", handler.GetBookingDetail)

		api.POST("/sync", handler.TriggerSync)
		api.GET("/status", handler.GetStatus)

		api.POST("/auth/code", handler.RequestCode)
		api.POST("/auth/confirm", handler.ConfirmCode)
		api.DELETE("/auth/session", handler.ClearSession)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
