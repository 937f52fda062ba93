package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"studio-sync-backend/config"
	"studio-sync-backend/internal/session"
	"studio-sync-backend/internal/store"
	syncer "studio-sync-backend/internal/sync"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	cfg       *config.Config
	store     store.Store
	sessions  *session.Manager
	scheduler *syncer.Scheduler
	webpush   *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(cfg *config.Config, s store.Store, sessions *session.Manager, scheduler *syncer.Scheduler, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     s,
		sessions:  sessions,
		scheduler: scheduler,
		webpush:   webpushOptions,
	}
}
