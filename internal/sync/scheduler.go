package sync

import (
	"context"
	"log"
	"time"

	"studio-sync-backend/config"
	"studio-sync-backend/internal/session"
)

// Scheduler fires the reconciler on a fixed interval, honoring both gates.
// Manual triggers go through TriggerManual and share the reconciler's
// single-run discipline.
type Scheduler struct {
	cfg      *config.Config
	gate     *Gate
	rec      *Reconciler
	sessions *session.Manager
}

// NewScheduler wires the periodic sync loop.
func NewScheduler(cfg *config.Config, gate *Gate, rec *Reconciler, sessions *session.Manager) *Scheduler {
	return &Scheduler{cfg: cfg, gate: gate, rec: rec, sessions: sessions}
}

// Run starts the periodic loop. It returns when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Sync.Enabled {
		log.Println("sync: scheduler disabled, not starting")
		return
	}
	log.Printf("sync: scheduler started, interval %s", s.cfg.Sync.Interval)

	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.Sync.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("sync: scheduler shutting down")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one scheduled attempt. Failures are logged and left for the next
// tick; nothing retries inside a single attempt.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	if !s.gate.IsOperatingHours(now) {
		return
	}

	due, err := s.gate.ShouldSync(ctx, s.cfg.Sync.Interval)
	if err != nil {
		log.Printf("sync: gate check failed: %v", err)
		return
	}
	if !due {
		return
	}

	if !s.ensureSession(ctx) {
		return
	}

	result := s.rec.SyncAll(ctx, s.cfg.Sync.MaxPages)
	for _, e := range result.Errors {
		log.Printf("sync: %s", e)
	}
}

// TriggerManual runs an on-demand sync. It bypasses the interval gate but
// not the operating window unless force is set.
func (s *Scheduler) TriggerManual(ctx context.Context, force bool) (*SyncResult, bool) {
	if !force && !s.gate.IsOperatingHours(time.Now()) {
		return nil, false
	}
	if !s.ensureSession(ctx) {
		result := &SyncResult{SyncedAt: time.Now()}
		result.Errors = append(result.Errors, "no valid portal session and automatic login failed")
		return result, true
	}
	return s.rec.SyncAll(ctx, s.cfg.Sync.MaxPages), true
}

func (s *Scheduler) ensureSession(ctx context.Context) bool {
	if s.sessions.EnsureValid(ctx) {
		return true
	}

	log.Println("sync: no valid session, attempting automatic login")
	if _, err := s.sessions.AutoLogin(ctx, s.cfg.Remote.Username, s.cfg.Remote.Password); err != nil {
		log.Printf("sync: automatic login failed: %v", err)
		return false
	}
	return true
}
