package session

import (
	"context"
	"errors"
	"log"
	"time"

	"studio-sync-backend/internal/remote"
)

// RunKeepAlive periodically issues a low-cost authenticated request to keep
// the portal session warm and extend its expiry. It only touches session
// state, never the sync-in-progress flag.
func (m *Manager) RunKeepAlive(ctx context.Context, interval time.Duration) {
	log.Printf("session: keepalive loop started, interval %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("session: keepalive loop shutting down")
			return
		case <-ticker.C:
			m.keepAliveOnce(ctx)
		}
	}
}

func (m *Manager) keepAliveOnce(ctx context.Context) {
	if !m.IsValid() {
		return
	}

	_, err := m.client.FetchListPage(ctx, 1)
	if errors.Is(err, remote.ErrSessionExpired) {
		log.Println("session: keepalive detected expired session")
		m.MarkExpired(ctx)
		return
	}
	if err != nil {
		log.Printf("session: keepalive request failed: %v", err)
		return
	}

	m.ExtendExpiry(ctx)
	if err := m.store.TouchKeepAliveTime(ctx, time.Now()); err != nil {
		log.Printf("session: failed to record keepalive time: %v", err)
	}
}
