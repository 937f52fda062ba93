package sync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"studio-sync-backend/config"
	"studio-sync-backend/internal/store"
)

// Gate decides whether a sync attempt may run at all: inside the operating
// window, and not sooner than the configured interval after the last
// persisted sync.
type Gate struct {
	store store.Store
	loc   *time.Location
	start int // minutes since midnight, inclusive
	end   int // minutes since midnight, inclusive
}

// NewGate builds a gate from the configured operating window.
func NewGate(cfg *config.SyncConfig, s store.Store) (*Gate, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}

	start, err := parseClock(cfg.OperatingStart)
	if err != nil {
		return nil, fmt.Errorf("invalid operating_start: %w", err)
	}
	end, err := parseClock(cfg.OperatingEnd)
	if err != nil {
		return nil, fmt.Errorf("invalid operating_end: %w", err)
	}
	if end < start {
		return nil, fmt.Errorf("operating window ends (%s) before it starts (%s)", cfg.OperatingEnd, cfg.OperatingStart)
	}

	return &Gate{store: s, loc: loc, start: start, end: end}, nil
}

// IsOperatingHours reports whether now falls inside the daily window.
// Both boundary minutes are inside the window.
func (g *Gate) IsOperatingHours(now time.Time) bool {
	local := now.In(g.loc)
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= g.start && minutes <= g.end
}

// ShouldSync reports whether enough time has passed since the last persisted
// sync. No prior timestamp means yes.
func (g *Gate) ShouldSync(ctx context.Context, interval time.Duration) (bool, error) {
	session, err := g.store.LoadSession(ctx)
	if err != nil {
		return false, err
	}
	if session == nil || session.LastSyncAt == nil {
		return true, nil
	}
	return time.Since(*session.LastSyncAt) >= interval, nil
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}
