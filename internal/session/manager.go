package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"studio-sync-backend/config"
	"studio-sync-backend/internal/model"
	"studio-sync-backend/internal/remote"
	"studio-sync-backend/internal/store"
)

// State names the stages of the portal's two-factor login flow. Transitions
// only happen inside the Manager, under its lock.
type State int

const (
	StateUnauthenticated State = iota
	StateCodeRequested
	StateAuthenticated
)

// ErrNoPendingLogin is returned when a code is confirmed without a prior
// successful credential check.
var ErrNoPendingLogin = errors.New("no pending login")

// CodeWaiter blocks until a verification code delivered at or after `since`
// is available. Implemented by mailbox.CodeBridge.
type CodeWaiter interface {
	WaitForCode(ctx context.Context, since time.Time) (string, error)
}

// pendingLogin is the single in-flight authentication attempt. It exists only
// between "code requested" and "code confirmed or abandoned" and is never
// persisted.
type pendingLogin struct {
	username    string
	password    string
	email       string
	requestedAt time.Time
}

// Manager owns the in-process session cache and the login state machine.
// All session access goes through its lock; the durable store is consulted
// once per cold start and is the tie-breaker there.
type Manager struct {
	cfg    *config.RemoteConfig
	client *remote.Client
	store  store.Store
	bridge CodeWaiter
	settle time.Duration

	mu      sync.Mutex
	state   State
	pending *pendingLogin
	session *model.RemoteSession
	loaded  bool // durable store consulted at least once
}

// NewManager creates a session manager around the given portal client.
func NewManager(cfg *config.RemoteConfig, client *remote.Client, s store.Store, bridge CodeWaiter, settle time.Duration) *Manager {
	return &Manager{cfg: cfg, client: client, store: s, bridge: bridge, settle: settle}
}

// RequestVerificationCode performs the portal's credential check. On success
// a code is dispatched to the account's registered address and the manager
// moves to StateCodeRequested. A portal rejection comes back as
// *remote.CredentialsError, not a hard failure.
func (m *Manager) RequestVerificationCode(ctx context.Context, username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.client.ResetCookies(); err != nil {
		return err
	}
	if err := m.client.FetchLoginPage(ctx); err != nil {
		return fmt.Errorf("failed to load login page: %w", err)
	}

	email, err := m.client.CheckCredentials(ctx, username, password)
	if err != nil {
		return err
	}
	if m.cfg.VerificationEmail != "" && !strings.EqualFold(email, m.cfg.VerificationEmail) {
		// The code would land in a mailbox nobody monitors; fail now instead
		// of timing out on the bridge.
		return fmt.Errorf("portal dispatches the code to %s, but the monitored mailbox is %s", email, m.cfg.VerificationEmail)
	}

	m.pending = &pendingLogin{
		username:    username,
		password:    password,
		email:       email,
		requestedAt: time.Now(),
	}
	m.state = StateCodeRequested
	log.Printf("session: verification code dispatched to %s", email)
	return nil
}

// ConfirmVerificationCode submits the emailed code and completes the login
// form flow. On success the new session is cached, persisted, and returned.
func (m *Manager) ConfirmVerificationCode(ctx context.Context, code string) (*model.RemoteSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateCodeRequested || m.pending == nil {
		return nil, ErrNoPendingLogin
	}

	if err := m.client.ConfirmCode(ctx, m.pending.email, code); err != nil {
		// Pending stays; the caller may re-request or retry the code.
		return nil, err
	}

	if err := m.client.SubmitLoginForm(ctx, m.pending.email, m.pending.username, m.pending.password); err != nil {
		m.pending = nil
		m.state = StateUnauthenticated
		return nil, fmt.Errorf("login form submission failed: %w", err)
	}

	jar, err := m.client.ExportCookies()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &model.RemoteSession{
		ID:         model.RemoteSessionID,
		CookieJar:  jar,
		ExpiresAt:  now.Add(m.cfg.SessionLifetime),
		IsLoggedIn: true,
	}
	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	m.session = session
	m.pending = nil
	m.state = StateAuthenticated
	log.Printf("session: authenticated, expires at %s", session.ExpiresAt.Format(time.RFC3339))
	return session, nil
}

// AutoLogin composes the full automated flow: credential check, a short
// settle delay for mail delivery, code pickup from the inbox, confirmation.
func (m *Manager) AutoLogin(ctx context.Context, username, password string) (*model.RemoteSession, error) {
	since := time.Now()
	if err := m.RequestVerificationCode(ctx, username, password); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(m.settle):
	}

	code, err := m.bridge.WaitForCode(ctx, since)
	if err != nil {
		return nil, err
	}
	return m.ConfirmVerificationCode(ctx, code)
}

// IsValid reports whether the in-process session is usable right now.
func (m *Manager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateAuthenticated && m.session.Valid(time.Now())
}

// EnsureValid returns true when a usable session exists, loading the durable
// copy once on a cold start. It never re-authenticates; callers decide
// whether to trigger AutoLogin.
func (m *Manager) EnsureValid(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAuthenticated && m.session.Valid(time.Now()) {
		return true
	}
	if m.loaded {
		return false
	}
	m.loaded = true

	stored, err := m.store.LoadSession(ctx)
	if err != nil {
		log.Printf("session: failed to load durable session: %v", err)
		return false
	}
	if !stored.Valid(time.Now()) {
		return false
	}
	if err := m.client.RestoreCookies(stored.CookieJar); err != nil {
		log.Printf("session: failed to restore cookie jar: %v", err)
		return false
	}

	m.session = stored
	m.state = StateAuthenticated
	log.Printf("session: adopted durable session, expires at %s", stored.ExpiresAt.Format(time.RFC3339))
	return true
}

// MarkExpired flips the logged-in flag after the portal signalled a stale
// session. It never raises; callers observe the change via IsValid.
func (m *Manager) MarkExpired(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateUnauthenticated
	if m.session != nil {
		m.session.IsLoggedIn = false
		if err := m.store.SaveSession(ctx, m.session); err != nil {
			log.Printf("session: failed to persist expiry: %v", err)
		}
	}
	m.loaded = true // the durable copy is no fresher than what we just wrote
}

// ExtendExpiry pushes the session expiry to now + lifetime. Expiry never
// moves backwards.
func (m *Manager) ExtendExpiry(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAuthenticated || m.session == nil {
		return
	}

	next := time.Now().Add(m.cfg.SessionLifetime)
	if !next.After(m.session.ExpiresAt) {
		return
	}

	if jar, err := m.client.ExportCookies(); err == nil {
		m.session.CookieJar = jar
	}
	m.session.ExpiresAt = next
	if err := m.store.SaveSession(ctx, m.session); err != nil {
		log.Printf("session: failed to persist extended expiry: %v", err)
	}
}

// Clear invalidates both the in-process and the durable session state.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateUnauthenticated
	m.pending = nil
	m.session = nil
	if err := m.client.ResetCookies(); err != nil {
		return err
	}
	return m.store.ClearSession(ctx)
}

// Client exposes the portal client bound to this session.
func (m *Manager) Client() *remote.Client {
	return m.client
}
