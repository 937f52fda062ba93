package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-sync-backend/internal/model"
)

func TestKeepAliveOnce_ExtendsExpiry(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	m, s := newTestManager(t, portal.URL, &fakeBridge{code: testCode})
	sess, err := m.AutoLogin(context.Background(), "user1", "pw1")
	require.NoError(t, err)
	before := sess.ExpiresAt

	time.Sleep(5 * time.Millisecond)
	m.keepAliveOnce(context.Background())

	assert.True(t, m.IsValid())
	assert.True(t, sess.ExpiresAt.After(before))

	persisted, err := s.LoadSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.NotNil(t, persisted.LastKeepAliveAt)
}

func TestKeepAliveOnce_NoopWithoutSession(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	m, s := newTestManager(t, portal.URL, &fakeBridge{})
	m.keepAliveOnce(context.Background())

	persisted, err := s.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, persisted, "no request and no row while unauthenticated")
}

func TestKeepAliveOnce_MarksExpiredSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login.do", http.StatusFound)
	}))
	defer server.Close()

	m, s := newTestManager(t, server.URL, &fakeBridge{})
	require.NoError(t, s.SaveSession(context.Background(), &model.RemoteSession{
		CookieJar:  `[]`,
		ExpiresAt:  time.Now().Add(time.Hour),
		IsLoggedIn: true,
	}))
	require.True(t, m.EnsureValid(context.Background()))

	m.keepAliveOnce(context.Background())
	assert.False(t, m.IsValid())

	persisted, err := s.LoadSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.False(t, persisted.IsLoggedIn)
}
