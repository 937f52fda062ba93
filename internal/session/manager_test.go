package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"studio-sync-backend/config"
	"studio-sync-backend/internal/mailbox"
	"studio-sync-backend/internal/model"
	"studio-sync-backend/internal/remote"
	"studio-sync-backend/internal/store"
)

const testCode = "482917"

type fakeBridge struct {
	code string
	err  error
}

func (f *fakeBridge) WaitForCode(ctx context.Context, since time.Time) (string, error) {
	return f.code, f.err
}

// newFakePortal stands in for the reservation portal's login flow.
func newFakePortal(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/login.do", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "preauth", Path: "/"})
		w.Write([]byte(`<html><head><title>로그인</title></head><body></body></html>`))
	})
	mux.HandleFunc("/loginCheck.do", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("empId") == "user1" && r.PostForm.Get("password") == "pw1" {
			json.NewEncoder(w).Encode(map[string]string{"result": "success", "email": "user1@example.com"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"result": "fail", "message": "사용자 정보가 일치하지 않습니다."})
	})
	mux.HandleFunc("/mailCodeCheck.do", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("inputCode") == testCode && r.PostForm.Get("chk") == "login" {
			json.NewEncoder(w).Encode(map[string]string{"result": "success"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"result": "fail", "message": "인증번호가 올바르지 않습니다."})
	})
	mux.HandleFunc("/loginProc.do", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "authed", Path: "/"})
		http.Redirect(w, r, "/main.do", http.StatusFound)
	})
	mux.HandleFunc("/main.do", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>메인</title></head><body></body></html>`))
	})
	mux.HandleFunc("/reservation/list.do", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>예약 목록</title></head><body></body></html>`))
	})

	return httptest.NewServer(mux)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Booking{}, &model.RemoteSession{}))
	return store.NewGormStore(db)
}

func newTestManager(t *testing.T, portalURL string, bridge CodeWaiter) (*Manager, store.Store) {
	t.Helper()
	client, err := remote.NewClient(portalURL, 5*time.Second)
	require.NoError(t, err)

	cfg := &config.RemoteConfig{
		BaseURL:         portalURL,
		Username:        "user1",
		Password:        "pw1",
		SessionLifetime: 2 * time.Hour,
	}
	s := newTestStore(t)
	return NewManager(cfg, client, s, bridge, time.Millisecond), s
}

func TestAutoLogin_Success(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	m, s := newTestManager(t, portal.URL, &fakeBridge{code: testCode})

	sess, err := m.AutoLogin(context.Background(), "user1", "pw1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.IsLoggedIn)
	assert.True(t, m.IsValid())

	persisted, err := s.LoadSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.True(t, persisted.IsLoggedIn)
	assert.Contains(t, persisted.CookieJar, "authed")
}

func TestAutoLogin_CodeTimeoutIsDistinctFromCredentialRejection(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	m, _ := newTestManager(t, portal.URL, &fakeBridge{err: mailbox.ErrCodeTimeout})

	_, err := m.AutoLogin(context.Background(), "user1", "pw1")
	require.ErrorIs(t, err, mailbox.ErrCodeTimeout)

	var credErr *remote.CredentialsError
	assert.False(t, errors.As(err, &credErr))
	assert.False(t, m.IsValid())
}

func TestRequestVerificationCode_BadCredentials(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	m, _ := newTestManager(t, portal.URL, &fakeBridge{})

	err := m.RequestVerificationCode(context.Background(), "user1", "wrong")
	var credErr *remote.CredentialsError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, "사용자 정보가 일치하지 않습니다.", credErr.Message)

	// A failed credential check leaves no pending login behind.
	_, err = m.ConfirmVerificationCode(context.Background(), testCode)
	assert.ErrorIs(t, err, ErrNoPendingLogin)
}

func TestRequestVerificationCode_DispatchAddressMismatch(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	client, err := remote.NewClient(portal.URL, 5*time.Second)
	require.NoError(t, err)
	cfg := &config.RemoteConfig{
		BaseURL:           portal.URL,
		Username:          "user1",
		Password:          "pw1",
		VerificationEmail: "inbox@relay.example",
		SessionLifetime:   2 * time.Hour,
	}
	m := NewManager(cfg, client, newTestStore(t), &fakeBridge{code: testCode}, time.Millisecond)

	// The portal mails the code to user1@example.com; nothing watches that
	// address, so the request fails up front.
	err = m.RequestVerificationCode(context.Background(), "user1", "pw1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitored mailbox")

	_, err = m.ConfirmVerificationCode(context.Background(), testCode)
	assert.ErrorIs(t, err, ErrNoPendingLogin)
}

func TestRequestVerificationCode_DispatchAddressMatch(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	client, err := remote.NewClient(portal.URL, 5*time.Second)
	require.NoError(t, err)
	cfg := &config.RemoteConfig{
		BaseURL:           portal.URL,
		Username:          "user1",
		Password:          "pw1",
		VerificationEmail: "USER1@example.com", // compared case-insensitively
		SessionLifetime:   2 * time.Hour,
	}
	m := NewManager(cfg, client, newTestStore(t), &fakeBridge{code: testCode}, time.Millisecond)

	sess, err := m.AutoLogin(context.Background(), "user1", "pw1")
	require.NoError(t, err)
	assert.True(t, sess.IsLoggedIn)
}

func TestConfirmVerificationCode_NoPendingLogin(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	m, _ := newTestManager(t, portal.URL, &fakeBridge{})

	_, err := m.ConfirmVerificationCode(context.Background(), testCode)
	assert.ErrorIs(t, err, ErrNoPendingLogin)
}

func TestConfirmVerificationCode_RejectedCodeKeepsPending(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	m, _ := newTestManager(t, portal.URL, &fakeBridge{})
	require.NoError(t, m.RequestVerificationCode(context.Background(), "user1", "pw1"))

	_, err := m.ConfirmVerificationCode(context.Background(), "000000")
	require.ErrorIs(t, err, remote.ErrCodeRejected)

	// The pending attempt survives a rejected code; the right code still works.
	sess, err := m.ConfirmVerificationCode(context.Background(), testCode)
	require.NoError(t, err)
	assert.True(t, sess.IsLoggedIn)
}

func TestEnsureValid_AdoptsDurableSession(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	m, s := newTestManager(t, portal.URL, &fakeBridge{})
	require.NoError(t, s.SaveSession(context.Background(), &model.RemoteSession{
		CookieJar:  `[{"name":"JSESSIONID","value":"stored"}]`,
		ExpiresAt:  time.Now().Add(time.Hour),
		IsLoggedIn: true,
	}))

	assert.False(t, m.IsValid())
	assert.True(t, m.EnsureValid(context.Background()))
	assert.True(t, m.IsValid())
}

func TestEnsureValid_RejectsExpiredDurableSession(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	m, s := newTestManager(t, portal.URL, &fakeBridge{})
	require.NoError(t, s.SaveSession(context.Background(), &model.RemoteSession{
		CookieJar:  `[]`,
		ExpiresAt:  time.Now().Add(-time.Hour),
		IsLoggedIn: true,
	}))

	assert.False(t, m.EnsureValid(context.Background()))
	assert.False(t, m.IsValid())
}

func TestMarkExpired(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	m, s := newTestManager(t, portal.URL, &fakeBridge{code: testCode})
	_, err := m.AutoLogin(context.Background(), "user1", "pw1")
	require.NoError(t, err)

	m.MarkExpired(context.Background())
	assert.False(t, m.IsValid())

	persisted, err := s.LoadSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.False(t, persisted.IsLoggedIn)
}

func TestExtendExpiry_Monotonic(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	m, _ := newTestManager(t, portal.URL, &fakeBridge{code: testCode})
	sess, err := m.AutoLogin(context.Background(), "user1", "pw1")
	require.NoError(t, err)
	before := sess.ExpiresAt

	time.Sleep(5 * time.Millisecond)
	m.ExtendExpiry(context.Background())
	assert.False(t, sess.ExpiresAt.Before(before), "expiry never moves backwards")
	assert.True(t, sess.ExpiresAt.After(before))
}

func TestClear(t *testing.T) {
	portal := newFakePortal(t)
	defer portal.Close()

	m, s := newTestManager(t, portal.URL, &fakeBridge{code: testCode})
	_, err := m.AutoLogin(context.Background(), "user1", "pw1")
	require.NoError(t, err)

	require.NoError(t, m.Clear(context.Background()))
	assert.False(t, m.IsValid())

	persisted, err := s.LoadSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.False(t, persisted.Valid(time.Now()))
}
