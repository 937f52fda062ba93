package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Portal paths. The portal is a fixed contract; one HTML version is assumed.
const (
	loginPagePath       = "/login.do"
	credentialCheckPath = "/loginCheck.do"
	codeConfirmPath     = "/mailCodeCheck.do"
	loginFormPath       = "/loginProc.do"
	listPath            = "/reservation/list.do"
	detailPath          = "/reservation/view.do"
)

// loginTitleMarker appears in the document title whenever the portal serves
// the login page instead of authenticated content.
const loginTitleMarker = "<title>로그인"

// ErrSessionExpired signals that the portal redirected to its login flow or
// served login content on an authenticated request. Callers decide whether to
// re-authenticate; the client never retries on its own.
var ErrSessionExpired = errors.New("remote session expired")

// Client issues requests against the reservation portal using the session's
// cookie jar. Redirects are never followed implicitly: a redirect to a login
// path is the canonical session-expiry signal and must stay observable.
type Client struct {
	base *url.URL
	http *http.Client
	jar  http.CookieJar
}

// NewClient creates a portal client with a fresh, empty cookie jar.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid portal base URL %q: %w", baseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		base: base,
		jar:  jar,
		http: &http.Client{
			Jar:     jar,
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// FetchListPage retrieves one page of the reservation list.
func (c *Client) FetchListPage(ctx context.Context, page int) (string, error) {
	q := url.Values{"pageIndex": {fmt.Sprint(page)}}
	return c.fetchAuthenticated(ctx, listPath, q)
}

// FetchDetailPage retrieves the detail page of one reservation.
func (c *Client) FetchDetailPage(ctx context.Context, externalID string) (string, error) {
	q := url.Values{"reservationId": {externalID}}
	return c.fetchAuthenticated(ctx, detailPath, q)
}

// DownloadFile fetches an authenticated file URL (attachments linked from
// detail pages). Returns the raw bytes and the content type.
func (c *Client) DownloadFile(ctx context.Context, fileURL string) ([]byte, string, error) {
	ref, err := url.Parse(fileURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid file URL %q: %w", fileURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if isRedirect(resp.StatusCode) {
		if isLoginLocation(resp.Header.Get("Location")) {
			return nil, "", ErrSessionExpired
		}
		return nil, "", fmt.Errorf("unexpected redirect to %q", resp.Header.Get("Location"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// fetchAuthenticated issues a GET that requires a live session and never
// silently succeeds with stale-login content.
func (c *Client) fetchAuthenticated(ctx context.Context, path string, q url.Values) (string, error) {
	resp, err := c.get(ctx, path, q)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if isRedirect(resp.StatusCode) {
		if isLoginLocation(resp.Header.Get("Location")) {
			return "", ErrSessionExpired
		}
		return "", fmt.Errorf("unexpected redirect to %q", resp.Header.Get("Location"))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if strings.Contains(string(body), loginTitleMarker) {
		return "", ErrSessionExpired
	}
	return string(body), nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (*http.Response, error) {
	u := c.base.ResolveReference(&url.URL{Path: path})
	if q != nil {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	u := c.base.ResolveReference(&url.URL{Path: path})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	return resp, nil
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

func isLoginLocation(location string) bool {
	loc := strings.ToLower(location)
	return strings.Contains(loc, "login") || strings.Contains(loc, "logout")
}

// storedCookie is the serialized form of one session cookie.
type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// ExportCookies serializes the cookies the jar would send to the portal, for
// persistence across process restarts.
func (c *Client) ExportCookies() (string, error) {
	cookies := c.jar.Cookies(c.base)
	stored := make([]storedCookie, len(cookies))
	for i, ck := range cookies {
		stored[i] = storedCookie{Name: ck.Name, Value: ck.Value, Path: ck.Path, Expires: ck.Expires}
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to serialize cookies: %w", err)
	}
	return string(data), nil
}

// RestoreCookies loads a previously exported cookie jar.
func (c *Client) RestoreCookies(serialized string) error {
	if serialized == "" {
		return nil
	}

	var stored []storedCookie
	if err := json.Unmarshal([]byte(serialized), &stored); err != nil {
		return fmt.Errorf("failed to deserialize cookies: %w", err)
	}

	cookies := make([]*http.Cookie, len(stored))
	for i, ck := range stored {
		cookies[i] = &http.Cookie{Name: ck.Name, Value: ck.Value, Path: ck.Path, Expires: ck.Expires}
	}
	c.jar.SetCookies(c.base, cookies)
	return nil
}

// ResetCookies discards all portal cookies. The jar is mutated in place, not
// replaced: the http.Client reads the Jar field from request goroutines, so
// the pointer set in NewClient must stay stable for the client's lifetime.
func (c *Client) ResetCookies() error {
	cookies := c.jar.Cookies(c.base)
	expired := make([]*http.Cookie, len(cookies))
	for i, ck := range cookies {
		expired[i] = &http.Cookie{Name: ck.Name, Path: ck.Path, MaxAge: -1}
	}
	c.jar.SetCookies(c.base, expired)
	return nil
}
