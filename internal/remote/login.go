package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrCodeRejected signals that the portal refused the verification code.
// Distinct from CredentialsError so callers can re-request a code without
// re-entering credentials.
var ErrCodeRejected = errors.New("verification code rejected")

// CredentialsError carries the portal's own rejection message for a failed
// credential check, verbatim.
type CredentialsError struct {
	Message string
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("credentials rejected: %s", e.Message)
}

// maxLoginRedirects bounds the redirect chain after the final login form
// submission. The portal chains at most two hops before the landing page.
const maxLoginRedirects = 2

// loginCheckResponse models the JSON the portal returns from its credential
// check and code confirmation endpoints.
type loginCheckResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
	Email   string `json:"email"`
}

// FetchLoginPage loads the login page so the portal seeds its pre-auth
// session cookie. Must run before CheckCredentials.
func (c *Client) FetchLoginPage(ctx context.Context) error {
	resp, err := c.get(ctx, loginPagePath, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login page returned status %d", resp.StatusCode)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// CheckCredentials submits the username/password form. On success the portal
// dispatches a verification code and returns the address it was sent to.
// A rejection comes back as *CredentialsError with the portal's message.
func (c *Client) CheckCredentials(ctx context.Context, username, password string) (string, error) {
	form := url.Values{
		"empId":    {username},
		"password": {password},
	}

	var parsed loginCheckResponse
	if err := c.postJSON(ctx, credentialCheckPath, form, &parsed); err != nil {
		return "", err
	}

	if parsed.Result != "success" {
		return "", &CredentialsError{Message: parsed.Message}
	}
	return parsed.Email, nil
}

// ConfirmCode submits the emailed verification code.
func (c *Client) ConfirmCode(ctx context.Context, email, code string) error {
	form := url.Values{
		"email":     {email},
		"inputCode": {code},
		"chk":       {"login"},
	}

	var parsed loginCheckResponse
	if err := c.postJSON(ctx, codeConfirmPath, form, &parsed); err != nil {
		return err
	}

	if parsed.Result != "success" {
		return fmt.Errorf("%w: %s", ErrCodeRejected, parsed.Message)
	}
	return nil
}

// SubmitLoginForm performs the final login submission and follows up to two
// chained redirects by hand; the cookies captured at the final hop are the
// canonical authenticated session.
func (c *Client) SubmitLoginForm(ctx context.Context, email, username, password string) error {
	form := url.Values{
		"emgEmail": {email},
		"userId":   {username},
		"password": {password},
		"saveId":   {"Y"},
	}

	resp, err := c.postForm(ctx, loginFormPath, form)
	if err != nil {
		return err
	}

	for hop := 0; hop <= maxLoginRedirects; hop++ {
		status := resp.StatusCode
		location := resp.Header.Get("Location")
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if !isRedirect(status) {
			if status != http.StatusOK {
				return fmt.Errorf("login landing returned status %d", status)
			}
			if readErr != nil {
				return fmt.Errorf("failed to read login landing: %w", readErr)
			}
			if strings.Contains(string(body), loginTitleMarker) {
				return fmt.Errorf("login form submission landed back on the login page")
			}
			return nil
		}

		if hop == maxLoginRedirects {
			return fmt.Errorf("login redirect chain exceeded %d hops", maxLoginRedirects)
		}

		ref, err := url.Parse(location)
		if err != nil {
			return fmt.Errorf("invalid login redirect location %q: %w", location, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.ResolveReference(ref).String(), nil)
		if err != nil {
			return fmt.Errorf("failed to create redirect request: %w", err)
		}
		resp, err = c.http.Do(req)
		if err != nil {
			return fmt.Errorf("login redirect request failed: %w", err)
		}
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, form url.Values, out any) error {
	resp, err := c.postForm(ctx, path, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal portal response: %w", err)
	}
	return nil
}
