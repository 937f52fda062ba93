package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"time"
)

// ErrCodeTimeout signals that no verification code arrived within the wait
// budget. Distinct from a portal-side code rejection.
var ErrCodeTimeout = errors.New("verification code wait timed out")

// Message is one mail as exposed by the webmail relay.
type Message struct {
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Inbox fetches the current messages of the monitored mailbox.
type Inbox interface {
	FetchMessages(ctx context.Context) ([]Message, error)
}

// RelayInbox reads the mailbox through the relay's JSON endpoint.
type RelayInbox struct {
	url    string
	token  string
	client *http.Client
}

// NewRelayInbox creates an inbox client for the given relay endpoint.
func NewRelayInbox(url, token string, timeout time.Duration) *RelayInbox {
	return &RelayInbox{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// FetchMessages retrieves the mailbox content.
func (r *RelayInbox) FetchMessages(ctx context.Context) ([]Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relay response: %w", err)
	}
	return parsed.Messages, nil
}

// The portal's verification mail carries a subject containing "인증" and a
// six-digit numeric code in the body.
var (
	codeSubjectRe = regexp.MustCompile(`인증`)
	codeRe        = regexp.MustCompile(`\b(\d{6})\b`)
)

// CodeBridge polls the inbox for a freshly delivered verification code so
// login can complete without manual code entry.
type CodeBridge struct {
	inbox        Inbox
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// NewCodeBridge creates a bridge with the given polling cadence and total
// wait budget.
func NewCodeBridge(inbox Inbox, pollInterval, waitTimeout time.Duration) *CodeBridge {
	return &CodeBridge{inbox: inbox, pollInterval: pollInterval, waitTimeout: waitTimeout}
}

// WaitForCode polls the inbox until a code delivered at or after `since` is
// found or the wait budget elapses. `since` is the moment the code was
// requested, so a mail landing before the first poll still counts.
// Individual inbox errors count as "not yet found"; only a run where every
// poll errored surfaces the failure.
func (b *CodeBridge) WaitForCode(ctx context.Context, since time.Time) (string, error) {
	deadline := time.Now().Add(b.waitTimeout)

	var lastErr error
	anySucceeded := false

	for {
		if code, err := b.pollOnce(ctx, since); err != nil {
			lastErr = err
			log.Printf("mailbox: poll failed: %v", err)
		} else {
			anySucceeded = true
			if code != "" {
				return code, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if !anySucceeded && lastErr != nil {
				return "", fmt.Errorf("inbox unreachable while waiting for code: %w", lastErr)
			}
			return "", ErrCodeTimeout
		}

		wait := b.pollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (b *CodeBridge) pollOnce(ctx context.Context, since time.Time) (string, error) {
	messages, err := b.inbox.FetchMessages(ctx)
	if err != nil {
		return "", err
	}

	for _, msg := range messages {
		if msg.ReceivedAt.Before(since) {
			continue
		}
		if !codeSubjectRe.MatchString(msg.Subject) {
			continue
		}
		if m := codeRe.FindStringSubmatch(msg.Body); m != nil {
			return m[1], nil
		}
	}
	return "", nil
}
