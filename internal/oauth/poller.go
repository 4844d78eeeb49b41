package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sombot/pkg/logging"
)

// deviceGrantType is the RFC 8628 grant type for device-code exchanges.
const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// slowDownIncrement is added to the effective poll interval every time the
// provider answers slow_down (RFC 8628 section 3.5). The interval never
// decreases within a session.
const slowDownIncrement = 5 * time.Second

// AuthorizationPoller polls the token endpoint until a device-code session
// is approved, denied, or expires.
type AuthorizationPoller struct {
	clientID   string
	endpoints  Endpoints
	httpClient *http.Client

	// slowDown is the interval increment applied on slow_down responses.
	// Overridable in tests; defaults to slowDownIncrement.
	slowDown time.Duration
}

// NewAuthorizationPoller creates a poller for the given application.
func NewAuthorizationPoller(clientID string, endpoints Endpoints, httpClient *http.Client) *AuthorizationPoller {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &AuthorizationPoller{
		clientID:   clientID,
		endpoints:  endpoints,
		httpClient: httpClient,
		slowDown:   slowDownIncrement,
	}
}

// Poll waits for the user to approve the session and returns the issued
// token record. The loop sleeps for the session's interval between
// attempts, honours slow_down by growing the interval, and never issues a
// request at or past the session's ExpiresAt deadline. Cancelling ctx
// aborts the loop between requests without affecting any stored token.
//
// Terminal outcomes: a TokenRecord on approval, ErrAuthorizationDenied,
// ErrAuthorizationExpired, ctx.Err() on cancellation, or a *ProviderError
// for unexpected provider responses. Transient network failures are logged
// and retried on the next tick; the deadline bounds them.
func (p *AuthorizationPoller) Poll(ctx context.Context, session *DeviceCodeSession) (*TokenRecord, error) {
	interval := session.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for {
		remaining := time.Until(session.ExpiresAt)
		if remaining <= 0 {
			session.State = SessionExpired
			return nil, ErrAuthorizationExpired
		}

		// Sleep one interval, but never past the session deadline. If the
		// deadline lands inside the sleep, expire without another request.
		wait := interval
		deadlineHit := false
		if remaining <= wait {
			wait = remaining
			deadlineHit = true
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		if deadlineHit {
			session.State = SessionExpired
			return nil, ErrAuthorizationExpired
		}

		rec, err := p.exchange(ctx, session)
		if err == nil {
			session.State = SessionApproved
			return rec, nil
		}

		var perr *ProviderError
		switch {
		case errors.As(err, &perr):
			switch perr.Code {
			case "authorization_pending":
				logging.Debug("OAuth", "Authorization pending, next poll in %s", interval)
			case "slow_down":
				interval += p.slowDown
				logging.Debug("OAuth", "Provider asked to slow down, interval now %s", interval)
			case "access_denied":
				session.State = SessionDenied
				return nil, ErrAuthorizationDenied
			case "expired_token":
				session.State = SessionExpired
				return nil, ErrAuthorizationExpired
			default:
				return nil, perr
			}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			// Transient network failure; the session deadline bounds the
			// number of retries.
			logging.Warn("OAuth", "Poll attempt failed, retrying: %v", err)
		}
	}
}

// exchange performs one device-code token request.
func (p *AuthorizationPoller) exchange(ctx context.Context, session *DeviceCodeSession) (*TokenRecord, error) {
	data := url.Values{}
	data.Set("client_id", p.clientID)
	data.Set("device_code", session.DeviceCode)
	data.Set("grant_type", deviceGrantType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoints.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody providerErrorBody
		_ = json.Unmarshal(body, &errBody)
		return nil, &ProviderError{Status: resp.StatusCode, Code: errBody.code()}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	return tok.record(time.Now()), nil
}
