package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"sombot/pkg/logging"
)

// DefaultRefreshMargin is how long before expiry a token is renewed. A
// token handed to a caller always has at least this much validity left.
const DefaultRefreshMargin = 10 * time.Minute

// TokenRefresher decides when a token needs renewal and performs the
// refresh exchange. Concurrent EnsureValid calls are coalesced into a
// single network request via singleflight: late callers wait for and share
// the in-flight result instead of spending the refresh token twice.
type TokenRefresher struct {
	clientID   string
	endpoints  Endpoints
	httpClient *http.Client
	store      *TokenStore
	margin     time.Duration

	group singleflight.Group
}

// NewTokenRefresher creates a refresher that persists renewed records via
// the given store. A margin of zero selects DefaultRefreshMargin.
func NewTokenRefresher(clientID string, endpoints Endpoints, httpClient *http.Client, store *TokenStore, margin time.Duration) *TokenRefresher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	return &TokenRefresher{
		clientID:   clientID,
		endpoints:  endpoints,
		httpClient: httpClient,
		store:      store,
		margin:     margin,
	}
}

// Margin returns the refresh safety margin in effect.
func (r *TokenRefresher) Margin() time.Duration {
	return r.margin
}

// EnsureValid returns a record with at least the safety margin of validity
// remaining: the same record when it is still fresh, otherwise the result
// of a refresh exchange. A refresh rejected because the refresh token is
// invalid or revoked returns ErrNeedsReauthorization; network failures are
// surfaced once, never silently retried.
func (r *TokenRefresher) EnsureValid(ctx context.Context, rec *TokenRecord) (*TokenRecord, error) {
	if rec == nil {
		return nil, ErrAuthenticationRequired
	}
	if !rec.IsExpired(r.margin) {
		return rec, nil
	}

	if rec.RefreshToken == "" {
		return nil, ErrNeedsReauthorization
	}

	result, err, shared := r.group.Do("refresh", func() (interface{}, error) {
		return r.refresh(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.Debug("OAuth", "Joined in-flight refresh instead of issuing a duplicate")
	}

	return result.(*TokenRecord), nil
}

// refresh performs the refresh_token grant and persists the new record.
func (r *TokenRefresher) refresh(ctx context.Context, old *TokenRecord) (*TokenRecord, error) {
	data := url.Values{}
	data.Set("client_id", r.clientID)
	data.Set("refresh_token", old.RefreshToken)
	data.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoints.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody providerErrorBody
		_ = json.Unmarshal(body, &errBody)

		// 4xx means the provider looked at the refresh token and rejected
		// it; only a fresh device-code flow can recover. 5xx is transient
		// and surfaced to the caller as-is.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			logging.Info("OAuth", "Refresh token rejected (status %d, %s)", resp.StatusCode, errBody.code())
			return nil, ErrNeedsReauthorization
		}
		return nil, &ProviderError{Status: resp.StatusCode, Code: errBody.code()}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}

	rec := tok.record(time.Now())

	// Providers may omit the refresh token on renewal; keep using the old one.
	if rec.RefreshToken == "" {
		rec.RefreshToken = old.RefreshToken
	}
	if len(rec.Scope) == 0 {
		rec.Scope = old.Scope
	}

	// Persistence failure is not fatal: the in-memory record stays valid,
	// it just will not survive a restart.
	if r.store != nil {
		if err := r.store.Save(rec); err != nil {
			logging.Warn("OAuth", "Failed to persist refreshed token, state will not survive a restart: %v", err)
		}
	}

	logging.Debug("OAuth", "Token refreshed, now expires %s", rec.ExpiresAt)
	return rec, nil
}
