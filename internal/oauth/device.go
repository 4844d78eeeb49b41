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

	"sombot/pkg/logging"
)

// defaultHTTPTimeout bounds individual requests to the provider.
const defaultHTTPTimeout = 30 * time.Second

// DeviceAuthorizer initiates device-code sessions against the provider.
// It is a pure request/response client and retains no state between calls.
type DeviceAuthorizer struct {
	clientID   string
	scopes     []string
	endpoints  Endpoints
	httpClient *http.Client
}

// NewDeviceAuthorizer creates a DeviceAuthorizer for the given application.
func NewDeviceAuthorizer(clientID string, scopes []string, endpoints Endpoints, httpClient *http.Client) *DeviceAuthorizer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &DeviceAuthorizer{
		clientID:   clientID,
		scopes:     scopes,
		endpoints:  endpoints,
		httpClient: httpClient,
	}
}

// RequestDeviceCode asks the provider to open a new device-code session.
// The returned session's UserCode and VerificationURI must be shown to the
// operator so they can approve the authorization in a browser.
func (a *DeviceAuthorizer) RequestDeviceCode(ctx context.Context) (*DeviceCodeSession, error) {
	data := url.Values{}
	data.Set("client_id", a.clientID)
	data.Set("scopes", strings.Join(a.scopes, " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoints.DeviceURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create device code request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("device code request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read device code response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody providerErrorBody
		_ = json.Unmarshal(body, &errBody)
		return nil, &ProviderError{Status: resp.StatusCode, Code: errBody.code()}
	}

	var dc deviceCodeResponse
	if err := json.Unmarshal(body, &dc); err != nil {
		return nil, fmt.Errorf("failed to parse device code response: %w", err)
	}

	now := time.Now()
	session := &DeviceCodeSession{
		DeviceCode:      dc.DeviceCode,
		UserCode:        dc.UserCode,
		VerificationURI: dc.VerificationURI,
		ExpiresAt:       now.Add(time.Duration(dc.ExpiresIn) * time.Second),
		Interval:        time.Duration(dc.Interval) * time.Second,
		State:           SessionPending,
	}
	if session.Interval <= 0 {
		// RFC 8628 default when the provider omits the interval.
		session.Interval = 5 * time.Second
	}

	logging.Debug("OAuth", "Device code session opened (expires in %ds, interval %s)",
		dc.ExpiresIn, session.Interval)

	return session, nil
}
