package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"sombot/pkg/logging"
)

// State is the manager's position in the authentication lifecycle.
type State int

const (
	// StateUnauthenticated means no usable token record is held.
	StateUnauthenticated State = iota
	// StateAuthorizing means a device-code flow is in progress.
	StateAuthorizing
	// StateAuthenticated means a token record is held and kept fresh.
	StateAuthenticated
)

// String makes State satisfy fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// PromptFunc presents the user code and verification page to the operator.
// The manager never prints; presentation belongs to the CLI layer.
type PromptFunc func(userCode, verificationURI string)

// Config carries everything the Manager needs. ClientID, Scopes, and
// TokenPath come from the application config; the rest default sensibly.
type Config struct {
	ClientID      string
	Scopes        []string
	TokenPath     string
	Endpoints     Endpoints     // zero value selects TwitchEndpoints
	HTTPClient    *http.Client  // nil selects a client with a 30s timeout
	RefreshMargin time.Duration // zero selects DefaultRefreshMargin
	Prompt        PromptFunc
}

// Manager is the facade the rest of the application sees: an always-valid
// access token provider. It composes the device authorizer, poller, store,
// and refresher, and cycles Unauthenticated -> Authorizing -> Authenticated
// -> Unauthenticated for the life of the process.
//
// All read-decide-refresh-write steps on the held record run under one
// exclusive lock, so two callers can never race a refresh on the same
// stale refresh token.
type Manager struct {
	mu          sync.Mutex
	state       State
	record      *TokenRecord
	authorizing bool

	clientID   string
	scopes     []string
	authorizer *DeviceAuthorizer
	poller     *AuthorizationPoller
	store      *TokenStore
	refresher  *TokenRefresher
	prompt     PromptFunc
}

// NewManager builds a manager and loads any persisted token record.
// A corrupt or missing token file simply starts the manager out
// unauthenticated.
func NewManager(cfg Config) *Manager {
	endpoints := cfg.Endpoints
	if endpoints.DeviceURL == "" || endpoints.TokenURL == "" {
		endpoints = TwitchEndpoints()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	store := NewTokenStore(cfg.TokenPath)

	m := &Manager{
		clientID:   cfg.ClientID,
		scopes:     cfg.Scopes,
		authorizer: NewDeviceAuthorizer(cfg.ClientID, cfg.Scopes, endpoints, httpClient),
		poller:     NewAuthorizationPoller(cfg.ClientID, endpoints, httpClient),
		store:      store,
		refresher:  NewTokenRefresher(cfg.ClientID, endpoints, httpClient, store, cfg.RefreshMargin),
		prompt:     cfg.Prompt,
	}

	rec, _ := store.Load()
	if rec != nil {
		m.record = rec
		m.state = StateAuthenticated
		logging.Info("OAuth", "Loaded persisted token (expires %s)", rec.ExpiresAt)
	}

	return m
}

// ClientID returns the application's client id, needed by API callers that
// must send it alongside the bearer token.
func (m *Manager) ClientID() string {
	return m.clientID
}

// AccessToken returns an access token with at least the safety margin of
// validity remaining, refreshing first when the held record is near or
// past expiry. Concurrent callers are safe and share one refresh.
//
// Returns ErrAuthenticationRequired when no record is held, and
// ErrNeedsReauthorization when the provider revoked the refresh token (the
// manager drops to Unauthenticated in that case; the operator must rerun
// the device flow).
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.record == nil {
		return "", ErrAuthenticationRequired
	}

	rec, err := m.refresher.EnsureValid(ctx, m.record)
	if err != nil {
		if errors.Is(err, ErrNeedsReauthorization) {
			// The stored credentials are dead; discard them so the next
			// caller gets a clean ErrAuthenticationRequired.
			m.record = nil
			m.state = StateUnauthenticated
			if derr := m.store.Delete(); derr != nil {
				logging.Warn("OAuth", "Failed to remove revoked token file: %v", derr)
			}
		}
		return "", err
	}

	m.record = rec
	m.state = StateAuthenticated
	return rec.AccessToken, nil
}

// Authorize runs the device-code flow. With force set it discards any
// existing token first, even one that is still valid (used to pick up
// newly required scopes). Without force it is a no-op when credentials are
// already held. The flow is bounded by the session's own expiry and can be
// cancelled via ctx without affecting already-authenticated state.
func (m *Manager) Authorize(ctx context.Context, force bool) error {
	m.mu.Lock()
	if m.authorizing {
		m.mu.Unlock()
		return fmt.Errorf("an authorization flow is already in progress")
	}
	if !force && m.record != nil {
		m.mu.Unlock()
		return nil
	}
	if m.record != nil {
		m.record = nil
	}
	m.authorizing = true
	m.state = StateAuthorizing
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.authorizing = false
		if m.record == nil {
			m.state = StateUnauthenticated
		}
		m.mu.Unlock()
	}()

	if force {
		if err := m.store.Delete(); err != nil {
			logging.Warn("OAuth", "Failed to remove previous token file: %v", err)
		}
	}

	session, err := m.authorizer.RequestDeviceCode(ctx)
	if err != nil {
		return err
	}

	if m.prompt != nil {
		m.prompt(session.UserCode, session.VerificationURI)
	}

	rec, err := m.poller.Poll(ctx, session)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.record = rec
	m.state = StateAuthenticated
	m.mu.Unlock()

	if err := m.store.Save(rec); err != nil {
		logging.Warn("OAuth", "Failed to persist token, state will not survive a restart: %v", err)
	}

	logging.Info("OAuth", "Authorization complete (scopes: %d, expires %s)", len(rec.Scope), rec.ExpiresAt)
	return nil
}

// Logout discards the held record and the persisted file.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.record = nil
	m.state = StateUnauthenticated
	m.mu.Unlock()

	return m.store.Delete()
}

// Status is a snapshot of the manager for display purposes. It carries no
// token values.
type Status struct {
	State           State
	Scope           []string
	ExpiresAt       time.Time
	ObtainedAt      time.Time
	HasRefreshToken bool
	TokenPath       string
}

// Status reports the current authentication state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:     m.state,
		TokenPath: m.store.Path(),
	}
	if m.record != nil {
		st.Scope = append([]string(nil), m.record.Scope...)
		st.ExpiresAt = m.record.ExpiresAt
		st.ObtainedAt = m.record.ObtainedAt
		st.HasRefreshToken = m.record.RefreshToken != ""
	}
	return st
}

// StartAutoRefresh launches a background goroutine that renews the token
// shortly before it expires. The timer is sized to the token's remaining
// lifetime rather than polling on a fixed interval. The goroutine exits
// when ctx is cancelled or when the credentials become unusable.
func (m *Manager) StartAutoRefresh(ctx context.Context) {
	go m.autoRefreshLoop(ctx)
}

func (m *Manager) autoRefreshLoop(ctx context.Context) {
	for {
		m.mu.Lock()
		rec := m.record
		m.mu.Unlock()

		if rec == nil {
			logging.Debug("OAuth", "Auto-refresh stopping: no credentials held")
			return
		}

		wait := time.Until(rec.ExpiresAt) - m.refresher.Margin()
		if wait < time.Second {
			wait = time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := m.AccessToken(ctx); err != nil {
			if errors.Is(err, ErrNeedsReauthorization) || errors.Is(err, ErrAuthenticationRequired) {
				logging.Warn("OAuth", "Auto-refresh stopping, re-authorization required: %v", err)
				return
			}
			// Transient failure; try again on the next wakeup rather than
			// hammering the endpoint.
			logging.Warn("OAuth", "Auto-refresh attempt failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Minute):
			}
		}
	}
}
