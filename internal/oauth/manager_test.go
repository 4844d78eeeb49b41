package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProvider is an httptest-backed identity provider covering the device
// and token endpoints.
type fakeProvider struct {
	srv *httptest.Server

	deviceRequests atomic.Int32
	refreshes      atomic.Int32
	exchanges      atomic.Int32

	// approveAfter is how many pending responses precede approval.
	approveAfter int32
}

func newFakeProvider(approveAfter int32) *fakeProvider {
	p := &fakeProvider{approveAfter: approveAfter}
	mux := http.NewServeMux()
	mux.HandleFunc("/device", p.handleDevice)
	mux.HandleFunc("/token", p.handleToken)
	p.srv = httptest.NewServer(mux)
	return p
}

func (p *fakeProvider) endpoints() Endpoints {
	return Endpoints{
		DeviceURL: p.srv.URL + "/device",
		TokenURL:  p.srv.URL + "/token",
	}
}

func (p *fakeProvider) handleDevice(w http.ResponseWriter, r *http.Request) {
	p.deviceRequests.Add(1)
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{
		"device_code": "dev-code-1",
		"user_code": "ABCDEFGH",
		"verification_uri": "https://www.twitch.tv/activate",
		"expires_in": 60,
		"interval": 1
	}`))
}

func (p *fakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch r.PostForm.Get("grant_type") {
	case "refresh_token":
		p.refreshes.Add(1)
		w.Write([]byte(`{
			"access_token": "refreshed-token",
			"refresh_token": "refresh-2",
			"expires_in": 14400,
			"scope": ["chat:read", "chat:edit"],
			"token_type": "bearer"
		}`))
	default:
		n := p.exchanges.Add(1)
		if n <= p.approveAfter {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"status":400,"message":"authorization_pending"}`))
			return
		}
		w.Write([]byte(`{
			"access_token": "device-token",
			"refresh_token": "refresh-1",
			"expires_in": 14400,
			"scope": ["chat:read", "chat:edit"],
			"token_type": "bearer"
		}`))
	}
}

func newTestManager(t *testing.T, provider *fakeProvider) *Manager {
	t.Helper()
	return NewManager(Config{
		ClientID:  "client-123",
		Scopes:    []string{"chat:read", "chat:edit"},
		TokenPath: filepath.Join(t.TempDir(), "oauth_token.json"),
		Endpoints: provider.endpoints(),
	})
}

func TestManager_AccessTokenWithoutCredentials(t *testing.T) {
	provider := newFakeProvider(0)
	defer provider.srv.Close()

	m := newTestManager(t, provider)

	_, err := m.AccessToken(context.Background())
	if !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("Expected ErrAuthenticationRequired, got %v", err)
	}
	if st := m.Status(); st.State != StateUnauthenticated {
		t.Errorf("Expected unauthenticated state, got %s", st.State)
	}
}

func TestManager_AuthorizeAndGetToken(t *testing.T) {
	provider := newFakeProvider(0)
	defer provider.srv.Close()

	m := newTestManager(t, provider)

	var promptedCode, promptedURI string
	m.prompt = func(code, uri string) {
		promptedCode, promptedURI = code, uri
	}

	if err := m.Authorize(context.Background(), false); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	if promptedCode != "ABCDEFGH" || promptedURI != "https://www.twitch.tv/activate" {
		t.Errorf("Expected prompt with user code and URI, got %q / %q", promptedCode, promptedURI)
	}

	tok, err := m.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if tok != "device-token" {
		t.Errorf("Expected device-token, got %q", tok)
	}
	if st := m.Status(); st.State != StateAuthenticated || !st.HasRefreshToken {
		t.Errorf("Expected authenticated status with refresh token, got %+v", st)
	}
}

func TestManager_AuthorizeIsNoOpWhenAuthenticated(t *testing.T) {
	provider := newFakeProvider(0)
	defer provider.srv.Close()

	m := newTestManager(t, provider)

	if err := m.Authorize(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	first := provider.deviceRequests.Load()

	if err := m.Authorize(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if provider.deviceRequests.Load() != first {
		t.Error("Authorize without force must not start a new session when already authenticated")
	}
}

func TestManager_ForceDiscardsValidToken(t *testing.T) {
	provider := newFakeProvider(0)
	defer provider.srv.Close()

	m := newTestManager(t, provider)

	if err := m.Authorize(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	first := provider.deviceRequests.Load()

	// The held token is still hours from expiry; force must discard it and
	// run a fresh device-code session anyway.
	if err := m.Authorize(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if provider.deviceRequests.Load() != first+1 {
		t.Error("Expected force to start a new device-code session")
	}
}

func TestManager_PersistedTokenSurvivesRestart(t *testing.T) {
	provider := newFakeProvider(0)
	defer provider.srv.Close()

	path := filepath.Join(t.TempDir(), "oauth_token.json")
	cfg := Config{
		ClientID:  "client-123",
		Scopes:    []string{"chat:read"},
		TokenPath: path,
		Endpoints: provider.endpoints(),
	}

	m1 := NewManager(cfg)
	if err := m1.Authorize(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	// A new manager instance picks up the persisted record.
	m2 := NewManager(cfg)
	tok, err := m2.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("Expected restart to reuse persisted token, got %v", err)
	}
	if tok != "device-token" {
		t.Errorf("Expected persisted token, got %q", tok)
	}
}

func TestManager_StaleTokenRefreshedExactlyOnce(t *testing.T) {
	provider := newFakeProvider(0)
	defer provider.srv.Close()

	path := filepath.Join(t.TempDir(), "oauth_token.json")
	store := NewTokenStore(path)
	now := time.Now()
	if err := store.Save(&TokenRecord{
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		TokenType:    "bearer",
		ExpiresAt:    now.Add(time.Minute), // inside the safety margin
		ObtainedAt:   now.Add(-4 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	m := NewManager(Config{
		ClientID:  "client-123",
		TokenPath: path,
		Endpoints: provider.endpoints(),
	})

	const callers = 8
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.AccessToken(context.Background())
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	if got := provider.refreshes.Load(); got != 1 {
		t.Errorf("Expected exactly one refresh for %d concurrent callers, got %d", callers, got)
	}
	for i, tok := range tokens {
		if tok != "refreshed-token" {
			t.Errorf("caller %d got %q, want refreshed-token", i, tok)
		}
	}
}

func TestManager_RevokedRefreshTokenDropsToUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":401,"message":"Invalid refresh token"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "oauth_token.json")
	store := NewTokenStore(path)
	now := time.Now()
	if err := store.Save(&TokenRecord{
		AccessToken:  "stale-token",
		RefreshToken: "revoked",
		TokenType:    "bearer",
		ExpiresAt:    now.Add(time.Minute),
		ObtainedAt:   now.Add(-4 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	m := NewManager(Config{
		ClientID:  "client-123",
		TokenPath: path,
		Endpoints: Endpoints{DeviceURL: srv.URL, TokenURL: srv.URL},
	})

	_, err := m.AccessToken(context.Background())
	if !errors.Is(err, ErrNeedsReauthorization) {
		t.Fatalf("Expected ErrNeedsReauthorization, got %v", err)
	}

	// The manager transitioned to Unauthenticated, not crashed, and the
	// dead record is gone from disk.
	if st := m.Status(); st.State != StateUnauthenticated {
		t.Errorf("Expected unauthenticated state, got %s", st.State)
	}
	if rec, _ := store.Load(); rec != nil {
		t.Error("Expected revoked token file to be removed")
	}

	_, err = m.AccessToken(context.Background())
	if !errors.Is(err, ErrAuthenticationRequired) {
		t.Errorf("Expected ErrAuthenticationRequired after revocation, got %v", err)
	}
}

func TestManager_Logout(t *testing.T) {
	provider := newFakeProvider(0)
	defer provider.srv.Close()

	m := newTestManager(t, provider)
	if err := m.Authorize(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	if err := m.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	_, err := m.AccessToken(context.Background())
	if !errors.Is(err, ErrAuthenticationRequired) {
		t.Errorf("Expected ErrAuthenticationRequired after logout, got %v", err)
	}
}

func TestManager_AuthorizePendingThenApproved(t *testing.T) {
	provider := newFakeProvider(2) // two pending responses before approval
	defer provider.srv.Close()

	m := newTestManager(t, provider)

	if err := m.Authorize(context.Background(), false); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if got := provider.exchanges.Load(); got != 3 {
		t.Errorf("Expected 3 token polls, got %d", got)
	}
}
