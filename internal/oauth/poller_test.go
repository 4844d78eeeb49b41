package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTokenEndpoint answers each poll according to the scripted responses,
// then keeps repeating the last one. Each entry is either a provider error
// code or "ok" for a successful token response.
func fakeTokenEndpoint(t *testing.T, polls *atomic.Int32, script []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(polls.Add(1)) - 1
		if n >= len(script) {
			n = len(script) - 1
		}

		w.Header().Set("Content-Type", "application/json")
		switch script[n] {
		case "ok":
			w.Write([]byte(`{
				"access_token": "granted-token",
				"refresh_token": "granted-refresh",
				"expires_in": 14400,
				"scope": ["chat:read", "chat:edit"],
				"token_type": "bearer"
			}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"status":400,"message":%q}`, script[n])
		}
	}))
}

func testSession(interval, lifetime time.Duration) *DeviceCodeSession {
	return &DeviceCodeSession{
		DeviceCode:      "dev-code-1",
		UserCode:        "ABCDEFGH",
		VerificationURI: "https://www.twitch.tv/activate",
		ExpiresAt:       time.Now().Add(lifetime),
		Interval:        interval,
		State:           SessionPending,
	}
}

func TestPoller_ApprovedAfterPending(t *testing.T) {
	var polls atomic.Int32
	srv := fakeTokenEndpoint(t, &polls, []string{
		"authorization_pending",
		"authorization_pending",
		"authorization_pending",
		"authorization_pending",
		"ok",
	})
	defer srv.Close()

	p := NewAuthorizationPoller("client-123", Endpoints{TokenURL: srv.URL}, nil)
	session := testSession(10*time.Millisecond, 500*time.Millisecond)

	rec, err := p.Poll(context.Background(), session)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if rec.AccessToken != "granted-token" {
		t.Errorf("Expected granted token, got %q", rec.AccessToken)
	}
	if session.State != SessionApproved {
		t.Errorf("Expected approved session, got %s", session.State)
	}
	if got := polls.Load(); got != 5 {
		t.Errorf("Expected approval on poll 5, got %d polls", got)
	}
}

func TestPoller_ExpiresAtDeadline(t *testing.T) {
	var polls atomic.Int32
	srv := fakeTokenEndpoint(t, &polls, []string{"authorization_pending"})
	defer srv.Close()

	p := NewAuthorizationPoller("client-123", Endpoints{TokenURL: srv.URL}, nil)

	// interval=5 units, expires_in=30 units: at most 6 polls, and the
	// failure lands at the deadline without a further request.
	session := testSession(10*time.Millisecond, 60*time.Millisecond)
	start := time.Now()

	_, err := p.Poll(context.Background(), session)
	if !errors.Is(err, ErrAuthorizationExpired) {
		t.Fatalf("Expected ErrAuthorizationExpired, got %v", err)
	}
	if session.State != SessionExpired {
		t.Errorf("Expected expired session, got %s", session.State)
	}

	if got := polls.Load(); got > 6 {
		t.Errorf("Expected at most 6 polls, got %d", got)
	}

	// The poller must not have kept polling past the deadline.
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Poll ran far past the session deadline: %s", elapsed)
	}
}

func TestPoller_NoPollOnAlreadyExpiredSession(t *testing.T) {
	var polls atomic.Int32
	srv := fakeTokenEndpoint(t, &polls, []string{"ok"})
	defer srv.Close()

	p := NewAuthorizationPoller("client-123", Endpoints{TokenURL: srv.URL}, nil)
	session := testSession(10*time.Millisecond, -time.Second)

	_, err := p.Poll(context.Background(), session)
	if !errors.Is(err, ErrAuthorizationExpired) {
		t.Fatalf("Expected ErrAuthorizationExpired, got %v", err)
	}
	if got := polls.Load(); got != 0 {
		t.Errorf("Expected zero polls for an expired session, got %d", got)
	}
}

func TestPoller_SlowDownIncreasesInterval(t *testing.T) {
	var polls atomic.Int32
	var timestamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timestamps = append(timestamps, time.Now())
		n := polls.Add(1)

		w.Header().Set("Content-Type", "application/json")
		if n <= 2 {
			w.WriteHeader(http.StatusBadRequest)
			if n == 1 {
				w.Write([]byte(`{"error":"slow_down"}`))
			} else {
				w.Write([]byte(`{"error":"authorization_pending"}`))
			}
			return
		}
		w.Write([]byte(`{"access_token":"tok","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	p := NewAuthorizationPoller("client-123", Endpoints{TokenURL: srv.URL}, nil)
	p.slowDown = 30 * time.Millisecond
	session := testSession(20*time.Millisecond, 30*time.Second)

	if _, err := p.Poll(context.Background(), session); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	if len(timestamps) != 3 {
		t.Fatalf("Expected 3 polls, got %d", len(timestamps))
	}

	// After slow_down the gap must include the fixed increment on top of
	// the base interval, and it must never shrink again.
	firstGap := timestamps[1].Sub(timestamps[0])
	secondGap := timestamps[2].Sub(timestamps[1])
	grown := 20*time.Millisecond + p.slowDown

	if firstGap < grown {
		t.Errorf("Expected post-slow_down gap >= %s, got %s", grown, firstGap)
	}
	if secondGap < grown {
		t.Errorf("Interval decreased after slow_down: %s < %s", secondGap, grown)
	}
}

func TestPoller_AccessDenied(t *testing.T) {
	var polls atomic.Int32
	srv := fakeTokenEndpoint(t, &polls, []string{"access_denied"})
	defer srv.Close()

	p := NewAuthorizationPoller("client-123", Endpoints{TokenURL: srv.URL}, nil)
	session := testSession(10*time.Millisecond, time.Minute)

	_, err := p.Poll(context.Background(), session)
	if !errors.Is(err, ErrAuthorizationDenied) {
		t.Fatalf("Expected ErrAuthorizationDenied, got %v", err)
	}
	if session.State != SessionDenied {
		t.Errorf("Expected denied session, got %s", session.State)
	}
	if got := polls.Load(); got != 1 {
		t.Errorf("Denial must stop the loop immediately, got %d polls", got)
	}
}

func TestPoller_ExpiredTokenCode(t *testing.T) {
	var polls atomic.Int32
	srv := fakeTokenEndpoint(t, &polls, []string{"expired_token"})
	defer srv.Close()

	p := NewAuthorizationPoller("client-123", Endpoints{TokenURL: srv.URL}, nil)
	session := testSession(10*time.Millisecond, time.Minute)

	_, err := p.Poll(context.Background(), session)
	if !errors.Is(err, ErrAuthorizationExpired) {
		t.Fatalf("Expected ErrAuthorizationExpired, got %v", err)
	}
}

func TestPoller_Cancellation(t *testing.T) {
	var polls atomic.Int32
	srv := fakeTokenEndpoint(t, &polls, []string{"authorization_pending"})
	defer srv.Close()

	p := NewAuthorizationPoller("client-123", Endpoints{TokenURL: srv.URL}, nil)
	session := testSession(50*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(75 * time.Millisecond)
		cancel()
	}()

	_, err := p.Poll(ctx, session)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestPoller_UnexpectedProviderError(t *testing.T) {
	var polls atomic.Int32
	srv := fakeTokenEndpoint(t, &polls, []string{"invalid_client"})
	defer srv.Close()

	p := NewAuthorizationPoller("client-123", Endpoints{TokenURL: srv.URL}, nil)
	session := testSession(10*time.Millisecond, time.Minute)

	_, err := p.Poll(context.Background(), session)
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected *ProviderError, got %v", err)
	}
	if perr.Code != "invalid_client" {
		t.Errorf("Expected invalid_client code, got %q", perr.Code)
	}
}
