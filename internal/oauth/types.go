package oauth

import (
	"encoding/json"
	"strings"
	"time"
)

// Endpoints holds the provider URLs used by the device-code flow.
type Endpoints struct {
	// DeviceURL issues device-code sessions.
	DeviceURL string

	// TokenURL exchanges device codes and refresh tokens for access tokens.
	TokenURL string
}

// TwitchEndpoints returns the production Twitch identity endpoints.
func TwitchEndpoints() Endpoints {
	return Endpoints{
		DeviceURL: "https://id.twitch.tv/oauth2/device",
		TokenURL:  "https://id.twitch.tv/oauth2/token",
	}
}

// SessionState is the lifecycle state of a device-code session.
type SessionState int

const (
	// SessionPending means the user has not acted on the session yet.
	SessionPending SessionState = iota
	// SessionApproved means the user approved and a token was issued.
	SessionApproved
	// SessionDenied means the user rejected the session.
	SessionDenied
	// SessionExpired means the session ran out before the user approved.
	SessionExpired
)

// String makes SessionState satisfy fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case SessionPending:
		return "pending"
	case SessionApproved:
		return "approved"
	case SessionDenied:
		return "denied"
	case SessionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// DeviceCodeSession describes one in-flight device-code authorization.
// It is created by DeviceAuthorizer, advanced only by AuthorizationPoller,
// and discarded once it reaches a terminal state.
type DeviceCodeSession struct {
	// DeviceCode is the opaque code the poller presents to the token
	// endpoint. Never shown to the user.
	DeviceCode string

	// UserCode is the short code the user enters on the verification page.
	UserCode string

	// VerificationURI is the page the user visits to approve the session.
	VerificationURI string

	// ExpiresAt is the wall-clock deadline of the session. No poll is
	// issued at or after this instant.
	ExpiresAt time.Time

	// Interval is the initial wait between polls, as dictated by the
	// provider. The effective interval can only grow (slow_down).
	Interval time.Duration

	// State tracks the session through the poll loop.
	State SessionState
}

// TokenRecord is the authoritative credential set. Records are always
// replaced as a whole, never field-patched.
type TokenRecord struct {
	// AccessToken is the bearer token used for IRC login and Helix calls.
	AccessToken string `json:"access_token"`

	// RefreshToken renews the access token without user interaction.
	// May be empty if the provider did not issue one.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the set of scopes the provider actually granted.
	Scope []string `json:"scope,omitempty"`

	// TokenType is typically "bearer".
	TokenType string `json:"token_type"`

	// ExpiresAt is the calculated expiration timestamp.
	ExpiresAt time.Time `json:"expires_at"`

	// ObtainedAt is when this record was issued or last refreshed.
	ObtainedAt time.Time `json:"obtained_at"`
}

// IsExpired reports whether the token is expired or will expire within the
// given margin. Records without an expiry never expire.
func (r *TokenRecord) IsExpired(margin time.Duration) bool {
	if r.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(r.ExpiresAt)
}

// deviceCodeResponse is the wire shape of a device-code issuance response.
type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// tokenResponse is the wire shape of a successful token endpoint response.
type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"`
	Scope        scopeList `json:"scope"`
	TokenType    string    `json:"token_type"`
}

// record converts a wire response into a TokenRecord anchored at now.
func (t tokenResponse) record(now time.Time) *TokenRecord {
	rec := &TokenRecord{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Scope:        t.Scope,
		TokenType:    t.TokenType,
		ObtainedAt:   now,
	}
	if t.ExpiresIn > 0 {
		rec.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return rec
}

// scopeList tolerates both wire encodings of granted scopes: Twitch sends
// a JSON array, RFC 6749 providers send a single space-separated string.
type scopeList []string

func (s *scopeList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*s = arr
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	*s = strings.Fields(joined)
	return nil
}
