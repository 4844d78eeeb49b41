package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationRequired indicates no token is available at all.
	// The operator must run the device-code flow first.
	ErrAuthenticationRequired = errors.New("authentication required: run 'sombot auth' first")

	// ErrAuthorizationDenied indicates the user rejected the device-code
	// session on the verification page.
	ErrAuthorizationDenied = errors.New("authorization denied by the user")

	// ErrAuthorizationExpired indicates the device-code session expired
	// before the user approved it.
	ErrAuthorizationExpired = errors.New("device authorization expired before approval")

	// ErrNeedsReauthorization indicates the provider rejected the refresh
	// token as invalid or revoked. The stored credentials are useless and
	// the device-code flow has to be run again.
	ErrNeedsReauthorization = errors.New("refresh token rejected by provider: run 'sombot auth --force'")
)

// ProviderError is a non-2xx response from the provider's endpoints.
// Code carries the provider's error code (RFC 8628 "error" field, or the
// "message" field Twitch uses). The response body itself is never included
// since error descriptions can carry sensitive hints.
type ProviderError struct {
	// Status is the HTTP status code of the response.
	Status int

	// Code is the provider's machine-readable error code, e.g.
	// "authorization_pending" or "invalid_grant". May be empty when the
	// body could not be parsed.
	Code string
}

func (e *ProviderError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("provider request failed with status %d", e.Status)
	}
	return fmt.Sprintf("provider request failed with status %d (%s)", e.Status, e.Code)
}

// providerErrorBody is the wire shape of an error response. Twitch answers
// {"status":400,"message":"authorization_pending"} while RFC 8628 providers
// answer {"error":"authorization_pending"}; both are accepted.
type providerErrorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Code    string `json:"error"`
}

// code returns the machine-readable error code regardless of wire shape.
func (b providerErrorBody) code() string {
	if b.Code != "" {
		return b.Code
	}
	return b.Message
}
