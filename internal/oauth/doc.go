// Package oauth implements the OAuth device-code flow and token lifecycle
// for the bot's Twitch credentials.
//
// The package is organized around five pieces:
//
//   - DeviceAuthorizer starts a device-code session against the provider.
//   - AuthorizationPoller polls the token endpoint until the user approves
//     the session, bounded by the session's own expiry.
//   - TokenStore persists the current token record to disk atomically.
//   - TokenRefresher renews tokens near expiry, coalescing concurrent
//     refresh requests into a single exchange.
//   - Manager composes the above and is the only type the rest of the
//     application talks to: it hands out access tokens that are always
//     within their validity window, refreshing just in time.
//
// Token values never appear in logs or error messages; use RedactedToken
// when a token has to travel through display or debug paths.
package oauth
