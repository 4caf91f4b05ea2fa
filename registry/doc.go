// Package registry talks to the external credential-registration service
// that stores device client credentials.
//
// # Key Components
//
// HTTPRegistrationClient implements interfaces.RegistrationClient over the
// service's REST API. Non-2xx responses are returned as *StatusError, which
// wraps interfaces.ErrRegistrationFailed. Deleting a client that does not
// exist succeeds.
//
// ClientCredentialsTokenSource implements interfaces.TokenSource with the
// OAuth2 client credentials grant. A new token is requested for every call so
// each registration operation carries a fresh token.
//
// MockRegistrationClient and MockTokenSource are testify mocks for callers'
// tests.
package registry
