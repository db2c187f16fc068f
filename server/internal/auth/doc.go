// Package auth provides API key authentication for wattboard-server.
//
// APIKeyInterceptor guards the gRPC receiver and HTTPMiddleware guards the
// operator endpoints of the REST API. Both read the key from a named header
// and compare it in constant time. When mode != "apikey" or the expected key
// is empty, everything passes through (local development with auth off).
package auth
