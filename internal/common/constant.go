// Package common contains constants, sentinel errors and small helpers
// shared by the client and the server.
package common

const (
	// AuthorizationHeader carries the bearer credential on API requests.
	AuthorizationHeader = "Authorization"
	// BearerPrefix precedes the credential inside AuthorizationHeader.
	BearerPrefix = "Bearer "
	// TokenType is reported to clients next to an issued credential.
	TokenType = "Bearer"
)
