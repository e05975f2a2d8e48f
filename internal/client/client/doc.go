// Package client talks to the greenmission backend and bootstraps the
// client's local database.
//
// HTTPClient implements API, the JSON profile endpoint: credential exchange,
// GET/PATCH /me, logout and avatar upload URLs. Responses use the
// {success, message, data} envelope. Failures are reported as sentinel
// errors matched with errors.Is:
//
//   - ErrUnauthorized: 401, the bearer credential was rejected
//   - ErrServer: any other failed response (see APIError)
//   - ErrUnavailable: the server could not be reached
//
// HealthClient pings the gRPC health service.
//
// InitDatabase opens the SQLite file and applies the embedded goose
// migrations; NewRepositories wires the metadata and snapshot stores on it.
package client
