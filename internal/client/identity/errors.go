package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/greenmission/internal/client/client"
)

var (
	// ErrProviderCancelled means the user dismissed the sign-in challenge.
	ErrProviderCancelled = errors.New("sign-in cancelled")
	// ErrProviderBlocked means the challenge could not be shown at all.
	ErrProviderBlocked = errors.New("sign-in window blocked")
	// ErrNetwork covers failures talking to the identity provider.
	ErrNetwork = errors.New("identity provider unreachable")
	// ErrCredentialsRejected means the API refused a password login or
	// registration. The wrapped *client.APIError carries its reason.
	ErrCredentialsRejected = errors.New("credentials rejected")
)

// errAccessDenied is returned by the provider's callback with error=access_denied.
var errAccessDenied = errors.New("access_denied")

// mapError converts provider errors into the sentinels above. Errors that
// already match one of them pass through unchanged.
func mapError(err error) error {
	var apiErr *client.APIError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrProviderCancelled),
		errors.Is(err, ErrProviderBlocked),
		errors.Is(err, ErrNetwork),
		errors.Is(err, ErrCredentialsRejected):
		return err
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return fmt.Errorf("%w: %w", ErrCredentialsRejected, err)
	case errors.Is(err, errAccessDenied),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrProviderCancelled, err)
	}

	// transport failures and any other provider error
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// Message returns the user-facing text for a sign-in failure, or "" when
// the failure must stay silent.
func Message(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrProviderCancelled):
		return ""
	case errors.Is(err, ErrProviderBlocked):
		return "The sign-in window could not be opened. Allow this app to open your browser and try again."
	case errors.Is(err, ErrCredentialsRejected):
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode != http.StatusUnauthorized && apiErr.Message != "" {
			return "Sign-in failed: " + apiErr.Message
		}
		return "Invalid email or password."
	default:
		return "Network error. Please check your internet connection and try again."
	}
}
