// Package identity adapts an external identity provider to the session
// layer: interactive sign-in, sign-out and a stream of identity changes.
package identity

import (
	"context"

	"github.com/dmitrijs2005/greenmission/internal/client/models"
)

// Provider is the vendor capability wrapped by Adapter.
type Provider interface {
	// SignIn runs the interactive challenge and returns the new identity.
	SignIn(ctx context.Context) (*models.Identity, error)
	// SignOut clears local provider state. It may fail on the remote
	// revocation step, but local state is cleared regardless.
	SignOut(ctx context.Context) error
	// OnChange calls fn with the current identity once it is known and
	// again on every change. fn must not call back into the provider.
	OnChange(fn func(*models.Identity)) (unsubscribe func())
}

// Source is what the session store consumes.
type Source interface {
	SignIn(ctx context.Context) (*models.Identity, error)
	SignOut(ctx context.Context) error
	OnIdentityChange(cb func(*models.Identity)) (unsubscribe func())
}
