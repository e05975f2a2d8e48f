// Package profile resolves an identity into the application profile.
package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/greenmission/internal/client/client"
	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/logging"
)

type Result struct {
	Profile *models.Profile
	// Token is the bearer credential the profile was fetched with, or the
	// one just issued by the credential exchange.
	Token string
}

type Fetcher struct {
	api client.API
	log logging.Logger
}

func NewFetcher(api client.API, log logging.Logger) *Fetcher {
	return &Fetcher{api: api, log: log.With("module", "profile")}
}

// Fetch loads the profile for id. Without a bearer token it uses the one
// the identity carries, or else exchanges the identity's ID token for one. Errors match
// client.ErrUnauthorized, client.ErrServer or client.ErrUnavailable.
// There is no retry.
func (f *Fetcher) Fetch(ctx context.Context, id *models.Identity, token string) (*Result, error) {
	if id == nil {
		return nil, errors.New("profile fetch without identity")
	}

	if token == "" {
		token = id.AccessToken
	}
	if token == "" {
		if id.IDToken == "" {
			return nil, fmt.Errorf("%w: identity has no id token", client.ErrUnauthorized)
		}
		res, err := f.api.Exchange(ctx, id.IDToken)
		if err != nil {
			return nil, err
		}
		if err := check(res.User); err != nil {
			return nil, err
		}
		f.log.Debug(ctx, "credential issued", "uid", res.User.UID, "role", res.User.Role)
		return &Result{Profile: res.User, Token: res.Token}, nil
	}

	p, err := f.api.Me(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := check(p); err != nil {
		return nil, err
	}
	return &Result{Profile: p, Token: token}, nil
}

func check(p *models.Profile) error {
	if p == nil {
		return fmt.Errorf("%w: empty profile", client.ErrServer)
	}
	if !p.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", client.ErrServer, p.Role)
	}
	return nil
}
