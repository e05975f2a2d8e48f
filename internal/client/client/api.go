package client

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/greenmission/internal/client/models"
)

// API is the profile endpoint contract used by the session layer.
type API interface {
	// Exchange trades a provider ID token for a bearer credential.
	Exchange(ctx context.Context, idToken string) (*ExchangeResult, error)
	Me(ctx context.Context, token string) (*models.Profile, error)
	PatchProfile(ctx context.Context, token string, patch ProfilePatch) (*models.Profile, error)
	Logout(ctx context.Context, token string) error
	AvatarUploadURL(ctx context.Context, token, contentType string) (*AvatarUpload, error)
}

type ExchangeResult struct {
	Token     string          `json:"token"`
	TokenType string          `json:"token_type"`
	User      *models.Profile `json:"user"`
}

type AvatarUpload struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ProfilePatch is a partial profile update. Nil fields are left out of the
// request. ClearWallet sends an explicit null wallet address.
type ProfilePatch struct {
	Name          *string
	PhotoURL      *string
	WalletAddress *string
	ClearWallet   bool
}

func (p ProfilePatch) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 3)
	if p.Name != nil {
		m["name"] = *p.Name
	}
	if p.PhotoURL != nil {
		m["photo_url"] = *p.PhotoURL
	}
	switch {
	case p.ClearWallet:
		m["wallet_address"] = nil
	case p.WalletAddress != nil:
		m["wallet_address"] = *p.WalletAddress
	}
	return json.Marshal(m)
}

// envelope is the API's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}
