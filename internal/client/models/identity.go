package models

// Identity is the subject record issued by the external identity provider.
// Only the identity source adapter creates or replaces it.
type Identity struct {
	// Subject is the provider's opaque, stable user id ("sub").
	Subject       string `json:"sub"`
	DisplayName   string `json:"name"`
	Email         string `json:"email"`
	PhotoURL      string `json:"picture"`
	EmailVerified bool   `json:"email_verified"`

	// IDToken is the raw provider token the API exchanges for a bearer
	// credential. It is never persisted.
	IDToken string `json:"-"`
	// AccessToken is a bearer credential the provider already holds, as
	// after a password login. It is never persisted by the session.
	AccessToken string `json:"-"`
}

// Clone returns a deep copy, or nil for a nil receiver.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
