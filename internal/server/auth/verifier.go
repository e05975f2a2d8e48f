package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"github.com/coreos/go-oidc/v3/oidc"
	"google.golang.org/api/option"

	"github.com/dmitrijs2005/greenmission/internal/common"
)

// Identity is what a verified identity token says about its holder.
type Identity struct {
	Subject       string
	Issuer        string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// TokenVerifier checks an identity token minted by a sign-in provider.
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*Identity, error)
}

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseVerifier accepts ID tokens issued by Firebase Authentication.
type FirebaseVerifier struct {
	client idTokenVerifier
}

// NewFirebaseVerifier initialises the Firebase Admin SDK. An empty
// credentialsFile falls back to application default credentials.
func NewFirebaseVerifier(ctx context.Context, credentialsFile, projectID string) (*FirebaseVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, rawIDToken string) (*Identity, error) {
	tok, err := v.client.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: firebase: %v", common.ErrInvalidToken, err)
	}
	id := &Identity{Subject: tok.UID, Issuer: tok.Issuer}
	if s, ok := tok.Claims["email"].(string); ok {
		id.Email = s
	}
	if b, ok := tok.Claims["email_verified"].(bool); ok {
		id.EmailVerified = b
	}
	if s, ok := tok.Claims["name"].(string); ok {
		id.Name = s
	}
	if s, ok := tok.Claims["picture"].(string); ok {
		id.Picture = s
	}
	return id, nil
}

// OIDCVerifier accepts ID tokens from a standard OpenID Connect issuer.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers issuer and checks tokens against clientID.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery %s: %w", issuer, err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawIDToken string) (*Identity, error) {
	tok, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: oidc: %v", common.ErrInvalidToken, err)
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := tok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: oidc claims: %v", common.ErrInvalidToken, err)
	}
	return &Identity{
		Subject:       tok.Subject,
		Issuer:        tok.Issuer,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

// MultiVerifier tries each verifier in order and returns the first success.
type MultiVerifier []TokenVerifier

func (m MultiVerifier) Verify(ctx context.Context, rawIDToken string) (*Identity, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: no verifier configured", common.ErrInvalidToken)
	}
	var errs []error
	for _, v := range m {
		id, err := v.Verify(ctx, rawIDToken)
		if err == nil {
			return id, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, errors.Join(errs...))
}
