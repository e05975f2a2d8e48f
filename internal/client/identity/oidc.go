package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/common"
	"github.com/dmitrijs2005/greenmission/internal/logging"
)

const tokenKey = "oidc.token"

// Opener shows the provider's authorization page, normally by launching
// the system browser. An error means the challenge could not be shown.
type Opener interface {
	Open(authURL string) error
}

type OpenerFunc func(string) error

func (f OpenerFunc) Open(u string) error { return f(u) }

// CallbackReader returns the URL the browser was finally redirected to.
// It is used by the redirect variant, where no loopback listener runs.
type CallbackReader interface {
	ReadCallback(ctx context.Context) (string, error)
}

type CallbackReaderFunc func(context.Context) (string, error)

func (f CallbackReaderFunc) ReadCallback(ctx context.Context) (string, error) { return f(ctx) }

// TokenStore persists the provider token between runs.
type TokenStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	// RedirectURL is the loopback callback, e.g. http://127.0.0.1:0/callback.
	// Port 0 picks a free port per attempt.
	RedirectURL string
	Scopes      []string
	// UserAgent selects the redirect variant when it classifies as mobile.
	UserAgent string
	// RevokeURL is optional (RFC 7009).
	RevokeURL      string
	RestoreTimeout time.Duration
}

type storedToken struct {
	Token   *oauth2.Token `json:"token"`
	IDToken string        `json:"id_token"`
}

// OIDCProvider signs users in with the OAuth2 authorization code flow,
// PKCE and OpenID Connect ID tokens.
type OIDCProvider struct {
	oauth          *oauth2.Config
	verifier       *oidc.IDTokenVerifier
	opener         Opener
	callback       CallbackReader
	store          TokenStore
	log            logging.Logger
	redirect       bool
	revokeURL      string
	restoreTimeout time.Duration
	httpClient     *http.Client

	emitMu sync.Mutex

	mu      sync.Mutex
	current *models.Identity
	loaded  bool
	loading bool
	subs    map[int]func(*models.Identity)
	nextID  int
}

var _ Provider = (*OIDCProvider)(nil)

// NewOIDCProvider runs OIDC discovery against cfg.Issuer.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig, opener Opener, callback CallbackReader, store TokenStore, log logging.Logger) (*OIDCProvider, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oidc config missing required fields")
	}
	op, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	verifier := op.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return newOIDCProvider(cfg, op.Endpoint(), verifier, opener, callback, store, log), nil
}

func newOIDCProvider(cfg OIDCConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, opener Opener, callback CallbackReader, store TokenStore, log logging.Logger) *OIDCProvider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	timeout := cfg.RestoreTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OIDCProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		verifier:       verifier,
		opener:         opener,
		callback:       callback,
		store:          store,
		log:            log.With("module", "oidc"),
		redirect:       IsMobileUserAgent(cfg.UserAgent),
		revokeURL:      cfg.RevokeURL,
		restoreTimeout: timeout,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		subs:           make(map[int]func(*models.Identity)),
	}
}

func (p *OIDCProvider) SignIn(ctx context.Context) (*models.Identity, error) {
	state, err := common.RandomURLString(32)
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	var (
		cb          *url.URL
		redirectURI = p.oauth.RedirectURL
	)
	if p.redirect {
		cb, err = p.awaitRedirect(ctx, p.authURL(state, verifier, redirectURI))
	} else {
		cb, redirectURI, err = p.awaitLoopback(ctx, state, verifier)
	}
	if err != nil {
		return nil, err
	}

	code, err := parseCallback(cb, state)
	if err != nil {
		return nil, err
	}

	tok, err := p.oauth.Exchange(ctx, code,
		oauth2.VerifierOption(verifier),
		oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	id, err := p.identityFromToken(ctx, tok)
	if err != nil {
		return nil, err
	}
	if err := p.saveToken(ctx, tok, id.IDToken); err != nil {
		p.log.Warn(ctx, "persist provider token", "error", err)
	}

	p.publish(id, false)
	return id.Clone(), nil
}

// SignOut clears the identity and the stored token first, then revokes the
// token remotely when a revocation endpoint is configured.
func (p *OIDCProvider) SignOut(ctx context.Context) error {
	var st *storedToken
	if raw, err := p.store.Get(ctx, tokenKey); err == nil && raw != nil {
		st = &storedToken{}
		if json.Unmarshal(raw, st) != nil {
			st = nil
		}
	}

	p.publish(nil, false)

	var errs []error
	if err := p.store.Delete(ctx, tokenKey); err != nil {
		errs = append(errs, err)
	}
	if st != nil && st.Token != nil && p.revokeURL != "" {
		t := st.Token.RefreshToken
		if t == "" {
			t = st.Token.AccessToken
		}
		if err := p.revoke(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *OIDCProvider) OnChange(fn func(*models.Identity)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	loaded := p.loaded
	start := !p.loaded && !p.loading
	if start {
		p.loading = true
	}
	p.mu.Unlock()

	switch {
	case loaded:
		p.emitMu.Lock()
		p.mu.Lock()
		cur := p.current.Clone()
		p.mu.Unlock()
		fn(cur)
		p.emitMu.Unlock()
	case start:
		go p.load()
	}

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *OIDCProvider) load() {
	ctx, cancel := context.WithTimeout(context.Background(), p.restoreTimeout)
	defer cancel()

	id, err := p.restore(ctx)
	if err != nil {
		p.log.Warn(ctx, "restore provider session", "error", err)
	}
	p.publish(id, true)
}

// publish sets the current identity and notifies subscribers. With
// onlyFirst set it is a no-op once an identity was already published.
func (p *OIDCProvider) publish(id *models.Identity, onlyFirst bool) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	if onlyFirst && p.loaded {
		p.loading = false
		p.mu.Unlock()
		return
	}
	p.current = id.Clone()
	p.loaded = true
	p.loading = false
	subs := make([]func(*models.Identity), 0, len(p.subs))
	for i := 0; i < p.nextID; i++ {
		if fn, ok := p.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(id.Clone())
	}
}

// restore returns the identity of the stored token, refreshing it when the
// ID token has expired. No stored token means no identity.
func (p *OIDCProvider) restore(ctx context.Context) (*models.Identity, error) {
	raw, err := p.store.Get(ctx, tokenKey)
	if err != nil || raw == nil {
		return nil, err
	}
	var st storedToken
	if err := json.Unmarshal(raw, &st); err != nil || st.Token == nil {
		return nil, p.store.Delete(ctx, tokenKey)
	}

	if id, err := p.verify(ctx, st.IDToken); err == nil {
		return id, nil
	}
	if st.Token.RefreshToken == "" {
		return nil, p.store.Delete(ctx, tokenKey)
	}

	stale := *st.Token
	stale.Expiry = time.Unix(1, 0)
	tok, err := p.oauth.TokenSource(ctx, &stale).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			// refresh token rejected
			return nil, p.store.Delete(ctx, tokenKey)
		}
		return nil, fmt.Errorf("refresh provider token: %w", err)
	}

	id, err := p.identityFromToken(ctx, tok)
	if err != nil {
		return nil, p.store.Delete(ctx, tokenKey)
	}
	if err := p.saveToken(ctx, tok, id.IDToken); err != nil {
		p.log.Warn(ctx, "persist provider token", "error", err)
	}
	return id, nil
}

func (p *OIDCProvider) authURL(state, verifier, redirectURI string) string {
	return p.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("redirect_uri", redirectURI))
}

// awaitLoopback is the popup variant: a one-shot HTTP listener on the
// loopback redirect address receives the authorization response.
func (p *OIDCProvider) awaitLoopback(ctx context.Context, state, verifier string) (*url.URL, string, error) {
	ru, err := url.Parse(p.oauth.RedirectURL)
	if err != nil {
		return nil, "", fmt.Errorf("redirect url: %w", err)
	}

	ln, err := net.Listen("tcp", ru.Host)
	if err != nil {
		return nil, "", fmt.Errorf("%w: listen %s: %v", ErrProviderBlocked, ru.Host, err)
	}
	actual := *ru
	actual.Host = ln.Addr().String()
	redirectURI := actual.String()

	path := ru.Path
	if path == "" {
		path = "/"
	}
	got := make(chan *url.URL, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		select {
		case got <- r.URL:
		default:
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>Sign-in complete. You can close this window.</body></html>"))
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	if err := p.opener.Open(p.authURL(state, verifier, redirectURI)); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrProviderBlocked, err)
	}

	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case u := <-got:
		return u, redirectURI, nil
	}
}

// awaitRedirect is the redirect variant: the user leaves for the provider
// and comes back with the callback URL.
func (p *OIDCProvider) awaitRedirect(ctx context.Context, authURL string) (*url.URL, error) {
	if err := p.opener.Open(authURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderBlocked, err)
	}
	raw, err := p.callback.ReadCallback(ctx)
	if err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrProviderCancelled
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("callback url: %w", err)
	}
	return u, nil
}

func parseCallback(u *url.URL, state string) (string, error) {
	q := u.Query()
	if e := q.Get("error"); e != "" {
		if e == "access_denied" {
			return "", errAccessDenied
		}
		return "", fmt.Errorf("provider error %s: %s", e, q.Get("error_description"))
	}
	if q.Get("state") != state {
		return "", errors.New("oauth state mismatch")
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("callback without authorization code")
	}
	return code, nil
}

func (p *OIDCProvider) identityFromToken(ctx context.Context, tok *oauth2.Token) (*models.Identity, error) {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return nil, errors.New("provider did not return id_token")
	}
	return p.verify(ctx, raw)
}

func (p *OIDCProvider) verify(ctx context.Context, raw string) (*models.Identity, error) {
	if raw == "" {
		return nil, errors.New("empty id_token")
	}
	idt, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}

	var claims struct {
		Subject       string `json:"sub"`
		Name          string `json:"name"`
		Email         string `json:"email"`
		Picture       string `json:"picture"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idt.Claims(&claims); err != nil {
		return nil, fmt.Errorf("id_token claims: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("id_token missing subject")
	}

	return &models.Identity{
		Subject:       claims.Subject,
		DisplayName:   claims.Name,
		Email:         claims.Email,
		PhotoURL:      claims.Picture,
		EmailVerified: claims.EmailVerified,
		IDToken:       raw,
	}, nil
}

func (p *OIDCProvider) saveToken(ctx context.Context, tok *oauth2.Token, idToken string) error {
	raw, err := json.Marshal(storedToken{Token: tok, IDToken: idToken})
	if err != nil {
		return err
	}
	return p.store.Set(ctx, tokenKey, raw)
}

func (p *OIDCProvider) revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}, "client_id": {p.oauth.ClientID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke: status %d", resp.StatusCode)
	}
	return nil
}
