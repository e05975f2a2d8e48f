package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/logging"
)

const testClientID = "greenmission-cli"

type memStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemStore() *memStore { return &memStore{m: map[string][]byte{}} }

func (s *memStore) Get(_ context.Context, k string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[k], nil
}

func (s *memStore) Set(_ context.Context, k string, v []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[k] = v
	return nil
}

func (s *memStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

type idp struct {
	t   *testing.T
	key *rsa.PrivateKey
	srv *httptest.Server

	mu            sync.Mutex
	lastForm      url.Values
	refreshStatus int
	revoked       []string
}

func newIDP(t *testing.T) *idp {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &idp{t: t, key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", p.token)
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		p.mu.Lock()
		p.revoked = append(p.revoked, r.PostForm.Get("token"))
		p.mu.Unlock()
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *idp) form(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastForm.Get(key)
}

func (p *idp) idToken(sub string, exp time.Time) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":            p.srv.URL,
		"aud":            testClientID,
		"sub":            sub,
		"name":           "Ada Lovelace",
		"email":          "ada@example.com",
		"email_verified": true,
		"picture":        "https://img.example.com/ada.png",
		"iat":            time.Now().Add(-time.Minute).Unix(),
		"exp":            exp.Unix(),
	})
	s, err := tok.SignedString(p.key)
	require.NoError(p.t, err)
	return s
}

func (p *idp) token(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	p.mu.Lock()
	p.lastForm = r.PostForm
	status := p.refreshStatus
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("code_verifier") == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
	case "refresh_token":
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "at-1",
		"token_type":    "Bearer",
		"refresh_token": "rt-1",
		"expires_in":    3600,
		"id_token":      p.idToken("sub-1", time.Now().Add(time.Hour)),
	})
}

func (p *idp) provider(cfg OIDCConfig, opener Opener, cb CallbackReader, store TokenStore) *OIDCProvider {
	cfg.ClientID = testClientID
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://127.0.0.1:0/callback"
	}
	verifier := oidc.NewVerifier(p.srv.URL,
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&p.key.PublicKey}},
		&oidc.Config{ClientID: testClientID})
	endpoint := oauth2.Endpoint{
		AuthURL:   p.srv.URL + "/auth",
		TokenURL:  p.srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return newOIDCProvider(cfg, endpoint, verifier, opener, cb, store, logging.Nop{})
}

// browserFollowing simulates the user approving (or denying) in the browser.
func browserFollowing(t *testing.T, query func(state string) string) OpenerFunc {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.NotEmpty(t, q.Get("code_challenge"))

		target := q.Get("redirect_uri") + "?" + query(q.Get("state"))
		go func() {
			resp, err := http.Get(target)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

func TestOIDCProvider_SignInLoopback(t *testing.T) {
	p := newIDP(t)
	store := newMemStore()
	prov := p.provider(OIDCConfig{}, browserFollowing(t, func(state string) string {
		return "code=good-code&state=" + url.QueryEscape(state)
	}), nil, store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := prov.SignIn(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", id.Subject)
	assert.Equal(t, "Ada Lovelace", id.DisplayName)
	assert.True(t, id.EmailVerified)
	assert.NotEmpty(t, id.IDToken)

	raw, _ := store.Get(ctx, tokenKey)
	assert.NotNil(t, raw, "provider token persisted")
}

func TestOIDCProvider_SignInDenied(t *testing.T) {
	p := newIDP(t)
	prov := p.provider(OIDCConfig{}, browserFollowing(t, func(state string) string {
		return "error=access_denied&state=" + url.QueryEscape(state)
	}), nil, newMemStore())
	a := NewAdapter(prov, logging.Nop{})

	_, err := a.SignIn(context.Background())
	assert.ErrorIs(t, err, ErrProviderCancelled)
}

func TestOIDCProvider_SignInStateMismatch(t *testing.T) {
	p := newIDP(t)
	prov := p.provider(OIDCConfig{}, browserFollowing(t, func(string) string {
		return "code=good-code&state=forged"
	}), nil, newMemStore())

	_, err := prov.SignIn(context.Background())
	assert.ErrorContains(t, err, "state mismatch")
}

func TestOIDCProvider_SignInBlocked(t *testing.T) {
	p := newIDP(t)
	prov := p.provider(OIDCConfig{}, OpenerFunc(func(string) error {
		return assert.AnError
	}), nil, newMemStore())

	_, err := prov.SignIn(context.Background())
	assert.ErrorIs(t, err, ErrProviderBlocked)
}

func TestOIDCProvider_SignInClosedWindow(t *testing.T) {
	p := newIDP(t)
	prov := p.provider(OIDCConfig{}, OpenerFunc(func(string) error { return nil }), nil, newMemStore())
	a := NewAdapter(prov, logging.Nop{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := a.SignIn(ctx)
	assert.ErrorIs(t, err, ErrProviderCancelled)
}

func TestOIDCProvider_RedirectVariantOnMobile(t *testing.T) {
	p := newIDP(t)
	var opened string
	opener := OpenerFunc(func(u string) error { opened = u; return nil })
	reader := CallbackReaderFunc(func(context.Context) (string, error) {
		u, err := url.Parse(opened)
		require.NoError(t, err)
		state := u.Query().Get("state")
		return "http://127.0.0.1:0/callback?code=good-code&state=" + url.QueryEscape(state) + "\n", nil
	})
	prov := p.provider(OIDCConfig{UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)"}, opener, reader, newMemStore())
	require.True(t, prov.redirect)

	id, err := prov.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sub-1", id.Subject)
	assert.Equal(t, "http://127.0.0.1:0/callback", p.form("redirect_uri"))
}

func TestOIDCProvider_RedirectVariantEmptyCancels(t *testing.T) {
	p := newIDP(t)
	prov := p.provider(OIDCConfig{UserAgent: "Android"},
		OpenerFunc(func(string) error { return nil }),
		CallbackReaderFunc(func(context.Context) (string, error) { return "\n", nil }),
		newMemStore())

	_, err := prov.SignIn(context.Background())
	assert.ErrorIs(t, err, ErrProviderCancelled)
}

func waitIdentity(t *testing.T, ch <-chan *models.Identity) *models.Identity {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("no identity event")
		return nil
	}
}

func storeToken(t *testing.T, s *memStore, idToken, refresh string) {
	t.Helper()
	raw, err := json.Marshal(storedToken{
		Token:   &oauth2.Token{AccessToken: "old", TokenType: "Bearer", RefreshToken: refresh, Expiry: time.Now().Add(-time.Hour)},
		IDToken: idToken,
	})
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), tokenKey, raw))
}

func TestOIDCProvider_RestoreNoToken(t *testing.T) {
	p := newIDP(t)
	prov := p.provider(OIDCConfig{}, nil, nil, newMemStore())

	ch := make(chan *models.Identity, 4)
	defer prov.OnChange(func(id *models.Identity) { ch <- id })()
	assert.Nil(t, waitIdentity(t, ch))

	// later subscribers get the known state right away
	var late *models.Identity
	called := false
	defer prov.OnChange(func(id *models.Identity) { late, called = id, true })()
	assert.True(t, called)
	assert.Nil(t, late)
}

func TestOIDCProvider_RestoreValidIDToken(t *testing.T) {
	p := newIDP(t)
	s := newMemStore()
	storeToken(t, s, p.idToken("sub-7", time.Now().Add(time.Hour)), "")
	prov := p.provider(OIDCConfig{}, nil, nil, s)

	ch := make(chan *models.Identity, 4)
	defer prov.OnChange(func(id *models.Identity) { ch <- id })()
	id := waitIdentity(t, ch)
	require.NotNil(t, id)
	assert.Equal(t, "sub-7", id.Subject)
}

func TestOIDCProvider_RestoreRefreshes(t *testing.T) {
	p := newIDP(t)
	s := newMemStore()
	storeToken(t, s, p.idToken("sub-1", time.Now().Add(-time.Hour)), "rt-0")
	prov := p.provider(OIDCConfig{}, nil, nil, s)

	ch := make(chan *models.Identity, 4)
	defer prov.OnChange(func(id *models.Identity) { ch <- id })()
	id := waitIdentity(t, ch)
	require.NotNil(t, id)
	assert.Equal(t, "sub-1", id.Subject)
	assert.Equal(t, "rt-0", p.form("refresh_token"))
}

func TestOIDCProvider_RestoreRefreshRejected(t *testing.T) {
	p := newIDP(t)
	p.refreshStatus = http.StatusBadRequest
	s := newMemStore()
	storeToken(t, s, p.idToken("sub-1", time.Now().Add(-time.Hour)), "rt-0")
	prov := p.provider(OIDCConfig{}, nil, nil, s)

	ch := make(chan *models.Identity, 4)
	defer prov.OnChange(func(id *models.Identity) { ch <- id })()
	assert.Nil(t, waitIdentity(t, ch))

	raw, _ := s.Get(context.Background(), tokenKey)
	assert.Nil(t, raw)
}

func TestOIDCProvider_RestoreRefreshUnavailableKeepsToken(t *testing.T) {
	p := newIDP(t)
	p.refreshStatus = http.StatusServiceUnavailable
	s := newMemStore()
	storeToken(t, s, p.idToken("sub-1", time.Now().Add(-time.Hour)), "rt-0")
	prov := p.provider(OIDCConfig{}, nil, nil, s)

	ch := make(chan *models.Identity, 4)
	defer prov.OnChange(func(id *models.Identity) { ch <- id })()
	assert.Nil(t, waitIdentity(t, ch))

	raw, _ := s.Get(context.Background(), tokenKey)
	assert.NotNil(t, raw)
}

func TestOIDCProvider_SignOutClearsAndRevokes(t *testing.T) {
	p := newIDP(t)
	s := newMemStore()
	storeToken(t, s, p.idToken("sub-1", time.Now().Add(time.Hour)), "rt-9")
	prov := p.provider(OIDCConfig{RevokeURL: p.srv.URL + "/revoke"}, nil, nil, s)

	ch := make(chan *models.Identity, 4)
	defer prov.OnChange(func(id *models.Identity) { ch <- id })()
	require.NotNil(t, waitIdentity(t, ch))

	require.NoError(t, prov.SignOut(context.Background()))
	assert.Nil(t, waitIdentity(t, ch))

	raw, _ := s.Get(context.Background(), tokenKey)
	assert.Nil(t, raw)
	p.mu.Lock()
	assert.Equal(t, []string{"rt-9"}, p.revoked)
	p.mu.Unlock()
}
