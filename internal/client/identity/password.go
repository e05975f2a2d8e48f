package identity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/greenmission/internal/client/client"
	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/logging"
)

const passwordKey = "password.session"

// Credentials is an NGO's login. Name is only asked for on registration.
type Credentials struct {
	Name     string
	Email    string
	Password string
}

// CredentialPrompt asks the user for credentials. Returning
// ErrProviderCancelled aborts the sign-in silently.
type CredentialPrompt interface {
	Credentials(ctx context.Context, register bool) (Credentials, error)
}

type CredentialPromptFunc func(context.Context, bool) (Credentials, error)

func (f CredentialPromptFunc) Credentials(ctx context.Context, register bool) (Credentials, error) {
	return f(ctx, register)
}

// PasswordAuthenticator is the API side of the NGO password login.
type PasswordAuthenticator interface {
	LoginNGO(ctx context.Context, email, password string) (*client.ExchangeResult, error)
	RegisterNGO(ctx context.Context, name, email, password string) (*client.ExchangeResult, error)
}

type registerKey struct{}

// WithRegistration marks a password sign-in as a new account registration.
func WithRegistration(ctx context.Context) context.Context {
	return context.WithValue(ctx, registerKey{}, true)
}

// IsRegistration reports whether ctx was marked by WithRegistration.
func IsRegistration(ctx context.Context) bool {
	v, _ := ctx.Value(registerKey{}).(bool)
	return v
}

type storedPassword struct {
	Identity *models.Identity `json:"identity"`
	Token    string           `json:"token"`
}

// PasswordProvider signs NGOs in with an email and password checked by the
// API itself. The identity it emits already carries the bearer credential.
type PasswordProvider struct {
	auth    PasswordAuthenticator
	prompt  CredentialPrompt
	store   TokenStore
	log     logging.Logger
	timeout time.Duration

	emitMu sync.Mutex

	mu      sync.Mutex
	current *models.Identity
	loaded  bool
	loading bool
	subs    map[int]func(*models.Identity)
	nextID  int
}

var _ Provider = (*PasswordProvider)(nil)

func NewPasswordProvider(auth PasswordAuthenticator, prompt CredentialPrompt, store TokenStore, restoreTimeout time.Duration, log logging.Logger) *PasswordProvider {
	if restoreTimeout <= 0 {
		restoreTimeout = 15 * time.Second
	}
	return &PasswordProvider{
		auth:    auth,
		prompt:  prompt,
		store:   store,
		log:     log.With("module", "password"),
		timeout: restoreTimeout,
		subs:    make(map[int]func(*models.Identity)),
	}
}

// SignIn prompts for credentials and logs in, or registers a new account
// when ctx carries WithRegistration.
func (p *PasswordProvider) SignIn(ctx context.Context) (*models.Identity, error) {
	register := IsRegistration(ctx)
	creds, err := p.prompt.Credentials(ctx, register)
	if err != nil {
		return nil, err
	}
	if creds.Email == "" || creds.Password == "" {
		return nil, ErrProviderCancelled
	}

	var res *client.ExchangeResult
	if register {
		res, err = p.auth.RegisterNGO(ctx, creds.Name, creds.Email, creds.Password)
	} else {
		res, err = p.auth.LoginNGO(ctx, creds.Email, creds.Password)
	}
	if err != nil {
		return nil, err
	}

	id := identityFromProfile(res.User, res.Token)
	raw, err := json.Marshal(storedPassword{Identity: id, Token: res.Token})
	if err == nil {
		err = p.store.Set(ctx, passwordKey, raw)
	}
	if err != nil {
		p.log.Warn(ctx, "persist password session", "error", err)
	}

	p.publish(id, false)
	return id.Clone(), nil
}

// SignOut forgets the stored credential. Revoking it is the session's job.
func (p *PasswordProvider) SignOut(ctx context.Context) error {
	p.publish(nil, false)
	return p.store.Delete(ctx, passwordKey)
}

func (p *PasswordProvider) OnChange(fn func(*models.Identity)) func() {
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

func (p *PasswordProvider) load() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	id, err := p.restore(ctx)
	if err != nil {
		p.log.Warn(ctx, "restore password session", "error", err)
	}
	p.publish(id, true)
}

func (p *PasswordProvider) restore(ctx context.Context) (*models.Identity, error) {
	raw, err := p.store.Get(ctx, passwordKey)
	if err != nil || raw == nil {
		return nil, err
	}
	var st storedPassword
	if err := json.Unmarshal(raw, &st); err != nil || st.Identity == nil || st.Identity.Subject == "" || st.Token == "" {
		return nil, errors.Join(errors.New("discarding unreadable password session"), p.store.Delete(ctx, passwordKey))
	}
	id := st.Identity.Clone()
	id.AccessToken = st.Token
	return id, nil
}

func (p *PasswordProvider) publish(id *models.Identity, onlyFirst bool) {
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

func identityFromProfile(u *models.Profile, token string) *models.Identity {
	id := &models.Identity{
		Subject:     u.UID,
		DisplayName: u.Name,
		Email:       u.Email,
		AccessToken: token,
	}
	if u.PhotoURL != nil {
		id.PhotoURL = *u.PhotoURL
	}
	return id
}
