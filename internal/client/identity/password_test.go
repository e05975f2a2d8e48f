package identity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/greenmission/internal/client/client"
	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/logging"
)

type fakeAuthenticator struct {
	calls []string
	err   error
}

func (f *fakeAuthenticator) result(email string) *client.ExchangeResult {
	return &client.ExchangeResult{Token: "bearer-ngo", TokenType: "Bearer", User: &models.Profile{
		ID: 9, UID: "ngo:1", Name: "Green", Email: email, Role: models.RoleNGO,
	}}
}

func (f *fakeAuthenticator) LoginNGO(_ context.Context, email, password string) (*client.ExchangeResult, error) {
	f.calls = append(f.calls, "login "+email+" "+password)
	if f.err != nil {
		return nil, f.err
	}
	return f.result(email), nil
}

func (f *fakeAuthenticator) RegisterNGO(_ context.Context, name, email, password string) (*client.ExchangeResult, error) {
	f.calls = append(f.calls, "register "+name+" "+email+" "+password)
	if f.err != nil {
		return nil, f.err
	}
	return f.result(email), nil
}

func fixedPrompt(c Credentials, err error) CredentialPromptFunc {
	return func(context.Context, bool) (Credentials, error) { return c, err }
}

func TestPasswordProvider_SignIn(t *testing.T) {
	auth := &fakeAuthenticator{}
	store := newMemStore()
	p := NewPasswordProvider(auth, fixedPrompt(Credentials{Email: "a@b.org", Password: "s3cretpass"}, nil), store, 0, logging.Nop{})

	ch := make(chan *models.Identity, 4)
	defer p.OnChange(func(id *models.Identity) { ch <- id })()
	assert.Nil(t, waitIdentity(t, ch))

	id, err := p.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ngo:1", id.Subject)
	assert.Equal(t, "bearer-ngo", id.AccessToken)
	assert.Equal(t, []string{"login a@b.org s3cretpass"}, auth.calls)

	emitted := waitIdentity(t, ch)
	require.NotNil(t, emitted)
	assert.Equal(t, "ngo:1", emitted.Subject)
	assert.Equal(t, "bearer-ngo", emitted.AccessToken)

	raw, _ := store.Get(context.Background(), passwordKey)
	var st storedPassword
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.Equal(t, "bearer-ngo", st.Token)
	assert.Equal(t, "ngo:1", st.Identity.Subject)
}

func TestPasswordProvider_Register(t *testing.T) {
	auth := &fakeAuthenticator{}
	var asked bool
	prompt := CredentialPromptFunc(func(_ context.Context, register bool) (Credentials, error) {
		asked = register
		return Credentials{Name: "Green", Email: "a@b.org", Password: "s3cretpass"}, nil
	})
	p := NewPasswordProvider(auth, prompt, newMemStore(), 0, logging.Nop{})

	_, err := p.SignIn(WithRegistration(context.Background()))
	require.NoError(t, err)
	assert.True(t, asked)
	assert.Equal(t, []string{"register Green a@b.org s3cretpass"}, auth.calls)
}

func TestPasswordProvider_SignInErrors(t *testing.T) {
	t.Run("empty credentials cancel", func(t *testing.T) {
		auth := &fakeAuthenticator{}
		p := NewPasswordProvider(auth, fixedPrompt(Credentials{Email: "a@b.org"}, nil), newMemStore(), 0, logging.Nop{})
		_, err := p.SignIn(context.Background())
		assert.ErrorIs(t, err, ErrProviderCancelled)
		assert.Empty(t, auth.calls)
	})

	t.Run("prompt failure", func(t *testing.T) {
		p := NewPasswordProvider(&fakeAuthenticator{}, fixedPrompt(Credentials{}, ErrProviderCancelled), newMemStore(), 0, logging.Nop{})
		_, err := p.SignIn(context.Background())
		assert.ErrorIs(t, err, ErrProviderCancelled)
	})

	t.Run("rejected", func(t *testing.T) {
		store := newMemStore()
		auth := &fakeAuthenticator{err: &client.APIError{StatusCode: 401, Message: "unauthorized"}}
		p := NewPasswordProvider(auth, fixedPrompt(Credentials{Email: "a@b.org", Password: "nope"}, nil), store, 0, logging.Nop{})

		_, err := p.SignIn(context.Background())
		assert.ErrorIs(t, err, client.ErrUnauthorized)
		raw, _ := store.Get(context.Background(), passwordKey)
		assert.Nil(t, raw)
	})
}

func TestPasswordProvider_RestoreAndSignOut(t *testing.T) {
	store := newMemStore()
	raw, err := json.Marshal(storedPassword{Identity: &models.Identity{Subject: "ngo:1", DisplayName: "Green"}, Token: "bearer-ngo"})
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), passwordKey, raw))

	p := NewPasswordProvider(&fakeAuthenticator{}, fixedPrompt(Credentials{}, nil), store, 0, logging.Nop{})
	ch := make(chan *models.Identity, 4)
	defer p.OnChange(func(id *models.Identity) { ch <- id })()

	id := waitIdentity(t, ch)
	require.NotNil(t, id)
	assert.Equal(t, "ngo:1", id.Subject)
	assert.Equal(t, "bearer-ngo", id.AccessToken)

	require.NoError(t, p.SignOut(context.Background()))
	assert.Nil(t, waitIdentity(t, ch))
	raw, _ = store.Get(context.Background(), passwordKey)
	assert.Nil(t, raw)
}

func TestPasswordProvider_RestoreDiscardsGarbage(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Set(context.Background(), passwordKey, []byte("{")))

	p := NewPasswordProvider(&fakeAuthenticator{}, fixedPrompt(Credentials{}, nil), store, 0, logging.Nop{})
	ch := make(chan *models.Identity, 4)
	defer p.OnChange(func(id *models.Identity) { ch <- id })()

	assert.Nil(t, waitIdentity(t, ch))
	raw, _ := store.Get(context.Background(), passwordKey)
	assert.Nil(t, raw)
}

func TestCredentialErrorsMapToMessages(t *testing.T) {
	wrong := mapError(&client.APIError{StatusCode: 401, Message: "unauthorized"})
	assert.ErrorIs(t, wrong, ErrCredentialsRejected)
	assert.Equal(t, "Invalid email or password.", Message(wrong))

	taken := mapError(&client.APIError{StatusCode: 409, Message: "email is already registered"})
	assert.ErrorIs(t, taken, ErrCredentialsRejected)
	assert.Equal(t, "Sign-in failed: email is already registered", Message(taken))

	down := mapError(&client.APIError{StatusCode: 500})
	assert.ErrorIs(t, down, ErrNetwork)

	assert.ErrorIs(t, mapError(errors.New("dial tcp")), ErrNetwork)
}
