package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/greenmission/internal/client/client"
	"github.com/dmitrijs2005/greenmission/internal/client/identity"
	"github.com/dmitrijs2005/greenmission/internal/client/models"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestSignIn_PrintsResolvedSession(t *testing.T) {
	store := newFakeStore(models.Session{Status: models.StatusUnauthenticated})
	loading := models.Session{Status: models.StatusLoading, Identity: &models.Identity{Subject: "u1"}}
	store.signInTo = []models.Session{loading, signedIn()}
	a, out := newTestApp(t, store)

	require.NoError(t, a.SignIn(context.Background()))
	assert.Contains(t, out.String(), "Status: authenticated (online)")
	assert.Contains(t, out.String(), "Ana <a@b.com> contributor")
	assert.Contains(t, out.String(), "wallet: (none)")
}

func TestSignIn_UnauthorizedEndsSignedOut(t *testing.T) {
	store := newFakeStore(models.Session{Status: models.StatusUnauthenticated})
	loading := models.Session{Status: models.StatusLoading, Identity: &models.Identity{Subject: "u1"}}
	store.signInTo = []models.Session{loading, {Status: models.StatusUnauthenticated}}
	a, out := newTestApp(t, store)

	require.NoError(t, a.SignIn(context.Background()))
	assert.Contains(t, out.String(), "Status: unauthenticated")
	assert.NotContains(t, out.String(), "Error:")
}

func TestSignIn_FailureShowsMessage(t *testing.T) {
	store := newFakeStore(models.Session{Status: models.StatusUnauthenticated, LastError: "Sign-in window was blocked."})
	store.signInErr = errors.New("blocked")
	a, out := newTestApp(t, store)

	require.NoError(t, a.SignIn(context.Background()))
	assert.Equal(t, "Sign-in window was blocked.\n", out.String())
}

func TestSignInNGO_SelectsPasswordMethod(t *testing.T) {
	tests := []struct {
		name     string
		run      func(*App, context.Context) error
		register bool
	}{
		{"signin", (*App).SignInNGO, false},
		{"register", (*App).RegisterNGO, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(models.Session{Status: models.StatusUnauthenticated})
			ngo := signedIn()
			ngo.Profile.Role = models.RoleNGO
			loading := models.Session{Status: models.StatusLoading, Identity: &models.Identity{Subject: "ngo:1"}}
			store.signInTo = []models.Session{loading, ngo}
			a, out := newTestApp(t, store)

			require.NoError(t, tt.run(a, context.Background()))
			assert.Contains(t, out.String(), "Status: authenticated (online)")
			assert.Contains(t, out.String(), "ngo")

			m, _ := identity.MethodFrom(store.signInCtx)
			assert.Equal(t, identity.MethodPassword, m)
			assert.Equal(t, tt.register, identity.IsRegistration(store.signInCtx))
		})
	}
}

func TestSignIn_SelectsProviderMethod(t *testing.T) {
	store := newFakeStore(models.Session{Status: models.StatusUnauthenticated})
	store.signInTo = []models.Session{{Status: models.StatusLoading}, signedIn()}
	a, _ := newTestApp(t, store)

	require.NoError(t, a.SignIn(context.Background()))
	m, _ := identity.MethodFrom(store.signInCtx)
	assert.Equal(t, identity.MethodOIDC, m)
	assert.False(t, identity.IsRegistration(store.signInCtx))
}

func TestSignIn_AlreadySignedIn(t *testing.T) {
	a, out := newTestApp(t, newFakeStore(signedIn()))
	require.NoError(t, a.SignIn(context.Background()))
	assert.Equal(t, "Already signed in as Ana\n", out.String())
}

func TestSignOut_ConfirmsWhenInteractive(t *testing.T) {
	store := newFakeStore(signedIn())
	a, out := newTestApp(t, store, "n", "y")
	a.interactive = true

	require.NoError(t, a.SignOut(context.Background()))
	assert.Zero(t, store.signOuts)

	require.NoError(t, a.SignOut(context.Background()))
	assert.Equal(t, 1, store.signOuts)
	assert.Contains(t, out.String(), "Sign out Ana? [y/N] ")
	assert.Contains(t, out.String(), "Signed out")

	require.NoError(t, a.SignOut(context.Background()))
	assert.Equal(t, 1, store.signOuts)
}

func TestRefresh_RequiresIdentity(t *testing.T) {
	a, _ := newTestApp(t, newFakeStore(models.Session{Status: models.StatusUnauthenticated}))
	assert.ErrorIs(t, a.Refresh(context.Background()), errNotSignedIn)
}

func TestWalletConnectAndDisconnect(t *testing.T) {
	store := newFakeStore(signedIn())
	a, out := newTestApp(t, store)
	a.wallet.Start(context.Background())
	defer a.wallet.Stop()

	require.NoError(t, a.WalletConnect(context.Background(), "0xABC"))
	assert.Equal(t, "0xABC", store.Session().Profile.Wallet())
	assert.Equal(t, models.StatusAuthenticated, store.Session().Status)
	assert.Contains(t, out.String(), "Wallet: 0xABC")

	require.NoError(t, a.WalletDisconnect(context.Background()))
	assert.Empty(t, a.conn.Address())
	patches := a.api.(*fakeProfileAPI).patches
	require.Len(t, patches, 2)
	assert.True(t, patches[1].ClearWallet)
	assert.Contains(t, out.String(), "Wallet: (none)")
}

func TestWalletConnect_RequiresSession(t *testing.T) {
	a, _ := newTestApp(t, newFakeStore(models.Session{Status: models.StatusLoading}))
	assert.ErrorIs(t, a.WalletConnect(context.Background(), "0xABC"), errNotSignedIn)
	assert.Empty(t, a.conn.Address())
}

func TestAvatar_UploadsAndPatchesPhoto(t *testing.T) {
	var uploaded []byte
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		contentType = r.Header.Get("Content-Type")
		uploaded, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newFakeStore(signedIn())
	a, out := newTestApp(t, store)
	api := a.api.(*fakeProfileAPI)
	api.upload = &client.AvatarUpload{Key: "avatars/1/abc.png", URL: srv.URL + "/bucket/avatars/1/abc.png"}

	file := filepath.Join(t.TempDir(), "me.png")
	require.NoError(t, os.WriteFile(file, pngHeader, 0o600))

	require.NoError(t, a.Avatar(context.Background(), file))
	assert.Equal(t, pngHeader, uploaded)
	assert.Equal(t, "image/png", contentType)
	require.Len(t, api.patches, 1)
	assert.Equal(t, "avatars/1/abc.png", *api.patches[0].PhotoURL)
	require.Len(t, store.merged, 1)
	assert.Contains(t, out.String(), "Profile photo updated")
}

func TestAvatar_RejectsNonImages(t *testing.T) {
	a, _ := newTestApp(t, newFakeStore(signedIn()))
	file := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o600))

	err := a.Avatar(context.Background(), file)
	require.Error(t, err)
	assert.Empty(t, a.api.(*fakeProfileAPI).patches)
}
