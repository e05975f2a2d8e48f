package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/greenmission/internal/client/client"
	"github.com/dmitrijs2005/greenmission/internal/client/guard"
	"github.com/dmitrijs2005/greenmission/internal/client/identity"
	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/netx"
)

var errNotSignedIn = errors.New("not signed in, use 'signin' first")

// SignIn runs the interactive challenge and waits for the profile.
func (a *App) SignIn(ctx context.Context) error {
	return a.signIn(identity.WithMethod(ctx, identity.MethodOIDC))
}

// SignInNGO asks for an NGO's email and password.
func (a *App) SignInNGO(ctx context.Context) error {
	return a.signIn(identity.WithMethod(ctx, identity.MethodPassword))
}

// RegisterNGO creates an NGO account and signs it in.
func (a *App) RegisterNGO(ctx context.Context) error {
	return a.signIn(identity.WithRegistration(identity.WithMethod(ctx, identity.MethodPassword)))
}

func (a *App) signIn(ctx context.Context) error {
	if cur := a.store.Session(); cur.Status == models.StatusAuthenticated {
		a.printf("Already signed in as %s\n", displayName(cur))
		return nil
	}

	settled := make(chan models.Session, 1)
	started := false
	unsub := a.store.Subscribe(func(s models.Session) {
		if s.Status == models.StatusLoading {
			started = true
			return
		}
		if started || s.Status == models.StatusAuthenticated {
			select {
			case settled <- s:
			default:
			}
		}
	})
	defer unsub()

	if err := a.store.SignIn(ctx); err != nil {
		if msg := a.store.Session().LastError; msg != "" {
			a.printf("%s\n", msg)
		}
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, a.waitTimeout())
	defer cancel()
	select {
	case cur := <-settled:
		a.printStatus(cur)
	case <-wctx.Done():
		a.printStatus(a.store.Session())
	}
	return nil
}

func (a *App) SignOut(ctx context.Context) error {
	cur := a.store.Session()
	if cur.Status == models.StatusUnauthenticated {
		a.printf("Not signed in\n")
		return nil
	}
	if a.interactive {
		ok, err := Confirm(a.reader, fmt.Sprintf("Sign out %s?", displayName(cur)), a.out)
		if err != nil || !ok {
			return err
		}
	}
	if err := a.store.SignOut(ctx); err != nil {
		a.log.Warn(ctx, "provider sign-out", "error", err)
	}
	a.printf("Signed out\n")
	return nil
}

// Retry is the error screen's "sign out and retry" action.
func (a *App) Retry(ctx context.Context) error {
	if a.store.Session().Status != models.StatusError {
		a.printf("Nothing to retry\n")
		return nil
	}
	return guard.SignOutAndRetry(ctx, a.store)
}

func (a *App) Status(context.Context) error {
	a.printStatus(a.store.Session())
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if a.store.Session().Identity == nil {
		return errNotSignedIn
	}
	err := a.store.Refresh(ctx)
	a.printStatus(a.store.Session())
	return err
}

// ClearError dismisses the session error message.
func (a *App) ClearError(context.Context) error {
	a.store.ClearError()
	return nil
}

// Open navigates to path and renders what its guard decides.
func (a *App) Open(_ context.Context, path string) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	a.nav.Navigate(path)
	a.nav.drain()
	return nil
}

func (a *App) WalletConnect(ctx context.Context, addr string) error {
	if a.store.Session().Status != models.StatusAuthenticated {
		return errNotSignedIn
	}
	a.conn.Connect(addr)
	return a.flushWallet(ctx)
}

func (a *App) WalletDisconnect(ctx context.Context) error {
	if a.conn.Address() == "" {
		a.printf("No wallet connected\n")
		return nil
	}
	if err := a.wallet.Disconnect(ctx); err != nil {
		return err
	}
	return a.flushWallet(ctx)
}

func (a *App) flushWallet(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, a.waitTimeout())
	defer cancel()
	if err := a.wallet.Flush(wctx); err != nil {
		return err
	}
	if p := a.store.Session().Profile; p != nil {
		a.printf("Wallet: %s\n", orNone(p.Wallet()))
	}
	return nil
}

// Avatar uploads an image file as the profile photo.
func (a *App) Avatar(ctx context.Context, file string) error {
	if a.store.Session().Status != models.StatusAuthenticated {
		return errNotSignedIn
	}
	body, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	contentType, err := netx.DetectContentType(body)
	if err != nil {
		return err
	}

	token := a.store.Token()
	up, err := a.api.AvatarUploadURL(ctx, token, contentType)
	if err != nil {
		return fmt.Errorf("avatar upload url: %w", err)
	}
	if err := netx.UploadToS3PresignedURL(ctx, nil, up.URL, contentType, body); err != nil {
		return fmt.Errorf("avatar upload: %w", err)
	}

	p, err := a.api.PatchProfile(ctx, token, client.ProfilePatch{PhotoURL: &up.Key})
	if err != nil {
		return fmt.Errorf("avatar save: %w", err)
	}
	a.store.MergeProfile(p)
	a.printf("Profile photo updated\n")
	return nil
}

func (a *App) waitTimeout() time.Duration {
	if a.config != nil && a.config.RequestTimeout > 0 {
		return 2 * a.config.RequestTimeout
	}
	return 20 * time.Second
}

func (a *App) printStatus(s models.Session) {
	a.printf("Status: %s (%s)\n", s.Status, a.mode())
	if s.LastError != "" {
		a.printf("Error: %s\n", s.LastError)
	}
	if s.Warning != "" {
		a.printf("Warning: %s\n", s.Warning)
	}
	if s.Status == models.StatusAuthenticated || s.Status == models.StatusError {
		a.printProfile(s)
	}
}

func (a *App) printProfile(s models.Session) {
	p := s.Profile
	if p == nil {
		return
	}
	a.printf("  %s <%s> %s\n", displayName(s), p.Email, p.Role)
	a.printf("  wallet: %s\n", orNone(p.Wallet()))
	a.printf("  missions completed: %d, rewards earned: %d\n", p.Stats.MissionsCompleted, p.Stats.RewardsEarned)
}

func displayName(s models.Session) string {
	switch {
	case s.Profile != nil && s.Profile.Name != "":
		return s.Profile.Name
	case s.Identity != nil && s.Identity.DisplayName != "":
		return s.Identity.DisplayName
	case s.Identity != nil:
		return s.Identity.Email
	case s.Profile != nil:
		return s.Profile.Email
	default:
		return ""
	}
}

func orNone(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}
