package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrijs2005/greenmission/internal/client/client"
	"github.com/dmitrijs2005/greenmission/internal/client/config"
	"github.com/dmitrijs2005/greenmission/internal/client/guard"
	"github.com/dmitrijs2005/greenmission/internal/client/identity"
	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/client/profile"
	"github.com/dmitrijs2005/greenmission/internal/client/session"
	"github.com/dmitrijs2005/greenmission/internal/client/wallet"
	"github.com/dmitrijs2005/greenmission/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// sessionStore is the part of session.Store the CLI drives.
type sessionStore interface {
	Init(ctx context.Context) error
	Teardown()
	Session() models.Session
	Token() string
	Subscribe(fn func(models.Session)) func()
	SignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
	Refresh(ctx context.Context) error
	ClearError()
	MergeProfile(p *models.Profile)
	Wait(ctx context.Context, pred func(models.Session) bool) (models.Session, error)
}

type profileAPI interface {
	PatchProfile(ctx context.Context, token string, patch client.ProfilePatch) (*models.Profile, error)
	AvatarUploadURL(ctx context.Context, token, contentType string) (*client.AvatarUpload, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type walletSync interface {
	Start(ctx context.Context)
	Stop()
	Disconnect(ctx context.Context) error
	Flush(ctx context.Context) error
}

type App struct {
	config *config.Config
	log    logging.Logger
	// interactive is set when stdin is a terminal.
	interactive bool

	outMu  sync.Mutex
	out    io.Writer
	reader *bufio.Reader

	store  sessionStore
	api    profileAPI
	health pinger
	conn   *wallet.LocalConnector
	wallet walletSync
	routes *guard.RouteTable
	nav    *navigator

	pageMu  sync.Mutex
	page    *guard.Guard
	unmount func()

	closers []func() error

	mu   sync.Mutex
	Mode Mode
}

// NewApp wires local storage, the identity providers, the session store and
// wallet sync from cfg. OIDC is the default sign-in; NGOs may use a password.
func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()
	log := logging.NewTextLogger(os.Stderr, c.LogLevel)
	reader := bufio.NewReader(os.Stdin)

	db, err := client.InitDatabase(ctx, c.DBPath)
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}
	repos := client.NewRepositories(db)

	health, err := client.NewHealthClient(c.HealthAddr)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	oidcProvider, err := identity.NewOIDCProvider(ctx, identity.OIDCConfig{
		Issuer:         c.OIDC.Issuer,
		ClientID:       c.OIDC.ClientID,
		ClientSecret:   c.OIDC.ClientSecret,
		RedirectURL:    c.OIDC.RedirectURL,
		Scopes:         c.OIDC.Scopes,
		UserAgent:      c.UserAgent,
		RevokeURL:      c.OIDC.RevokeURL,
		RestoreTimeout: c.RestoreTimeout,
	},
		identity.BrowserOpener{Out: os.Stdout},
		identity.LineCallbackReader{In: reader, Out: os.Stdout},
		repos.Metadata, log)
	if err != nil {
		_ = health.Close()
		_ = db.Close()
		return nil, err
	}

	api := client.NewHTTPClient(c.APIBaseURL, c.RequestTimeout)
	passwords := identity.NewPasswordProvider(api, linePrompt{in: reader, out: os.Stdout}, repos.Metadata, c.RestoreTimeout, log)
	provider := identity.NewSwitch(log,
		identity.Entry{Method: identity.MethodOIDC, Provider: oidcProvider},
		identity.Entry{Method: identity.MethodPassword, Provider: passwords},
	)
	store := session.NewStore(identity.NewAdapter(provider, log), profile.NewFetcher(api, log), repos.Snapshots, api, log)
	conn := wallet.NewLocalConnector()

	a := newApp(c, log, os.Stdout, reader)
	a.store = store
	a.api = api
	a.health = health
	a.conn = conn
	a.wallet = wallet.NewSync(conn, store, api, log)
	a.closers = []func() error{health.Close, db.Close}
	return a, nil
}

func newApp(c *config.Config, log logging.Logger, out io.Writer, reader *bufio.Reader) *App {
	a := &App{
		config: c,
		log:    log.With("module", "cli"),
		out:    out,
		reader: reader,
		routes: guard.DefaultRoutes(),
		Mode:   ModeOnline,
	}
	a.nav = newNavigator(a.mount)
	return a
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.Mode != mode
	a.Mode = mode
	a.mu.Unlock()

	if changed {
		a.log.Info(context.Background(), fmt.Sprintf("Switched to %s mode", mode))
	}
}

func (a *App) mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mode
}

// Run starts the session and background jobs, then serves commands until
// the user exits. With args it runs that single command instead of the REPL.
func (a *App) Run(ctx context.Context, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.close()

	if err := a.store.Init(ctx); err != nil {
		return err
	}
	defer a.store.Teardown()

	a.wallet.Start(ctx)
	defer a.wallet.Stop()

	a.nav.start(ctx)
	defer a.nav.stop()

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	if stop, err := a.startRefresh(ctx, a.config.RefreshSchedule); err != nil {
		a.log.Warn(ctx, "background refresh disabled", "error", err)
	} else {
		defer stop()
	}

	if len(args) > 0 {
		return a.runOnce(ctx, args)
	}
	a.Root(ctx)
	return nil
}

func (a *App) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn(context.Background(), "close", "error", err)
		}
	}
}

// StartOnlineStatusWatcher pings the backend every interval and flips the
// mode. Coming back online clears a session error so the profile is fetched
// again.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.health.Ping(pctx)
	cancel()

	if err != nil {
		a.setMode(ModeOffline)
		return
	}
	wasOffline := a.mode() == ModeOffline
	a.setMode(ModeOnline)
	if wasOffline && a.store.Session().Status == models.StatusError {
		a.store.ClearError()
	}
}

// startRefresh schedules Store.Refresh on spec while signed in. An empty
// spec schedules nothing.
func (a *App) startRefresh(ctx context.Context, spec string) (stop func(), err error) {
	if spec == "" {
		return func() {}, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { a.refreshIfSignedIn(ctx) }); err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

func (a *App) refreshIfSignedIn(ctx context.Context) {
	if a.store.Session().Status != models.StatusAuthenticated || a.mode() == ModeOffline {
		return
	}
	if err := a.store.Refresh(ctx); err != nil {
		a.log.Warn(ctx, "background refresh failed", "error", err)
	}
}
