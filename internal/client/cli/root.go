package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/greenmission/internal/client/guard"
	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/client/session"
)

func (a *App) isSignedIn() bool {
	return a.store.Session().Status == models.StatusAuthenticated
}

// getStatus is the prompt decoration: current path, session status and
// connectivity.
func (a *App) getStatus() string {
	s := a.store.Session()
	who := string(s.Status)
	if name := displayName(s); name != "" && s.Status == models.StatusAuthenticated {
		who = name
	}
	return fmt.Sprintf("[%s] (%s %s)", a.nav.CurrentPath(), who, a.mode())
}

// Root runs the interactive REPL on the contributor home page. It blocks
// until the user exits or stdin closes.
func (a *App) Root(ctx context.Context) {
	a.interactive = isTerminal(int(os.Stdin.Fd()))

	a.log.Info(ctx, "Welcome to greenmission CLI (type 'help' for commands)")
	_ = a.Open(ctx, guard.ContributorHomePath)

	runREPL(ctx, a, a.getStatus, a.reader)
}

// runOnce executes args as a single command after the session has settled.
func (a *App) runOnce(ctx context.Context, args []string) error {
	wctx, cancel := context.WithTimeout(ctx, a.waitTimeout())
	defer cancel()
	if _, err := a.store.Wait(wctx, session.Settled); err != nil {
		a.log.Warn(ctx, "session still loading", "error", err)
	}
	dispatch(ctx, a, args)
	return nil
}
