package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/greenmission/internal/client/guard"
	"github.com/dmitrijs2005/greenmission/internal/client/models"
)

// navigator is the CLI's router. Navigate only records the target; pages
// are mounted by drain, which lets guards navigate from inside a session
// notification without re-entering the store.
type navigator struct {
	mount func(path string)

	mu      sync.Mutex
	path    string
	pending *string

	mountMu sync.Mutex
	wake    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ guard.Navigator = (*navigator)(nil)

func newNavigator(mount func(string)) *navigator {
	return &navigator{mount: mount, wake: make(chan struct{}, 1)}
}

func (n *navigator) Navigate(path string) {
	n.mu.Lock()
	n.path = path
	n.pending = &path
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *navigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

// drain mounts queued paths until none is left. Only the latest target of a
// burst is mounted.
func (n *navigator) drain() {
	n.mountMu.Lock()
	defer n.mountMu.Unlock()
	for {
		n.mu.Lock()
		next := n.pending
		n.pending = nil
		n.mu.Unlock()
		if next == nil {
			return
		}
		n.mount(*next)
	}
}

func (n *navigator) start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-n.wake:
				n.drain()
			}
		}
	}()
}

func (n *navigator) stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
}

// mount replaces the current page. Protected paths get a route guard; the
// sign-in page sends a signed-in user to their home.
func (a *App) mount(path string) {
	a.pageMu.Lock()
	defer a.pageMu.Unlock()

	if a.unmount != nil {
		a.unmount()
		a.unmount = nil
	}
	a.page = nil

	role, protected := a.routes.Required(path)
	if !protected {
		a.printf("[%s]\n", path)
		if path == guard.SignInPath {
			a.unmount = a.store.Subscribe(func(s models.Session) {
				if s.Status == models.StatusAuthenticated {
					a.nav.Navigate(guard.HomeFor(s.Role()))
				}
			})
		}
		return
	}

	g := guard.New(role, a.nav)
	var last *guard.Decision
	a.page = g
	a.unmount = g.Watch(a.store, func(d guard.Decision) {
		if last != nil && *last == d {
			return
		}
		last = &d
		a.render(path, d)
	})
}

func (a *App) render(path string, d guard.Decision) {
	switch d.View {
	case guard.ViewLoading:
		a.printf("[%s] loading...\n", path)
	case guard.ViewRedirecting:
		a.printf("[%s] redirecting to %s\n", path, d.Target)
	case guard.ViewError:
		a.printf("[%s] %s\n  type 'retry' to sign out and try again\n", path, d.Message)
	case guard.ViewChildren:
		a.printf("[%s]\n", path)
		a.printProfile(a.store.Session())
	}
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}
