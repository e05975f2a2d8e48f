// Package guard decides what a protected page tree shows for a session:
// a loading placeholder, a redirect, an error screen or its children.
package guard

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/greenmission/internal/client/models"
)

// Navigator is the routing capability the guard drives.
type Navigator interface {
	Navigate(path string)
	CurrentPath() string
}

type View string

const (
	ViewLoading     View = "loading"
	ViewRedirecting View = "redirecting"
	ViewChildren    View = "children"
	ViewError       View = "error"
)

type Decision struct {
	View View
	// Target is the redirect destination for ViewRedirecting.
	Target string
	// Message is set for ViewError.
	Message string
}

// Source is the part of the session store the guard needs.
type Source interface {
	Subscribe(fn func(models.Session)) func()
	SignOut(ctx context.Context) error
}

// Guard protects one page tree. Required "" admits any signed-in role.
type Guard struct {
	required models.Role
	nav      Navigator

	mu sync.Mutex
	// redirecting is set once the sign-in redirect was issued and cleared
	// when the status leaves unauthenticated.
	redirecting bool
	// roleTarget is the role home already navigated to.
	roleTarget string
	last       Decision
}

func New(required models.Role, nav Navigator) *Guard {
	return &Guard{required: required, nav: nav}
}

func (g *Guard) Required() models.Role { return g.required }

// Evaluate applies one session state and performs at most one navigation.
func (g *Guard) Evaluate(s models.Session) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if s.Status != models.StatusUnauthenticated {
		g.redirecting = false
	}
	if s.Status != models.StatusAuthenticated {
		g.roleTarget = ""
	}

	var d Decision
	switch s.Status {
	case models.StatusUnauthenticated:
		d = Decision{View: ViewRedirecting, Target: SignInPath}
		if !g.redirecting {
			g.redirecting = true
			g.navigate(SignInPath)
		}

	case models.StatusAuthenticated:
		role := s.Role()
		if g.required != "" && role != g.required {
			target := HomeFor(role)
			d = Decision{View: ViewRedirecting, Target: target}
			if g.roleTarget != target {
				g.roleTarget = target
				g.navigate(target)
			}
			break
		}
		g.roleTarget = ""
		d = Decision{View: ViewChildren}

	case models.StatusError:
		d = Decision{View: ViewError, Message: s.LastError}

	default:
		d = Decision{View: ViewLoading}
	}

	g.last = d
	return d
}

func (g *Guard) navigate(path string) {
	if g.nav.CurrentPath() == path {
		return
	}
	g.nav.Navigate(path)
}

// Last returns the most recent decision.
func (g *Guard) Last() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Watch evaluates every session change from src and hands the decision to
// render, which may be nil.
func (g *Guard) Watch(src Source, render func(Decision)) (stop func()) {
	return src.Subscribe(func(s models.Session) {
		d := g.Evaluate(s)
		if render != nil {
			render(d)
		}
	})
}

// SignOutAndRetry is the action offered by the error screen. Signing out
// makes the session unauthenticated, which redirects to sign-in.
func SignOutAndRetry(ctx context.Context, src Source) error {
	return src.SignOut(ctx)
}
