package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/logging"
)

// Method names a sign-in provider.
type Method string

const (
	MethodOIDC     Method = "oidc"
	MethodPassword Method = "password"
)

type methodKey struct{}

// WithMethod selects the provider a Switch signs in with.
func WithMethod(ctx context.Context, m Method) context.Context {
	return context.WithValue(ctx, methodKey{}, m)
}

// MethodFrom returns the method set by WithMethod.
func MethodFrom(ctx context.Context) (Method, bool) {
	m, ok := ctx.Value(methodKey{}).(Method)
	return m, ok && m != ""
}

// Entry is one provider of a Switch.
type Entry struct {
	Method   Method
	Provider Provider
}

// Switch offers several providers as one. At most one of them owns the
// identity: the last one to report a signed-in user, or on startup the
// first signed-in one in order.
type Switch struct {
	entries []Entry
	log     logging.Logger
}

var _ Provider = (*Switch)(nil)

// NewSwitch combines entries. The first entry is the default sign-in method.
func NewSwitch(log logging.Logger, entries ...Entry) *Switch {
	return &Switch{entries: entries, log: log.With("module", "identity-switch")}
}

// SignIn signs in with the method from WithMethod and then signs out of
// every other provider.
func (s *Switch) SignIn(ctx context.Context) (*models.Identity, error) {
	idx, err := s.selected(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.entries[idx].Provider.SignIn(ctx)
	if err != nil {
		return nil, err
	}
	for i, e := range s.entries {
		if i == idx {
			continue
		}
		if err := e.Provider.SignOut(ctx); err != nil {
			s.log.Warn(ctx, "sign out of other provider", "method", e.Method, "error", err)
		}
	}
	return id, nil
}

func (s *Switch) selected(ctx context.Context) (int, error) {
	if len(s.entries) == 0 {
		return 0, fmt.Errorf("%w: no sign-in methods configured", ErrProviderBlocked)
	}
	m, ok := MethodFrom(ctx)
	if !ok {
		return 0, nil
	}
	for i, e := range s.entries {
		if e.Method == m {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: sign-in method %q is not available", ErrProviderBlocked, m)
}

// SignOut signs out of every provider and returns the first failure.
func (s *Switch) SignOut(ctx context.Context) error {
	var first error
	for _, e := range s.entries {
		if err := e.Provider.SignOut(ctx); err != nil && first == nil {
			first = fmt.Errorf("%s sign-out: %w", e.Method, err)
		}
	}
	return first
}

// OnChange reports nothing until every provider has reported once.
func (s *Switch) OnChange(fn func(*models.Identity)) func() {
	sub := &switchSub{
		fn:       fn,
		states:   make([]*models.Identity, len(s.entries)),
		reported: make([]bool, len(s.entries)),
		owner:    -1,
	}
	if len(s.entries) == 0 {
		fn(nil)
		return func() {}
	}

	unsubs := make([]func(), 0, len(s.entries))
	for i, e := range s.entries {
		i := i
		unsubs = append(unsubs, e.Provider.OnChange(func(id *models.Identity) { sub.on(i, id) }))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, u := range unsubs {
				u()
			}
		})
	}
}

type switchSub struct {
	fn func(*models.Identity)

	// deliver serialises fn calls across providers.
	deliver sync.Mutex

	mu       sync.Mutex
	states   []*models.Identity
	reported []bool
	ready    bool
	owner    int
}

func (s *switchSub) on(i int, id *models.Identity) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.states[i] = id.Clone()
	s.reported[i] = true

	emit := false
	switch {
	case !s.ready:
		if s.allReported() {
			s.ready = true
			s.owner = s.firstSignedIn()
			emit = true
		}
	case id != nil:
		s.owner = i
		emit = true
	case i == s.owner:
		s.owner = s.firstSignedIn()
		emit = true
	}
	var out *models.Identity
	if emit && s.owner >= 0 {
		out = s.states[s.owner].Clone()
	}
	s.mu.Unlock()

	if emit {
		s.fn(out)
	}
}

func (s *switchSub) allReported() bool {
	for _, r := range s.reported {
		if !r {
			return false
		}
	}
	return true
}

func (s *switchSub) firstSignedIn() int {
	for i, id := range s.states {
		if id != nil {
			return i
		}
	}
	return -1
}
