package identity

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/logging"
)

// Adapter turns a Provider into a Source. It holds at most one upstream
// subscription, shared by all subscribers, and delivers identity events to
// them in the order the provider emitted them.
type Adapter struct {
	provider Provider
	log      logging.Logger

	// deliver serialises delivery so subscribers observe one order.
	deliver sync.Mutex

	mu          sync.Mutex
	subs        map[int]func(*models.Identity)
	nextID      int
	upstream    bool
	unsubscribe func()
	current     *models.Identity
	resolved    bool
}

var _ Source = (*Adapter)(nil)

func NewAdapter(p Provider, log logging.Logger) *Adapter {
	return &Adapter{
		provider: p,
		log:      log.With("module", "identity"),
		subs:     make(map[int]func(*models.Identity)),
	}
}

func (a *Adapter) SignIn(ctx context.Context) (*models.Identity, error) {
	id, err := a.provider.SignIn(ctx)
	if err != nil {
		err = mapError(err)
		a.log.Info(ctx, "sign-in failed", "error", err)
		return nil, err
	}
	return id.Clone(), nil
}

// SignOut always succeeds. Remote revocation failures are only logged.
func (a *Adapter) SignOut(ctx context.Context) error {
	if err := a.provider.SignOut(ctx); err != nil {
		a.log.Warn(ctx, "provider sign-out failed", "error", err)
	}
	return nil
}

// OnIdentityChange registers cb. Once the provider has reported its state
// cb is called immediately with the current identity (possibly nil), then
// on every change. cb must not block or call back into the Adapter.
func (a *Adapter) OnIdentityChange(cb func(*models.Identity)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = cb
	needUpstream := !a.upstream
	a.upstream = true
	resolved := a.resolved
	a.mu.Unlock()

	if needUpstream {
		unsub := a.provider.OnChange(a.emit)
		a.mu.Lock()
		if len(a.subs) == 0 {
			a.upstream = false
			a.mu.Unlock()
			unsub()
		} else {
			a.unsubscribe = unsub
			a.mu.Unlock()
		}
	} else if resolved {
		a.deliver.Lock()
		a.mu.Lock()
		cur := a.current.Clone()
		a.mu.Unlock()
		cb(cur)
		a.deliver.Unlock()
	}

	var once sync.Once
	return func() { once.Do(func() { a.remove(id) }) }
}

func (a *Adapter) remove(id int) {
	a.mu.Lock()
	delete(a.subs, id)
	var unsub func()
	if len(a.subs) == 0 && a.unsubscribe != nil {
		unsub = a.unsubscribe
		a.unsubscribe = nil
		a.upstream = false
		a.resolved = false
		a.current = nil
	}
	a.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (a *Adapter) emit(id *models.Identity) {
	a.deliver.Lock()
	defer a.deliver.Unlock()

	a.mu.Lock()
	a.current = id.Clone()
	a.resolved = true
	subs := make([]func(*models.Identity), 0, len(a.subs))
	for i := 0; i < a.nextID; i++ {
		if cb, ok := a.subs[i]; ok {
			subs = append(subs, cb)
		}
	}
	a.mu.Unlock()

	for _, cb := range subs {
		cb(id.Clone())
	}
}
