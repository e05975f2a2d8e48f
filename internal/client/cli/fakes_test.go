package cli

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/greenmission/internal/client/client"
	"github.com/dmitrijs2005/greenmission/internal/client/config"
	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/client/wallet"
	"github.com/dmitrijs2005/greenmission/internal/logging"
)

// fakeStore is an in-memory sessionStore. Listeners are called under
// notifyMu like the real store.
type fakeStore struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	cur       models.Session
	token     string
	listeners map[int]func(models.Session)
	nextID    int

	signInTo   []models.Session
	signInErr  error
	signInCtx  context.Context
	signOuts   int
	refreshes  int
	clearCalls int
	merged     []*models.Profile
}

func newFakeStore(cur models.Session) *fakeStore {
	return &fakeStore{cur: cur, listeners: map[int]func(models.Session){}}
}

func (f *fakeStore) Init(context.Context) error { return nil }
func (f *fakeStore) Teardown()                  {}

func (f *fakeStore) Session() models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur.Clone()
}

func (f *fakeStore) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeStore) Subscribe(fn func(models.Session)) func() {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	cur := f.cur.Clone()
	f.mu.Unlock()
	fn(cur)
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeStore) set(s models.Session) {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()
	f.mu.Lock()
	f.cur = s
	fns := make([]func(models.Session), 0, len(f.listeners))
	for i := 0; i < f.nextID; i++ {
		if fn, ok := f.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(s.Clone())
	}
}

func (f *fakeStore) SignIn(ctx context.Context) error {
	f.signInCtx = ctx
	if f.signInErr != nil {
		return f.signInErr
	}
	for _, s := range f.signInTo {
		f.set(s)
	}
	return nil
}

func (f *fakeStore) SignOut(context.Context) error {
	f.mu.Lock()
	f.signOuts++
	f.mu.Unlock()
	f.set(models.Session{Status: models.StatusUnauthenticated})
	return nil
}

func (f *fakeStore) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeStore) ClearError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
}

func (f *fakeStore) MergeProfile(p *models.Profile) {
	f.mu.Lock()
	f.merged = append(f.merged, p)
	cur := f.cur
	f.mu.Unlock()
	cur.Profile = p
	f.set(cur)
}

func (f *fakeStore) SetWarning(msg string) {
	f.mu.Lock()
	cur := f.cur
	f.mu.Unlock()
	cur.Warning = msg
	f.set(cur)
}

func (f *fakeStore) Wait(ctx context.Context, pred func(models.Session) bool) (models.Session, error) {
	cur := f.Session()
	if pred(cur) {
		return cur, nil
	}
	<-ctx.Done()
	return cur, ctx.Err()
}

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

type fakeProfileAPI struct {
	upload  *client.AvatarUpload
	patches []client.ProfilePatch
}

func (f *fakeProfileAPI) PatchProfile(_ context.Context, _ string, patch client.ProfilePatch) (*models.Profile, error) {
	f.patches = append(f.patches, patch)
	p := signedIn().Profile.Clone()
	p.PhotoURL = patch.PhotoURL
	p.WalletAddress = patch.WalletAddress
	return p, nil
}

func (f *fakeProfileAPI) AvatarUploadURL(context.Context, string, string) (*client.AvatarUpload, error) {
	return f.upload, nil
}

// syncBuffer guards a bytes.Buffer written from notification goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func signedIn() models.Session {
	return models.Session{
		Status:   models.StatusAuthenticated,
		Identity: &models.Identity{Subject: "u1", Email: "a@b.com"},
		Profile: &models.Profile{
			ID: 1, UID: "u1", Name: "Ana", Email: "a@b.com", Role: models.RoleContributor,
			Stats: models.Stats{MissionsCompleted: 3, RewardsEarned: 120},
		},
	}
}

func newTestApp(t *testing.T, store *fakeStore, input ...string) (*App, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	cfg := &config.Config{}
	cfg.LoadDefaults()
	a := newApp(cfg, logging.Nop{}, out, bufio.NewReader(strings.NewReader(strings.Join(input, "\n"))))
	a.store = store
	a.health = &fakePinger{}
	a.api = &fakeProfileAPI{}
	a.conn = wallet.NewLocalConnector()
	a.wallet = wallet.NewSync(a.conn, store, a.api.(*fakeProfileAPI), logging.Nop{})
	return a, out
}
