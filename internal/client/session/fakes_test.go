package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/client/profile"
	"github.com/dmitrijs2005/greenmission/internal/client/snapshot"
	"github.com/dmitrijs2005/greenmission/internal/logging"
)

type fakeSource struct {
	mu           sync.Mutex
	cb           func(*models.Identity)
	Unsubscribed int
	SignOutCalls int
	SignInResult *models.Identity
	SignInErr    error
}

func (f *fakeSource) SignIn(context.Context) (*models.Identity, error) {
	if f.SignInErr != nil {
		return nil, f.SignInErr
	}
	f.emit(f.SignInResult)
	return f.SignInResult, nil
}

func (f *fakeSource) SignOut(context.Context) error {
	f.mu.Lock()
	f.SignOutCalls++
	f.mu.Unlock()
	f.emit(nil)
	return nil
}

func (f *fakeSource) OnIdentityChange(cb func(*models.Identity)) func() {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.Unsubscribed++
		f.mu.Unlock()
	}
}

func (f *fakeSource) emit(id *models.Identity) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(id)
	}
}

func (f *fakeSource) signOuts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SignOutCalls
}

type fetchCall struct {
	Subject string
	Token   string
}

type fetchOutcome struct {
	profile *models.Profile
	token   string
	err     error
}

// fakeFetcher ignores ctx on purpose: stale results must be dropped by the
// store even when the request is not interrupted.
type fakeFetcher struct {
	mu       sync.Mutex
	calls    []fetchCall
	outcomes map[string]fetchOutcome
	gates    map[string]chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{outcomes: map[string]fetchOutcome{}, gates: map[string]chan struct{}{}}
}

func (f *fakeFetcher) set(subject string, o fetchOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[subject] = o
}

func (f *fakeFetcher) gate(subject string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[subject] = ch
	return ch
}

func (f *fakeFetcher) Fetch(_ context.Context, id *models.Identity, token string) (*profile.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{Subject: id.Subject, Token: token})
	gate := f.gates[id.Subject]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	o := f.outcomes[id.Subject]
	f.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	tok := o.token
	if tok == "" {
		tok = token
	}
	return &profile.Result{Profile: o.profile.Clone(), Token: tok}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) lastCall() fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type memSnapshots struct {
	mu     sync.Mutex
	snap   *snapshot.Snapshot
	Saves  int
	Erases int
}

func (m *memSnapshots) Load(context.Context) (*snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, nil
}

func (m *memSnapshots) Save(_ context.Context, token string, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = &snapshot.Snapshot{Token: token, Profile: p.Clone()}
	m.Saves++
	return nil
}

func (m *memSnapshots) Erase(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	m.Erases++
	return nil
}

func (m *memSnapshots) current() *snapshot.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

type fakeRevoker struct {
	mu     sync.Mutex
	Tokens []string
	Err    error
}

func (f *fakeRevoker) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tokens = append(f.Tokens, token)
	return f.Err
}

type harness struct {
	store     *Store
	source    *fakeSource
	fetcher   *fakeFetcher
	snapshots *memSnapshots
	revoker   *fakeRevoker
}

func newHarness(t *testing.T, snap *snapshot.Snapshot) *harness {
	t.Helper()
	h := &harness{
		source:    &fakeSource{},
		fetcher:   newFakeFetcher(),
		snapshots: &memSnapshots{snap: snap},
		revoker:   &fakeRevoker{},
	}
	h.store = NewStore(h.source, h.fetcher, h.snapshots, h.revoker, logging.Nop{})
	require.NoError(t, h.store.Init(context.Background()))
	t.Cleanup(h.store.Teardown)
	return h
}

func (h *harness) waitStatus(t *testing.T, want models.Status) models.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cur, err := h.store.Wait(ctx, func(s models.Session) bool { return s.Status == want })
	require.NoError(t, err, "status %s never reached, last %+v", want, cur)
	return cur
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond)
}

// statusLog records every status a listener observed.
type statusLog struct {
	mu  sync.Mutex
	seq []models.Status
}

func (l *statusLog) add(s models.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.seq); n == 0 || l.seq[n-1] != s.Status {
		l.seq = append(l.seq, s.Status)
	}
}

func (l *statusLog) statuses() []models.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Status(nil), l.seq...)
}

func contributor(id int64, uid string) *models.Profile {
	return &models.Profile{ID: id, UID: uid, Role: models.RoleContributor}
}
