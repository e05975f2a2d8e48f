// Package session owns the client's combined view of who is signed in.
//
// The Store consumes identity events from an identity.Source in emission
// order, resolves each identity into a profile and publishes the resulting
// models.Session to its listeners. Every identity change bumps a request
// token; a profile fetch result is applied only while its token is still
// current, so a slow fetch for an older identity can never overwrite a
// newer one.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/greenmission/internal/client/client"
	"github.com/dmitrijs2005/greenmission/internal/client/identity"
	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/client/profile"
	"github.com/dmitrijs2005/greenmission/internal/client/snapshot"
	"github.com/dmitrijs2005/greenmission/internal/logging"
)

const (
	msgServer  = "Error loading user data. Try again later."
	msgNetwork = "Network error. Please check your internet connection and try again."
)

type Fetcher interface {
	Fetch(ctx context.Context, id *models.Identity, token string) (*profile.Result, error)
}

type Snapshots interface {
	Load(ctx context.Context) (*snapshot.Snapshot, error)
	Save(ctx context.Context, token string, p *models.Profile) error
	Erase(ctx context.Context) error
}

// Revoker ends the bearer credential on the server.
type Revoker interface {
	Logout(ctx context.Context, token string) error
}

type Store struct {
	source    identity.Source
	fetcher   Fetcher
	snapshots Snapshots
	revoker   Revoker
	log       logging.Logger

	mu      sync.Mutex
	session models.Session
	token   string
	// fetchedFor is the subject whose profile was fetched successfully
	// during this run; a snapshot profile does not count.
	fetchedFor  string
	gen         uint64
	cancelFetch context.CancelFunc
	listeners   map[int]func(models.Session)
	nextID      int

	notifyMu sync.Mutex

	qmu   sync.Mutex
	queue []*models.Identity
	wake  chan struct{}

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	started     bool
	wg          sync.WaitGroup
}

func NewStore(source identity.Source, fetcher Fetcher, snapshots Snapshots, revoker Revoker, log logging.Logger) *Store {
	return &Store{
		source:    source,
		fetcher:   fetcher,
		snapshots: snapshots,
		revoker:   revoker,
		log:       log.With("module", "session"),
		session:   models.Session{Status: models.StatusLoading},
		listeners: make(map[int]func(models.Session)),
		wake:      make(chan struct{}, 1),
	}
}

// Init loads the persisted snapshot and subscribes to identity changes.
// Calling it twice is a no-op.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		s.log.Warn(ctx, "load session snapshot", "error", err)
	}
	if snap != nil {
		s.mu.Lock()
		s.session.Profile = snap.Profile
		s.token = snap.Token
		s.mu.Unlock()
		s.log.Debug(ctx, "session snapshot loaded", "uid", snap.Profile.UID)
	}

	s.wg.Add(1)
	go s.run()

	unsub := s.source.OnIdentityChange(s.enqueue)
	s.mu.Lock()
	s.unsubscribe = unsub
	s.mu.Unlock()

	s.notify()
	return nil
}

// Teardown releases the identity subscription and stops background work.
// In-flight fetch results are dropped.
func (s *Store) Teardown() {
	s.mu.Lock()
	if !s.started || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.gen++
	s.cancel()
	s.cancel = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.wg.Wait()
}

// Session returns a copy of the current session.
func (s *Store) Session() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

// Token returns the bearer credential, or "" when signed out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Subscribe calls fn with the current session now and after every change.
// fn must not call methods that modify the Store.
func (s *Store) Subscribe(fn func(models.Session)) func() {
	s.notifyMu.Lock()
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	cur := s.session.Clone()
	s.mu.Unlock()
	fn(cur)
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// SignIn runs the provider's interactive challenge. The resulting identity
// reaches the Store through the identity stream. A cancelled challenge is
// silent; other failures set Session.LastError.
func (s *Store) SignIn(ctx context.Context) error {
	s.mu.Lock()
	s.session.LastError = ""
	s.mu.Unlock()
	s.notify()

	_, err := s.source.SignIn(ctx)
	if err == nil {
		return nil
	}
	if msg := identity.Message(err); msg != "" {
		s.mu.Lock()
		s.session.LastError = msg
		s.mu.Unlock()
		s.notify()
	}
	return err
}

// SignOut ends the session locally, revokes the bearer credential and signs
// out of the provider. Remote failures are logged. Calling it while signed
// out is a no-op.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if s.session.Identity == nil && s.token == "" && s.session.Status == models.StatusUnauthenticated {
		s.mu.Unlock()
		return nil
	}
	token := s.token
	s.endLocked()
	s.mu.Unlock()

	s.eraseSnapshot(ctx)
	s.notify()

	if token != "" && s.revoker != nil {
		if err := s.revoker.Logout(ctx, token); err != nil {
			s.log.Warn(ctx, "logout request failed", "error", err)
		}
	}
	return s.source.SignOut(ctx)
}

// Refresh refetches the profile of the current identity and waits for the
// result. It is a no-op without an identity.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.session.Identity == nil || !s.activeLocked() {
		s.mu.Unlock()
		return nil
	}
	if s.session.Status == models.StatusError {
		s.session.Status = models.StatusLoading
	}
	done := s.startFetchLocked()
	s.mu.Unlock()
	s.notify()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClearError dismisses LastError. From the error state it returns to
// authenticated when the profile of the current identity was fetched
// before, to unauthenticated without an identity, and otherwise to loading
// with a new fetch.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.session.LastError = ""
	if s.session.Status == models.StatusError {
		switch {
		case s.session.Identity == nil:
			s.session.Status = models.StatusUnauthenticated
		case s.session.Profile != nil && s.fetchedFor == s.session.Identity.Subject:
			s.session.Status = models.StatusAuthenticated
		case s.activeLocked():
			s.session.Status = models.StatusLoading
			s.startFetchLocked()
		}
	}
	s.mu.Unlock()
	s.notify()
}

// MergeProfile replaces the profile after a successful patch. The status is
// unchanged. The profile must belong to the current identity, and it is
// ignored until that identity's own profile has been fetched, so a patch
// that resolves after a user switch never lands in the new session.
func (s *Store) MergeProfile(p *models.Profile) {
	if p == nil {
		return
	}
	s.mu.Lock()
	id := s.session.Identity
	if id == nil || p.UID != id.Subject || s.fetchedFor != id.Subject ||
		(s.session.Profile != nil && s.session.Profile.ID != p.ID) {
		s.mu.Unlock()
		s.log.Debug(s.baseContext(), "profile merge ignored", "uid", p.UID)
		return
	}
	s.session.Profile = p.Clone()
	token := s.token
	s.mu.Unlock()

	if token != "" {
		if err := s.snapshots.Save(s.baseContext(), token, p); err != nil {
			s.log.Warn(s.baseContext(), "save session snapshot", "error", err)
		}
	}
	s.notify()
}

// SetWarning sets the non-blocking warning message ("" clears it).
func (s *Store) SetWarning(msg string) {
	s.mu.Lock()
	s.session.Warning = msg
	s.mu.Unlock()
	s.notify()
}

// Wait blocks until pred holds for the current session or ctx ends.
func (s *Store) Wait(ctx context.Context, pred func(models.Session) bool) (models.Session, error) {
	ch := make(chan models.Session, 1)
	unsub := s.Subscribe(func(cur models.Session) {
		for {
			select {
			case ch <- cur:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return s.Session(), ctx.Err()
		case cur := <-ch:
			if pred(cur) {
				return cur, nil
			}
		}
	}
}

// Settled reports whether the session is no longer loading.
func Settled(cur models.Session) bool {
	return cur.Status != models.StatusLoading
}

func (s *Store) enqueue(id *models.Identity) {
	s.qmu.Lock()
	s.queue = append(s.queue, id)
	s.qmu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) run() {
	defer s.wg.Done()
	ctx := s.baseContext()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		for {
			s.qmu.Lock()
			if len(s.queue) == 0 {
				s.qmu.Unlock()
				break
			}
			id := s.queue[0]
			s.queue = s.queue[1:]
			s.qmu.Unlock()

			if ctx.Err() != nil {
				return
			}
			s.handleIdentity(ctx, id)
		}
	}
}

func (s *Store) handleIdentity(ctx context.Context, id *models.Identity) {
	if id == nil {
		s.mu.Lock()
		s.endLocked()
		s.mu.Unlock()
		s.eraseSnapshot(ctx)
		s.log.Info(ctx, "signed out")
		s.notify()
		return
	}

	s.mu.Lock()
	if p := s.session.Profile; p != nil && p.UID != id.Subject {
		s.session.Profile = nil
		s.token = ""
	}
	prev := s.session.Identity
	if prev == nil || prev.Subject != id.Subject {
		s.fetchedFor = ""
	}
	if id.AccessToken != "" {
		s.token = id.AccessToken
	}
	s.session.Identity = id.Clone()
	// A re-emission for an already resolved subject (token refresh) keeps
	// the session authenticated and refetches in the background.
	if !(s.session.Status == models.StatusAuthenticated && s.fetchedFor == id.Subject) {
		s.session.Status = models.StatusLoading
	}
	s.startFetchLocked()
	s.mu.Unlock()
	s.notify()
}

// endLocked moves to unauthenticated and invalidates any in-flight fetch.
func (s *Store) endLocked() {
	s.gen++
	if s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}
	s.token = ""
	s.fetchedFor = ""
	s.session = models.Session{Status: models.StatusUnauthenticated, Warning: s.session.Warning}
}

// startFetchLocked bumps the request token and starts a profile fetch for
// the current identity. The returned channel receives the fetch error.
func (s *Store) startFetchLocked() <-chan error {
	s.gen++
	gen := s.gen
	if s.cancelFetch != nil {
		s.cancelFetch()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelFetch = cancel
	id := s.session.Identity.Clone()
	token := s.token

	done := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		res, err := s.fetcher.Fetch(ctx, id, token)
		done <- s.applyFetch(gen, id, res, err)
	}()
	return done
}

func (s *Store) applyFetch(gen uint64, id *models.Identity, res *profile.Result, err error) error {
	ctx := s.baseContext()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.log.Debug(ctx, "stale profile result dropped", "subject", id.Subject)
		return err
	}
	s.cancelFetch = nil

	switch {
	case err == nil:
		s.session.Profile = res.Profile.Clone()
		s.session.Status = models.StatusAuthenticated
		s.session.LastError = ""
		s.token = res.Token
		s.fetchedFor = id.Subject
		s.mu.Unlock()

		if err := s.snapshots.Save(ctx, res.Token, res.Profile); err != nil {
			s.log.Warn(ctx, "save session snapshot", "error", err)
		}
		s.log.Info(ctx, "session authenticated", "uid", res.Profile.UID, "role", res.Profile.Role)
		s.notify()
		return nil

	case errors.Is(err, client.ErrUnauthorized):
		s.endLocked()
		s.mu.Unlock()

		s.eraseSnapshot(ctx)
		s.log.Info(ctx, "credential rejected, signing out", "subject", id.Subject)
		s.notify()
		if err := s.source.SignOut(ctx); err != nil {
			s.log.Warn(ctx, "provider sign-out failed", "error", err)
		}
		return err

	case errors.Is(err, context.Canceled):
		s.mu.Unlock()
		return err

	default:
		s.session.Status = models.StatusError
		if errors.Is(err, client.ErrUnavailable) {
			s.session.LastError = msgNetwork
		} else {
			s.session.LastError = msgServer
		}
		s.mu.Unlock()

		s.log.Warn(ctx, "profile fetch failed", "subject", id.Subject, "error", err)
		s.notify()
		return err
	}
}

func (s *Store) eraseSnapshot(ctx context.Context) {
	if err := s.snapshots.Erase(ctx); err != nil {
		s.log.Warn(ctx, "erase session snapshot", "error", err)
	}
}

func (s *Store) activeLocked() bool {
	return s.ctx != nil && s.ctx.Err() == nil
}

func (s *Store) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Store) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	cur := s.session.Clone()
	ls := make([]func(models.Session), 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.listeners[i]; ok {
			ls = append(ls, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range ls {
		fn(cur)
	}
}
