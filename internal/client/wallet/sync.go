// Package wallet keeps the profile's wallet address in line with the
// externally managed wallet connection.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/greenmission/internal/client/client"
	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/logging"
)

// ErrSyncFailed wraps a failed profile patch. It is never fatal.
var ErrSyncFailed = errors.New("wallet sync failed")

const warnSyncFailed = "Your wallet address could not be saved. It will be retried on the next change."

// Session is the part of the session store wallet sync works against.
type Session interface {
	Session() models.Session
	Token() string
	Subscribe(fn func(models.Session)) func()
	MergeProfile(p *models.Profile)
	SetWarning(msg string)
}

type Patcher interface {
	PatchProfile(ctx context.Context, token string, patch client.ProfilePatch) (*models.Profile, error)
}

// Sync patches the profile whenever the connected address differs from the
// stored one. Patches run on one worker goroutine; addresses that change
// while a patch is in flight collapse into the latest one.
type Sync struct {
	conn Connector
	sess Session
	api  Patcher
	log  logging.Logger

	mu         sync.Mutex
	pending    *string
	flushes    []chan error
	lastErr    error
	warned     bool
	lastStatus models.Status

	wake   chan struct{}
	cancel context.CancelFunc
	unsubs []func()
	wg     sync.WaitGroup
}

func NewSync(conn Connector, sess Session, api Patcher, log logging.Logger) *Sync {
	return &Sync{
		conn: conn,
		sess: sess,
		api:  api,
		log:  log.With("module", "wallet"),
		wake: make(chan struct{}, 1),
	}
}

// Start subscribes to wallet and session changes. A session that becomes
// authenticated while a wallet is connected is synced as well.
func (s *Sync) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run(ctx)

	s.unsubs = append(s.unsubs,
		s.conn.Subscribe(s.schedule),
		s.sess.Subscribe(s.onSession),
	)
}

func (s *Sync) Stop() {
	for _, u := range s.unsubs {
		u()
	}
	s.unsubs = nil
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Disconnect runs the local wallet disconnect first and then clears the
// stored address through the regular patch path.
func (s *Sync) Disconnect(ctx context.Context) error {
	if err := s.conn.Disconnect(ctx); err != nil {
		return fmt.Errorf("wallet disconnect: %w", err)
	}
	return nil
}

// Flush waits until every scheduled change has been handled and returns the
// error of the last patch, if it failed.
func (s *Sync) Flush(ctx context.Context) error {
	done := make(chan error, 1)
	s.mu.Lock()
	s.flushes = append(s.flushes, done)
	s.mu.Unlock()
	s.signal()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sync) onSession(cur models.Session) {
	s.mu.Lock()
	prev := s.lastStatus
	s.lastStatus = cur.Status
	s.mu.Unlock()

	if cur.Status == models.StatusAuthenticated && prev != models.StatusAuthenticated {
		if addr := s.conn.Address(); addr != "" {
			s.schedule(addr)
		}
	}
}

func (s *Sync) schedule(addr string) {
	s.mu.Lock()
	s.pending = &addr
	s.mu.Unlock()
	s.signal()
}

func (s *Sync) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sync) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for _, f := range s.flushes {
				f <- ctx.Err()
			}
			s.flushes = nil
			s.mu.Unlock()
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			next := s.pending
			s.pending = nil
			flushes := s.flushes
			s.flushes = nil
			s.mu.Unlock()

			if next == nil && len(flushes) == 0 {
				break
			}
			if next != nil {
				err := s.apply(ctx, *next)
				s.mu.Lock()
				s.lastErr = err
				s.mu.Unlock()
			}
			if len(flushes) > 0 {
				s.mu.Lock()
				err := s.lastErr
				s.mu.Unlock()
				for _, f := range flushes {
					f <- err
				}
			}
		}
	}
}

func (s *Sync) apply(ctx context.Context, addr string) error {
	cur := s.sess.Session()
	if cur.Status != models.StatusAuthenticated || cur.Profile == nil {
		s.log.Debug(ctx, "wallet change ignored, not signed in")
		return nil
	}

	addr = Normalize(addr)
	if cur.Profile.HasWallet(addr) {
		return nil
	}

	patch := client.ProfilePatch{WalletAddress: &addr}
	if addr == "" {
		patch = client.ProfilePatch{ClearWallet: true}
	}

	p, err := s.api.PatchProfile(ctx, s.sess.Token(), patch)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn(ctx, "wallet sync failed", "address", addr, "error", err)
		s.mu.Lock()
		s.warned = true
		s.mu.Unlock()
		s.sess.SetWarning(warnSyncFailed)
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	s.sess.MergeProfile(p)
	s.log.Info(ctx, "wallet synced", "address", addr)

	s.mu.Lock()
	warned := s.warned
	s.warned = false
	s.mu.Unlock()
	if warned {
		s.sess.SetWarning("")
	}
	return nil
}
