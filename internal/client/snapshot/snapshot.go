// Package snapshot persists the last resolved session (bearer token and
// profile) so the next start can show it while the identity provider
// restores its own state. The snapshot is advisory and never a source of
// truth for who is signed in.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/greenmission/internal/dbx"
)

const (
	KeyToken   = "token"
	KeyProfile = "user"
)

// Snapshot is the persisted pair. Both fields are set or the snapshot is
// considered absent.
type Snapshot struct {
	Token   string
	Profile *models.Profile
}

// Store reads and writes the snapshot keys of the metadata table.
type Store struct {
	db   dbx.TxBeginner
	repo *metadata.SQLiteRepository
}

// NewStore expects db to be the same handle repo was built on.
func NewStore(db dbx.TxBeginner, repo *metadata.SQLiteRepository) *Store {
	return &Store{db: db, repo: repo}
}

// Load returns (nil, nil) when no complete snapshot exists. A snapshot
// whose profile cannot be decoded is erased and reported as absent.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	token, err := s.repo.Get(ctx, KeyToken)
	if err != nil {
		return nil, err
	}
	raw, err := s.repo.Get(ctx, KeyProfile)
	if err != nil {
		return nil, err
	}
	if len(token) == 0 || len(raw) == 0 {
		return nil, nil
	}

	var p models.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		if err := s.Erase(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &Snapshot{Token: string(token), Profile: &p}, nil
}

// Save writes both keys in one transaction.
func (s *Store) Save(ctx context.Context, token string, p *models.Profile) error {
	if token == "" || p == nil {
		return fmt.Errorf("snapshot save: token and profile are required")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := s.repo.WithTx(tx)
		if err := r.Set(ctx, KeyToken, []byte(token)); err != nil {
			return err
		}
		return r.Set(ctx, KeyProfile, raw)
	})
}

// Erase removes both keys. Erasing an absent snapshot is not an error.
func (s *Store) Erase(ctx context.Context) error {
	return s.repo.Delete(ctx, KeyToken, KeyProfile)
}
