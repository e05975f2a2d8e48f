// Package events publishes profile changes to RabbitMQ for downstream
// consumers such as the rewards payout worker.
package events

import (
	"context"
	"time"
)

// WalletChangedQueue receives a message whenever a user links, replaces or
// unlinks a wallet.
const WalletChangedQueue = "profile.wallet_changed"

type WalletChanged struct {
	UserID    int64     `json:"user_id"`
	UID       string    `json:"uid"`
	Previous  *string   `json:"previous"`
	Current   *string   `json:"current"`
	ChangedAt time.Time `json:"changed_at"`
}

type Publisher interface {
	PublishWalletChanged(ctx context.Context, ev WalletChanged) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) PublishWalletChanged(context.Context, WalletChanged) error { return nil }
