// Package models holds the server's persisted records.
package models

import "time"

// Role partitions users into contributors and NGOs.
type Role string

const (
	RoleContributor Role = "contributor"
	RoleNGO         Role = "ngo"
)

func (r Role) Valid() bool {
	return r == RoleContributor || r == RoleNGO
}

type Stats struct {
	MissionsCompleted int   `json:"missions_completed"`
	RewardsEarned     int64 `json:"rewards_earned"`
}

// User is the application profile keyed by the identity provider subject.
type User struct {
	ID            int64     `json:"id"`
	UID           string    `json:"uid"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	PhotoURL      *string   `json:"photo_url"`
	Role          Role      `json:"role"`
	WalletAddress *string   `json:"wallet_address"`
	Stats         Stats     `json:"stats"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Wallet returns the wallet address or "".
func (u *User) Wallet() string {
	if u == nil || u.WalletAddress == nil {
		return ""
	}
	return *u.WalletAddress
}

// ProfileUpdate is a partial update. Nil fields are left unchanged.
// SetWallet applies WalletAddress even when it is nil, which clears it.
type ProfileUpdate struct {
	Name          *string
	PhotoURL      *string
	WalletAddress *string
	SetWallet     bool
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.PhotoURL == nil && !p.SetWallet
}
