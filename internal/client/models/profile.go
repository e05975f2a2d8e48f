package models

import (
	"strings"
	"time"
)

// Role partitions the application into contributor and NGO areas.
type Role string

const (
	RoleContributor Role = "contributor"
	RoleNGO         Role = "ngo"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleContributor || r == RoleNGO
}

// Stats are the accumulated counters shown on the dashboard.
type Stats struct {
	MissionsCompleted int   `json:"missions_completed"`
	RewardsEarned     int64 `json:"rewards_earned"`
}

// Profile is the application-level user record served by the API.
type Profile struct {
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

// Wallet returns the stored wallet address or "".
func (p *Profile) Wallet() string {
	if p == nil || p.WalletAddress == nil {
		return ""
	}
	return *p.WalletAddress
}

// HasWallet reports whether addr matches the stored wallet address.
// Hex addresses compare case-insensitively; "" matches an unset address.
func (p *Profile) HasWallet(addr string) bool {
	return strings.EqualFold(p.Wallet(), addr)
}

// Clone returns a deep copy, or nil for a nil receiver.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.PhotoURL != nil {
		v := *p.PhotoURL
		c.PhotoURL = &v
	}
	if p.WalletAddress != nil {
		v := *p.WalletAddress
		c.WalletAddress = &v
	}
	return &c
}
