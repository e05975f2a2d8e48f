// Package revocations records bearer credentials revoked at logout until
// they would have expired anyway.
package revocations

import (
	"context"
	"time"
)

type Repository interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
