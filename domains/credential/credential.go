package credential

import (
	"context"
	"errors"
	"time"
)

// ErrCredentialUnavailable is returned when no usable lease exists for an
// account: never connected, refresh permanently failed, or the bounded wait
// for an in-flight refresh expired.
var ErrCredentialUnavailable = errors.New("credential unavailable, account requires reconnection")

// CredentialLease wraps the current access token for one account. Leases are
// replaced on refresh, never mutated in place.
type CredentialLease struct {
	ID                string    `json:"id"`
	AccountID         string    `json:"account_id"`
	Token             string    `json:"-"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	RefreshInProgress bool      `json:"refresh_in_progress"`
}

// RemainingValidity returns how long the lease is still usable at the given time.
func (l CredentialLease) RemainingValidity(now time.Time) time.Duration {
	return l.ExpiresAt.Sub(now)
}

type ConnectRequest struct {
	AccountID string `json:"account_id"`
	AuthCode  string `json:"auth_code"`
}

type ICredentialUsecase interface {
	// Connect exchanges an authorization code for a fresh lease, replacing any
	// previous lease for the account.
	Connect(ctx context.Context, req ConnectRequest) (CredentialLease, error)
	// GetValidCredential returns the current lease immediately if valid. If a
	// refresh is in flight it waits (bounded) for completion. Fails fast with
	// ErrCredentialUnavailable otherwise.
	GetValidCredential(ctx context.Context, accountID string) (CredentialLease, error)
	GetLease(ctx context.Context, accountID string) (CredentialLease, error)
	// SweepOnce scans all leases and refreshes any whose remaining validity is
	// below the configured margin. One cycle of the background sweep.
	SweepOnce(ctx context.Context) error
	StartSweep(ctx context.Context)
}
