package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/ride-lobby/internal/models"
)

var (
	// ErrNotFound means the ride id or share code resolved to nothing.
	ErrNotFound = errors.New("storage: ride not found")
	// ErrShareCodeTaken means the generated share code collided with an
	// existing row; the caller retries with a fresh code.
	ErrShareCodeTaken = errors.New("storage: share code already in use")
)

// Change describes the row-level effects of one guarded transition. The
// mutate callback edits snap.Ride in place and flags what must be persisted.
type Change struct {
	UpdateRide   bool               // write snap.Ride's mutable columns (driver, status, updated_at)
	AddMember    *models.Membership // insert a membership row
	RemoveMember string             // delete the membership row for this user id
}

// MutateFn runs inside the store's transaction with the ride row locked.
// It must be pure apart from editing snap; an error aborts the transaction
// and is returned to the caller untouched.
type MutateFn func(snap *models.Snapshot) (Change, error)

// Store is the durable record of rides and memberships. Implementations
// must serialize concurrent Mutate calls on the same ride so that guards
// always observe a consistent snapshot (row lock or per-ride mutex).
type Store interface {
	// CreateRide inserts the ride and its creator membership atomically.
	CreateRide(ctx context.Context, ride models.Ride, creator models.Membership) error

	// Mutate locks the ride, invokes fn on the current snapshot, applies
	// the returned change and commits. The returned snapshot reflects the
	// committed state.
	Mutate(ctx context.Context, rideID string, fn MutateFn) (models.Snapshot, error)

	GetRide(ctx context.Context, rideID string) (models.Snapshot, error)
	GetRideByShareCode(ctx context.Context, code string) (models.Snapshot, error)
	ListActive(ctx context.Context) ([]models.Ride, error)
	ListForUser(ctx context.Context, userID string) ([]models.Ride, error)

	// PurgeTerminal deletes completed/cancelled rides whose updated_at is
	// older than the cutoff and reports how many were removed.
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error)
}
