package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-lobby/internal/models"
)

func seedRide(t *testing.T, store *MemoryStore, id, code string, status models.Status, updatedAt time.Time) {
	t.Helper()
	ride := models.Ride{
		ID:            id,
		CreatorID:     "u1",
		Origin:        models.Place{Name: "a"},
		Destination:   models.Place{Name: "b"},
		MaxPassengers: 4,
		Status:        status,
		ShareCode:     code,
		CreatedAt:     updatedAt,
		UpdatedAt:     updatedAt,
	}
	member := models.Membership{RideID: id, UserID: "u1", JoinedAt: updatedAt}
	if err := store.CreateRide(context.Background(), ride, member); err != nil {
		t.Fatalf("seed ride %s: %v", id, err)
	}
}

func TestCreateRideShareCodeCollision(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	seedRide(t, store, "r1", "AAAAAA", models.StatusWaiting, now)

	ride := models.Ride{ID: "r2", CreatorID: "u2", Status: models.StatusWaiting, ShareCode: "AAAAAA", MaxPassengers: 2}
	err := store.CreateRide(context.Background(), ride, models.Membership{RideID: "r2", UserID: "u2"})
	if !errors.Is(err, ErrShareCodeTaken) {
		t.Fatalf("expected ErrShareCodeTaken, got %v", err)
	}
}

func TestMutateIsLinearizablePerRide(t *testing.T) {
	store := NewMemoryStore()
	seedRide(t, store, "r1", "AAAAAA", models.StatusWaiting, time.Now())

	// each mutation reads the member count and conditionally appends; under a
	// correct lock exactly max-1 of them may pass the capacity check
	const contenders = 50
	const max = 4
	var wg sync.WaitGroup
	var ok int64
	var mu sync.Mutex
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Mutate(context.Background(), "r1", func(snap *models.Snapshot) (Change, error) {
				if len(snap.Members) >= max {
					return Change{}, errors.New("full")
				}
				return Change{AddMember: &models.Membership{RideID: "r1", UserID: fmt.Sprintf("u%d", i+2)}}, nil
			})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if ok != max-1 {
		t.Fatalf("expected %d successful inserts, got %d", max-1, ok)
	}
	snap, err := store.GetRide(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(snap.Members) != max {
		t.Fatalf("expected %d members, got %d", max, len(snap.Members))
	}
}

func TestMutateErrorLeavesStateUntouched(t *testing.T) {
	store := NewMemoryStore()
	seedRide(t, store, "r1", "AAAAAA", models.StatusWaiting, time.Now())

	boom := errors.New("guard says no")
	_, err := store.Mutate(context.Background(), "r1", func(snap *models.Snapshot) (Change, error) {
		snap.Ride.Status = models.StatusCancelled // edits are discarded on error
		return Change{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected guard error passthrough, got %v", err)
	}
	snap, _ := store.GetRide(context.Background(), "r1")
	if snap.Ride.Status != models.StatusWaiting {
		t.Fatalf("failed mutation leaked state: %s", snap.Ride.Status)
	}
}

func TestPurgeTerminalRespectsStatusAndAge(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	old := now.Add(-48 * time.Hour)

	seedRide(t, store, "r-old-done", "AAAAAA", models.StatusCompleted, old)
	seedRide(t, store, "r-old-cancelled", "BBBBBB", models.StatusCancelled, old)
	seedRide(t, store, "r-fresh-done", "CCCCCC", models.StatusCompleted, now)
	seedRide(t, store, "r-old-open", "DDDDDD", models.StatusWaiting, old)

	purged, err := store.PurgeTerminal(context.Background(), now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 2 {
		t.Fatalf("expected 2 purged, got %d", purged)
	}

	// the stale-but-open ride survives regardless of age
	if _, err := store.GetRide(context.Background(), "r-old-open"); err != nil {
		t.Fatalf("non-terminal ride was swept: %v", err)
	}
	if _, err := store.GetRide(context.Background(), "r-fresh-done"); err != nil {
		t.Fatalf("fresh terminal ride was swept: %v", err)
	}
	if _, err := store.GetRide(context.Background(), "r-old-done"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old completed ride purged, got %v", err)
	}
	// the purged ride's share code is free again
	if _, err := store.GetRideByShareCode(context.Background(), "AAAAAA"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("share code still resolves after purge: %v", err)
	}
}
