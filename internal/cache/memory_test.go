package cache

import (
	"context"
	"testing"
	"time"

	"github.com/example/ride-lobby/internal/models"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "ride:r1"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	snap := models.Snapshot{Ride: models.Ride{ID: "r1", Status: models.StatusWaiting}}
	c.Set(ctx, "ride:r1", snap)

	got, ok := c.Get(ctx, "ride:r1")
	if !ok || got.Ride.ID != "r1" {
		t.Fatalf("expected hit for r1, got ok=%v snap=%+v", ok, got)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(10 * time.Millisecond)
	ctx := context.Background()

	c.Set(ctx, "ride:r1", models.Snapshot{Ride: models.Ride{ID: "r1"}})
	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get(ctx, "ride:r1"); ok {
		t.Fatal("expected entry to expire")
	}
}
