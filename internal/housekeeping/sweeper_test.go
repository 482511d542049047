package housekeeping

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakePurger struct {
	purged   int64
	err      error
	lastArg  time.Time
	numCalls int
}

func (f *fakePurger) PurgeTerminal(_ context.Context, olderThan time.Time) (int64, error) {
	f.numCalls++
	f.lastArg = olderThan
	return f.purged, f.err
}

func quietLogger() *slog.Logger { return slog.New(slog.NewJSONHandler(io.Discard, nil)) }

func TestSweepOnceUsesRetentionCutoff(t *testing.T) {
	f := &fakePurger{purged: 3}
	s := &Sweeper{Store: f, Retention: 24 * time.Hour, Interval: time.Minute, Log: quietLogger()}

	before := time.Now().UTC().Add(-24 * time.Hour)
	n, err := s.SweepOnce(context.Background())
	after := time.Now().UTC().Add(-24 * time.Hour)

	if err != nil || n != 3 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
	if f.lastArg.Before(before) || f.lastArg.After(after) {
		t.Fatalf("cutoff %v outside expected window [%v, %v]", f.lastArg, before, after)
	}
}

func TestSweepOncePropagatesStoreError(t *testing.T) {
	boom := errors.New("db down")
	f := &fakePurger{err: boom}
	s := &Sweeper{Store: f, Retention: time.Hour, Interval: time.Minute, Log: quietLogger()}

	if _, err := s.SweepOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := &fakePurger{}
	s := &Sweeper{Store: f, Retention: time.Hour, Interval: 5 * time.Millisecond, Log: quietLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if f.numCalls == 0 {
		t.Fatal("expected at least one sweep before cancel")
	}
}
