package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-lobby/internal/models"
)

// MemoryStore keeps rides in process memory. It backs tests and DSN-less
// local runs with the same linearizability contract as Postgres: a per-ride
// mutex stands in for the row lock.
type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]*memRide
	codes map[string]string // share code -> ride id
}

type memRide struct {
	mu      sync.Mutex
	ride    models.Ride
	members []models.Membership
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*memRide), codes: make(map[string]string)}
}

func (m *MemoryStore) CreateRide(_ context.Context, ride models.Ride, creator models.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.codes[ride.ShareCode]; taken {
		return ErrShareCodeTaken
	}
	m.rides[ride.ID] = &memRide{ride: ride, members: []models.Membership{creator}}
	m.codes[ride.ShareCode] = ride.ID
	return nil
}

func (m *MemoryStore) Mutate(_ context.Context, rideID string, fn MutateFn) (models.Snapshot, error) {
	m.mu.RLock()
	entry, ok := m.rides[rideID]
	m.mu.RUnlock()
	if !ok {
		return models.Snapshot{}, ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	snap := entry.snapshot()
	change, err := fn(&snap)
	if err != nil {
		return models.Snapshot{}, err
	}
	if change.UpdateRide {
		entry.ride = snap.Ride
	}
	if change.AddMember != nil {
		entry.members = append(entry.members, *change.AddMember)
	}
	if change.RemoveMember != "" {
		kept := entry.members[:0]
		for _, mem := range entry.members {
			if mem.UserID != change.RemoveMember {
				kept = append(kept, mem)
			}
		}
		entry.members = kept
	}
	return entry.snapshot(), nil
}

func (e *memRide) snapshot() models.Snapshot {
	members := make([]models.Membership, len(e.members))
	copy(members, e.members)
	return models.Snapshot{Ride: e.ride, Members: members}
}

func (m *MemoryStore) GetRide(_ context.Context, rideID string) (models.Snapshot, error) {
	m.mu.RLock()
	entry, ok := m.rides[rideID]
	m.mu.RUnlock()
	if !ok {
		return models.Snapshot{}, ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.snapshot(), nil
}

func (m *MemoryStore) GetRideByShareCode(ctx context.Context, code string) (models.Snapshot, error) {
	m.mu.RLock()
	id, ok := m.codes[code]
	m.mu.RUnlock()
	if !ok {
		return models.Snapshot{}, ErrNotFound
	}
	return m.GetRide(ctx, id)
}

func (m *MemoryStore) ListActive(_ context.Context) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Ride, 0, len(m.rides))
	for _, entry := range m.rides {
		entry.mu.Lock()
		if entry.ride.Status.Open() {
			out = append(out, entry.ride)
		}
		entry.mu.Unlock()
	}
	sortRides(out)
	return out, nil
}

func (m *MemoryStore) ListForUser(_ context.Context, userID string) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Ride, 0, len(m.rides))
	for _, entry := range m.rides {
		entry.mu.Lock()
		involved := entry.ride.CreatorID == userID || entry.ride.DriverID == userID
		if !involved {
			for _, mem := range entry.members {
				if mem.UserID == userID {
					involved = true
					break
				}
			}
		}
		if involved {
			out = append(out, entry.ride)
		}
		entry.mu.Unlock()
	}
	sortRides(out)
	return out, nil
}

func (m *MemoryStore) PurgeTerminal(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, entry := range m.rides {
		entry.mu.Lock()
		expired := entry.ride.Status.Terminal() && entry.ride.UpdatedAt.Before(olderThan)
		code := entry.ride.ShareCode
		entry.mu.Unlock()
		if expired {
			delete(m.rides, id)
			delete(m.codes, code)
			purged++
		}
	}
	return purged, nil
}

// newest first, matching the postgres ORDER BY
func sortRides(rides []models.Ride) {
	sort.Slice(rides, func(i, j int) bool { return rides[i].CreatedAt.After(rides[j].CreatedAt) })
}
