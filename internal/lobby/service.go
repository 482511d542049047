package lobby

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-lobby/internal/models"
	"github.com/example/ride-lobby/internal/observability"
	"github.com/example/ride-lobby/internal/sharecode"
	"github.com/example/ride-lobby/internal/storage"
)

// EventPublisher receives one lifecycle event per successful transition.
type EventPublisher interface {
	PublishRideEvent(ctx context.Context, evt models.RideEvent) error
}

// Notifier fans the post-transition snapshot out to watchers.
type Notifier interface {
	RideUpdated(snap models.Snapshot)
}

// SnapshotCache absorbs the polling read load. Entries are refreshed after
// every transition and carry a short TTL, so a stale read is bounded by the
// poll interval.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (models.Snapshot, bool)
	Set(ctx context.Context, key string, snap models.Snapshot)
}

// DefaultCodeAttempts bounds share-code regeneration on collision.
const DefaultCodeAttempts = 5

// Service is the lobby coordination engine: it owns the ride state machine
// and is the only writer of status, driver and membership. Events, Notify
// and Cache are optional; a nil field disables that side effect.
type Service struct {
	Store        storage.Store
	Events       EventPublisher
	Notify       Notifier
	Cache        SnapshotCache
	Log          *slog.Logger
	CodeAttempts int
}

func NewService(store storage.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{Store: store, Log: log, CodeAttempts: DefaultCodeAttempts}
}

func rideKey(id string) string   { return "ride:" + id }
func codeKey(code string) string { return "code:" + code }

// CreateRide opens a lobby in waiting state with the creator as sole member.
func (s *Service) CreateRide(ctx context.Context, creator models.Identity, origin, destination models.Place, maxPassengers int, note string) (models.Snapshot, error) {
	if err := guardCreate(maxPassengers); err != nil {
		observability.DomainErrorsTotal.WithLabelValues(ErrInvalidConfiguration.Code).Inc()
		return models.Snapshot{}, err
	}

	attempts := s.CodeAttempts
	if attempts <= 0 {
		attempts = DefaultCodeAttempts
	}
	for i := 0; i < attempts; i++ {
		code, err := sharecode.New()
		if err != nil {
			return models.Snapshot{}, err
		}
		now := time.Now().UTC()
		ride := models.Ride{
			ID:            uuid.NewString(),
			CreatorID:     creator.ID,
			CreatorName:   creator.Name,
			Origin:        origin,
			Destination:   destination,
			MaxPassengers: maxPassengers,
			Status:        models.StatusWaiting,
			Note:          note,
			ShareCode:     code,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		member := models.Membership{RideID: ride.ID, UserID: creator.ID, DisplayName: creator.Name, JoinedAt: now}

		err = s.Store.CreateRide(ctx, ride, member)
		if errors.Is(err, storage.ErrShareCodeTaken) {
			s.Log.Warn("share code collision, regenerating", "code", code, "attempt", i+1)
			continue
		}
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("lobby: create ride: %w", err)
		}

		snap := models.Snapshot{Ride: ride, Members: []models.Membership{member}}
		observability.RidesCreatedTotal.Inc()
		s.fanout(ctx, "created", creator.ID, snap)
		return snap, nil
	}
	return models.Snapshot{}, fmt.Errorf("lobby: create ride: share code attempts exhausted")
}

// Join adds the caller to the passenger group. The capacity check and the
// insert execute as one atomic unit under the ride's row lock.
func (s *Service) Join(ctx context.Context, rideID string, user models.Identity) (models.Snapshot, error) {
	snap, err := s.transition(ctx, rideID, "joined", user.ID, func(snap *models.Snapshot) (storage.Change, error) {
		if err := guardJoin(snap, user.ID); err != nil {
			return storage.Change{}, err
		}
		now := time.Now().UTC()
		snap.Ride.UpdatedAt = now
		return storage.Change{
			UpdateRide: true,
			AddMember:  &models.Membership{RideID: snap.Ride.ID, UserID: user.ID, DisplayName: user.Name, JoinedAt: now},
		}, nil
	})
	if err == nil {
		observability.MembersJoinedTotal.Inc()
	}
	return snap, err
}

// Leave removes the caller's membership. Removing a non-member is a domain
// error, so a second leave reports NotAMember rather than silently passing.
func (s *Service) Leave(ctx context.Context, rideID string, user models.Identity) error {
	_, err := s.transition(ctx, rideID, "left", user.ID, func(snap *models.Snapshot) (storage.Change, error) {
		if err := guardLeave(snap, user.ID); err != nil {
			return storage.Change{}, err
		}
		snap.Ride.UpdatedAt = time.Now().UTC()
		return storage.Change{UpdateRide: true, RemoveMember: user.ID}, nil
	})
	if err == nil {
		observability.MembersLeftTotal.Inc()
	}
	return err
}

// AcceptTransport assigns the caller as the ride's driver. The role is
// exclusive and set exactly once per ride.
func (s *Service) AcceptTransport(ctx context.Context, rideID string, user models.Identity) (models.Snapshot, error) {
	return s.transition(ctx, rideID, "accepted", user.ID, func(snap *models.Snapshot) (storage.Change, error) {
		if err := guardAcceptTransport(snap, user.ID); err != nil {
			return storage.Change{}, err
		}
		snap.Ride.DriverID = user.ID
		snap.Ride.DriverName = user.Name
		snap.Ride.Status = models.StatusAccepted
		snap.Ride.UpdatedAt = time.Now().UTC()
		return storage.Change{UpdateRide: true}, nil
	})
}

// StartTransport freezes membership and marks the ride in transit.
func (s *Service) StartTransport(ctx context.Context, rideID string, user models.Identity) (models.Snapshot, error) {
	return s.transition(ctx, rideID, "started", user.ID, func(snap *models.Snapshot) (storage.Change, error) {
		if err := guardStartTransport(snap, user.ID); err != nil {
			return storage.Change{}, err
		}
		snap.Ride.Status = models.StatusInTransit
		snap.Ride.UpdatedAt = time.Now().UTC()
		return storage.Change{UpdateRide: true}, nil
	})
}

// Complete closes the ride out after the trip.
func (s *Service) Complete(ctx context.Context, rideID string, user models.Identity) (models.Snapshot, error) {
	return s.transition(ctx, rideID, "completed", user.ID, func(snap *models.Snapshot) (storage.Change, error) {
		if err := guardComplete(snap, user.ID); err != nil {
			return storage.Change{}, err
		}
		snap.Ride.Status = models.StatusCompleted
		snap.Ride.UpdatedAt = time.Now().UTC()
		return storage.Change{UpdateRide: true}, nil
	})
}

// Cancel relinquishes the ride from any non-terminal state.
func (s *Service) Cancel(ctx context.Context, rideID string, user models.Identity) (models.Snapshot, error) {
	return s.transition(ctx, rideID, "cancelled", user.ID, func(snap *models.Snapshot) (storage.Change, error) {
		if err := guardCancel(snap, user.ID); err != nil {
			return storage.Change{}, err
		}
		snap.Ride.Status = models.StatusCancelled
		snap.Ride.UpdatedAt = time.Now().UTC()
		return storage.Change{UpdateRide: true}, nil
	})
}

// GetRide returns a point-in-time snapshot, served from cache when fresh.
func (s *Service) GetRide(ctx context.Context, rideID string) (models.Snapshot, error) {
	if s.Cache != nil {
		if snap, ok := s.Cache.Get(ctx, rideKey(rideID)); ok {
			observability.CacheHitsTotal.Inc()
			return snap, nil
		}
		observability.CacheMissesTotal.Inc()
	}
	snap, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return models.Snapshot{}, s.readErr("get ride", err)
	}
	s.cacheSnapshot(ctx, snap)
	return snap, nil
}

// GetRideByShareCode resolves a code case-insensitively.
func (s *Service) GetRideByShareCode(ctx context.Context, code string) (models.Snapshot, error) {
	code = sharecode.Normalize(code)
	if s.Cache != nil {
		if snap, ok := s.Cache.Get(ctx, codeKey(code)); ok {
			observability.CacheHitsTotal.Inc()
			return snap, nil
		}
		observability.CacheMissesTotal.Inc()
	}
	snap, err := s.Store.GetRideByShareCode(ctx, code)
	if err != nil {
		return models.Snapshot{}, s.readErr("get ride by share code", err)
	}
	s.cacheSnapshot(ctx, snap)
	return snap, nil
}

// ListActive returns rides still open for coordination.
func (s *Service) ListActive(ctx context.Context) ([]models.Ride, error) {
	rides, err := s.Store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("lobby: list active: %w", err)
	}
	return rides, nil
}

// ListForUser returns rides the user created, drives, or rides in.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Ride, error) {
	rides, err := s.Store.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lobby: list for user: %w", err)
	}
	return rides, nil
}

// transition runs one guarded mutation and, on success, fans out the new
// snapshot to cache, event feed and watchers.
func (s *Service) transition(ctx context.Context, rideID, eventType, actorID string, fn storage.MutateFn) (models.Snapshot, error) {
	snap, err := s.Store.Mutate(ctx, rideID, fn)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = ErrNotFound
		}
		var derr *DomainError
		if errors.As(err, &derr) {
			observability.DomainErrorsTotal.WithLabelValues(derr.Code).Inc()
			observability.TransitionsTotal.WithLabelValues(eventType, "rejected").Inc()
			return models.Snapshot{}, derr
		}
		observability.TransitionsTotal.WithLabelValues(eventType, "error").Inc()
		return models.Snapshot{}, fmt.Errorf("lobby: %s: %w", eventType, err)
	}
	observability.TransitionsTotal.WithLabelValues(eventType, "ok").Inc()
	s.fanout(ctx, eventType, actorID, snap)
	return snap, nil
}

func (s *Service) readErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("lobby: %s: %w", op, err)
}

func (s *Service) cacheSnapshot(ctx context.Context, snap models.Snapshot) {
	if s.Cache == nil {
		return
	}
	s.Cache.Set(ctx, rideKey(snap.Ride.ID), snap)
	s.Cache.Set(ctx, codeKey(snap.Ride.ShareCode), snap)
}

// fanout is best-effort: a slow broker or dead watcher never fails a
// committed transition.
func (s *Service) fanout(ctx context.Context, eventType, actorID string, snap models.Snapshot) {
	s.cacheSnapshot(ctx, snap)
	if s.Events != nil {
		evt := models.RideEvent{
			RideID:     snap.Ride.ID,
			Type:       eventType,
			Status:     snap.Ride.Status,
			ActorID:    actorID,
			OccurredAt: snap.Ride.UpdatedAt,
		}
		// the publish must never hold up the response; the producer carries
		// its own timeout, detached from the request's cancellation
		go func(ctx context.Context) {
			if err := s.Events.PublishRideEvent(ctx, evt); err != nil {
				s.Log.Warn("ride event publish failed", "ride_id", evt.RideID, "type", evt.Type, "error", err)
			}
		}(context.WithoutCancel(ctx))
	}
	if s.Notify != nil {
		s.Notify.RideUpdated(snap)
	}
	s.Log.Info("ride_transition",
		"ride_id", snap.Ride.ID,
		"type", eventType,
		"status", snap.Ride.Status,
		"actor_id", actorID,
		"members", len(snap.Members),
	)
}
