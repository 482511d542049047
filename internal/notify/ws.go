package notify

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-lobby/internal/models"
	"github.com/example/ride-lobby/internal/observability"
)

// WSRegistry fans post-transition snapshots out to websocket watchers of a
// ride. It is a pure read-side channel: watchers receive the same snapshot
// a poll would, just sooner.
type WSRegistry struct {
	mu       sync.RWMutex
	watchers map[string]map[*watcher]struct{} // ride id -> sessions
	log      *slog.Logger
}

type watcher struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes on the conn
}

func (w *watcher) send(snap models.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(snap)
}

func NewWSRegistry(log *slog.Logger) *WSRegistry {
	if log == nil {
		log = slog.Default()
	}
	return &WSRegistry{watchers: make(map[string]map[*watcher]struct{}), log: log}
}

// Watch registers a connection for a ride and holds it until the peer goes
// away. The read pump discards inbound frames; watchers only listen.
func (r *WSRegistry) Watch(rideID string, conn *websocket.Conn) {
	w := &watcher{conn: conn}
	r.mu.Lock()
	if r.watchers[rideID] == nil {
		r.watchers[rideID] = make(map[*watcher]struct{})
	}
	r.watchers[rideID][w] = struct{}{}
	r.mu.Unlock()
	observability.WSWatchers.Inc()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				r.remove(rideID, w)
				return
			}
		}
	}()
}

func (r *WSRegistry) remove(rideID string, w *watcher) {
	r.mu.Lock()
	if set, ok := r.watchers[rideID]; ok {
		if _, present := set[w]; present {
			delete(set, w)
			observability.WSWatchers.Dec()
		}
		if len(set) == 0 {
			delete(r.watchers, rideID)
		}
	}
	r.mu.Unlock()
	_ = w.conn.Close()
}

// RideUpdated broadcasts the snapshot to every watcher of the ride,
// dropping sessions whose writes fail.
func (r *WSRegistry) RideUpdated(snap models.Snapshot) {
	r.mu.RLock()
	set := r.watchers[snap.Ride.ID]
	targets := make([]*watcher, 0, len(set))
	for w := range set {
		targets = append(targets, w)
	}
	r.mu.RUnlock()

	for _, w := range targets {
		if err := w.send(snap); err != nil {
			r.log.Debug("ws watcher dropped", "ride_id", snap.Ride.ID, "error", err)
			r.remove(snap.Ride.ID, w)
		}
	}
}
