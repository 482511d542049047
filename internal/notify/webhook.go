package notify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/ride-lobby/internal/models"
)

// WebhookNotifier posts each snapshot to a configured endpoint, e.g. the
// discovery app's notification fan-out. Best-effort: failures are logged,
// never surfaced to the transition that triggered them.
type WebhookNotifier struct {
	Endpoint string
	Client   *http.Client
	Log      *slog.Logger
}

func NewWebhookNotifier(endpoint string, log *slog.Logger) *WebhookNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookNotifier{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, Log: log}
}

func (n *WebhookNotifier) RideUpdated(snap models.Snapshot) {
	b, err := json.Marshal(snap)
	if err != nil {
		return
	}
	resp, err := n.Client.Post(n.Endpoint, "application/json", bytes.NewReader(b))
	if err != nil {
		n.Log.Warn("webhook notify failed", "ride_id", snap.Ride.ID, "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.Log.Warn("webhook notify rejected", "ride_id", snap.Ride.ID, "status", resp.StatusCode)
	}
}

// Notifier is anything that wants the post-transition snapshot.
type Notifier interface {
	RideUpdated(snap models.Snapshot)
}

// Fanout delivers one update to several notifiers in order.
type Fanout []Notifier

func (f Fanout) RideUpdated(snap models.Snapshot) {
	for _, n := range f {
		n.RideUpdated(snap)
	}
}
