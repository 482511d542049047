package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-lobby/internal/lobby"
	"github.com/example/ride-lobby/internal/notify"
)

// Server is the thin gateway over the lobby engine: it decodes caller
// identity and intent, invokes the engine, and serializes the snapshot or
// the typed failure. No domain rule lives here.
type Server struct {
	lobby  *lobby.Service
	ws     *notify.WSRegistry
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(svc *lobby.Service, ws *notify.WSRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{lobby: svc, ws: ws, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.identityMiddleware)
	api.HandleFunc("/rides", s.handleCreateRide).Methods("POST")
	api.HandleFunc("/rides", s.handleListActive).Methods("GET")
	api.HandleFunc("/rides/mine", s.handleListMine).Methods("GET")
	// code route registered before the id route so "code" is not read as a ride id
	api.HandleFunc("/rides/code/{code}", s.handleGetByShareCode).Methods("GET")
	api.HandleFunc("/rides/{ride_id}", s.handleGetRide).Methods("GET")
	api.HandleFunc("/rides/{ride_id}/join", s.handleJoin).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/leave", s.handleLeave).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/accept", s.handleAcceptTransport).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/start", s.handleStartTransport).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/complete", s.handleComplete).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/cancel", s.handleCancel).Methods("POST")

	s.mux.HandleFunc("/ws/rides/{ride_id}", s.handleWatch).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

var upgrader = websocket.Upgrader{
	// the gateway sits behind the app API, cross-origin watchers are fine
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWatch upgrades the connection and streams snapshots for one ride.
// Watching is read-only, so it requires no identity.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	if _, err := s.lobby.GetRide(r.Context(), rideID); err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		s.logger.Warn("websocket upgrade failed", "ride_id", rideID, "error", err)
		return
	}
	s.ws.Watch(rideID, conn)
}
