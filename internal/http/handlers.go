package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/example/ride-lobby/internal/lobby"
	"github.com/example/ride-lobby/internal/models"
)

type createRideRequest struct {
	Origin        models.Place `json:"origin"`
	Destination   models.Place `json:"destination"`
	MaxPassengers int          `json:"max_passengers"`
	Note          string       `json:"note"`
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	caller := identityFromContext(r.Context())

	var req createRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeValidationError(w, "request body is not valid JSON")
		return
	}
	req.Origin.Name = strings.TrimSpace(req.Origin.Name)
	req.Destination.Name = strings.TrimSpace(req.Destination.Name)
	req.Note = strings.TrimSpace(req.Note)
	if req.Origin.Name == "" || req.Destination.Name == "" {
		s.writeValidationError(w, "origin and destination names are required")
		return
	}

	snap, err := s.lobby.CreateRide(r.Context(), caller, req.Origin, req.Destination, req.MaxPassengers, req.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	rides, err := s.lobby.ListActive(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rides": rides})
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	caller := identityFromContext(r.Context())
	rides, err := s.lobby.ListForUser(r.Context(), caller.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rides": rides})
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	snap, err := s.lobby.GetRide(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetByShareCode(w http.ResponseWriter, r *http.Request) {
	snap, err := s.lobby.GetRideByShareCode(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	caller := identityFromContext(r.Context())
	snap, err := s.lobby.Join(r.Context(), mux.Vars(r)["ride_id"], caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	caller := identityFromContext(r.Context())
	if err := s.lobby.Leave(r.Context(), mux.Vars(r)["ride_id"], caller); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAcceptTransport(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.lobby.AcceptTransport)
}

func (s *Server) handleStartTransport(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.lobby.StartTransport)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.lobby.Complete)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.lobby.Cancel)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, rideID string, user models.Identity) (models.Snapshot, error)) {
	caller := identityFromContext(r.Context())
	snap, err := op(r.Context(), mux.Vars(r)["ride_id"], caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeValidationError(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_error", Message: msg})
}

// writeError maps the domain taxonomy onto HTTP statuses; anything else is
// an infrastructure failure and surfaces as a plain 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *lobby.DomainError
	if errors.As(err, &derr) {
		s.writeJSON(w, statusForCode(derr.Code), errorResponse{Error: derr.Code, Message: derr.Message})
		return
	}
	s.logger.Error("internal error", "path", r.URL.Path, "error", err)
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal error"})
}

func statusForCode(code string) int {
	switch code {
	case lobby.ErrNotFound.Code:
		return http.StatusNotFound
	case lobby.ErrInvalidConfiguration.Code:
		return http.StatusBadRequest
	case lobby.ErrNotAuthorized.Code:
		return http.StatusForbidden
	default:
		// guard violations are conflicts with current ride state
		return http.StatusConflict
	}
}
