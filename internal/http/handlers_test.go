package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/ride-lobby/internal/lobby"
	"github.com/example/ride-lobby/internal/models"
	"github.com/example/ride-lobby/internal/notify"
	"github.com/example/ride-lobby/internal/storage"
)

func newTestServer() *Server {
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	svc := lobby.NewService(storage.NewMemoryStore(), log)
	return NewServer(svc, notify.NewWSRegistry(log), log)
}

func doJSON(t *testing.T, s *Server, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Name", userID)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func createRide(t *testing.T, s *Server, userID string, maxPassengers int) models.Snapshot {
	t.Helper()
	rec := doJSON(t, s, "POST", "/api/v1/rides", userID, map[string]any{
		"origin":         map[string]any{"name": "Night Market", "lat": 13.74, "lon": 100.52},
		"destination":    map[string]any{"name": "Old Town Cafe", "lat": 13.75, "lon": 100.49},
		"max_passengers": maxPassengers,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create ride: status %d body %s", rec.Code, rec.Body.String())
	}
	var snap models.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func TestIdentityRequired(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, "GET", "/api/v1/rides", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateRideValidation(t *testing.T) {
	s := newTestServer()

	rec := doJSON(t, s, "POST", "/api/v1/rides", "alice", map[string]any{
		"origin":         map[string]any{"name": ""},
		"destination":    map[string]any{"name": "Cafe"},
		"max_passengers": 2,
	})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "validation_error" {
		t.Fatalf("expected validation_error 400, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, "POST", "/api/v1/rides", "alice", map[string]any{
		"origin":         map[string]any{"name": "Market"},
		"destination":    map[string]any{"name": "Cafe"},
		"max_passengers": 9,
	})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_configuration" {
		t.Fatalf("expected invalid_configuration 400, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateThenFetch(t *testing.T) {
	s := newTestServer()
	snap := createRide(t, s, "alice", 3)

	rec := doJSON(t, s, "GET", "/api/v1/rides/"+snap.Ride.ID, "bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get ride: %d %s", rec.Code, rec.Body.String())
	}

	// share code lookup is case-insensitive
	rec = doJSON(t, s, "GET", "/api/v1/rides/code/"+strings.ToLower(snap.Ride.ShareCode), "bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by code: %d %s", rec.Code, rec.Body.String())
	}
	var byCode models.Snapshot
	_ = json.Unmarshal(rec.Body.Bytes(), &byCode)
	if byCode.Ride.ID != snap.Ride.ID {
		t.Fatalf("code resolved wrong ride: %s", byCode.Ride.ID)
	}

	rec = doJSON(t, s, "GET", "/api/v1/rides/does-not-exist", "bob", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestJoinAndCapacityMapping(t *testing.T) {
	s := newTestServer()
	// creator is the sole seat
	snap := createRide(t, s, "alice", 1)

	rec := doJSON(t, s, "POST", "/api/v1/rides/"+snap.Ride.ID+"/join", "bob", nil)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "lobby_full" {
		t.Fatalf("expected lobby_full 409, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestRoleConflictMapping(t *testing.T) {
	s := newTestServer()
	snap := createRide(t, s, "alice", 3)

	rec := doJSON(t, s, "POST", "/api/v1/rides/"+snap.Ride.ID+"/accept", "alice", nil)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "role_conflict" {
		t.Fatalf("expected role_conflict 409, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestNotAuthorizedMapping(t *testing.T) {
	s := newTestServer()
	snap := createRide(t, s, "alice", 3)

	if rec := doJSON(t, s, "POST", "/api/v1/rides/"+snap.Ride.ID+"/accept", "dave", nil); rec.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", rec.Code, rec.Body.String())
	}
	rec := doJSON(t, s, "POST", "/api/v1/rides/"+snap.Ride.ID+"/start", "bob", nil)
	if rec.Code != http.StatusForbidden || errorCode(t, rec) != "not_authorized_for_transition" {
		t.Fatalf("expected 403, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestFullFlowOverHTTP(t *testing.T) {
	s := newTestServer()
	snap := createRide(t, s, "alice", 3)
	id := snap.Ride.ID

	if rec := doJSON(t, s, "POST", "/api/v1/rides/"+id+"/join", "bob", nil); rec.Code != http.StatusOK {
		t.Fatalf("join: %d %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, s, "POST", "/api/v1/rides/"+id+"/leave", "bob", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("leave: %d %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, s, "POST", "/api/v1/rides/"+id+"/accept", "dave", nil); rec.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, s, "POST", "/api/v1/rides/"+id+"/start", "dave", nil); rec.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}
	rec := doJSON(t, s, "POST", "/api/v1/rides/"+id+"/complete", "dave", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", rec.Code, rec.Body.String())
	}
	var final models.Snapshot
	_ = json.Unmarshal(rec.Body.Bytes(), &final)
	if final.Ride.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Ride.Status)
	}

	// list endpoints
	rec = doJSON(t, s, "GET", "/api/v1/rides", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list active: %d", rec.Code)
	}
	var listResp struct {
		Rides []models.Ride `json:"rides"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &listResp)
	if len(listResp.Rides) != 0 {
		t.Fatalf("completed ride should not be active: %+v", listResp.Rides)
	}

	rec = doJSON(t, s, "GET", "/api/v1/rides/mine", "dave", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &listResp)
	if len(listResp.Rides) != 1 {
		t.Fatalf("driver should see the ride: %+v", listResp.Rides)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, "GET", "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestWatchUpgradeFailureRepliesOnce(t *testing.T) {
	s := newTestServer()
	snap := createRide(t, s, "alice", 2)

	// a plain GET without the websocket handshake headers is rejected by
	// the upgrader, which writes the HTTP error itself
	rec := doJSON(t, s, "GET", "/ws/rides/"+snap.Ride.ID, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 from failed upgrade, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != http.StatusText(http.StatusBadRequest)+"\n" {
		t.Fatalf("expected a single error body, got %q", body)
	}
}
