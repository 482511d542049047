package models

import "time"

// Status is the lifecycle state of a ride lobby.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusAccepted  Status = "accepted"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Open reports whether the lobby still accepts join/leave.
func (s Status) Open() bool {
	return s == StatusWaiting || s == StatusAccepted
}

// Identity is the (userId, displayName) pair supplied by the upstream
// identity provider. The engine trusts it as given and never authenticates.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Place is a named coordinate pair, immutable after ride creation.
type Place struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Ride is the unit of coordination. Origin, destination, note, share code
// and max_passengers are fixed at creation; only status, driver and
// updated_at change afterwards.
type Ride struct {
	ID            string    `json:"id"`
	CreatorID     string    `json:"creator_id"`
	CreatorName   string    `json:"creator_name"`
	DriverID      string    `json:"driver_id,omitempty"` // empty until a driver accepts
	DriverName    string    `json:"driver_name,omitempty"`
	Origin        Place     `json:"origin"`
	Destination   Place     `json:"destination"`
	MaxPassengers int       `json:"max_passengers"`
	Status        Status    `json:"status"`
	Note          string    `json:"note,omitempty"`
	ShareCode     string    `json:"share_code"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Membership records that a user participates in a ride's passenger group.
type Membership struct {
	RideID      string    `json:"ride_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Snapshot is a point-in-time view of a ride plus its passenger list,
// the unit returned to polling clients and pushed to watchers.
type Snapshot struct {
	Ride    Ride         `json:"ride"`
	Members []Membership `json:"members"`
}

// HasMember reports whether userID holds a membership row.
func (s *Snapshot) HasMember(userID string) bool {
	for _, m := range s.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// RideEvent is the lifecycle record published to the event feed after each
// successful transition.
type RideEvent struct {
	RideID     string    `json:"ride_id"`
	Type       string    `json:"type"` // created, joined, left, accepted, started, completed, cancelled
	Status     Status    `json:"status"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
