package lobby

import "github.com/example/ride-lobby/internal/models"

// Transition guards. Each runs inside the store's transaction with the ride
// row locked, so the snapshot it inspects cannot change underneath it.

const (
	MinPassengers = 1
	MaxPassengers = 4
)

func guardCreate(maxPassengers int) error {
	if maxPassengers < MinPassengers || maxPassengers > MaxPassengers {
		return ErrInvalidConfiguration
	}
	return nil
}

func guardJoin(snap *models.Snapshot, userID string) error {
	if !snap.Ride.Status.Open() {
		return ErrLobbyClosed
	}
	if snap.HasMember(userID) {
		return ErrAlreadyMember
	}
	if snap.Ride.DriverID != "" && snap.Ride.DriverID == userID {
		return ErrRoleConflict
	}
	if len(snap.Members) >= snap.Ride.MaxPassengers {
		return ErrLobbyFull
	}
	return nil
}

func guardLeave(snap *models.Snapshot, userID string) error {
	if !snap.Ride.Status.Open() {
		return ErrLobbyClosed
	}
	if !snap.HasMember(userID) {
		return ErrNotAMember
	}
	if userID == snap.Ride.CreatorID {
		return ErrCreatorCannotLeave
	}
	return nil
}

func guardAcceptTransport(snap *models.Snapshot, userID string) error {
	if snap.Ride.Status != models.StatusWaiting {
		return ErrInvalidTransition
	}
	if userID == snap.Ride.CreatorID {
		return ErrRoleConflict
	}
	if snap.Ride.DriverID != "" {
		return ErrRoleConflict
	}
	return nil
}

func guardStartTransport(snap *models.Snapshot, userID string) error {
	if snap.Ride.Status != models.StatusAccepted {
		return ErrInvalidTransition
	}
	if userID != snap.Ride.DriverID {
		return ErrNotAuthorized
	}
	return nil
}

func guardComplete(snap *models.Snapshot, userID string) error {
	if snap.Ride.Status != models.StatusInTransit {
		return ErrInvalidTransition
	}
	if userID != snap.Ride.DriverID && userID != snap.Ride.CreatorID {
		return ErrNotAuthorized
	}
	return nil
}

func guardCancel(snap *models.Snapshot, userID string) error {
	if snap.Ride.Status.Terminal() {
		return ErrInvalidTransition
	}
	if userID != snap.Ride.CreatorID && (snap.Ride.DriverID == "" || userID != snap.Ride.DriverID) {
		return ErrNotAuthorized
	}
	return nil
}
