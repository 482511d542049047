package lobby

// DomainError is a guard violation surfaced to the caller. The gateway maps
// Code to an HTTP status and the message is safe to show to users.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string { return e.Message }

var (
	ErrNotFound             = &DomainError{Code: "not_found", Message: "ride not found"}
	ErrInvalidConfiguration = &DomainError{Code: "invalid_configuration", Message: "max_passengers must be between 1 and 4"}
	ErrLobbyClosed          = &DomainError{Code: "lobby_closed", Message: "lobby no longer accepts membership changes"}
	ErrLobbyFull            = &DomainError{Code: "lobby_full", Message: "ride is at passenger capacity"}
	ErrAlreadyMember        = &DomainError{Code: "already_member", Message: "user already joined this ride"}
	ErrNotAMember           = &DomainError{Code: "not_a_member", Message: "user is not a member of this ride"}
	ErrCreatorCannotLeave   = &DomainError{Code: "creator_cannot_leave", Message: "creator cannot leave own ride, cancel it instead"}
	ErrRoleConflict         = &DomainError{Code: "role_conflict", Message: "creator and driver roles are disjoint, and a ride has at most one driver"}
	ErrNotAuthorized        = &DomainError{Code: "not_authorized_for_transition", Message: "caller lacks the role required for this transition"}
	ErrInvalidTransition    = &DomainError{Code: "invalid_transition", Message: "operation not permitted from the ride's current status"}
)
