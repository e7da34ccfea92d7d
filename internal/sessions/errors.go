package sessions

import "labspace/infrastructure"

const (
	errSessionNotFound = "session not found"
	errCompleted       = "session is completed"
	errNotParticipant  = "user is not a participant of this session"
)

func conflictf(msg string) error {
	return infrastructure.ConflictError("%s", msg)
}
