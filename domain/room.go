package domain

import "time"

// RoomState is the lifecycle state of a room session.
type RoomState int

const (
	// RoomActive has at least one member, or a join arrived before the
	// grace period elapsed.
	RoomActive RoomState = iota
	// RoomClosing is empty with the grace period running. A join brings
	// it back to RoomActive.
	RoomClosing
	// RoomClosed is terminal. Callers must re-resolve the room through
	// the registry.
	RoomClosed
)

func (s RoomState) String() string {
	switch s {
	case RoomActive:
		return "active"
	case RoomClosing:
		return "closing"
	case RoomClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Member ties a connection to a room. The connection ID is the identity
// key; the username is a display attribute and may collide with other
// members of the same room.
type Member struct {
	ConnectionID string
	Username     string
	Room         string
	JoinedAt     time.Time
}
