// Package event defines the closed set of outbound room events.
// Events are immutable values; sinks must not retain references into
// shared state.
package event

import (
	"time"

	"chat-intel/domain"
)

// RoomEvent is implemented by every event delivered to room members.
type RoomEvent interface {
	Room() string
}

// MemberJoined notifies existing members that a new member entered.
// The joiner itself does not receive it: its join confirmation is the
// history event.
type MemberJoined struct {
	RoomName string    `json:"room"`
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

func (e MemberJoined) Room() string { return e.RoomName }

type MemberLeft struct {
	RoomName string    `json:"room"`
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

func (e MemberLeft) Room() string { return e.RoomName }

// MessageBroadcast carries one annotated message, delivered to every
// current member in sequence order.
type MessageBroadcast struct {
	Message domain.AnnotatedMessage
}

func (e MessageBroadcast) Room() string { return e.Message.Room }

// History is delivered to a joining member only, with the room's most
// recent messages in chronological order.
type History struct {
	RoomName string                   `json:"room"`
	Messages []domain.AnnotatedMessage `json:"messages"`
}

func (e History) Room() string { return e.RoomName }

// AnalyticsUpdate carries a point-in-time analytics snapshot, either on
// demand or on the periodic push.
type AnalyticsUpdate struct {
	Snapshot domain.AnalyticsView
}

func (e AnalyticsUpdate) Room() string { return e.Snapshot.Room }

// SearchHit references a stored message matching a search query.
type SearchHit struct {
	MessageID string `json:"messageId"`
	Sequence  uint64 `json:"sequence"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
}

type SearchResults struct {
	RoomName string      `json:"room"`
	Query    string      `json:"query"`
	Total    uint64      `json:"total"`
	Hits     []SearchHit `json:"hits"`
}

func (e SearchResults) Room() string { return e.RoomName }

// Error is delivered to a single connection, never broadcast.
type Error struct {
	RoomName string `json:"room,omitempty"`
	Message  string `json:"message"`
}

func (e Error) Room() string { return e.RoomName }
