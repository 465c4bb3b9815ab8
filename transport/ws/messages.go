package ws

import (
	"errors"

	json "github.com/goccy/go-json"

	"chat-intel/domain"
	"chat-intel/domain/event"
)

var errUnknownType = errors.New("unknown envelope type")

// Inbound intent types.
const (
	TypeJoin         = "join"
	TypeLeave        = "leave"
	TypeSend         = "send"
	TypeGetAnalytics = "get_analytics"
	TypeSearch       = "search"
)

// Outbound event types.
const (
	TypeMemberJoined  = "member_joined"
	TypeMemberLeft    = "member_left"
	TypeMessage       = "message"
	TypeHistory       = "history"
	TypeAnalytics     = "analytics_update"
	TypeSearchResults = "search_results"
	TypeError         = "error"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type OutEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// DecodeIntent maps an inbound envelope onto its intent struct. The
// gateway validates field contents; this only deals with shape.
func DecodeIntent(env Envelope) (domain.Intent, error) {
	switch env.Type {
	case TypeJoin:
		var it domain.JoinIntent
		return it, json.Unmarshal(env.Payload, &it)
	case TypeLeave:
		var it domain.LeaveIntent
		return it, json.Unmarshal(env.Payload, &it)
	case TypeSend:
		var it domain.SendIntent
		return it, json.Unmarshal(env.Payload, &it)
	case TypeGetAnalytics:
		var it domain.GetAnalyticsIntent
		return it, json.Unmarshal(env.Payload, &it)
	case TypeSearch:
		var it domain.SearchIntent
		return it, json.Unmarshal(env.Payload, &it)
	default:
		return nil, errUnknownType
	}
}

// EncodeEvent wraps an engine event into its wire envelope.
func EncodeEvent(evt event.RoomEvent) OutEnvelope {
	switch e := evt.(type) {
	case event.MemberJoined:
		return OutEnvelope{Type: TypeMemberJoined, Payload: e}
	case event.MemberLeft:
		return OutEnvelope{Type: TypeMemberLeft, Payload: e}
	case event.MessageBroadcast:
		return OutEnvelope{Type: TypeMessage, Payload: e.Message}
	case event.History:
		return OutEnvelope{Type: TypeHistory, Payload: e}
	case event.AnalyticsUpdate:
		return OutEnvelope{Type: TypeAnalytics, Payload: e.Snapshot}
	case event.SearchResults:
		return OutEnvelope{Type: TypeSearchResults, Payload: e}
	case event.Error:
		return OutEnvelope{Type: TypeError, Payload: e}
	default:
		return OutEnvelope{Type: TypeError, Payload: event.Error{Message: "unrepresentable event"}}
	}
}
