package domain

// Client intents form a closed set of tagged variants. Anything the
// gateway cannot decode into one of these shapes is a routing error,
// surfaced to the originating connection only.

// Intent is implemented by every inbound client intent.
type Intent interface {
	RoomName() string
}

type JoinIntent struct {
	Username string `json:"username" validate:"required,max=50"`
	Room     string `json:"room" validate:"required,max=50"`
}

func (i JoinIntent) RoomName() string { return i.Room }

type LeaveIntent struct {
	Username string `json:"username"`
	Room     string `json:"room" validate:"required,max=50"`
}

func (i LeaveIntent) RoomName() string { return i.Room }

type SendIntent struct {
	Username string `json:"username" validate:"required,max=50"`
	Room     string `json:"room" validate:"required,max=50"`
	Text     string `json:"text" validate:"required"`
}

func (i SendIntent) RoomName() string { return i.Room }

type GetAnalyticsIntent struct {
	Room string `json:"room" validate:"required,max=50"`
}

func (i GetAnalyticsIntent) RoomName() string { return i.Room }

type SearchIntent struct {
	Room  string `json:"room" validate:"required,max=50"`
	Query string `json:"query" validate:"required,max=200"`
}

func (i SearchIntent) RoomName() string { return i.Room }
