// Package gateway maps live client connections to room sessions and
// routes inbound intents. It is the only component that knows both the
// transport side (sinks) and the engine side (registry).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"chat-intel/contract"
	"chat-intel/domain"
	"chat-intel/domain/event"
	apperrors "chat-intel/errors"
	"chat-intel/observability"
	"chat-intel/search"
)

type connState struct {
	sink     contract.EventSink
	username string
	room     string
}

// Gateway tracks, per connection, its sink, its display name once
// joined, and its current room. A connection is a member of at most
// one room: join implicitly leaves the previous one.
type Gateway struct {
	mu          sync.RWMutex
	log         *slog.Logger
	registry    contract.IRegistry
	index       *search.MessageIndex
	monitor     *observability.Monitor
	validate    *validator.Validate
	searchLimit int
	conns       map[string]*connState
}

func NewGateway(log *slog.Logger, registry contract.IRegistry, index *search.MessageIndex,
	monitor *observability.Monitor, searchLimit int) *Gateway {
	if searchLimit <= 0 {
		searchLimit = 10
	}
	return &Gateway{
		log:         log,
		registry:    registry,
		index:       index,
		monitor:     monitor,
		validate:    validator.New(),
		searchLimit: searchLimit,
		conns:       make(map[string]*connState),
	}
}

// OnConnect registers a connection with no room.
func (g *Gateway) OnConnect(connID string, sink contract.EventSink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[connID] = &connState{sink: sink}
	g.monitor.ConnectionOpened()
	g.log.Debug("Connection registered", "conn", connID)
}

// OnDisconnect performs an implicit leave when the connection was a
// room member, then forgets the connection.
func (g *Gateway) OnDisconnect(connID string) {
	g.mu.Lock()
	state, ok := g.conns[connID]
	if ok {
		delete(g.conns, connID)
	}
	g.mu.Unlock()

	if !ok {
		return
	}
	g.monitor.ConnectionClosed()
	if state.room != "" {
		g.registry.GetOrCreate(state.room).Leave(connID)
	}
	g.log.Debug("Connection removed", "conn", connID, "room", state.room)
}

// Dispatch routes one inbound intent. Malformed or unknown intents
// produce an error event on the originating connection only; they
// never crash the gateway or reach a room.
func (g *Gateway) Dispatch(ctx context.Context, connID string, intent any) {
	typed, ok := intent.(domain.Intent)
	if !ok {
		g.fail(ctx, connID, "", apperrors.ErrUnknownIntent.Error())
		return
	}
	if err := g.validate.Struct(typed); err != nil {
		g.fail(ctx, connID, typed.RoomName(), fmt.Sprintf("invalid intent: %v", err))
		return
	}

	switch it := typed.(type) {
	case domain.JoinIntent:
		g.handleJoin(ctx, connID, it)
	case domain.LeaveIntent:
		g.handleLeave(ctx, connID, it)
	case domain.SendIntent:
		g.handleSend(ctx, connID, it)
	case domain.GetAnalyticsIntent:
		g.handleGetAnalytics(ctx, connID, it)
	case domain.SearchIntent:
		g.handleSearch(ctx, connID, it)
	default:
		g.fail(ctx, connID, typed.RoomName(), apperrors.ErrUnknownIntent.Error())
	}
}

func (g *Gateway) handleJoin(ctx context.Context, connID string, it domain.JoinIntent) {
	g.mu.RLock()
	state, ok := g.conns[connID]
	g.mu.RUnlock()
	if !ok {
		return
	}

	// Join implicitly leaves any prior room.
	if state.room != "" && state.room != it.Room {
		g.registry.GetOrCreate(state.room).Leave(connID)
	}

	err := g.withRetry(it.Room, func(session contract.IRoomSession) error {
		return session.Join(ctx, connID, it.Username, state.sink)
	})
	if err != nil {
		g.fail(ctx, connID, it.Room, fmt.Sprintf("join failed: %v", err))
		return
	}

	g.mu.Lock()
	if state, ok := g.conns[connID]; ok {
		state.username = it.Username
		state.room = it.Room
	}
	g.mu.Unlock()
	g.log.Info("Member joined room", "conn", connID, "username", it.Username, "room", it.Room)
}

func (g *Gateway) handleLeave(ctx context.Context, connID string, it domain.LeaveIntent) {
	g.mu.Lock()
	state, ok := g.conns[connID]
	if ok && state.room == it.Room {
		state.room = ""
	}
	g.mu.Unlock()

	if !ok {
		return
	}
	g.registry.GetOrCreate(it.Room).Leave(connID)
}

func (g *Gateway) handleSend(ctx context.Context, connID string, it domain.SendIntent) {
	g.mu.RLock()
	state, ok := g.conns[connID]
	room := ""
	if ok {
		room = state.room
	}
	g.mu.RUnlock()

	if !ok || room != it.Room {
		g.fail(ctx, connID, it.Room, apperrors.ErrNotAMember.Error())
		return
	}

	raw := domain.RawMessage{
		Room:   it.Room,
		Sender: it.Username,
		Text:   it.Text,
		At:     time.Now().UTC(),
	}
	err := g.withRetry(it.Room, func(session contract.IRoomSession) error {
		return session.Submit(ctx, raw)
	})
	if err != nil {
		// Persistence and validation failures reach the sender only;
		// the room itself stays live.
		g.fail(ctx, connID, it.Room, err.Error())
	}
}

func (g *Gateway) handleGetAnalytics(ctx context.Context, connID string, it domain.GetAnalyticsIntent) {
	var view domain.AnalyticsView
	err := g.withRetry(it.Room, func(session contract.IRoomSession) error {
		var err error
		view, err = session.SnapshotAnalytics(ctx)
		return err
	})
	if err != nil {
		g.fail(ctx, connID, it.Room, fmt.Sprintf("analytics unavailable: %v", err))
		return
	}
	g.deliver(ctx, connID, event.AnalyticsUpdate{Snapshot: view})
}

func (g *Gateway) handleSearch(ctx context.Context, connID string, it domain.SearchIntent) {
	if g.index == nil {
		g.fail(ctx, connID, it.Room, "search is not enabled")
		return
	}
	results, err := g.index.Search(ctx, it.Room, it.Query, g.searchLimit)
	if err != nil {
		g.fail(ctx, connID, it.Room, fmt.Sprintf("search failed: %v", err))
		return
	}
	g.deliver(ctx, connID, results)
}

// withRetry runs an operation against the resolved room session,
// re-resolving once when the session closed underneath us. A second
// failure is surfaced to the caller.
func (g *Gateway) withRetry(room string, op func(contract.IRoomSession) error) error {
	err := op(g.registry.GetOrCreate(room))
	if errors.Is(err, apperrors.ErrRoomClosed) {
		err = op(g.registry.GetOrCreate(room))
	}
	return err
}

// Broadcast delivers an event to every connection currently mapped to
// a room, fire-and-forget per connection.
func (g *Gateway) Broadcast(ctx context.Context, room string, evt event.RoomEvent) {
	g.mu.RLock()
	var sinks []contract.EventSink
	for _, state := range g.conns {
		if state.room == room {
			sinks = append(sinks, state.sink)
		}
	}
	g.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			g.monitor.IncrEventsDropped()
		}
	}
}

func (g *Gateway) deliver(ctx context.Context, connID string, evt event.RoomEvent) {
	g.mu.RLock()
	state, ok := g.conns[connID]
	g.mu.RUnlock()
	if !ok {
		return
	}
	if err := state.sink.Consume(ctx, evt); err != nil {
		g.monitor.IncrEventsDropped()
		g.log.Debug("Event dropped for connection", "conn", connID, "error", err)
	}
}

func (g *Gateway) fail(ctx context.Context, connID, room, message string) {
	g.log.Debug("Routing error", "conn", connID, "room", room, "message", message)
	g.deliver(ctx, connID, event.Error{RoomName: room, Message: message})
}
