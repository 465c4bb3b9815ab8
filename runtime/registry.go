// Package runtime owns the room engine: the registry of live room
// sessions and the per-room actors themselves. It orchestrates without
// containing NLP or transport logic.
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"chat-intel/contract"
)

var _ contract.IRegistry = (*Registry)(nil)

// Registry owns the set of live rooms. Rooms are created lazily on
// first resolution and deregister themselves once their grace period
// elapses empty. The mutex makes insert-if-absent atomic, so
// concurrent GetOrCreate calls for one name resolve to a single
// session.
type Registry struct {
	mu         sync.Mutex
	log        *slog.Logger
	deps       SessionDeps
	cfg        SessionConfig
	supervisor contract.ISupervisor
	sessions   map[string]*RoomSession
	ctx        context.Context
}

func NewRegistry(log *slog.Logger, deps SessionDeps, cfg SessionConfig, supervisor contract.ISupervisor) *Registry {
	return &Registry{
		log:        log,
		deps:       deps,
		cfg:        cfg,
		supervisor: supervisor,
		sessions:   make(map[string]*RoomSession),
	}
}

// Start fixes the lifecycle context under which new sessions run.
// Cancelling it stops every session the registry creates afterwards.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = ctx
}

// GetOrCreate resolves a room name to its single live session,
// creating and starting one when none exists or the previous session
// already closed.
func (r *Registry) GetOrCreate(room string) contract.IRoomSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[room]; ok && !session.IsClosed() {
		return session
	}

	session := NewRoomSession(room, r.deps, r.cfg, r.Remove)
	r.sessions[room] = session
	r.deps.Monitor.RoomOpened()
	r.log.Debug("Room session created", "room", room)

	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	r.supervisor.Start(ctx, session)
	return session
}

// Remove deregisters a room. Idempotent: a no-op when the room does
// not exist or its session is still live (it still has members or is
// within the grace period).
func (r *Registry) Remove(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[room]
	if !ok || !session.IsClosed() {
		return
	}
	delete(r.sessions, room)
	r.deps.Monitor.RoomClosed()
	r.log.Debug("Room session removed", "room", room)
}

// Rooms returns the number of live sessions, for monitoring.
func (r *Registry) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
