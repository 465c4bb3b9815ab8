// Package observability collects runtime counters for the chat engine.
// Counters are updated with atomics on the hot path; snapshots are
// assembled on demand.
package observability

import (
	"runtime"
	"sync/atomic"
	"time"
)

// EngineStats is a point-in-time view of the engine counters.
type EngineStats struct {
	MessagesSubmitted  uint64 `json:"messages_submitted"`
	MessagesAnnotated  uint64 `json:"messages_annotated"`
	AnnotationFailures uint64 `json:"annotation_failures"`
	EventsDropped      uint64 `json:"events_dropped"`
	StoreErrors        uint64 `json:"store_errors"`
	ActiveRooms        int64  `json:"active_rooms"`
	ActiveConnections  int64  `json:"active_connections"`

	AllocMemMb uint64    `json:"alloc_mem_mb"`
	NumGC      uint32    `json:"num_gc"`
	At         time.Time `json:"at"`
}

// Monitor holds the live counters. The zero value is not usable; create
// it with NewMonitor and share one instance across the engine.
type Monitor struct {
	messagesSubmitted  atomic.Uint64
	messagesAnnotated  atomic.Uint64
	annotationFailures atomic.Uint64
	eventsDropped      atomic.Uint64
	storeErrors        atomic.Uint64
	activeRooms        atomic.Int64
	activeConnections  atomic.Int64
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) IncrMessagesSubmitted()  { m.messagesSubmitted.Add(1) }
func (m *Monitor) IncrMessagesAnnotated()  { m.messagesAnnotated.Add(1) }
func (m *Monitor) IncrAnnotationFailures() { m.annotationFailures.Add(1) }
func (m *Monitor) IncrEventsDropped()      { m.eventsDropped.Add(1) }
func (m *Monitor) IncrStoreErrors()        { m.storeErrors.Add(1) }

func (m *Monitor) RoomOpened()         { m.activeRooms.Add(1) }
func (m *Monitor) RoomClosed()         { m.activeRooms.Add(-1) }
func (m *Monitor) ConnectionOpened()   { m.activeConnections.Add(1) }
func (m *Monitor) ConnectionClosed()   { m.activeConnections.Add(-1) }
func (m *Monitor) ActiveRooms() int64  { return m.activeRooms.Load() }

// GetLatest assembles a snapshot, including Go memory stats.
func (m *Monitor) GetLatest() EngineStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return EngineStats{
		MessagesSubmitted:  m.messagesSubmitted.Load(),
		MessagesAnnotated:  m.messagesAnnotated.Load(),
		AnnotationFailures: m.annotationFailures.Load(),
		EventsDropped:      m.eventsDropped.Load(),
		StoreErrors:        m.storeErrors.Load(),
		ActiveRooms:        m.activeRooms.Load(),
		ActiveConnections:  m.activeConnections.Load(),
		AllocMemMb:         ms.Alloc / 1024 / 1024,
		NumGC:              ms.NumGC,
		At:                 time.Now().UTC(),
	}
}
