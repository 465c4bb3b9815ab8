//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-intel/domain"
	"chat-intel/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives outbound room events. Consume must be cheap and
// non-blocking from the caller's point of view: a slow consumer drops
// events rather than stalling the room.
type EventSink interface {
	Consume(ctx context.Context, e event.RoomEvent) error
}

// IAnnotator is the boundary to the external NLP capability. Annotate
// may take tens to hundreds of milliseconds and may fail; callers bound
// it with a timeout and treat expiry as a failure.
type IAnnotator interface {
	Annotate(ctx context.Context, text string) (domain.Annotation, error)
}

// IMessageStore is the boundary to durable message history. Appends
// from different rooms must not serialize each other.
type IMessageStore interface {
	Append(msg domain.AnnotatedMessage) error
	// History returns up to limit messages in chronological order,
	// ending just before beforeSeq when it is non-nil.
	History(room string, limit int, beforeSeq *uint64) ([]domain.AnnotatedMessage, error)
	// Replay streams the full history of a room in chronological order.
	Replay(room string, fn func(domain.AnnotatedMessage) error) error
	LastSequence(room string) (uint64, error)
}

// IRegistry resolves room names to live room sessions.
type IRegistry interface {
	GetOrCreate(room string) IRoomSession
	Remove(room string)
}

// IRoomSession is the per-room actor owning membership, ordering, and
// analytics for one room.
type IRoomSession interface {
	Join(ctx context.Context, connID, username string, sink EventSink) error
	Leave(connID string)
	Submit(ctx context.Context, msg domain.RawMessage) error
	SnapshotAnalytics(ctx context.Context) (domain.AnalyticsView, error)
}
