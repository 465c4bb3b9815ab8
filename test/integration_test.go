package test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"chat-intel/annotation"
	"chat-intel/domain"
	"chat-intel/domain/event"
	"chat-intel/gateway"
	"chat-intel/moderation"
	"chat-intel/observability"
	"chat-intel/repositories"
	"chat-intel/runtime"
	"chat-intel/runtime/workers"
	"chat-intel/search"
)

type memorySink struct {
	mu     sync.Mutex
	events []event.RoomEvent
}

func (m *memorySink) Consume(_ context.Context, evt event.RoomEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *memorySink) find(match func(event.RoomEvent) bool) (event.RoomEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, evt := range m.events {
		if match(evt) {
			return evt, true
		}
	}
	return nil, false
}

func waitEvent(t *testing.T, sink *memorySink, match func(event.RoomEvent) bool) event.RoomEvent {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if evt, ok := sink.find(match); ok {
			return evt
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected event not observed in time")
	return nil
}

func newEngine(t *testing.T, gracePeriod time.Duration) (*gateway.Gateway, *runtime.Registry) {
	t.Helper()
	req := require.New(t)

	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })

	log := slog.Default()
	censored, err := moderation.LoadEmbedded()
	req.NoError(err)
	moderator, err := moderation.NewModerator(censored.Words, '*')
	req.NoError(err)

	monitor := observability.NewMonitor()
	index := search.NewMessageIndex(writer, log)
	supervisor := workers.NewSupervisor(log, 200*time.Millisecond)

	registry := runtime.NewRegistry(log, runtime.SessionDeps{
		Log:       log,
		Annotator: annotation.NewLexiconAnnotator(),
		Store:     repositories.NewMessageRepository(db, log),
		Index:     index,
		Moderator: &moderator,
		Monitor:   monitor,
	}, runtime.SessionConfig{
		GracePeriod:       gracePeriod,
		AnnotationTimeout: time.Second,
		AnalyticsInterval: 50 * time.Millisecond,
		HistoryLimit:      50,
		TopEntities:       10,
		MaxContentLength:  500,
	}, supervisor)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	registry.Start(ctx)

	return gateway.NewGateway(log, registry, index, monitor, 10), registry
}

func Test_Scenario_Chat_Flow(t *testing.T) {
	req := require.New(t)
	gw, _ := newEngine(t, time.Minute)
	ctx := context.Background()

	// 1. Two clients connect and join the same room.
	alice := &memorySink{}
	bob := &memorySink{}
	gw.OnConnect("conn-alice", alice)
	gw.OnConnect("conn-bob", bob)
	gw.Dispatch(ctx, "conn-alice", domain.JoinIntent{Username: "alice", Room: "general"})
	gw.Dispatch(ctx, "conn-bob", domain.JoinIntent{Username: "bob", Room: "general"})

	// Alice hears about Bob joining; Bob receives the room history.
	waitEvent(t, alice, func(evt event.RoomEvent) bool {
		joined, ok := evt.(event.MemberJoined)
		return ok && joined.Username == "bob"
	})
	waitEvent(t, bob, func(evt event.RoomEvent) bool {
		_, ok := evt.(event.History)
		return ok
	})

	// 2. Alice sends a message mentioning an entity.
	gw.Dispatch(ctx, "conn-alice", domain.SendIntent{Username: "alice", Room: "general", Text: "New York is cold"})

	// Both members receive the annotated broadcast.
	for _, sink := range []*memorySink{alice, bob} {
		evt := waitEvent(t, sink, func(evt event.RoomEvent) bool {
			_, ok := evt.(event.MessageBroadcast)
			return ok
		})
		msg := evt.(event.MessageBroadcast).Message
		req.Equal(uint64(1), msg.Sequence)
		req.Equal("alice", msg.Sender)
		req.Equal(domain.EmotionNeutral, msg.Emotion)
		req.Equal([]domain.Entity{{Text: "New York", Label: "GPE"}}, msg.Entities)
		req.Equal(domain.SentimentNegative, msg.AspectSentiment["New York"])
		req.False(msg.Degraded)
	}

	// 3. On-demand analytics reflect the fold.
	gw.Dispatch(ctx, "conn-bob", domain.GetAnalyticsIntent{Room: "general"})
	evt := waitEvent(t, bob, func(evt event.RoomEvent) bool {
		_, ok := evt.(event.AnalyticsUpdate)
		return ok
	})
	view := evt.(event.AnalyticsUpdate).Snapshot
	req.Equal(1, view.MessageCount)
	req.Equal(1, view.EmotionDistribution[domain.EmotionNeutral])
	req.Equal([]domain.EntityCount{{Entity: "New York", Count: 1}}, view.TopEntities)

	// 4. Search finds the stored message.
	gw.Dispatch(ctx, "conn-bob", domain.SearchIntent{Room: "general", Query: "york"})
	evt = waitEvent(t, bob, func(evt event.RoomEvent) bool {
		_, ok := evt.(event.SearchResults)
		return ok
	})
	results := evt.(event.SearchResults)
	req.Equal(uint64(1), results.Total)
	req.Equal("New York is cold", results.Hits[0].Text)
}

func Test_Scenario_Room_Gc_And_History_Survival(t *testing.T) {
	req := require.New(t)
	gw, registry := newEngine(t, 50*time.Millisecond)
	ctx := context.Background()

	alice := &memorySink{}
	gw.OnConnect("conn-alice", alice)
	gw.Dispatch(ctx, "conn-alice", domain.JoinIntent{Username: "alice", Room: "general"})
	gw.Dispatch(ctx, "conn-alice", domain.SendIntent{Username: "alice", Room: "general", Text: "remember me"})
	waitEvent(t, alice, func(evt event.RoomEvent) bool {
		_, ok := evt.(event.MessageBroadcast)
		return ok
	})

	// The last member disconnects; the room is garbage-collected after
	// its grace period.
	gw.OnDisconnect("conn-alice")
	deadline := time.Now().Add(3 * time.Second)
	for registry.Rooms() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	req.Zero(registry.Rooms())

	// A rejoin resolves a fresh session; history and numbering survive.
	rejoined := &memorySink{}
	gw.OnConnect("conn-alice-2", rejoined)
	gw.Dispatch(ctx, "conn-alice-2", domain.JoinIntent{Username: "alice", Room: "general"})
	evt := waitEvent(t, rejoined, func(evt event.RoomEvent) bool {
		history, ok := evt.(event.History)
		return ok && len(history.Messages) == 1
	})
	req.Equal("remember me", evt.(event.History).Messages[0].Text)

	gw.Dispatch(ctx, "conn-alice-2", domain.SendIntent{Username: "alice", Room: "general", Text: "round two"})
	broadcast := waitEvent(t, rejoined, func(evt event.RoomEvent) bool {
		b, ok := evt.(event.MessageBroadcast)
		return ok && b.Message.Text == "round two"
	})
	req.Equal(uint64(2), broadcast.(event.MessageBroadcast).Message.Sequence)
}

func Test_Scenario_Moderation_Applied_Before_Storage(t *testing.T) {
	req := require.New(t)
	gw, _ := newEngine(t, time.Minute)
	ctx := context.Background()

	alice := &memorySink{}
	gw.OnConnect("conn-alice", alice)
	gw.Dispatch(ctx, "conn-alice", domain.JoinIntent{Username: "alice", Room: "general"})

	// "idiot" is part of the embedded english wordlist.
	gw.Dispatch(ctx, "conn-alice", domain.SendIntent{Username: "alice", Room: "general", Text: "you are an idiot"})

	evt := waitEvent(t, alice, func(evt event.RoomEvent) bool {
		_, ok := evt.(event.MessageBroadcast)
		return ok
	})
	req.Equal("you are an *****", evt.(event.MessageBroadcast).Message.Text)
}
