package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-intel/analytics"
	"chat-intel/contract"
	"chat-intel/domain"
	"chat-intel/domain/event"
	apperrors "chat-intel/errors"
	"chat-intel/moderation"
	"chat-intel/observability"
	"chat-intel/search"
)

// Ensure *RoomSession satisfies both the session contract and the
// worker contract at compile time.
var (
	_ contract.IRoomSession = (*RoomSession)(nil)
	_ contract.Worker       = (*RoomSession)(nil)
)

// SessionConfig carries the per-room tunables. Zero values are replaced
// by the defaults below.
type SessionConfig struct {
	MailboxSize       int
	GracePeriod       time.Duration
	AnnotationTimeout time.Duration
	AnalyticsInterval time.Duration
	HistoryLimit      int
	TopEntities       int
	MaxContentLength  int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.MailboxSize <= 0 {
		c.MailboxSize = 64
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 30 * time.Second
	}
	if c.AnnotationTimeout <= 0 {
		c.AnnotationTimeout = 2 * time.Second
	}
	if c.AnalyticsInterval <= 0 {
		c.AnalyticsInterval = 2 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = 500
	}
	return c
}

// SessionDeps groups the collaborators shared by every room session.
// Index and Moderator are optional.
type SessionDeps struct {
	Log       *slog.Logger
	Annotator contract.IAnnotator
	Store     contract.IMessageStore
	Index     *search.MessageIndex
	Moderator *moderation.Moderator
	Monitor   *observability.Monitor
}

// RoomSession is the per-room actor. All room state below the mailbox
// is owned by the Run goroutine; external callers only ever touch the
// mailbox and the closed channel, so no locks are needed inside a turn.
//
// Ordering: annotation calls are serialized within the actor turn, so
// sequence numbers are assigned and broadcast strictly in submission
// order. Distinct rooms run their own actors and never block each
// other.
type RoomSession struct {
	name    string
	log     *slog.Logger
	deps    SessionDeps
	cfg     SessionConfig
	mailbox chan sessionCmd
	closed  chan struct{}

	// Actor-owned state.
	members    map[string]sessionMember
	seq        uint64
	seqLoaded  bool
	state      domain.RoomState
	agg        *analytics.Aggregator
	hydrated   bool
	lastPushed int

	onClosed func(room string)
}

type sessionMember struct {
	member domain.Member
	sink   contract.EventSink
}

type sessionCmd interface{}

type joinCmd struct {
	connID   string
	username string
	sink     contract.EventSink
	reply    chan error
}

type leaveCmd struct {
	connID string
}

type submitCmd struct {
	msg   domain.RawMessage
	reply chan error
}

type snapshotCmd struct {
	reply chan domain.AnalyticsView
}

func NewRoomSession(name string, deps SessionDeps, cfg SessionConfig, onClosed func(string)) *RoomSession {
	cfg = cfg.withDefaults()
	if onClosed == nil {
		onClosed = func(string) {}
	}
	return &RoomSession{
		name:    name,
		log:     deps.Log.With("room", name),
		deps:    deps,
		cfg:     cfg,
		mailbox: make(chan sessionCmd, cfg.MailboxSize),
		closed:  make(chan struct{}),
		members: make(map[string]sessionMember),
		state:   domain.RoomClosing,
		agg:     analytics.NewAggregator(name, cfg.TopEntities),
		onClosed: onClosed,
	}
}

func (s *RoomSession) Name() string { return s.name }

// IsClosed reports whether the session reached its terminal state.
// Callers holding a closed session must re-resolve through the registry.
func (s *RoomSession) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *RoomSession) Join(ctx context.Context, connID, username string, sink contract.EventSink) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, joinCmd{connID: connID, username: username, sink: sink, reply: reply}); err != nil {
		return err
	}
	return s.await(ctx, reply)
}

// Leave is a no-op when the connection is not a member. Leaving twice
// is not an error.
func (s *RoomSession) Leave(connID string) {
	select {
	case s.mailbox <- leaveCmd{connID: connID}:
	case <-s.closed:
	}
}

// Submit runs the full accept path: censor, annotate (bounded), assign
// the next sequence number, persist, fold into analytics, broadcast.
// A returned store error means persistence failed but the message was
// still delivered and counted; callers surface it to the sender only.
func (s *RoomSession) Submit(ctx context.Context, msg domain.RawMessage) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, submitCmd{msg: msg, reply: reply}); err != nil {
		return err
	}
	return s.await(ctx, reply)
}

// SnapshotAnalytics returns a consistent point-in-time copy of the room
// aggregate, hydrating it from stored history on first use.
func (s *RoomSession) SnapshotAnalytics(ctx context.Context) (domain.AnalyticsView, error) {
	reply := make(chan domain.AnalyticsView, 1)
	if err := s.send(ctx, snapshotCmd{reply: reply}); err != nil {
		return domain.AnalyticsView{}, err
	}
	select {
	case view := <-reply:
		return view, nil
	case <-s.closed:
		return domain.AnalyticsView{}, apperrors.ErrRoomClosed
	case <-ctx.Done():
		return domain.AnalyticsView{}, ctx.Err()
	}
}

func (s *RoomSession) send(ctx context.Context, cmd sessionCmd) error {
	select {
	case s.mailbox <- cmd:
		return nil
	case <-s.closed:
		return apperrors.ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RoomSession) await(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-s.closed:
		return apperrors.ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the actor loop. It starts in the CLOSING state with the grace
// timer armed, so a session created by a join that never lands is still
// garbage-collected.
func (s *RoomSession) Run(ctx context.Context) error {
	s.loadSequence()

	graceTimer := time.NewTimer(s.cfg.GracePeriod)
	defer graceTimer.Stop()

	analyticsTicker := time.NewTicker(s.cfg.AnalyticsInterval)
	defer analyticsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.close()
			return ctx.Err()

		case <-graceTimer.C:
			if s.state == domain.RoomClosing && len(s.members) == 0 {
				s.log.Debug("Grace period elapsed, closing room")
				s.close()
				return nil
			}

		case <-analyticsTicker.C:
			s.pushAnalytics(ctx)

		case cmd := <-s.mailbox:
			switch c := cmd.(type) {
			case joinCmd:
				c.reply <- s.handleJoin(ctx, c, graceTimer)
			case leaveCmd:
				s.handleLeave(ctx, c, graceTimer)
			case submitCmd:
				c.reply <- s.handleSubmit(ctx, c.msg)
			case snapshotCmd:
				s.ensureHydrated()
				c.reply <- s.agg.Snapshot()
			default:
				s.log.Error(fmt.Sprintf("Unhandled session command %T", cmd))
			}
		}
	}
}

// close moves the session to its terminal state and deregisters it.
// Not deferred from Run: a panic must leave the session open so the
// supervisor can restart the loop with the state intact.
func (s *RoomSession) close() {
	s.state = domain.RoomClosed
	close(s.closed)
	s.onClosed(s.name)
}

func (s *RoomSession) loadSequence() {
	if s.seqLoaded {
		return
	}
	last, err := s.deps.Store.LastSequence(s.name)
	if err != nil {
		s.log.Warn("Loading last sequence failed, starting from zero", "error", err)
		return
	}
	// Never regress: a supervisor restart may find in-memory numbering
	// ahead of the store when appends failed.
	if last > s.seq {
		s.seq = last
	}
	s.seqLoaded = true
}

func (s *RoomSession) handleJoin(ctx context.Context, c joinCmd, graceTimer *time.Timer) error {
	if s.state == domain.RoomClosing {
		stopTimer(graceTimer)
		s.state = domain.RoomActive
	}

	_, rejoin := s.members[c.connID]
	now := time.Now().UTC()
	s.members[c.connID] = sessionMember{
		member: domain.Member{
			ConnectionID: c.connID,
			Username:     c.username,
			Room:         s.name,
			JoinedAt:     now,
		},
		sink: c.sink,
	}

	// Existing members hear about the join; the joiner's confirmation
	// is its history event.
	if !rejoin {
		s.broadcastExcept(ctx, c.connID, event.MemberJoined{RoomName: s.name, Username: c.username, At: now})
	}

	history, err := s.deps.Store.History(s.name, s.cfg.HistoryLimit, nil)
	if err != nil {
		s.log.Warn("Loading history for joiner failed", "error", err)
		history = nil
	}
	s.deliver(ctx, c.connID, event.History{RoomName: s.name, Messages: history})

	s.log.Debug("Member joined", "conn", c.connID, "username", c.username, "members", len(s.members))
	return nil
}

func (s *RoomSession) handleLeave(ctx context.Context, c leaveCmd, graceTimer *time.Timer) {
	m, ok := s.members[c.connID]
	if !ok {
		return
	}
	delete(s.members, c.connID)

	s.broadcastExcept(ctx, c.connID, event.MemberLeft{
		RoomName: s.name,
		Username: m.member.Username,
		At:       time.Now().UTC(),
	})

	if len(s.members) == 0 {
		s.state = domain.RoomClosing
		stopTimer(graceTimer)
		graceTimer.Reset(s.cfg.GracePeriod)
		s.log.Debug("Room empty, grace period started")
	}
}

func (s *RoomSession) handleSubmit(ctx context.Context, raw domain.RawMessage) error {
	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return apperrors.ErrEmptyMessage
	}
	if len([]rune(text)) > s.cfg.MaxContentLength {
		return apperrors.ErrMessageTooLong
	}

	s.deps.Monitor.IncrMessagesSubmitted()
	s.ensureHydrated()

	if s.deps.Moderator != nil {
		censored, found := s.deps.Moderator.Censor(text)
		if len(found) > 0 {
			s.log.Debug("Censored words in message", "count", len(found))
		}
		text = censored
	}

	annCtx, cancel := context.WithTimeout(ctx, s.cfg.AnnotationTimeout)
	annotation, err := s.deps.Annotator.Annotate(annCtx, text)
	cancel()

	degraded := err != nil
	if degraded {
		// The message is not dropped: it is delivered with the
		// placeholder annotation so the chat stays responsive.
		s.deps.Monitor.IncrAnnotationFailures()
		s.log.Warn("Annotation failed, delivering degraded message", "error", err)
		annotation = domain.DegradedAnnotation()
	} else {
		s.deps.Monitor.IncrMessagesAnnotated()
	}

	s.seq++
	msg := domain.AnnotatedMessage{
		ID:         uuid.New(),
		Room:       s.name,
		Sequence:   s.seq,
		Sender:     raw.Sender,
		Text:       text,
		Annotation: annotation,
		Degraded:   degraded,
		At:         raw.At,
	}

	// Persistence failure is reported to the sender but does not stall
	// live chat: the broadcast and the analytics fold still happen.
	var storeErr error
	if storeErr = s.deps.Store.Append(msg); storeErr != nil {
		s.deps.Monitor.IncrStoreErrors()
		s.log.Error("Storing message failed", "sequence", msg.Sequence, "error", storeErr)
		storeErr = fmt.Errorf("message %d delivered but not persisted: %w", msg.Sequence, storeErr)
	}

	s.agg.Apply(msg)

	if s.deps.Index != nil && !degraded {
		if err := s.deps.Index.Index(msg); err != nil {
			s.log.Warn("Indexing message failed", "sequence", msg.Sequence, "error", err)
		}
	}

	s.broadcastExcept(ctx, "", event.MessageBroadcast{Message: msg})
	return storeErr
}

// ensureHydrated replays stored history into the aggregator the first
// time the aggregate is needed, so counts survive room GC and process
// restarts. On store failure the session keeps serving the in-memory
// aggregate and retries on the next use.
func (s *RoomSession) ensureHydrated() {
	if s.hydrated {
		return
	}
	var history []domain.AnnotatedMessage
	err := s.deps.Store.Replay(s.name, func(msg domain.AnnotatedMessage) error {
		history = append(history, msg)
		return nil
	})
	if err != nil {
		s.log.Warn("Analytics hydration failed, keeping in-memory aggregate", "error", err)
		return
	}
	s.agg.Rebuild(history)
	s.hydrated = true
}

func (s *RoomSession) pushAnalytics(ctx context.Context) {
	if len(s.members) == 0 || s.agg.MessageCount() == s.lastPushed {
		return
	}
	s.lastPushed = s.agg.MessageCount()
	s.broadcastExcept(ctx, "", event.AnalyticsUpdate{Snapshot: s.agg.Snapshot()})
}

// broadcastExcept delivers an event to every member except the named
// connection, fire-and-forget: a failing sink never blocks the others.
func (s *RoomSession) broadcastExcept(ctx context.Context, exceptConnID string, evt event.RoomEvent) {
	for connID, m := range s.members {
		if connID == exceptConnID {
			continue
		}
		if err := m.sink.Consume(ctx, evt); err != nil {
			s.deps.Monitor.IncrEventsDropped()
			s.log.Debug("Event dropped for member", "conn", connID, "error", err)
		}
	}
}

func (s *RoomSession) deliver(ctx context.Context, connID string, evt event.RoomEvent) {
	m, ok := s.members[connID]
	if !ok {
		return
	}
	if err := m.sink.Consume(ctx, evt); err != nil {
		s.deps.Monitor.IncrEventsDropped()
		s.log.Debug("Event dropped for member", "conn", connID, "error", err)
	}
}

// stopTimer stops and drains a timer so it can be safely reset.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
