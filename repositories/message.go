package repositories

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-intel/contract"
	"chat-intel/domain"
)

var _ contract.IMessageStore = (*MessageRepository)(nil)

// MessageRepository persists annotated messages in BadgerDB.
// The key is formatted as "msg:{room}:{sequence_padded}" to:
//  1. Ensure sequence ordering using 20-digit zero padding
//     (lexicographical order covers the full uint64 range).
//  2. Keep appends from different rooms on disjoint key ranges, so
//     rooms never serialize each other.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

type diskMessage struct {
	ID              string            `json:"id"`
	Room            string            `json:"room"`
	Sequence        uint64            `json:"sequence"`
	Sender          string            `json:"sender"`
	Text            string            `json:"text"`
	Emotion         string            `json:"emotion"`
	Entities        []diskEntity      `json:"entities,omitempty"`
	AspectSentiment map[string]string `json:"aspect_sentiment,omitempty"`
	Lang            string            `json:"lang,omitempty"`
	Degraded        bool              `json:"degraded,omitempty"`
	At              int64             `json:"at"`
}

type diskEntity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

func messageKey(room string, sequence uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d", room, sequence))
}

func roomPrefix(room string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", room))
}

func (m *MessageRepository) Append(msg domain.AnnotatedMessage) error {
	bytes, err := json.Marshal(fromAnnotatedMessage(msg))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.Room, msg.Sequence), bytes)
	})
}

// History returns up to limit messages of a room in chronological
// order, ending just before beforeSeq when provided. It scans the key
// range in reverse so it never touches more entries than requested.
func (m *MessageRepository) History(room string, limit int, beforeSeq *uint64) ([]domain.AnnotatedMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	var raw [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := roomPrefix(room)

		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Position at the newest key of the room, or just below the
		// cursor when paginating backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("99999999999999999999")...)
		if beforeSeq != nil {
			seekKey = messageKey(room, *beforeSeq)
		}
		it.Seek(seekKey)

		// Reverse Seek lands on the cursor key itself; skip it so the
		// page is strictly before the cursor.
		if beforeSeq != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix) && len(raw) < limit; it.Next() {
			if err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.AnnotatedMessage, 0, len(raw))
	// Collected newest-first, returned chronological.
	for i := len(raw) - 1; i >= 0; i-- {
		msg, err := decodeMessage(raw[i])
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Replay streams the full history of a room in chronological order.
// Used for analytics hydration and the read-only viewer.
func (m *MessageRepository) Replay(room string, fn func(domain.AnnotatedMessage) error) error {
	return m.db.View(func(txn *badger.Txn) error {
		prefix := roomPrefix(room)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg domain.AnnotatedMessage
			err := it.Item().Value(func(value []byte) error {
				var err error
				msg, err = decodeMessage(value)
				return err
			})
			if err != nil {
				return err
			}
			if err := fn(msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// LastSequence returns the highest sequence number persisted for a
// room, or zero when the room has no history. Room sessions use it to
// resume numbering after a restart or a room garbage collection.
func (m *MessageRepository) LastSequence(room string) (uint64, error) {
	var last uint64
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := roomPrefix(room)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte("99999999999999999999")...)
		it.Seek(seekKey)
		if !it.ValidForPrefix(prefix) {
			return nil
		}

		seq, err := strconv.ParseUint(string(it.Item().Key()[len(prefix):]), 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt message key %q: %w", it.Item().Key(), err)
		}
		last = seq
		return nil
	})
	return last, err
}

func decodeMessage(value []byte) (domain.AnnotatedMessage, error) {
	var dm diskMessage
	if err := json.Unmarshal(value, &dm); err != nil {
		return domain.AnnotatedMessage{}, err
	}
	return toAnnotatedMessage(dm)
}

func fromAnnotatedMessage(msg domain.AnnotatedMessage) diskMessage {
	return diskMessage{
		ID:       msg.ID.String(),
		Room:     msg.Room,
		Sequence: msg.Sequence,
		Sender:   msg.Sender,
		Text:     msg.Text,
		Emotion:  msg.Emotion,
		Entities: lo.Map(msg.Entities, func(e domain.Entity, _ int) diskEntity {
			return diskEntity{Text: e.Text, Label: e.Label}
		}),
		AspectSentiment: msg.AspectSentiment,
		Lang:            msg.Lang,
		Degraded:        msg.Degraded,
		At:              msg.At.UnixNano(),
	}
}

func toAnnotatedMessage(dm diskMessage) (domain.AnnotatedMessage, error) {
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.AnnotatedMessage{}, err
	}
	sentiment := dm.AspectSentiment
	if sentiment == nil {
		sentiment = map[string]string{}
	}
	return domain.AnnotatedMessage{
		ID:       parsedID,
		Room:     dm.Room,
		Sequence: dm.Sequence,
		Sender:   dm.Sender,
		Text:     dm.Text,
		Annotation: domain.Annotation{
			Emotion: dm.Emotion,
			Entities: lo.Map(dm.Entities, func(e diskEntity, _ int) domain.Entity {
				return domain.Entity{Text: e.Text, Label: e.Label}
			}),
			AspectSentiment: sentiment,
			Lang:            dm.Lang,
		},
		Degraded: dm.Degraded,
		At:       time.Unix(0, dm.At).UTC(),
	}, nil
}
