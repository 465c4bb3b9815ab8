// Package search maintains a full-text index over annotated messages,
// backing the search intent. Indexing is best-effort: a failed index
// write never blocks or fails message delivery.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/blugelabs/bluge"

	"chat-intel/domain"
	"chat-intel/domain/event"
)

// MessageIndex wraps a Bluge writer. Messages are indexed by text and
// entity mentions, scoped by room.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

func (x *MessageIndex) Index(msg domain.AnnotatedMessage) error {
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewKeywordField("room", msg.Room)).
		AddField(bluge.NewTextField("text", msg.Text).StoreValue()).
		AddField(bluge.NewKeywordField("sender", msg.Sender).StoreValue()).
		AddField(bluge.NewKeywordField("sequence", fmt.Sprintf("%020d", msg.Sequence)).StoreValue()).
		AddField(bluge.NewKeywordField("emotion", msg.Emotion))

	for _, entity := range msg.Entities {
		doc.AddField(bluge.NewTextField("entities", entity.Text))
	}

	return x.writer.Update(doc.ID(), doc)
}

// Search runs a match query against message text and entities within a
// single room, newest results ranked by relevance.
func (x *MessageIndex) Search(ctx context.Context, room, query string, limit int) (event.SearchResults, error) {
	results := event.SearchResults{RoomName: room, Query: query}

	reader, err := x.writer.Reader()
	if err != nil {
		return results, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			x.log.Warn("Closing index reader failed", "error", err)
		}
	}()

	textMatch := bluge.NewBooleanQuery().
		AddShould(bluge.NewMatchQuery(query).SetField("text")).
		AddShould(bluge.NewMatchQuery(query).SetField("entities"))
	scoped := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(room).SetField("room")).
		AddMust(textMatch)

	request := bluge.NewTopNSearch(limit, scoped).WithStandardAggregations()
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return results, err
	}

	for {
		match, err := iterator.Next()
		if err != nil {
			return results, err
		}
		if match == nil {
			break
		}

		var hit event.SearchHit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "text":
				hit.Text = string(value)
			case "sender":
				hit.Sender = string(value)
			case "sequence":
				seq, parseErr := strconv.ParseUint(string(value), 10, 64)
				if parseErr == nil {
					hit.Sequence = seq
				}
			}
			return true
		})
		if err != nil {
			return results, err
		}
		results.Hits = append(results.Hits, hit)
	}

	results.Total = iterator.Aggregations().Count()
	return results, nil
}
