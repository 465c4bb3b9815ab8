// Package analytics maintains per-room aggregate statistics as an
// incremental fold over the annotated message stream. The fold is
// order-independent for counts, so an aggregate rebuilt from replayed
// history matches the incrementally accumulated one.
package analytics

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"chat-intel/domain"
)

type entityStat struct {
	count     int
	firstSeen int
}

// Aggregator is owned exclusively by its room session and is NOT safe
// for concurrent use. Snapshot returns copies, never internal state.
type Aggregator struct {
	room       string
	topK       int
	emotions   map[string]int
	entities   map[string]*entityStat
	sentiments map[string]int
	total      int
	arrival    int
}

const DefaultTopK = 10

func NewAggregator(room string, topK int) *Aggregator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	a := &Aggregator{room: room, topK: topK}
	a.reset()
	return a
}

func (a *Aggregator) reset() {
	a.emotions = make(map[string]int)
	a.entities = make(map[string]*entityStat)
	a.sentiments = make(map[string]int)
	a.total = 0
	a.arrival = 0
}

// Apply folds one annotated message into the aggregate. Degraded
// messages only increment the total, keeping emotion, entity, and
// sentiment tallies free of placeholder data.
func (a *Aggregator) Apply(msg domain.AnnotatedMessage) {
	a.total++
	if msg.Degraded {
		return
	}

	a.emotions[msg.Emotion]++

	for _, entity := range msg.Entities {
		stat, ok := a.entities[entity.Text]
		if !ok {
			stat = &entityStat{firstSeen: a.arrival}
			a.arrival++
			a.entities[entity.Text] = stat
		}
		stat.count++
	}

	// One message contributes once per aspect mention, not once per
	// message.
	for _, sentiment := range msg.AspectSentiment {
		a.sentiments[sentiment]++
	}
}

// Rebuild re-derives the aggregate from a replayed history, producing
// counts identical to incremental application over the same messages.
func (a *Aggregator) Rebuild(history []domain.AnnotatedMessage) {
	a.reset()
	for _, msg := range history {
		a.Apply(msg)
	}
}

// MessageCount returns the total number of folded messages.
func (a *Aggregator) MessageCount() int {
	return a.total
}

// Snapshot returns a consistent copy of the aggregate plus the current
// top-K entities by mention count. Ties rank the earliest-mentioned
// entity first, so the view is deterministic.
func (a *Aggregator) Snapshot() domain.AnalyticsView {
	emotions := make(map[string]int, len(a.emotions))
	for emotion, count := range a.emotions {
		if emotion == domain.EmotionUnknown {
			continue
		}
		emotions[emotion] = count
	}

	sentiments := map[string]int{
		domain.SentimentPositive: a.sentiments[domain.SentimentPositive],
		domain.SentimentNegative: a.sentiments[domain.SentimentNegative],
		domain.SentimentNeutral:  a.sentiments[domain.SentimentNeutral],
	}

	type ranked struct {
		entity    string
		count     int
		firstSeen int
	}
	all := lo.MapToSlice(a.entities, func(entity string, stat *entityStat) ranked {
		return ranked{entity: entity, count: stat.count, firstSeen: stat.firstSeen}
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].firstSeen < all[j].firstSeen
	})
	if len(all) > a.topK {
		all = all[:a.topK]
	}
	top := lo.Map(all, func(r ranked, _ int) domain.EntityCount {
		return domain.EntityCount{Entity: r.entity, Count: r.count}
	})

	return domain.AnalyticsView{
		Room:                  a.room,
		EmotionDistribution:   emotions,
		TopEntities:           top,
		SentimentDistribution: sentiments,
		MessageCount:          a.total,
		At:                    time.Now().UTC(),
	}
}
