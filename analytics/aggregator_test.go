package analytics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-intel/domain"
)

func annotated(seq uint64, emotion string, entities []domain.Entity, sentiment map[string]string) domain.AnnotatedMessage {
	return domain.AnnotatedMessage{
		Room:     "general",
		Sequence: seq,
		Sender:   "alice",
		Text:     "hello",
		Annotation: domain.Annotation{
			Emotion:         emotion,
			Entities:        entities,
			AspectSentiment: sentiment,
		},
	}
}

func Test_Apply_Accumulates_Counts(t *testing.T) {
	req := require.New(t)
	agg := NewAggregator("general", 10)

	// Given a joyful message without entities
	agg.Apply(annotated(1, domain.EmotionJoy, nil, map[string]string{}))
	// And a neutral message mentioning New York negatively
	agg.Apply(annotated(2, domain.EmotionNeutral,
		[]domain.Entity{{Text: "New York", Label: "GPE"}},
		map[string]string{"New York": domain.SentimentNegative}))

	view := agg.Snapshot()
	req.Equal(2, view.MessageCount)
	req.Equal(1, view.EmotionDistribution[domain.EmotionJoy])
	req.Equal(1, view.EmotionDistribution[domain.EmotionNeutral])
	req.Equal([]domain.EntityCount{{Entity: "New York", Count: 1}}, view.TopEntities)
	req.Equal(1, view.SentimentDistribution[domain.SentimentNegative])
	req.Equal(0, view.SentimentDistribution[domain.SentimentPositive])
}

func Test_Degraded_Message_Counts_Total_Only(t *testing.T) {
	req := require.New(t)
	agg := NewAggregator("general", 10)

	msg := annotated(1, domain.EmotionUnknown, nil, map[string]string{})
	msg.Degraded = true
	agg.Apply(msg)

	view := agg.Snapshot()
	req.Equal(1, view.MessageCount)
	req.Empty(view.EmotionDistribution)
	req.Empty(view.TopEntities)
	// The three sentiment buckets are always present, all zero here.
	req.Equal(map[string]int{
		domain.SentimentPositive: 0,
		domain.SentimentNegative: 0,
		domain.SentimentNeutral:  0,
	}, view.SentimentDistribution)
}

func Test_Rebuild_Matches_Incremental_Fold(t *testing.T) {
	req := require.New(t)

	history := []domain.AnnotatedMessage{
		annotated(1, domain.EmotionJoy, []domain.Entity{{Text: "Google", Label: "ORG"}},
			map[string]string{"Google": domain.SentimentPositive}),
		annotated(2, domain.EmotionAnger, []domain.Entity{{Text: "Paris", Label: "GPE"}},
			map[string]string{"Paris": domain.SentimentNegative}),
		annotated(3, domain.EmotionJoy, []domain.Entity{{Text: "Google", Label: "ORG"}},
			map[string]string{"Google": domain.SentimentPositive}),
	}

	incremental := NewAggregator("general", 10)
	for _, msg := range history {
		incremental.Apply(msg)
	}

	rebuilt := NewAggregator("general", 10)
	rebuilt.Rebuild(history)

	left, right := incremental.Snapshot(), rebuilt.Snapshot()
	req.Equal(left.MessageCount, right.MessageCount)
	req.Equal(left.EmotionDistribution, right.EmotionDistribution)
	req.Equal(left.TopEntities, right.TopEntities)
	req.Equal(left.SentimentDistribution, right.SentimentDistribution)
}

func Test_TopEntities_Ranking_And_TieBreak(t *testing.T) {
	req := require.New(t)
	agg := NewAggregator("general", 2)

	// zebra first, then alpha, both mentioned once; beta mentioned twice.
	agg.Apply(annotated(1, domain.EmotionNeutral, []domain.Entity{{Text: "zebra", Label: "MISC"}}, nil))
	agg.Apply(annotated(2, domain.EmotionNeutral, []domain.Entity{{Text: "alpha", Label: "MISC"}}, nil))
	agg.Apply(annotated(3, domain.EmotionNeutral, []domain.Entity{{Text: "beta", Label: "MISC"}}, nil))
	agg.Apply(annotated(4, domain.EmotionNeutral, []domain.Entity{{Text: "beta", Label: "MISC"}}, nil))

	view := agg.Snapshot()
	// beta wins on count; zebra beats alpha on first appearance.
	req.Equal([]domain.EntityCount{
		{Entity: "beta", Count: 2},
		{Entity: "zebra", Count: 1},
	}, view.TopEntities)
}

func Test_Snapshot_Does_Not_Alias_Internal_State(t *testing.T) {
	req := require.New(t)
	agg := NewAggregator("general", 10)
	agg.Apply(annotated(1, domain.EmotionJoy, nil, nil))

	view := agg.Snapshot()
	view.EmotionDistribution[domain.EmotionJoy] = 99

	req.Equal(1, agg.Snapshot().EmotionDistribution[domain.EmotionJoy])
}

func Test_TopEntities_Capped_At_K(t *testing.T) {
	req := require.New(t)
	agg := NewAggregator("general", 3)

	for i := 0; i < 10; i++ {
		entity := domain.Entity{Text: fmt.Sprintf("entity-%d", i), Label: "MISC"}
		agg.Apply(annotated(uint64(i+1), domain.EmotionNeutral, []domain.Entity{entity}, nil))
	}

	req.Len(agg.Snapshot().TopEntities, 3)
}
