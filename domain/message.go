// Package domain contains core concepts of the chat system.
// This file defines the message shapes flowing through a room:
// raw submissions, NLP annotations, and the immutable annotated
// message that is stored, aggregated, and broadcast.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Emotion labels produced by the annotation model.
const (
	EmotionAnger    = "anger"
	EmotionDisgust  = "disgust"
	EmotionFear     = "fear"
	EmotionJoy      = "joy"
	EmotionNeutral  = "neutral"
	EmotionSadness  = "sadness"
	EmotionSurprise = "surprise"

	// EmotionUnknown marks a message whose annotation failed.
	// It is its own bucket, excluded from the emotion distribution view.
	EmotionUnknown = "unknown"
)

// Sentiment labels for aspect-level sentiment.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// RawMessage is an ephemeral client submission. It is consumed by the
// room session and never stored.
type RawMessage struct {
	Room   string
	Sender string
	Text   string
	At     time.Time
}

// Entity is a named entity detected in a message.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Annotation is the NLP-derived metadata attached to a message.
type Annotation struct {
	Emotion         string            `json:"emotion"`
	Entities        []Entity          `json:"entities"`
	AspectSentiment map[string]string `json:"aspectSentiment"`
	Lang            string            `json:"lang,omitempty"`
}

// DegradedAnnotation is substituted when the annotation call fails or
// times out, so the chat stays responsive.
func DegradedAnnotation() Annotation {
	return Annotation{
		Emotion:         EmotionUnknown,
		Entities:        nil,
		AspectSentiment: map[string]string{},
	}
}

// AnnotatedMessage is immutable once created. The sequence number is
// assigned by the owning room session and is strictly increasing per room.
type AnnotatedMessage struct {
	ID       uuid.UUID `json:"id"`
	Room     string    `json:"room"`
	Sequence uint64    `json:"sequence"`
	Sender   string    `json:"sender"`
	Text     string    `json:"text"`
	Annotation
	// Degraded is true when the annotation call failed and the
	// placeholder annotation was substituted. Degraded messages count
	// towards the room total but not towards emotion, entity, or
	// sentiment tallies.
	Degraded bool      `json:"degraded,omitempty"`
	At       time.Time `json:"at"`
}
