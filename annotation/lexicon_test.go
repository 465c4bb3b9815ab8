package annotation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-intel/domain"
	apperrors "chat-intel/errors"
)

func Test_Lexicon_Detects_Joy(t *testing.T) {
	req := require.New(t)
	annotator := NewLexiconAnnotator()

	annotation, err := annotator.Annotate(context.Background(), "I love this!")
	req.NoError(err)
	req.Equal(domain.EmotionJoy, annotation.Emotion)
	req.Empty(annotation.Entities)
	req.Empty(annotation.AspectSentiment)
}

func Test_Lexicon_Entity_With_Negative_Aspect(t *testing.T) {
	req := require.New(t)
	annotator := NewLexiconAnnotator()

	annotation, err := annotator.Annotate(context.Background(), "New York is cold")
	req.NoError(err)
	req.Equal(domain.EmotionNeutral, annotation.Emotion)
	req.Equal([]domain.Entity{{Text: "New York", Label: "GPE"}}, annotation.Entities)
	req.Equal(domain.SentimentNegative, annotation.AspectSentiment["New York"])
}

func Test_Lexicon_Gazetteer_Org(t *testing.T) {
	req := require.New(t)
	annotator := NewLexiconAnnotator()

	annotation, err := annotator.Annotate(context.Background(), "google released something great")
	req.NoError(err)
	req.Equal([]domain.Entity{{Text: "Google", Label: "ORG"}}, annotation.Entities)
	req.Equal(domain.SentimentPositive, annotation.AspectSentiment["Google"])
}

func Test_Lexicon_Capitalized_Run_Fallback(t *testing.T) {
	req := require.New(t)
	annotator := NewLexiconAnnotator()

	annotation, err := annotator.Annotate(context.Background(), "we met Ada Lovelace yesterday")
	req.NoError(err)
	req.Equal([]domain.Entity{{Text: "Ada Lovelace", Label: "MISC"}}, annotation.Entities)
}

func Test_Lexicon_Sentence_Initial_Token_Is_Not_An_Entity(t *testing.T) {
	req := require.New(t)
	annotator := NewLexiconAnnotator()

	annotation, err := annotator.Annotate(context.Background(), "Hello there everyone")
	req.NoError(err)
	req.Empty(annotation.Entities)
}

func Test_Lexicon_Rejects_Blank_Input(t *testing.T) {
	req := require.New(t)
	annotator := NewLexiconAnnotator()

	_, err := annotator.Annotate(context.Background(), "   ")
	req.ErrorIs(err, apperrors.ErrAnnotationInvalidInput)
}

func Test_Lexicon_Emotion_Order_Is_Stable(t *testing.T) {
	req := require.New(t)
	annotator := NewLexiconAnnotator()

	// "love" (joy) and "hate" (anger) in one message: joy is checked first.
	annotation, err := annotator.Annotate(context.Background(), "love it, hate that")
	req.NoError(err)
	req.Equal(domain.EmotionJoy, annotation.Emotion)
}
