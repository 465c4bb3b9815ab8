package annotation

import (
	"context"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"

	"chat-intel/contract"
	"chat-intel/domain"
	apperrors "chat-intel/errors"
)

var _ contract.IAnnotator = (*LexiconAnnotator)(nil)

// LexiconAnnotator is a deterministic, in-process annotator used when
// no model sidecar is configured. It is intentionally crude: keyword
// lexicons for emotion and polarity, a small gazetteer plus a
// capitalized-run heuristic for entities. Good enough to keep the full
// pipeline exercised without the model.
type LexiconAnnotator struct{}

func NewLexiconAnnotator() *LexiconAnnotator {
	return &LexiconAnnotator{}
}

// Emotion lexicons, checked in a fixed order so results are stable.
var emotionOrder = []string{
	domain.EmotionJoy,
	domain.EmotionAnger,
	domain.EmotionSadness,
	domain.EmotionFear,
	domain.EmotionDisgust,
	domain.EmotionSurprise,
}

var emotionLexicon = map[string][]string{
	domain.EmotionJoy:      {"love", "happy", "great", "awesome", "glad", "wonderful", "enjoy", "nice"},
	domain.EmotionAnger:    {"hate", "angry", "furious", "annoying", "terrible", "awful"},
	domain.EmotionSadness:  {"sad", "miss", "sorry", "unhappy", "cry", "lonely"},
	domain.EmotionFear:     {"afraid", "scared", "worried", "fear", "anxious"},
	domain.EmotionDisgust:  {"disgusting", "gross", "nasty", "yuck"},
	domain.EmotionSurprise: {"wow", "surprised", "unexpected", "unbelievable", "amazing"},
}

var positiveLexicon = map[string]struct{}{
	"love": {}, "great": {}, "good": {}, "awesome": {}, "nice": {},
	"happy": {}, "wonderful": {}, "amazing": {}, "enjoy": {}, "warm": {},
}

var negativeLexicon = map[string]struct{}{
	"hate": {}, "bad": {}, "terrible": {}, "awful": {}, "cold": {},
	"boring": {}, "annoying": {}, "sad": {}, "nasty": {}, "slow": {},
}

// gazetteer maps known lowercase entity phrases to their label.
// Longest phrases must come first at lookup time, handled in extract.
var gazetteer = map[string]string{
	"new york": "GPE", "paris": "GPE", "london": "GPE", "tokyo": "GPE",
	"berlin": "GPE", "san francisco": "GPE", "france": "GPE", "japan": "GPE",
	"google": "ORG", "microsoft": "ORG", "amazon": "ORG", "netflix": "ORG",
	"monday": "DATE", "tuesday": "DATE", "friday": "DATE", "sunday": "DATE",
}

func (a *LexiconAnnotator) Annotate(_ context.Context, text string) (domain.Annotation, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.Annotation{}, apperrors.ErrAnnotationInvalidInput
	}

	words := tokenize(trimmed)
	entities := extractEntities(trimmed, words)

	annotation := domain.Annotation{
		Emotion:         detectEmotion(words),
		Entities:        entities,
		AspectSentiment: aspectSentiment(words, entities),
		Lang:            whatlanggo.Detect(trimmed).Lang.Iso6391(),
	}
	return annotation, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func detectEmotion(words []string) string {
	present := make(map[string]struct{}, len(words))
	for _, w := range words {
		present[w] = struct{}{}
	}
	for _, emotion := range emotionOrder {
		for _, keyword := range emotionLexicon[emotion] {
			if _, ok := present[keyword]; ok {
				return emotion
			}
		}
	}
	return domain.EmotionNeutral
}

// extractEntities scans for gazetteer phrases first (two-word phrases
// before single words), then falls back to runs of capitalized tokens
// that are not sentence-initial.
func extractEntities(original string, words []string) []domain.Entity {
	var entities []domain.Entity
	seen := make(map[string]struct{})

	add := func(text, label string) {
		key := strings.ToLower(text)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		entities = append(entities, domain.Entity{Text: text, Label: label})
	}

	// Gazetteer pass on the lowercase token stream.
	for i := 0; i < len(words); i++ {
		if i+1 < len(words) {
			phrase := words[i] + " " + words[i+1]
			if label, ok := gazetteer[phrase]; ok {
				add(titleCase(phrase), label)
				i++
				continue
			}
		}
		if label, ok := gazetteer[words[i]]; ok {
			add(titleCase(words[i]), label)
		}
	}

	// Capitalized-run pass on the original text. The first token of the
	// message only counts when the run extends beyond it.
	tokens := strings.Fields(original)
	for i := 0; i < len(tokens); i++ {
		if !isCapitalized(tokens[i]) {
			continue
		}
		j := i
		for j+1 < len(tokens) && isCapitalized(tokens[j+1]) {
			j++
		}
		if i == 0 && j == 0 {
			continue
		}
		run := strings.Join(tokens[i:j+1], " ")
		run = strings.TrimFunc(run, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if run != "" {
			if _, ok := gazetteer[strings.ToLower(run)]; !ok {
				add(run, "MISC")
			}
		}
		i = j
	}

	return entities
}

// aspectSentiment attributes the message-level polarity to every
// detected entity, mirroring the context-window approach of the model
// sidecar in a degenerate whole-message window.
func aspectSentiment(words []string, entities []domain.Entity) map[string]string {
	sentiment := map[string]string{}
	if len(entities) == 0 {
		return sentiment
	}

	var positive, negative int
	for _, w := range words {
		if _, ok := positiveLexicon[w]; ok {
			positive++
		}
		if _, ok := negativeLexicon[w]; ok {
			negative++
		}
	}

	label := domain.SentimentNeutral
	switch {
	case positive > negative:
		label = domain.SentimentPositive
	case negative > positive:
		label = domain.SentimentNegative
	}

	for _, e := range entities {
		sentiment[e.Text] = label
	}
	return sentiment
}

func isCapitalized(token string) bool {
	for _, r := range token {
		if unicode.IsLetter(r) {
			return unicode.IsUpper(r)
		}
	}
	return false
}

func titleCase(phrase string) string {
	parts := strings.Fields(phrase)
	for i, p := range parts {
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}
