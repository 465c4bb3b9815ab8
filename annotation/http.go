// Package annotation implements the boundary to the NLP capability.
// Two implementations exist: an HTTP client for the model sidecar and a
// lexicon-based annotator used when no sidecar is configured.
package annotation

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"chat-intel/contract"
	"chat-intel/domain"
	apperrors "chat-intel/errors"
)

var _ contract.IAnnotator = (*HTTPAnnotator)(nil)

// HTTPAnnotator calls the NLP sidecar over HTTP. A circuit breaker
// short-circuits calls while the sidecar is down, so a failing model
// degrades messages instead of stacking up blocked submits.
type HTTPAnnotator struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[domain.Annotation]
	log     *slog.Logger
}

func NewHTTPAnnotator(baseURL string, timeout time.Duration, log *slog.Logger) *HTTPAnnotator {
	settings := gobreaker.Settings{
		Name:    "annotation-sidecar",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Annotation breaker state change",
				"name", name, "from", from.String(), "to", to.String())
		},
	}
	return &HTTPAnnotator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[domain.Annotation](settings),
		log:     log,
	}
}

type annotateRequest struct {
	Text string `json:"text"`
}

type annotateResponse struct {
	Emotion  string `json:"emotion"`
	Entities []struct {
		Text  string `json:"text"`
		Label string `json:"label"`
	} `json:"entities"`
	AspectSentiment map[string]string `json:"aspect_sentiment"`
	Lang            string            `json:"lang"`
}

func (a *HTTPAnnotator) Annotate(ctx context.Context, text string) (domain.Annotation, error) {
	if text == "" {
		return domain.Annotation{}, apperrors.ErrAnnotationInvalidInput
	}

	result, err := a.breaker.Execute(func() (domain.Annotation, error) {
		return a.call(ctx, text)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return domain.Annotation{}, fmt.Errorf("%w: breaker open", apperrors.ErrAnnotationUnavailable)
		}
		return domain.Annotation{}, err
	}
	return result, nil
}

func (a *HTTPAnnotator) call(ctx context.Context, text string) (domain.Annotation, error) {
	body, err := json.Marshal(annotateRequest{Text: text})
	if err != nil {
		return domain.Annotation{}, fmt.Errorf("%w: %v", apperrors.ErrAnnotationInvalidInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return domain.Annotation{}, fmt.Errorf("%w: %v", apperrors.ErrAnnotationUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return domain.Annotation{}, fmt.Errorf("%w: %v", apperrors.ErrAnnotationTimeout, err)
		}
		return domain.Annotation{}, fmt.Errorf("%w: %v", apperrors.ErrAnnotationUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return domain.Annotation{}, fmt.Errorf("%w: status %d", apperrors.ErrAnnotationInvalidInput, resp.StatusCode)
	default:
		return domain.Annotation{}, fmt.Errorf("%w: status %d", apperrors.ErrAnnotationUnavailable, resp.StatusCode)
	}

	var decoded annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.Annotation{}, fmt.Errorf("%w: decoding: %v", apperrors.ErrAnnotationUnavailable, err)
	}

	entities := make([]domain.Entity, 0, len(decoded.Entities))
	for _, e := range decoded.Entities {
		entities = append(entities, domain.Entity{Text: e.Text, Label: e.Label})
	}
	sentiment := decoded.AspectSentiment
	if sentiment == nil {
		sentiment = map[string]string{}
	}

	return domain.Annotation{
		Emotion:         decoded.Emotion,
		Entities:        entities,
		AspectSentiment: sentiment,
		Lang:            decoded.Lang,
	}, nil
}
