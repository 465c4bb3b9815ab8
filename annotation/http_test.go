package annotation

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-intel/domain"
	apperrors "chat-intel/errors"
)

func Test_HTTPAnnotator_Maps_Sidecar_Response(t *testing.T) {
	req := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Equal(http.MethodPost, r.Method)
		req.Equal("/analyze", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"emotion": "joy",
			"entities": [{"text": "Paris", "label": "GPE"}],
			"aspect_sentiment": {"Paris": "positive"},
			"lang": "en"
		}`))
	}))
	defer server.Close()

	annotator := NewHTTPAnnotator(server.URL, time.Second, slog.Default())
	annotation, err := annotator.Annotate(context.Background(), "Paris is lovely")
	req.NoError(err)
	req.Equal(domain.EmotionJoy, annotation.Emotion)
	req.Equal([]domain.Entity{{Text: "Paris", Label: "GPE"}}, annotation.Entities)
	req.Equal(domain.SentimentPositive, annotation.AspectSentiment["Paris"])
	req.Equal("en", annotation.Lang)
}

func Test_HTTPAnnotator_Invalid_Input_Status(t *testing.T) {
	req := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	annotator := NewHTTPAnnotator(server.URL, time.Second, slog.Default())
	_, err := annotator.Annotate(context.Background(), "whatever")
	req.ErrorIs(err, apperrors.ErrAnnotationInvalidInput)
}

func Test_HTTPAnnotator_Server_Error_Is_Unavailable(t *testing.T) {
	req := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	annotator := NewHTTPAnnotator(server.URL, time.Second, slog.Default())
	_, err := annotator.Annotate(context.Background(), "whatever")
	req.ErrorIs(err, apperrors.ErrAnnotationUnavailable)
}

func Test_HTTPAnnotator_Timeout(t *testing.T) {
	req := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can detect the client disconnect;
		// with an unread body, r.Context() is never cancelled and
		// server.Close() would block forever.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	annotator := NewHTTPAnnotator(server.URL, time.Hour, slog.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := annotator.Annotate(ctx, "whatever")
	req.ErrorIs(err, apperrors.ErrAnnotationTimeout)
}

func Test_HTTPAnnotator_Breaker_Opens_After_Failures(t *testing.T) {
	req := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	annotator := NewHTTPAnnotator(server.URL, time.Second, slog.Default())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := annotator.Annotate(ctx, "failing")
		req.Error(err)
	}

	// The breaker is now open: the sidecar is no longer called.
	_, err := annotator.Annotate(ctx, "short-circuited")
	req.ErrorIs(err, apperrors.ErrAnnotationUnavailable)
}
