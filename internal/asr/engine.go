package asr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sebas/hotline/internal/media"
)

// Result is one recognition outcome: the transcript plus the offset of the
// first voice activity inside the chunk as reported by the engine's VAD.
type Result struct {
	Text       string `json:"text"`
	VADStartMS int    `json:"vad_start_ms"`
}

// Engine turns 16 kHz float32 PCM into text. Implementations are treated
// as black boxes.
type Engine interface {
	Recognize(ctx context.Context, samples []float32) (Result, error)
	Close() error
}

// NewEngine builds the engine for a service URL. An empty URL yields the
// noop engine, useful for pipeline dry runs and tests.
func NewEngine(serviceURL string, timeout time.Duration) (Engine, error) {
	if serviceURL == "" {
		return noopEngine{}, nil
	}

	u, err := url.Parse(serviceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid recognition service URL %q: %w", serviceURL, err)
	}

	return &httpEngine{
		url:    serviceURL,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// httpEngine posts PCM chunks to a recognition HTTP service.
type httpEngine struct {
	url    string
	client *http.Client
}

type recognizeRequest struct {
	SampleRate int    `json:"sample_rate"`
	PCMBase64  string `json:"pcm_base64"`
}

func (e *httpEngine) Recognize(ctx context.Context, samples []float32) (Result, error) {
	body, err := json.Marshal(recognizeRequest{
		SampleRate: 16000,
		PCMBase64:  base64.StdEncoding.EncodeToString(media.Float32ToPCM16(samples)),
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal recognition request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build recognition request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("recognition request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("recognition service returned %s", resp.Status)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("failed to decode recognition response: %w", err)
	}
	return res, nil
}

func (e *httpEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// noopEngine recognizes nothing; every chunk yields empty text.
type noopEngine struct{}

func (noopEngine) Recognize(ctx context.Context, samples []float32) (Result, error) {
	return Result{}, nil
}

func (noopEngine) Close() error { return nil }
