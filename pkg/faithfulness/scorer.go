// Package faithfulness scores agent replies against their retrieved
// context. The supervisor escalates replies scoring below the configured
// threshold.
package faithfulness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Scorer rates how grounded a response is in the retrieved context.
// Scores are in [0,1]; higher means more grounded.
type Scorer interface {
	Score(ctx context.Context, response, ragContext string) float64
}

// Compile-time checks.
var (
	_ Scorer = (*NullScorer)(nil)
	_ Scorer = (*ModelScorer)(nil)
)

// NullScorer always returns 1.0, disabling the faithfulness gate.
type NullScorer struct{}

// NewNullScorer creates a no-op scorer.
func NewNullScorer() *NullScorer {
	return &NullScorer{}
}

// Score implements Scorer.
func (s *NullScorer) Score(context.Context, string, string) float64 {
	return 1.0
}

// ModelScorer delegates to a remote scoring service. Any failure
// transparently degrades to the null scorer's 1.0 so the gate never
// escalates on scorer outages.
type ModelScorer struct {
	url        string
	httpClient *http.Client
	fallback   *NullScorer
}

// NewModelScorer creates a model-backed scorer with null fallback.
func NewModelScorer(url string) *ModelScorer {
	return &ModelScorer{
		url:        url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		fallback:   NewNullScorer(),
	}
}

type scoreRequest struct {
	Text string `json:"text"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

// FormatInput builds the scoring model's single-string input. Response
// and context are each capped at 500 characters.
func FormatInput(response, ragContext string) string {
	r := response
	if len(r) > 500 {
		r = r[:500]
	}
	c := ragContext
	if len(c) > 500 {
		c = c[:500]
	}
	return "[RESPONSE] " + r + " [CONTEXT] " + c
}

// Score implements Scorer.
func (s *ModelScorer) Score(ctx context.Context, response, ragContext string) float64 {
	score, err := s.predict(ctx, FormatInput(response, ragContext))
	if err != nil {
		slog.Warn("Faithfulness model unavailable, using null score", "error", err)
		return s.fallback.Score(ctx, response, ragContext)
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func (s *ModelScorer) predict(ctx context.Context, input string) (float64, error) {
	body, err := json.Marshal(scoreRequest{Text: input})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/score", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("score request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("score service returned status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read score response: %w", err)
	}
	var parsed scoreResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return 0, fmt.Errorf("failed to decode score response: %w", err)
	}
	return parsed.Score, nil
}
