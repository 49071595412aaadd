package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/opsdesk/dispatch/pkg/config"
)

// Compile-time check.
var _ Classifier = (*ModelClassifier)(nil)

// ModelClassifier delegates to a remote single-label classification
// service over the fixed label set. Low-confidence predictions and any
// transport or decode failure fall back to the keyword classifier.
type ModelClassifier struct {
	url                 string
	labels              []string
	confidenceThreshold float64
	httpClient          *http.Client
	fallback            *KeywordClassifier
}

// NewModelClassifier creates a model-backed classifier with keyword
// fallback.
func NewModelClassifier(url string, labels []string, confidenceThreshold float64, fallback *KeywordClassifier) *ModelClassifier {
	return &ModelClassifier{
		url:                 url,
		labels:              labels,
		confidenceThreshold: confidenceThreshold,
		httpClient:          &http.Client{Timeout: 5 * time.Second},
		fallback:            fallback,
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classify implements Classifier.
func (c *ModelClassifier) Classify(ctx context.Context, message string) []string {
	label, confidence, err := c.predict(ctx, message)
	if err != nil {
		slog.Warn("Intent model unavailable, falling back to keyword classifier", "error", err)
		return c.fallback.Classify(ctx, message)
	}
	if confidence < c.confidenceThreshold || !slices.Contains(c.labels, label) {
		return []string{config.DefaultAgentID}
	}
	return []string{label}
}

func (c *ModelClassifier) predict(ctx context.Context, message string) (string, float64, error) {
	body, err := json.Marshal(classifyRequest{Text: message})
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/classify", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("classify request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("classify service returned status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read classify response: %w", err)
	}
	var parsed classifyResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", 0, fmt.Errorf("failed to decode classify response: %w", err)
	}
	return parsed.Label, parsed.Confidence, nil
}
