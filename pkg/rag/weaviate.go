package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Compile-time check.
var _ Retriever = (*WeaviateRetriever)(nil)

// WeaviateRetriever queries a Weaviate instance's GraphQL endpoint with
// nearText semantic search.
type WeaviateRetriever struct {
	baseURL    string
	apiKey     string
	class      string
	httpClient *http.Client
}

// NewWeaviateRetriever creates a retriever over the given Weaviate class.
func NewWeaviateRetriever(baseURL, apiKey, class string) *WeaviateRetriever {
	return &WeaviateRetriever{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		class:      class,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Retrieve implements Retriever.
func (r *WeaviateRetriever) Retrieve(ctx context.Context, query string, topK int, filters map[string]string) ([]Chunk, error) {
	gql, err := r.buildQuery(query, topK, filters)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{"query": gql})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("weaviate search failed: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode weaviate response: %w", err)
	}

	return r.convertResults(result), nil
}

// buildQuery assembles the nearText GraphQL query. Filters become a
// conjunctive where clause over string properties.
func (r *WeaviateRetriever) buildQuery(query string, topK int, filters map[string]string) (string, error) {
	concepts, err := json.Marshal([]string{query})
	if err != nil {
		return "", fmt.Errorf("failed to encode query concepts: %w", err)
	}

	where := ""
	if len(filters) > 0 {
		var operands []string
		for path, value := range filters {
			encodedValue, err := json.Marshal(value)
			if err != nil {
				return "", fmt.Errorf("failed to encode filter value: %w", err)
			}
			operands = append(operands,
				fmt.Sprintf(`{path: [%q], operator: Equal, valueText: %s}`, path, encodedValue))
		}
		where = fmt.Sprintf(", where: {operator: And, operands: [%s]}", strings.Join(operands, ", "))
	}

	return fmt.Sprintf(`{
  Get {
    %s(nearText: {concepts: %s}, limit: %d%s) {
      content
      source
      _additional {
        certainty
        distance
      }
    }
  }
}`, r.class, string(concepts), topK, where), nil
}

// convertResults maps the GraphQL response shape onto chunks.
func (r *WeaviateRetriever) convertResults(result map[string]any) []Chunk {
	data, ok := result["data"].(map[string]any)
	if !ok {
		return nil
	}
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return nil
	}
	objects, ok := get[r.class].([]any)
	if !ok {
		return nil
	}

	chunks := make([]Chunk, 0, len(objects))
	for _, obj := range objects {
		objMap, ok := obj.(map[string]any)
		if !ok {
			continue
		}

		chunk := Chunk{}
		if content, ok := objMap["content"].(string); ok {
			chunk.Content = content
		}
		if source, ok := objMap["source"].(string); ok {
			chunk.Source = source
		}
		if additional, ok := objMap["_additional"].(map[string]any); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				chunk.Score = certainty
			} else if distance, ok := additional["distance"].(float64); ok {
				chunk.Score = 1.0 - distance
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
