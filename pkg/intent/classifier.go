// Package intent maps user text to an ordered list of candidate agent ids.
package intent

import (
	"context"
	"strings"

	"github.com/opsdesk/dispatch/pkg/config"
)

// Classifier returns suggested agent ids for a message, most relevant
// first. Implementations never return an empty list.
type Classifier interface {
	Classify(ctx context.Context, message string) []string
}

// Compile-time check.
var _ Classifier = (*KeywordClassifier)(nil)

// KeywordClassifier matches the message against a fixed ordered rule
// table. Every matching rule contributes its agent id; no match yields
// the default agent.
type KeywordClassifier struct {
	rules []config.IntentRule
}

// NewKeywordClassifier creates a classifier over the given rule table.
func NewKeywordClassifier(rules []config.IntentRule) *KeywordClassifier {
	return &KeywordClassifier{rules: rules}
}

// Classify implements Classifier.
func (c *KeywordClassifier) Classify(_ context.Context, message string) []string {
	lower := strings.ToLower(message)
	var suggested []string
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				suggested = append(suggested, rule.AgentID)
				break
			}
		}
	}
	if len(suggested) == 0 {
		suggested = []string{config.DefaultAgentID}
	}
	return suggested
}
