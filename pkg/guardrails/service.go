// Package guardrails provides input admission and output sanitization for
// agent conversations. Input checks block policy-violating or oversized
// user text; output filtering replaces sensitive phrases and bounds length.
package guardrails

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/opsdesk/dispatch/pkg/config"
)

const (
	// ReplacementText substitutes each matched sensitive phrase in output.
	ReplacementText = "[content removed]"

	// TruncationMarker is appended when output exceeds the length bound.
	TruncationMarker = "\n[...truncated]"
)

// Result is the outcome of a guardrail check.
type Result struct {
	Passed       bool
	FilteredText string
	Reason       string
}

// Service applies input and output guardrails. Created once at startup;
// stateless and safe for concurrent use.
type Service struct {
	cfg config.GuardrailConfig

	// Lowercased copies of the configured tables.
	blocklist         []string
	sensitivePatterns []string
}

// NewService creates a guardrail service from configuration.
func NewService(cfg config.GuardrailConfig) *Service {
	s := &Service{cfg: cfg}
	for _, p := range cfg.Blocklist {
		s.blocklist = append(s.blocklist, strings.ToLower(p))
	}
	for _, p := range cfg.SensitivePatterns {
		s.sensitivePatterns = append(s.sensitivePatterns, strings.ToLower(p))
	}

	slog.Info("Guardrail service initialized",
		"enabled", cfg.Enabled,
		"blocklist_patterns", len(s.blocklist),
		"sensitive_patterns", len(s.sensitivePatterns),
		"max_input_len", cfg.MaxInputLen,
		"max_output_len", cfg.MaxOutputLen)

	return s
}

// GuardInput checks user input for admission. Rejected input carries a
// reason; the agent must not be invoked for rejected input.
func (s *Service) GuardInput(text string) Result {
	if !s.cfg.Enabled {
		return Result{Passed: true, FilteredText: text}
	}
	if strings.TrimSpace(text) == "" {
		return Result{Passed: false, FilteredText: "", Reason: "empty"}
	}
	if s.cfg.MaxInputLen > 0 && len(text) > s.cfg.MaxInputLen {
		return Result{Passed: false, FilteredText: text, Reason: "input_too_long"}
	}
	lower := strings.ToLower(text)
	for _, pat := range s.blocklist {
		if strings.Contains(lower, pat) {
			return Result{Passed: false, FilteredText: text, Reason: "input_blocked:" + pat}
		}
	}
	return Result{Passed: true, FilteredText: text}
}

// GuardOutput filters agent output. It never rejects: every sensitive
// phrase occurrence is replaced, then the text is truncated to the
// configured bound.
func (s *Service) GuardOutput(text string) Result {
	if !s.cfg.Enabled || text == "" {
		return Result{Passed: true, FilteredText: text}
	}

	filtered := text
	for _, pat := range s.sensitivePatterns {
		filtered = replaceFold(filtered, pat)
	}

	if s.cfg.MaxOutputLen > 0 && len(filtered) > s.cfg.MaxOutputLen {
		cut := s.cfg.MaxOutputLen
		// Back up to a rune boundary so truncation never splits a character.
		for cut > 0 && !utf8.RuneStart(filtered[cut]) {
			cut--
		}
		filtered = filtered[:cut] + TruncationMarker
	}

	return Result{Passed: true, FilteredText: filtered}
}

// replaceFold replaces every case-insensitive occurrence of pat in a
// single left-to-right pass. Scanning resumes after each inserted
// ReplacementText, so patterns that happen to be substrings of the
// replacement never rematch.
func replaceFold(text, pat string) string {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, pat)
	if idx < 0 {
		return text
	}

	var b strings.Builder
	start := 0
	for idx >= 0 {
		b.WriteString(text[start : start+idx])
		b.WriteString(ReplacementText)
		start += idx + len(pat)
		idx = strings.Index(lower[start:], pat)
	}
	b.WriteString(text[start:])
	return b.String()
}
