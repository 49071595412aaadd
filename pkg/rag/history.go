package rag

import (
	"strings"

	"github.com/opsdesk/dispatch/pkg/models"
)

// NoHistoryPlaceholder is used when a session has no prior turns.
const NoHistoryPlaceholder = "(No previous conversation)"

// FormatHistory renders the last maxTurns user/assistant messages as
// role-prefixed lines for inclusion in an agent prompt.
func FormatHistory(messages []models.Message, maxTurns int) string {
	var filtered []models.Message
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		filtered = append(filtered, m)
	}
	if maxTurns > 0 && len(filtered) > maxTurns {
		filtered = filtered[len(filtered)-maxTurns:]
	}
	if len(filtered) == 0 {
		return NoHistoryPlaceholder
	}

	lines := make([]string, 0, len(filtered))
	for _, m := range filtered {
		prefix := "Agent:"
		if m.Role == models.RoleUser {
			prefix = "User:"
		}
		lines = append(lines, prefix+" "+m.Content)
	}
	return strings.Join(lines, "\n")
}
