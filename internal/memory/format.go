package memory

import (
	"fmt"
	"strings"

	"ai-doll-conversation-service/internal/models"
)

// FormatHistory renders recalled turns, most similar first, one per line.
func FormatHistory(records []models.MemoryRecord) string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, fmt.Sprintf("Child previously said: '%s' and AI responded: '%s'", r.UserText, r.AIText))
	}
	return strings.Join(lines, "\n")
}
