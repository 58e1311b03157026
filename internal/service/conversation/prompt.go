package conversation

import (
	"strings"
)

const noHistory = "(no earlier conversations)"

// PromptBuilder renders the generation prompt for one turn.
type PromptBuilder struct {
	Persona  string
	Language string
}

// Build embeds the persona, the recalled history and the new utterance
// verbatim. The output depends only on its inputs.
func (b PromptBuilder) Build(childID, history, utterance string) string {
	if strings.TrimSpace(history) == "" {
		history = noHistory
	}

	var sb strings.Builder
	sb.WriteString(b.Persona)
	sb.WriteString("\nYou are talking with a child named ")
	sb.WriteString(childID)
	sb.WriteString(".\nAlways respond in ")
	sb.WriteString(b.Language)
	sb.WriteString(".\n\nHere is some of your past conversation history with ")
	sb.WriteString(childID)
	sb.WriteString(":\n---\n")
	sb.WriteString(history)
	sb.WriteString("\n---\n\nNow, continue the conversation. The child just said: '")
	sb.WriteString(utterance)
	sb.WriteString("'\n")
	return sb.String()
}
