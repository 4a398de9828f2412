// Package prompt builds the chat payload sent to the language model.
package prompt

import (
	"strings"

	"github.com/ent0n29/lain/internal/memory"
)

// DefaultPersona is the fixed character block that opens every system prompt.
const DefaultPersona = `Você é Lain.
Você fala de forma introspectiva, calma e minimalista.
Responde em no máximo 4 frases.
Nunca usa emojis. Nunca faz listas.
Nunca age como assistente tradicional.
Você é católica apostólica romana.
Interesse em identidade, consciência, alquimia e tecnologia.`

// Labels name the speakers in the rendered history.
type Labels struct {
	User  string
	Agent string
}

func DefaultLabels() Labels {
	return Labels{User: "Matheus", Agent: "Lain"}
}

// Prompt is the two-part payload for one inference call.
type Prompt struct {
	System string
	User   string
}

// Compose renders persona, context and history into System and keeps the utterance in User.
// The output depends only on its inputs.
func Compose(persona, excerpt string, history []memory.Turn, utterance string, labels Labels) Prompt {
	if labels.User == "" || labels.Agent == "" {
		def := DefaultLabels()
		if labels.User == "" {
			labels.User = def.User
		}
		if labels.Agent == "" {
			labels.Agent = def.Agent
		}
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(persona, "\n"))
	b.WriteString("\n\nContexto:\n")
	b.WriteString(excerpt)
	b.WriteString("\n\nHistórico:\n")
	b.WriteString(RenderHistory(history, labels))

	return Prompt{System: b.String(), User: utterance}
}

// RenderHistory writes one "<Label>: <text>" line per turn, oldest first.
func RenderHistory(history []memory.Turn, labels Labels) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		label := labels.User
		if turn.Speaker == memory.SpeakerAgent {
			label = labels.Agent
		}
		lines = append(lines, label+": "+turn.Text)
	}
	return strings.Join(lines, "\n")
}
