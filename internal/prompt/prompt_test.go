package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/lain/internal/memory"
)

func TestComposeOrdersSections(t *testing.T) {
	history := []memory.Turn{
		{Speaker: memory.SpeakerUser, Text: "Olá"},
		{Speaker: memory.SpeakerAgent, Text: "Oi."},
	}
	p := Compose(DefaultPersona, "Trecho do livro.", history, "Quem é você?", DefaultLabels())

	assert.Equal(t, "Quem é você?", p.User)
	assert.NotContains(t, p.System, "Quem é você?")
	require.True(t, strings.HasPrefix(p.System, "Você é Lain."))

	ctxIdx := strings.Index(p.System, "Contexto:\nTrecho do livro.")
	histIdx := strings.Index(p.System, "Histórico:\nMatheus: Olá\nLain: Oi.")
	require.NotEqual(t, -1, ctxIdx)
	require.NotEqual(t, -1, histIdx)
	assert.Less(t, ctxIdx, histIdx)
}

func TestComposeEmptyHistory(t *testing.T) {
	p := Compose("Persona.", "Nenhuma fonte relevante encontrada.", nil, "Olá", Labels{})
	assert.Equal(t, "Persona.\n\nContexto:\nNenhuma fonte relevante encontrada.\n\nHistórico:\n", p.System)
}

func TestComposeIsDeterministic(t *testing.T) {
	history := []memory.Turn{{Speaker: memory.SpeakerUser, Text: "a"}}
	a := Compose(DefaultPersona, "ctx", history, "u", DefaultLabels())
	b := Compose(DefaultPersona, "ctx", history, "u", DefaultLabels())
	assert.Equal(t, a, b)
}

func TestRenderHistoryCustomLabels(t *testing.T) {
	got := RenderHistory([]memory.Turn{
		{Speaker: memory.SpeakerUser, Text: "ping"},
		{Speaker: memory.SpeakerAgent, Text: "pong"},
	}, Labels{User: "Ana", Agent: "Navi"})
	assert.Equal(t, "Ana: ping\nNavi: pong", got)
}
