package contextsrc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestCorpusJoinsDocumentsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "segundo")
	writeFile(t, dir, "a.md", "primeiro")
	writeFile(t, dir, "ignored.json", "{}")
	writeFile(t, dir, "c.txt", "   ")

	got, err := NewCorpus(dir, 10, 3000).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "primeiro\n\nsegundo", got)
}

func TestCorpusTruncatesEachDocument(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", strings.Repeat("ç", 20))
	writeFile(t, dir, "b.txt", "curto")

	got, err := NewCorpus(dir, 10, 8).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ç", 8)+"\n\ncurto", got)
}

func TestCorpusSkipsUnreadablePDF(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.pdf", "not a pdf at all")
	writeFile(t, dir, "notes.txt", "nota")

	got, err := NewCorpus(dir, 10, 3000).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "nota", got)
}

func TestCorpusMissingDirectoryIsEmpty(t *testing.T) {
	got, err := NewCorpus(filepath.Join(t.TempDir(), "nope"), 10, 3000).Extract(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
