package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, Options{Bound: 5})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Mode())
	assert.Equal(t, 5, s.Bound())

	s, err = NewStore(ctx, Options{FilePath: filepath.Join(t.TempDir(), "m.json")})
	require.NoError(t, err)
	assert.Equal(t, "file", s.Mode())
	assert.Equal(t, DefaultBound, s.Bound())
}

func TestNewStoreReportsBackendFailure(t *testing.T) {
	s, err := NewStore(context.Background(), Options{DatabaseURL: "://not a url"})
	require.Error(t, err)
	assert.Nil(t, s)
}
