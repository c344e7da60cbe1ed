package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindUp(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "config.yaml"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.yml"), nil, 0o644))
	// A directory with a matching name is skipped.
	require.NoError(t, os.Mkdir(filepath.Join(root, "a", "b", "config.yml"), 0o755))

	p, err := FindUp(deep, "config.yml", "config.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "config.yaml"), p)

	p, err = FindUp(root, "config.yml", "config.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "config.yml"), p)

	p, err = FindUp(deep, "nothing-here.toml")
	require.NoError(t, err)
	assert.Equal(t, "", p)
}
