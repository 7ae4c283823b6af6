package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_CreatesParentAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alice", "post.jpg")

	require.NoError(t, WriteFile(path, []byte("first")))
	require.NoError(t, WriteFile(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no pending files are left behind")
}

func TestNameFits(t *testing.T) {
	assert.True(t, NameFits("clip.mp4"))
	assert.True(t, NameFits(strings.Repeat("a", MaxNameBytes)))
	assert.False(t, NameFits(strings.Repeat("a", MaxNameBytes+1)))
	// 86 three-byte runes are 258 bytes even though only 86 characters long.
	assert.False(t, NameFits(strings.Repeat("한", 86)))
}
