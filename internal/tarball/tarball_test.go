package tarball

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildAndExtractRoundTrip(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "nested", "b.txt"), []byte("world"), 0o644))

	archive := filepath.Join(t.TempDir(), "out.tar")
	included, err := Build(root, []string{"a.txt", "nested/b.txt"}, archive)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a.txt", "nested/b.txt"}, included)

	dest := t.TempDir()
	require.NoError(t, Extract(archive, dest))

	gotA, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(gotA))

	gotB, err := os.ReadFile(filepath.Join(dest, "nested", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "world", string(gotB))
}

func TestBuildSkipsMissingFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))

	archive := filepath.Join(t.TempDir(), "out.tar")
	included, err := Build(root, []string{"a.txt", "gone.txt"}, archive)
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt"}, included)
}

func TestExtractRejectsPathEscape(t *testing.T) {
	_, err := safeJoin("/dest", "../../etc/passwd")
	require.Error(t, err)
}
