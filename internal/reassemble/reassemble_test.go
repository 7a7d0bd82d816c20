package reassemble

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"diodesync/internal/protocol"
)

func TestAcceptFragmentReassemblesFile(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "src.bin")
	content := make([]byte, 5000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	chunker, err := protocol.NewFileChunker(srcPath, 1024)
	require.NoError(t, err)

	destDir := t.TempDir()
	var destPath string
	fr := New(func(hexHash string) (string, error) {
		destPath = filepath.Join(destDir, hexHash)
		return destPath, nil
	})

	enum, err := chunker.Enumerate()
	require.NoError(t, err)
	defer enum.Close()

	var lastComplete bool
	for {
		frag, err := enum.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		lastComplete, err = fr.AcceptFragment(frag, true)
		require.NoError(t, err)
	}
	require.True(t, lastComplete)

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestAcceptFragmentRejectsUndersized(t *testing.T) {
	fr := New(func(string) (string, error) { return "", nil })
	_, err := fr.AcceptFragment([]byte{1, 2, 3}, false)
	require.ErrorIs(t, err, protocol.ErrUndersizedFragment)
}

func TestAcceptFragmentOutOfOrderWrites(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "src.bin")
	content := []byte("abcdefghijklmnopqrstuvwxyz0123456789")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	chunker, err := protocol.NewFileChunker(srcPath, 58) // payload capacity 10
	require.NoError(t, err)

	destDir := t.TempDir()
	var destPath string
	fr := New(func(hexHash string) (string, error) {
		destPath = filepath.Join(destDir, hexHash)
		return destPath, nil
	})

	enum, err := chunker.Enumerate()
	require.NoError(t, err)
	defer enum.Close()

	var frags [][]byte
	for {
		f, err := enum.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		frags = append(frags, f)
	}
	require.True(t, len(frags) > 1)

	// Write the last fragment first, then the rest in order.
	last := frags[len(frags)-1]
	complete, err := fr.AcceptFragment(last, true)
	require.NoError(t, err)
	require.False(t, complete)

	for _, f := range frags[:len(frags)-1] {
		complete, err = fr.AcceptFragment(f, true)
		require.NoError(t, err)
	}
	require.True(t, complete)

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, content, got)
}
