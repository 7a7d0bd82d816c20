package protocol

import (
	"crypto/sha1"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeRandomFile(t *testing.T, dir string, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := make([]byte, size)
	rand.New(rand.NewSource(42)).Read(data)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestChunkerSmallFileFragmentCount(t *testing.T) {
	dir := t.TempDir()
	path := writeRandomFile(t, dir, "payload.bin", 12345)

	fc, err := NewFileChunker(path, 8192)
	require.NoError(t, err)
	require.EqualValues(t, 2, fc.Total())
	require.Equal(t, 8144, fc.PayloadCapacity())

	enum, err := fc.Enumerate()
	require.NoError(t, err)
	defer enum.Close()

	var frags [][]byte
	for {
		frag, err := enum.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		frags = append(frags, frag)
	}
	require.Len(t, frags, 2)

	h0, err := DecodeHeader(frags[0][:HeaderSize])
	require.NoError(t, err)
	require.EqualValues(t, 0, h0.Index)
	require.EqualValues(t, 0, h0.Offset)
	require.EqualValues(t, 2, h0.Total)

	h1, err := DecodeHeader(frags[1][:HeaderSize])
	require.NoError(t, err)
	require.EqualValues(t, 1, h1.Index)
	require.EqualValues(t, 8144, h1.Offset)
}

func TestChunkerConcatenationReproducesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRandomFile(t, dir, "payload.bin", 50000)

	fc, err := NewFileChunker(path, 1400)
	require.NoError(t, err)

	enum, err := fc.Enumerate()
	require.NoError(t, err)
	defer enum.Close()

	var rebuilt []byte
	for {
		frag, err := enum.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		rebuilt = append(rebuilt, frag[HeaderSize:]...)
	}

	original, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, original, rebuilt)

	sum := sha1.Sum(original)
	require.Equal(t, sum, fc.Hash())
}

func TestChunkerRejectsSmallChunkSize(t *testing.T) {
	dir := t.TempDir()
	path := writeRandomFile(t, dir, "x.bin", 10)

	_, err := NewFileChunker(path, HeaderSize)
	require.ErrorIs(t, err, ErrChunkSizeTooSmall)
}

func TestChunkerEnumerationIsRestartable(t *testing.T) {
	dir := t.TempDir()
	path := writeRandomFile(t, dir, "payload.bin", 5000)

	fc, err := NewFileChunker(path, 1400)
	require.NoError(t, err)

	countFragments := func() int {
		enum, err := fc.Enumerate()
		require.NoError(t, err)
		defer enum.Close()
		n := 0
		for {
			_, err := enum.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			n++
		}
		return n
	}

	first := countFragments()
	second := countFragments()
	require.Equal(t, first, second)
	require.EqualValues(t, first, fc.Total())
}

func TestLargeFileFragmentCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	buf := make([]byte, 1024)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10*1024; i++ {
		rng.Read(buf)
		_, err := f.Write(buf)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	fc, err := NewFileChunker(path, 1400)
	require.NoError(t, err)
	require.EqualValues(t, 7756, fc.Total())
	require.Equal(t, 1352, fc.PayloadCapacity())
}
