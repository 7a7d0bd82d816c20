package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrChunkSizeTooSmall is returned when the requested chunk size
// leaves no room for any payload after the fixed header.
var ErrChunkSizeTooSmall = errors.New("protocol: chunk size must be greater than header size")

// FileChunker derives a fixed fragmentation plan for one source file:
// payload capacity, total fragment count, and the file's SHA-1, all
// computed once at construction. The hash must be known before the
// first fragment is emitted because every fragment's header advertises
// it, and the same identifier must remain stable across every
// replicated copy the sender transmits.
type FileChunker struct {
	path             string
	payloadCapacity  int
	total            uint32
	hash             [HashSize]byte
	size             int64
}

// NewFileChunker constructs a chunker for path. chunkSize is the total
// wire size of each datagram, header included, and must be greater
// than HeaderSize.
func NewFileChunker(path string, chunkSize int) (*FileChunker, error) {
	if chunkSize <= HeaderSize {
		return nil, ErrChunkSizeTooSmall
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("protocol: stat %s: %w", path, err)
	}
	hash, err := HashFile(path)
	if err != nil {
		return nil, err
	}

	payloadCapacity := chunkSize - HeaderSize
	size := info.Size()
	total := uint32((size + int64(payloadCapacity) - 1) / int64(payloadCapacity))

	return &FileChunker{
		path:            path,
		payloadCapacity: payloadCapacity,
		total:           total,
		hash:            hash,
		size:            size,
	}, nil
}

// Hash returns the file's SHA-1 digest, advertised in every fragment
// this chunker emits.
func (fc *FileChunker) Hash() [HashSize]byte { return fc.hash }

// Total returns the total fragment count.
func (fc *FileChunker) Total() uint32 { return fc.total }

// PayloadCapacity returns the maximum payload bytes per fragment.
func (fc *FileChunker) PayloadCapacity() int { return fc.payloadCapacity }

// Enumerate opens a fresh read handle over the source file and
// returns a restartable FragmentEnumerator. Callers must Close the
// enumerator on every exit path; calling Enumerate again (e.g. once
// per replication copy) opens an independent handle.
func (fc *FileChunker) Enumerate() (*FragmentEnumerator, error) {
	f, err := os.Open(fc.path)
	if err != nil {
		return nil, fmt.Errorf("protocol: open %s for chunking: %w", fc.path, err)
	}
	return &FragmentEnumerator{
		owner:  fc,
		file:   f,
		reader: bufio.NewReaderSize(f, fc.payloadCapacity),
	}, nil
}

// FragmentEnumerator is a scoped resource: it owns the open file
// handle exclusively for the lifetime of one enumeration and must be
// closed on every exit path, including early termination.
type FragmentEnumerator struct {
	owner  *FileChunker
	file   *os.File
	reader *bufio.Reader
	index  uint32
	done   bool
}

// Next reads the next sequential payload block, prepends the correct
// header, and returns the wire-ready fragment. It returns io.EOF once
// every fragment has been produced.
func (fe *FragmentEnumerator) Next() ([]byte, error) {
	if fe.done {
		return nil, io.EOF
	}

	buf := make([]byte, fe.owner.payloadCapacity)
	n, err := io.ReadFull(fe.reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("protocol: read fragment %d of %s: %w", fe.index, fe.owner.path, err)
	}
	if n == 0 {
		fe.done = true
		return nil, io.EOF
	}

	h := Header{
		Hash:   fe.owner.hash,
		Offset: uint64(fe.index) * uint64(fe.owner.payloadCapacity),
		Index:  fe.index,
		Total:  fe.owner.total,
	}
	fe.index++
	if fe.index >= fe.owner.total || uint32(n) < uint32(fe.owner.payloadCapacity) {
		fe.done = true
	}

	out := make([]byte, HeaderSize+n)
	copy(out, h.Encode())
	copy(out[HeaderSize:], buf[:n])
	return out, nil
}

// Close releases the enumerator's file handle. It is safe to call
// multiple times.
func (fe *FragmentEnumerator) Close() error {
	if fe.file == nil {
		return nil
	}
	err := fe.file.Close()
	fe.file = nil
	return err
}
