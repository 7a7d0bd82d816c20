// Package reassemble provides the minimal fragment-to-file writer: no
// deduplication, no bitset, no persistence. It is the primitive the
// folder receiver layers durability and progress tracking on top of,
// and is useful on its own for a one-shot reassembly to a file without
// any persistent progress state.
package reassemble

import (
	"fmt"
	"os"

	"diodesync/internal/protocol"
)

// PathResolver maps an archive's hex-encoded hash to the destination
// path fragments for that archive should be written to. Callers
// decide naming policy (e.g. a temp directory keyed by hash).
type PathResolver func(hexHash string) (string, error)

// FileReassembler writes fragments to disk via a caller-supplied hash
// to path mapping. It keeps no state between calls.
type FileReassembler struct {
	resolve PathResolver
}

// New builds a FileReassembler that resolves destination paths via
// resolve.
func New(resolve PathResolver) *FileReassembler {
	return &FileReassembler{resolve: resolve}
}

// AcceptFragment decodes and writes one fragment's payload to its
// resolved destination, seeking to the fragment's declared offset. If
// checkComplete is true, it then hashes the destination file and
// reports whether it equals the fragment's advertised hash.
func (fr *FileReassembler) AcceptFragment(data []byte, checkComplete bool) (bool, error) {
	if len(data) < protocol.HeaderSize {
		return false, protocol.ErrUndersizedFragment
	}

	hdr, err := protocol.DecodeHeader(data[:protocol.HeaderSize])
	if err != nil {
		return false, fmt.Errorf("reassemble: decode header: %w", err)
	}
	payload := data[protocol.HeaderSize:]

	path, err := fr.resolve(hdr.HashHex())
	if err != nil {
		return false, fmt.Errorf("reassemble: resolve path for %s: %w", hdr.HashHex(), err)
	}

	if err := writeAt(path, int64(hdr.Offset), payload); err != nil {
		return false, err
	}

	if !checkComplete {
		return false, nil
	}

	got, err := protocol.HashFile(path)
	if err != nil {
		return false, fmt.Errorf("reassemble: hash %s: %w", path, err)
	}
	return got == hdr.Hash, nil
}

// writeAt opens path for positioned writes, creating it if absent,
// seeks to offset, writes payload, and closes. O_RDWR rather than
// O_APPEND is required: append mode ignores seek position on some
// platforms and would corrupt out-of-order fragment writes.
func writeAt(path string, offset int64, payload []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("reassemble: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(payload, offset); err != nil {
		return fmt.Errorf("reassemble: write %s at %d: %w", path, offset, err)
	}
	return nil
}
