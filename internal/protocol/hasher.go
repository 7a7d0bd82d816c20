package protocol

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"
)

// hashBufSize is the read buffer size used while streaming a file
// through the hasher; 8 KiB is sufficient to avoid loading the whole
// file into memory regardless of its size.
const hashBufSize = 8 * 1024

// HashFile computes the streaming SHA-1 digest of the file at path.
func HashFile(path string) ([HashSize]byte, error) {
	var out [HashSize]byte
	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("protocol: open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, hashBufSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return out, fmt.Errorf("protocol: hash %s: %w", path, err)
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}
