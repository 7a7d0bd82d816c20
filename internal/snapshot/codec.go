package snapshot

import (
	"encoding/binary"
	"fmt"
	"time"
)

// MarshalBinary encodes s as a length-prefixed sequence of tuples:
// for each entry, a uint32 path length, the path bytes, a uint64
// size, and an int64 unix-nano mtime. This is an explicit,
// language-neutral format — not a reuse of any Go-specific encoding
// package — matching the durable-store guidance in SPEC_FULL.md.
func (s Set) MarshalBinary() []byte {
	var out []byte
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(s)))
	out = append(out, header...)

	for m := range s {
		pathLen := make([]byte, 4)
		binary.BigEndian.PutUint32(pathLen, uint32(len(m.RelPath)))
		out = append(out, pathLen...)
		out = append(out, m.RelPath...)

		rest := make([]byte, 16)
		binary.BigEndian.PutUint64(rest[0:8], uint64(m.Size))
		binary.BigEndian.PutUint64(rest[8:16], uint64(m.ModTime.UnixNano()))
		out = append(out, rest...)
	}
	return out
}

// UnmarshalSet decodes a blob produced by Set.MarshalBinary.
func UnmarshalSet(blob []byte) (Set, error) {
	if len(blob) < 4 {
		return nil, fmt.Errorf("snapshot: truncated set header")
	}
	count := binary.BigEndian.Uint32(blob[0:4])
	pos := 4

	out := make(Set, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(blob) {
			return nil, fmt.Errorf("snapshot: truncated path length at entry %d", i)
		}
		pathLen := int(binary.BigEndian.Uint32(blob[pos : pos+4]))
		pos += 4

		if pos+pathLen+16 > len(blob) {
			return nil, fmt.Errorf("snapshot: truncated entry %d", i)
		}
		relPath := string(blob[pos : pos+pathLen])
		pos += pathLen

		size := int64(binary.BigEndian.Uint64(blob[pos : pos+8]))
		modNano := int64(binary.BigEndian.Uint64(blob[pos+8 : pos+16]))
		pos += 16

		out[FileMeta{
			RelPath: relPath,
			Size:    size,
			ModTime: time.Unix(0, modNano).UTC(),
		}] = struct{}{}
	}
	return out, nil
}
