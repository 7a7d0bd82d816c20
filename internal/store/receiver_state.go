package store

import (
	"fmt"

	"diodesync/internal/protocol"
)

// Archive state tags. The stored value is tag || payload; payload is
// empty for tagComplete and a marshaled Bitset for tagInProgress.
const (
	tagInProgress byte = 0
	tagComplete   byte = 1
)

// ArchiveState is the receiver's view of one archive's progress.
type ArchiveState struct {
	// Complete is true once every fragment index has been durably
	// written and the archive has been handed off for extraction.
	Complete bool
	// Bitset tracks which fragment indices have been durably written.
	// Only meaningful when Complete is false; nil when the archive has
	// never been seen (Absent).
	Bitset *protocol.Bitset
}

// ReceiverState wraps a Store with the receiver's per-archive
// progress, keyed by hex-encoded archive hash.
type ReceiverState struct {
	store *Store
}

// NewReceiverState opens the receiver's durable state file at path
// (conventionally "<root>/.receiver_sync_data").
func NewReceiverState(path string) *ReceiverState {
	return &ReceiverState{store: Open(path)}
}

// Get returns the archive state for hexHash. An archive never seen
// before yields Complete false and a nil Bitset; callers should treat
// that as Absent and construct a fresh Bitset of the fragment's
// declared total before mutating it.
func (r *ReceiverState) Get(hexHash string) (ArchiveState, error) {
	blob, err := r.store.Get(hexHash)
	if err != nil {
		return ArchiveState{}, fmt.Errorf("receiver state: read %s: %w", hexHash, err)
	}
	if blob == nil {
		return ArchiveState{}, nil
	}
	if len(blob) == 0 {
		return ArchiveState{}, fmt.Errorf("receiver state: empty record for %s", hexHash)
	}

	switch blob[0] {
	case tagComplete:
		return ArchiveState{Complete: true}, nil
	case tagInProgress:
		bs, err := protocol.UnmarshalBitset(blob[1:])
		if err != nil {
			return ArchiveState{}, fmt.Errorf("receiver state: decode bitset for %s: %w", hexHash, err)
		}
		return ArchiveState{Bitset: bs}, nil
	default:
		return ArchiveState{}, fmt.Errorf("receiver state: unknown tag %d for %s", blob[0], hexHash)
	}
}

// PutInProgress persists bs as the in-progress state for hexHash.
func (r *ReceiverState) PutInProgress(hexHash string, bs *protocol.Bitset) error {
	blob := append([]byte{tagInProgress}, bs.MarshalBinary()...)
	if err := r.store.Put(hexHash, blob); err != nil {
		return fmt.Errorf("receiver state: write in-progress %s: %w", hexHash, err)
	}
	return nil
}

// PutComplete persists the completion sentinel for hexHash.
func (r *ReceiverState) PutComplete(hexHash string) error {
	if err := r.store.Put(hexHash, []byte{tagComplete}); err != nil {
		return fmt.Errorf("receiver state: write complete %s: %w", hexHash, err)
	}
	return nil
}
