package store

import (
	"fmt"

	"diodesync/internal/snapshot"
)

// sentKey is the single logical key under which the sender's
// previously-delivered File Metadata set is persisted.
const sentKey = "sent"

// SenderState wraps a Store with the sender's one piece of durable
// state: the set of File Metadata tuples already delivered to the
// archive pipeline.
type SenderState struct {
	store *Store
}

// NewSenderState opens the sender's durable state file at path
// (conventionally "<root>/.sender_sync_data").
func NewSenderState(path string) *SenderState {
	return &SenderState{store: Open(path)}
}

// Sent returns the persisted set of previously-sent File Metadata
// tuples, or an empty set if none has been persisted yet.
func (s *SenderState) Sent() (snapshot.Set, error) {
	blob, err := s.store.Get(sentKey)
	if err != nil {
		return nil, fmt.Errorf("sender state: read sent set: %w", err)
	}
	if blob == nil {
		return make(snapshot.Set), nil
	}
	set, err := snapshot.UnmarshalSet(blob)
	if err != nil {
		return nil, fmt.Errorf("sender state: decode sent set: %w", err)
	}
	return set, nil
}

// SetSent persists set as the new "sent" snapshot.
func (s *SenderState) SetSent(set snapshot.Set) error {
	if err := s.store.Put(sentKey, set.MarshalBinary()); err != nil {
		return fmt.Errorf("sender state: write sent set: %w", err)
	}
	return nil
}
