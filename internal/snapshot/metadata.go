// Package snapshot implements the sender's change-detection: a set of
// File Metadata tuples (relative path, size, modification time) and a
// set-difference operation against the previously-sent set. Any
// renamed, resized, or touched file produces a new tuple and therefore
// a retransmission on the next sync cycle; there is no rename
// detection.
package snapshot

import "time"

// FileMeta is one (relative path, size, modification time) tuple.
// Equality is componentwise; any field changing produces a distinct
// entry and triggers resend.
type FileMeta struct {
	RelPath string
	Size    int64
	ModTime time.Time
}

// Set is a set of FileMeta tuples keyed by their full componentwise
// identity.
type Set map[FileMeta]struct{}

// NewSet builds a Set from a slice of tuples.
func NewSet(metas []FileMeta) Set {
	s := make(Set, len(metas))
	for _, m := range metas {
		s[m] = struct{}{}
	}
	return s
}

// Diff returns the tuples present in current but absent from
// previous — the files that must be (re)transmitted this cycle.
func Diff(current, previous Set) Set {
	changed := make(Set)
	for m := range current {
		if _, ok := previous[m]; !ok {
			changed[m] = struct{}{}
		}
	}
	return changed
}

// Union returns a new set containing every tuple from both inputs,
// used to merge a cycle's included files back into the persisted
// "sent" set.
func Union(a, b Set) Set {
	out := make(Set, len(a)+len(b))
	for m := range a {
		out[m] = struct{}{}
	}
	for m := range b {
		out[m] = struct{}{}
	}
	return out
}

// Paths returns the relative paths in the set, for callers that only
// need path identity (e.g. archive construction).
func (s Set) Paths() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m.RelPath)
	}
	return out
}
