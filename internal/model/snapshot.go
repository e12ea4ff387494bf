package model

import "time"

// Snapshot is the full key/value state of a contract at one point in time.
// Keys are raw storage bytes held as strings so they can index a map.
type Snapshot struct {
	Entries   map[string][]byte
	FetchedAt time.Time
}

// NewSnapshot builds a Snapshot that owns entries.
func NewSnapshot(entries map[string][]byte, fetchedAt time.Time) Snapshot {
	if entries == nil {
		entries = make(map[string][]byte)
	}
	return Snapshot{Entries: entries, FetchedAt: fetchedAt}
}

// Len returns the number of entries.
func (s Snapshot) Len() int {
	return len(s.Entries)
}
