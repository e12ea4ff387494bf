package model

import (
	"time"

	"github.com/google/uuid"
)

// ChangeKind tags a ChangeEvent.
type ChangeKind int

const (
	Added ChangeKind = iota + 1
	Removed
	Modified
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// ChangeEvent is one difference between two snapshots.
// Added carries NewValue, Removed carries OldValue, Modified carries both.
type ChangeEvent struct {
	Kind     ChangeKind
	Key      []byte
	OldValue []byte
	NewValue []byte
}

// AddedEvent returns an Added event.
func AddedEvent(key, value []byte) ChangeEvent {
	return ChangeEvent{Kind: Added, Key: key, NewValue: value}
}

// RemovedEvent returns a Removed event.
func RemovedEvent(key, oldValue []byte) ChangeEvent {
	return ChangeEvent{Kind: Removed, Key: key, OldValue: oldValue}
}

// ModifiedEvent returns a Modified event.
func ModifiedEvent(key, oldValue, newValue []byte) ChangeEvent {
	return ChangeEvent{Kind: Modified, Key: key, OldValue: oldValue, NewValue: newValue}
}

// ChangeBatch groups the events of one poll cycle for the output sinks.
type ChangeBatch struct {
	RunID      uuid.UUID
	Contract   string
	Endpoint   string
	ObservedAt time.Time
	Events     []ChangeEvent
}
