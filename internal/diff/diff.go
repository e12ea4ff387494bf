// Package diff computes ordered changes between two contract snapshots.
package diff

import (
	"bytes"
	"sort"

	"cwstate/internal/model"
)

// Diff returns the changes from previous to current in ascending key order.
// A nil previous is the baseline and yields no events.
func Diff(previous *model.Snapshot, current model.Snapshot) []model.ChangeEvent {
	if previous == nil {
		return nil
	}

	keys := make([]string, 0, len(current.Entries))
	for k := range current.Entries {
		keys = append(keys, k)
	}
	for k := range previous.Entries {
		if _, ok := current.Entries[k]; !ok {
			keys = append(keys, k)
		}
	}
	// Go string comparison is byte-wise, matching bytes.Compare.
	sort.Strings(keys)

	var events []model.ChangeEvent
	for _, k := range keys {
		oldValue, had := previous.Entries[k]
		newValue, has := current.Entries[k]
		switch {
		case !had:
			events = append(events, model.AddedEvent([]byte(k), newValue))
		case !has:
			events = append(events, model.RemovedEvent([]byte(k), oldValue))
		case !bytes.Equal(oldValue, newValue):
			events = append(events, model.ModifiedEvent([]byte(k), oldValue, newValue))
		}
	}
	return events
}
