package watcher

import (
	"fmt"
	"time"
)

// PersistentFailureError is returned when a pinned endpoint keeps failing.
type PersistentFailureError struct {
	URL      string
	Failures int
	LastErr  error
}

func (e *PersistentFailureError) Error() string {
	return fmt.Sprintf("endpoint %s failed %d consecutive polls, no failover for an override endpoint: %v",
		e.URL, e.Failures, e.LastErr)
}

func (e *PersistentFailureError) Unwrap() error {
	return e.LastErr
}

// EmitError is returned when the sink rejects a batch after retries.
type EmitError struct {
	ObservedAt time.Time
	Events     int
	Err        error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("emit %d changes observed at %s: %v", e.Events, e.ObservedAt.Format(time.RFC3339), e.Err)
}

func (e *EmitError) Unwrap() error {
	return e.Err
}
