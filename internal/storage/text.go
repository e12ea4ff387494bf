package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"cwstate/internal/cwkey"
	"cwstate/internal/model"
)

// TextSink writes one human-readable line per event.
type TextSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

func (s *TextSink) PutChanges(_ context.Context, batch model.ChangeBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := batch.ObservedAt.UTC().Format(time.RFC3339)
	for _, ev := range batch.Events {
		if _, err := fmt.Fprintf(s.w, "%s %s\n", ts, FormatEvent(ev)); err != nil {
			return fmt.Errorf("write change: %w", err)
		}
	}
	return nil
}

// FormatEvent renders an event as "+ key = value", "- key (was value)" or
// "~ key: old -> new".
func FormatEvent(ev model.ChangeEvent) string {
	key := cwkey.Decode(ev.Key).Display()
	switch ev.Kind {
	case model.Added:
		return fmt.Sprintf("+ %s = %s", key, cwkey.Render(ev.NewValue))
	case model.Removed:
		return fmt.Sprintf("- %s (was %s)", key, cwkey.Render(ev.OldValue))
	case model.Modified:
		return fmt.Sprintf("~ %s: %s -> %s", key, cwkey.Render(ev.OldValue), cwkey.Render(ev.NewValue))
	default:
		return fmt.Sprintf("? %s", key)
	}
}
