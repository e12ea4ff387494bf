package storage

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"cwstate/internal/cwkey"
	"cwstate/internal/model"
)

// BuildRecords flattens a batch into one record per event, keeping event order.
func BuildRecords(batch model.ChangeBatch) []model.ChangeRecord {
	records := make([]model.ChangeRecord, 0, len(batch.Events))
	observedAt := batch.ObservedAt.UTC().Format(time.RFC3339Nano)
	for _, ev := range batch.Events {
		rec := model.ChangeRecord{
			RunID:      batch.RunID.String(),
			Contract:   batch.Contract,
			Endpoint:   batch.Endpoint,
			ObservedAt: observedAt,
			Kind:       ev.Kind.String(),
			Key:        hexutil.Encode(ev.Key),
			KeyDisplay: cwkey.Decode(ev.Key).Display(),
		}
		if ev.Kind != model.Added {
			rec.OldValue = hexutil.Encode(ev.OldValue)
		}
		if ev.Kind != model.Removed {
			rec.NewValue = hexutil.Encode(ev.NewValue)
		}
		records = append(records, rec)
	}
	return records
}
