package model

// ChangeRecord is the normalized JSON form of a ChangeEvent.
type ChangeRecord struct {
	RunID      string `json:"run_id"`
	Contract   string `json:"contract"`
	Endpoint   string `json:"endpoint"`
	ObservedAt string `json:"observed_at"`
	Kind       string `json:"kind"`
	Key        string `json:"key"`
	KeyDisplay string `json:"key_display"`
	OldValue   string `json:"old_value,omitempty"`
	NewValue   string `json:"new_value,omitempty"`
}
