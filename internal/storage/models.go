package storage

import "time"

// Change operations recorded in config_history.
const (
	OpSet    = "set"
	OpDelete = "delete"
)

// Change is one recorded mutation of a config key.
// OldValue is nil when the key did not exist before; NewValue is nil for deletes.
type Change struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Op        string    `json:"op"`
	OldValue  *string   `json:"old_value,omitempty"`
	NewValue  *string   `json:"new_value,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}
