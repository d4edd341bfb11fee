package models

import "time"

// SyncState is the singleton indexing cursor: the highest locally committed
// height and when it last moved. Written after every commit and rollback.
type SyncState struct {
	Height    uint64    `json:"indexed_height"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReorgEvent is an audit record of a resolved (or detected-but-unresolved)
// chain reorganization.
type ReorgEvent struct {
	Height     uint64    `json:"height"`
	Depth      uint64    `json:"depth"`
	OldHash    string    `json:"old_hash"`
	NewHash    string    `json:"new_hash"`
	DetectedAt time.Time `json:"detected_at"`
}
