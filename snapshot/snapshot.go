// Package snapshot persists schema-versioned snapshots of the staking
// engine's state and migrates older schemas forward at load time. Schema
// changes between releases are handled by an explicit migration step run once
// at startup, never by reinterpreting stored bytes in place.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/defistate/staking-engine-go/staking"
)

// Schema identifiers. The schema string is the decode contract for Data.
const (
	SchemaV1 = "defistate/staking-engine/StateView@v1"
	SchemaV2 = "defistate/staking-engine/StateView@v2"

	// CurrentSchema is what Save writes and what Load migrates toward.
	CurrentSchema = SchemaV2
)

// State is the persisted envelope: a schema-tagged payload plus the tick the
// snapshot was taken at.
type State struct {
	Schema string `json:"schema"`
	Tick   uint64 `json:"tick"`
	// SavedAt is the Unix nanosecond timestamp of the save.
	SavedAt int64 `json:"savedAt"`

	// Data is the state view, shaped by Schema.
	Data json.RawMessage `json:"data"`
}

// Save writes a snapshot of the view at the given tick, always in the
// current schema.
func Save(path string, view *staking.StakingStateView, tick uint64) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("snapshot: encode view: %w", err)
	}
	envelope := State{
		Schema:  CurrentSchema,
		Tick:    tick,
		SavedAt: time.Now().UnixNano(),
		Data:    data,
	}
	raw, err := json.MarshalIndent(&envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: encode envelope: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

// Load reads a snapshot, migrating older schemas to the current one. The
// migrated flag tells the caller whether a migration ran, which gates the
// restore behind the upgrade-authority role.
func Load(path string, migrator *Migrator) (view *staking.StakingStateView, tick uint64, migrated bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, false, err
	}
	var envelope State
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, 0, false, fmt.Errorf("snapshot: decode envelope: %w", err)
	}
	migrated, err = migrator.Migrate(&envelope)
	if err != nil {
		return nil, 0, false, err
	}
	view = &staking.StakingStateView{}
	if err := json.Unmarshal(envelope.Data, view); err != nil {
		return nil, 0, false, fmt.Errorf("snapshot: decode view: %w", err)
	}
	return view, envelope.Tick, migrated, nil
}
