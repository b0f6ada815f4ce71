package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/staking-engine-go/staking"
)

// MigratorFunc upgrades a payload by exactly one schema hop.
//
// CONTRACT:
// 1. Purity: implementations MUST depend only on 'data'. No clocks, no I/O.
// 2. One hop: the returned schema must be strictly newer than the input's.
type MigratorFunc func(data json.RawMessage) (newData json.RawMessage, newSchema string, err error)

// maxMigrationHops bounds the migration chain so a buggy step that fails to
// advance the schema cannot loop forever.
const maxMigrationHops = 8

// MigratorConfig maps each legacy schema to its upgrade step.
type MigratorConfig struct {
	Steps map[string]MigratorFunc
}

func (c *MigratorConfig) validate() error {
	for schema, step := range c.Steps {
		if step == nil {
			return fmt.Errorf("migrator for schema %q cannot be nil", schema)
		}
	}
	return nil
}

// Migrator walks a snapshot forward through registered schema upgrades until
// it reaches CurrentSchema.
type Migrator struct {
	steps map[string]MigratorFunc
}

// NewMigrator constructs a migrator with the built-in upgrade steps.
func NewMigrator() *Migrator {
	m, _ := NewMigratorWithConfig(&MigratorConfig{
		Steps: map[string]MigratorFunc{
			SchemaV1: migrateV1,
		},
	})
	return m
}

// NewMigratorWithConfig constructs a migrator from an explicit step registry.
func NewMigratorWithConfig(cfg *MigratorConfig) (*Migrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Copy map to ensure immutability
	steps := make(map[string]MigratorFunc, len(cfg.Steps))
	for k, v := range cfg.Steps {
		steps[k] = v
	}
	return &Migrator{steps: steps}, nil
}

// Migrate upgrades the envelope in place until it carries CurrentSchema.
// It reports whether any migration step actually ran.
func (m *Migrator) Migrate(s *State) (bool, error) {
	if s.Schema == "" {
		return false, errors.New("snapshot: envelope has no schema")
	}

	migrated := false
	for hops := 0; s.Schema != CurrentSchema; hops++ {
		if hops >= maxMigrationHops {
			return false, fmt.Errorf("snapshot: migration from %q exceeded %d hops", s.Schema, maxMigrationHops)
		}
		step, ok := m.steps[s.Schema]
		if !ok {
			return false, fmt.Errorf("snapshot: no migrator registered for schema %q", s.Schema)
		}
		newData, newSchema, err := step(s.Data)
		if err != nil {
			return false, fmt.Errorf("snapshot: migrating %q: %w", s.Schema, err)
		}
		if newSchema == s.Schema {
			return false, fmt.Errorf("snapshot: migrator for %q did not advance the schema", s.Schema)
		}
		s.Data = newData
		s.Schema = newSchema
		migrated = true
	}
	return migrated, nil
}

// --- v1 -> v2 ---

// The v1 layout carried a single engine-wide withdrawal lock duration and
// minimum deposit; v2 moved both onto the pool. The migration copies the
// global values into every pool.

type stateViewV1 struct {
	Initialized         bool                  `json:"initialized"`
	RewardAsset         common.Address        `json:"rewardAsset"`
	EmissionRatePerTick *uint256.Int          `json:"emissionRatePerTick"`
	WindowStart         uint64                `json:"windowStart"`
	WindowEnd           uint64                `json:"windowEnd"`
	TotalPoolWeight     uint64                `json:"totalPoolWeight"`
	WithdrawalLockTicks uint64                `json:"withdrawalLockTicks"`
	MinDeposit          *uint256.Int          `json:"minDeposit"`
	Pools               []poolViewV1          `json:"pools"`
	Accounts            []staking.AccountView `json:"accounts"`
	Paused              staking.PauseView     `json:"paused"`
	Roles               []staking.RoleView    `json:"roles"`
}

type poolViewV1 struct {
	Asset            common.Address `json:"asset"`
	Weight           uint64         `json:"weight"`
	LastSettledTick  uint64         `json:"lastSettledTick"`
	AccRewardPerUnit *uint256.Int   `json:"accRewardPerUnit"`
	TotalLocked      *uint256.Int   `json:"totalLocked"`
}

func migrateV1(data json.RawMessage) (json.RawMessage, string, error) {
	var old stateViewV1
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, "", fmt.Errorf("decode v1 view: %w", err)
	}

	minDeposit := old.MinDeposit
	if minDeposit == nil {
		minDeposit = new(uint256.Int)
	}

	view := staking.StakingStateView{
		Initialized:         old.Initialized,
		RewardAsset:         old.RewardAsset,
		EmissionRatePerTick: old.EmissionRatePerTick,
		WindowStart:         old.WindowStart,
		WindowEnd:           old.WindowEnd,
		TotalPoolWeight:     old.TotalPoolWeight,
		Accounts:            old.Accounts,
		Paused:              old.Paused,
		Roles:               old.Roles,
	}
	view.Pools = make([]staking.PoolView, len(old.Pools))
	for i, pv := range old.Pools {
		view.Pools[i] = staking.PoolView{
			Asset:               pv.Asset,
			Weight:              pv.Weight,
			LastSettledTick:     pv.LastSettledTick,
			AccRewardPerUnit:    pv.AccRewardPerUnit,
			TotalLocked:         pv.TotalLocked,
			MinDeposit:          new(uint256.Int).Set(minDeposit),
			WithdrawalLockTicks: old.WithdrawalLockTicks,
		}
	}

	newData, err := json.Marshal(&view)
	if err != nil {
		return nil, "", fmt.Errorf("encode v2 view: %w", err)
	}
	return newData, SchemaV2, nil
}
