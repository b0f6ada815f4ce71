package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/staking-engine-go/staking"
)

var (
	rewardAsset = common.HexToAddress("0x00000000000000000000000000000000000000EE")
	poolAsset   = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	alice       = common.HexToAddress("0x00000000000000000000000000000000000000A1")
)

func buildView(t *testing.T) *staking.StakingStateView {
	t.Helper()

	engine := staking.NewStakingEngine()
	require.NoError(t, engine.Initialize(alice, rewardAsset, 100, 1000, uint256.NewInt(50)))
	_, err := engine.AddPool(alice, 100, common.Address{}, 100, uint256.NewInt(1), 10, true)
	require.NoError(t, err)
	_, err = engine.AddPool(alice, 100, poolAsset, 200, uint256.NewInt(5), 20, true)
	require.NoError(t, err)
	return engine.View()
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	view := buildView(t)

	require.NoError(t, Save(path, view, 123))

	loaded, tick, migrated, err := Load(path, NewMigrator())
	require.NoError(t, err)
	assert.False(t, migrated, "a current-schema snapshot must not be migrated")
	assert.Equal(t, uint64(123), tick)
	assert.Equal(t, view, loaded)
}

func TestLoadRejectsUnknownSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	view := buildView(t)
	require.NoError(t, Save(path, view, 1))

	// Rewrite the envelope with a schema nobody registered.
	raw, err := json.Marshal(&State{Schema: "defistate/staking-engine/StateView@v99", Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, _, _, err = Load(path, NewMigrator())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no migrator registered")
}

func TestMigrateV1(t *testing.T) {
	v1 := stateViewV1{
		Initialized:         true,
		RewardAsset:         rewardAsset,
		EmissionRatePerTick: uint256.NewInt(50),
		WindowStart:         100,
		WindowEnd:           1000,
		TotalPoolWeight:     300,
		WithdrawalLockTicks: 42,
		MinDeposit:          uint256.NewInt(7),
		Pools: []poolViewV1{
			{Asset: common.Address{}, Weight: 100, LastSettledTick: 150, AccRewardPerUnit: uint256.NewInt(3), TotalLocked: uint256.NewInt(1000)},
			{Asset: poolAsset, Weight: 200, LastSettledTick: 150, AccRewardPerUnit: uint256.NewInt(9), TotalLocked: uint256.NewInt(500)},
		},
		Accounts: []staking.AccountView{
			{
				PoolIndex:     0,
				Address:       alice,
				Staked:        uint256.NewInt(1000),
				SettledDebt:   uint256.NewInt(3000),
				PendingReward: new(uint256.Int),
			},
		},
		Roles: []staking.RoleView{{Address: alice, Mask: staking.RoleSuperAdmin}},
	}
	data, err := json.Marshal(&v1)
	require.NoError(t, err)

	envelope := &State{Schema: SchemaV1, Tick: 150, Data: data}
	migrated, err := NewMigrator().Migrate(envelope)
	require.NoError(t, err)
	assert.True(t, migrated)
	assert.Equal(t, CurrentSchema, envelope.Schema)

	var view staking.StakingStateView
	require.NoError(t, json.Unmarshal(envelope.Data, &view))

	// The engine-wide lock and minimum move onto every pool.
	require.Len(t, view.Pools, 2)
	for _, pool := range view.Pools {
		assert.Equal(t, uint64(42), pool.WithdrawalLockTicks)
		assert.Equal(t, uint256.NewInt(7), pool.MinDeposit)
	}

	// Everything else carries over untouched, and the result must be
	// loadable by the engine.
	assert.Equal(t, uint64(300), view.TotalPoolWeight)
	engine := staking.NewStakingEngineFromView(&view)
	staked, err := engine.StakedAmount(0, alice)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1000), staked)
	assert.True(t, engine.HasRole(alice, staking.RoleSuperAdmin))
}

func TestMigratorRequiresSchema(t *testing.T) {
	_, err := NewMigrator().Migrate(&State{Data: json.RawMessage(`{}`)})
	require.Error(t, err)
}

func TestMigratorRejectsStalledStep(t *testing.T) {
	m, err := NewMigratorWithConfig(&MigratorConfig{
		Steps: map[string]MigratorFunc{
			SchemaV1: func(data json.RawMessage) (json.RawMessage, string, error) {
				return data, SchemaV1, nil
			},
		},
	})
	require.NoError(t, err)

	_, err = m.Migrate(&State{Schema: SchemaV1, Data: json.RawMessage(`{}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not advance")
}
