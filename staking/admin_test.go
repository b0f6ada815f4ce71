package staking

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/staking-engine-go/assets"
)

func TestAddPool(t *testing.T) {
	t.Run("FirstPoolMustBeNative", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		_, err := e.AddPool(admin, 0, testTokenA, 100, new(uint256.Int), 10, true)
		assert.ErrorIs(t, err, ErrInvalidPool)

		index, err := e.AddPool(admin, 0, assets.Native, 100, new(uint256.Int), 10, true)
		require.NoError(t, err)
		assert.Equal(t, NativePoolIndex, index)
	})

	t.Run("OnlyFirstPoolMayBeNative", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		addNativePool(t, e, 100)
		_, err := e.AddPool(admin, 0, assets.Native, 100, new(uint256.Int), 10, true)
		assert.ErrorIs(t, err, ErrInvalidPool)
	})

	t.Run("IndicesArePermanent", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		addNativePool(t, e, 100)
		assert.Equal(t, 1, addTokenPool(t, e, testTokenA, 100))
		assert.Equal(t, 2, addTokenPool(t, e, testTokenB, 100))
		assert.Equal(t, 3, e.PoolCount())
	})

	t.Run("NonAdminRejected", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		_, err := e.AddPool(alice, 0, assets.Native, 100, new(uint256.Int), 10, true)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("WeightOverflowRejected", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		_, err := e.AddPool(admin, 0, assets.Native, math.MaxUint64, new(uint256.Int), 10, true)
		require.NoError(t, err)
		_, err = e.AddPool(admin, 0, testTokenA, 1, new(uint256.Int), 10, true)
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})

	t.Run("ExistingPoolsSettledBeforeWeightChanges", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		addNativePool(t, e, 100)
		depositNative(t, e, 0, alice, 1000)

		// adding a second pool at tick 100 dilutes emission going forward,
		// but the first 100 ticks were settled at full weight
		_, err := e.AddPool(admin, 100, testTokenA, 100, new(uint256.Int), 10, true)
		require.NoError(t, err)

		assert.Equal(t, uint256.NewInt(5000), pending(t, e, 100, 0, alice))
		assert.Equal(t, uint256.NewInt(7500), pending(t, e, 200, 0, alice),
			"after the split the pool earns half the emission")
	})
}

func TestSetPoolWeight(t *testing.T) {
	t.Run("ChangesEmissionShare", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		addNativePool(t, e, 100)
		poolB := addTokenPool(t, e, testTokenA, 100)
		depositNative(t, e, 0, alice, 1000)
		require.NoError(t, e.Deposit(0, bob, poolB, uint256.NewInt(1000), nil))

		// equal weights for [0,100): 2500 each
		require.NoError(t, e.SetPoolWeight(admin, 100, poolB, 300, true))

		// [100,200) splits 1:3
		assert.Equal(t, uint256.NewInt(2500+1250), pending(t, e, 200, 0, alice))
		assert.Equal(t, uint256.NewInt(2500+3750), pending(t, e, 200, poolB, bob))
	})

	t.Run("NonAdminRejected", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		addNativePool(t, e, 100)
		assert.ErrorIs(t, e.SetPoolWeight(alice, 0, 0, 200, true), ErrUnauthorized)
	})

	t.Run("TotalWeightOverflowRejected", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		addNativePool(t, e, 100)
		addTokenPool(t, e, testTokenA, 100)
		err := e.SetPoolWeight(admin, 0, 1, math.MaxUint64, true)
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})
}

func TestSetEmissionRate(t *testing.T) {
	e := newInitializedEngine(t, 50)
	addNativePool(t, e, 100)
	depositNative(t, e, 0, alice, 1000)

	// rate change settles first: the old rate covers [0,100), the new one
	// applies after
	require.NoError(t, e.SetEmissionRate(admin, 100, uint256.NewInt(10)))

	assert.Equal(t, uint256.NewInt(5000), pending(t, e, 100, 0, alice))
	assert.Equal(t, uint256.NewInt(6000), pending(t, e, 200, 0, alice))

	t.Run("NonAdminRejected", func(t *testing.T) {
		assert.ErrorIs(t, e.SetEmissionRate(alice, 200, uint256.NewInt(1)), ErrUnauthorized)
	})
}

func TestEmissionWindowUpdates(t *testing.T) {
	t.Run("ShorteningTheWindowStopsAccrual", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		addNativePool(t, e, 100)
		depositNative(t, e, 0, alice, 1000)

		require.NoError(t, e.SetWindowEnd(admin, 100, 100))
		assert.Equal(t, uint256.NewInt(5000), pending(t, e, 500, 0, alice))
	})

	t.Run("InversionRejected", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		assert.ErrorIs(t, e.SetWindowStart(admin, 0, 2_000_000), ErrInvalidRange)

		require.NoError(t, e.SetWindowStart(admin, 0, 500))
		assert.ErrorIs(t, e.SetWindowEnd(admin, 0, 499), ErrInvalidRange)
	})
}

func TestPauseToggles(t *testing.T) {
	e := newInitializedEngine(t, 50)
	addNativePool(t, e, 100)

	t.Run("RedundantTransitionsRejected", func(t *testing.T) {
		require.NoError(t, e.PauseDeposit(admin))
		assert.ErrorIs(t, e.PauseDeposit(admin), ErrAlreadyPaused)
		require.NoError(t, e.UnpauseDeposit(admin))
		assert.ErrorIs(t, e.UnpauseDeposit(admin), ErrNotPaused)
	})

	t.Run("SwitchesAreIndependent", func(t *testing.T) {
		require.NoError(t, e.PauseWithdraw(admin))
		defer func() { require.NoError(t, e.UnpauseWithdraw(admin)) }()

		// deposits and claims still run while withdrawals are paused
		require.NoError(t, e.DepositNative(0, alice, uint256.NewInt(100), nil))
		_, _, err := e.Claim(0, alice, 0, uint256.NewInt(1000), nil)
		require.NoError(t, err)

		assert.ErrorIs(t, e.RequestWithdrawal(0, alice, 0, uint256.NewInt(1)), ErrPaused)
	})

	t.Run("NonAdminRejected", func(t *testing.T) {
		assert.ErrorIs(t, e.PauseClaim(alice), ErrUnauthorized)
	})

	t.Run("OperationalAdminMayToggle", func(t *testing.T) {
		require.NoError(t, e.GrantRole(admin, bob, RoleOperationalAdmin))
		require.NoError(t, e.PauseClaim(bob))
		require.NoError(t, e.UnpauseClaim(bob))
	})
}

func TestRoleManagement(t *testing.T) {
	t.Run("GrantAndRevoke", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		require.NoError(t, e.GrantRole(admin, bob, RoleOperationalAdmin))
		assert.True(t, e.HasRole(bob, RoleOperationalAdmin))

		require.NoError(t, e.RevokeRole(admin, bob, RoleOperationalAdmin))
		assert.False(t, e.HasRole(bob, RoleOperationalAdmin))
	})

	t.Run("OnlySuperAdminManagesRoles", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		require.NoError(t, e.GrantRole(admin, bob, RoleOperationalAdmin))

		// operational admin is not enough
		assert.ErrorIs(t, e.GrantRole(bob, carol, RoleOperationalAdmin), ErrUnauthorized)
		assert.ErrorIs(t, e.RevokeRole(bob, admin, RoleSuperAdmin), ErrUnauthorized)
	})

	t.Run("UnknownRoleBitsRejected", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		assert.ErrorIs(t, e.GrantRole(admin, bob, Role(0x80)), ErrInvalidRole)
		assert.ErrorIs(t, e.GrantRole(admin, bob, 0), ErrInvalidRole)
		assert.ErrorIs(t, e.RevokeRole(admin, bob, Role(0x80)), ErrInvalidRole)
	})

	t.Run("LastSuperAdminIsProtected", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		assert.ErrorIs(t, e.RevokeRole(admin, admin, RoleSuperAdmin), ErrInvalidRole)

		// with a second super-admin in place the first may step down
		require.NoError(t, e.GrantRole(admin, bob, RoleSuperAdmin))
		require.NoError(t, e.RevokeRole(admin, admin, RoleSuperAdmin))
		assert.False(t, e.HasRole(admin, RoleSuperAdmin))
		assert.True(t, e.HasRole(bob, RoleSuperAdmin))
	})

	t.Run("UpgradeAuthorityGrantsNoAdminPower", func(t *testing.T) {
		e := newInitializedEngine(t, 50)
		addNativePool(t, e, 100)
		require.NoError(t, e.GrantRole(admin, bob, RoleUpgradeAuthority))

		assert.ErrorIs(t, e.PauseDeposit(bob), ErrUnauthorized)
		_, err := e.AddPool(bob, 0, testTokenA, 1, new(uint256.Int), 10, true)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}
