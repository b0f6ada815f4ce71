package staking

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/staking-engine-go/assets"
)

// AddPool appends a new pool to the registry. The very first pool must be the
// native-coin pool; every subsequent pool must lock a fungible asset. When
// settleAllFirst is set, every existing pool is settled before the total
// weight changes so historical accrual is untouched. Returns the new pool's
// permanent index.
func (e *StakingEngine) AddPool(caller common.Address, tick uint64, asset common.Address, weight uint64, minDeposit *uint256.Int, withdrawalLockTicks uint64, settleAllFirst bool) (int, error) {
	if err := e.enter(); err != nil {
		return 0, err
	}
	defer e.exit()

	if err := e.requireInitialized(); err != nil {
		return 0, err
	}
	if err := e.requireOperational(caller); err != nil {
		return 0, err
	}
	if len(e.pools) == 0 {
		if asset != assets.Native {
			return 0, fmt.Errorf("%w: pool 0 must lock the native coin", ErrInvalidPool)
		}
	} else if asset == assets.Native {
		return 0, fmt.Errorf("%w: only pool 0 may lock the native coin", ErrInvalidPool)
	}
	newTotal := e.totalPoolWeight + weight
	if newTotal < e.totalPoolWeight {
		return 0, fmt.Errorf("%w: total pool weight wraps", ErrArithmeticOverflow)
	}

	if settleAllFirst {
		if err := e.SettleAll(tick); err != nil {
			return 0, err
		}
	}

	e.pools = append(e.pools, &Pool{
		Asset:               asset,
		Weight:              weight,
		LastSettledTick:     tick,
		AccRewardPerUnit:    new(uint256.Int),
		TotalLocked:         new(uint256.Int),
		MinDeposit:          new(uint256.Int).Set(minDeposit),
		WithdrawalLockTicks: withdrawalLockTicks,
	})
	e.totalPoolWeight = newTotal
	return len(e.pools) - 1, nil
}

// SetPoolWeight changes a pool's emission weight, adjusting the total weight
// by the delta.
func (e *StakingEngine) SetPoolWeight(caller common.Address, tick uint64, poolIndex int, weight uint64, settleAllFirst bool) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.requireInitialized(); err != nil {
		return err
	}
	if err := e.requireOperational(caller); err != nil {
		return err
	}
	pool, err := e.pool(poolIndex)
	if err != nil {
		return err
	}
	remainder := e.totalPoolWeight - pool.Weight
	if remainder > math.MaxUint64-weight {
		return fmt.Errorf("%w: total pool weight wraps", ErrArithmeticOverflow)
	}

	if settleAllFirst {
		if err := e.SettleAll(tick); err != nil {
			return err
		}
	}

	pool.Weight = weight
	e.totalPoolWeight = remainder + weight
	return nil
}

// UpdatePoolParams changes a pool's deposit floor and withdrawal lock
// duration. Existing queue entries keep the unlock tick computed at request
// time.
func (e *StakingEngine) UpdatePoolParams(caller common.Address, poolIndex int, minDeposit *uint256.Int, withdrawalLockTicks uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.requireInitialized(); err != nil {
		return err
	}
	if err := e.requireOperational(caller); err != nil {
		return err
	}
	pool, err := e.pool(poolIndex)
	if err != nil {
		return err
	}
	pool.MinDeposit = new(uint256.Int).Set(minDeposit)
	pool.WithdrawalLockTicks = withdrawalLockTicks
	return nil
}

// SetEmissionRate changes the per-tick emission rate. All pools are settled
// first, so the new rate only applies to ticks after the change.
func (e *StakingEngine) SetEmissionRate(caller common.Address, tick uint64, rate *uint256.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.requireInitialized(); err != nil {
		return err
	}
	if err := e.requireOperational(caller); err != nil {
		return err
	}
	if err := e.SettleAll(tick); err != nil {
		return err
	}
	e.emissionRatePerTick = new(uint256.Int).Set(rate)
	return nil
}

// SetWindowStart moves the emission window's start. Rejected if it would
// invert the window.
func (e *StakingEngine) SetWindowStart(caller common.Address, tick uint64, start uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.requireInitialized(); err != nil {
		return err
	}
	if err := e.requireOperational(caller); err != nil {
		return err
	}
	if start > e.windowEnd {
		return fmt.Errorf("%w: start %d > end %d", ErrInvalidRange, start, e.windowEnd)
	}
	if err := e.SettleAll(tick); err != nil {
		return err
	}
	e.windowStart = start
	return nil
}

// SetWindowEnd moves the emission window's end. Rejected if it would invert
// the window.
func (e *StakingEngine) SetWindowEnd(caller common.Address, tick uint64, end uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.requireInitialized(); err != nil {
		return err
	}
	if err := e.requireOperational(caller); err != nil {
		return err
	}
	if end < e.windowStart {
		return fmt.Errorf("%w: end %d < start %d", ErrInvalidRange, end, e.windowStart)
	}
	if err := e.SettleAll(tick); err != nil {
		return err
	}
	e.windowEnd = end
	return nil
}

// --- pause switches ---

// Pause and unpause toggles fail when already in the target state so a
// misordered admin script surfaces instead of silently no-opping.

func (e *StakingEngine) PauseDeposit(caller common.Address) error {
	return e.setPause(caller, &e.pausedDeposit, true)
}

func (e *StakingEngine) UnpauseDeposit(caller common.Address) error {
	return e.setPause(caller, &e.pausedDeposit, false)
}

func (e *StakingEngine) PauseWithdraw(caller common.Address) error {
	return e.setPause(caller, &e.pausedWithdraw, true)
}

func (e *StakingEngine) UnpauseWithdraw(caller common.Address) error {
	return e.setPause(caller, &e.pausedWithdraw, false)
}

func (e *StakingEngine) PauseClaim(caller common.Address) error {
	return e.setPause(caller, &e.pausedClaim, true)
}

func (e *StakingEngine) UnpauseClaim(caller common.Address) error {
	return e.setPause(caller, &e.pausedClaim, false)
}

func (e *StakingEngine) setPause(caller common.Address, flag *bool, target bool) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.requireInitialized(); err != nil {
		return err
	}
	if err := e.requireOperational(caller); err != nil {
		return err
	}
	if *flag == target {
		if target {
			return ErrAlreadyPaused
		}
		return ErrNotPaused
	}
	*flag = target
	return nil
}

// --- role management ---

// GrantRole adds role bits to the target's mask. Super-admin only.
func (e *StakingEngine) GrantRole(caller, target common.Address, role Role) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.requireInitialized(); err != nil {
		return err
	}
	if err := e.requireSuperAdmin(caller); err != nil {
		return err
	}
	if role == 0 || role&^knownRoles != 0 {
		return fmt.Errorf("%w: mask %#x", ErrInvalidRole, uint8(role))
	}
	e.roles[target] |= role
	return nil
}

// RevokeRole removes role bits from the target's mask. Super-admin only.
// Revoking the last super-admin is rejected: it would permanently disable
// role management.
func (e *StakingEngine) RevokeRole(caller, target common.Address, role Role) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.requireInitialized(); err != nil {
		return err
	}
	if err := e.requireSuperAdmin(caller); err != nil {
		return err
	}
	if role == 0 || role&^knownRoles != 0 {
		return fmt.Errorf("%w: mask %#x", ErrInvalidRole, uint8(role))
	}
	if role&RoleSuperAdmin != 0 && e.HasRole(target, RoleSuperAdmin) && e.superAdminCount() == 1 {
		return fmt.Errorf("%w: cannot revoke the last super-admin", ErrInvalidRole)
	}
	mask := e.roles[target] &^ role
	if mask == 0 {
		delete(e.roles, target)
	} else {
		e.roles[target] = mask
	}
	return nil
}

func (e *StakingEngine) superAdminCount() int {
	count := 0
	for _, mask := range e.roles {
		if mask&RoleSuperAdmin != 0 {
			count++
		}
	}
	return count
}
