package staking

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/staking-engine-go/assets"
	"github.com/defistate/staking-engine-go/bitset"
	"github.com/defistate/staking-engine-go/staking/safemath"
)

// NativePoolIndex is the permanent index of the native-coin pool.
const NativePoolIndex = 0

// Deposit locks amount of a pool's fungible asset for the caller. The
// transferIn callback pulls the asset into custody; it runs after the ledger
// mutation and a failure rolls the whole operation back.
func (e *StakingEngine) Deposit(tick uint64, caller common.Address, poolIndex int, amount *uint256.Int, transferIn TransferFunc) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	pool, err := e.depositChecks(poolIndex, amount)
	if err != nil {
		return err
	}
	if pool.Asset == assets.Native {
		return fmt.Errorf("%w: pool %d holds native value, use DepositNative", ErrInvalidPool, poolIndex)
	}
	return e.depositLocked(tick, caller, poolIndex, amount, transferIn)
}

// DepositNative locks native value attached to the call. The collect callback
// accepts the attached value into custody.
func (e *StakingEngine) DepositNative(tick uint64, caller common.Address, value *uint256.Int, collect TransferFunc) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	pool, err := e.depositChecks(NativePoolIndex, value)
	if err != nil {
		return err
	}
	if pool.Asset != assets.Native {
		return fmt.Errorf("%w: pool %d is not the native pool", ErrInvalidPool, NativePoolIndex)
	}
	return e.depositLocked(tick, caller, NativePoolIndex, value, collect)
}

func (e *StakingEngine) depositChecks(poolIndex int, amount *uint256.Int) (*Pool, error) {
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	if e.pausedDeposit {
		return nil, fmt.Errorf("%w: deposit", ErrPaused)
	}
	pool, err := e.pool(poolIndex)
	if err != nil {
		return nil, err
	}
	if amount.Lt(pool.MinDeposit) {
		return nil, fmt.Errorf("%w: %s < pool minimum %s", ErrBelowMinimum, amount, pool.MinDeposit)
	}
	return pool, nil
}

// depositLocked performs the settled deposit bookkeeping and the trailing
// external transfer. Callers have already validated the pool and amount.
func (e *StakingEngine) depositLocked(tick uint64, caller common.Address, poolIndex int, amount *uint256.Int, transferIn TransferFunc) error {
	if err := e.SettlePool(tick, poolIndex); err != nil {
		return err
	}
	bk := e.backupFor(poolIndex, caller)
	pool := e.pools[poolIndex]
	acct := e.accountOrCreate(poolIndex, caller)

	err := func() error {
		if err := e.realizePending(acct, pool); err != nil {
			return err
		}
		staked, err := safemath.Add(acct.Staked, amount)
		if err != nil {
			return err
		}
		totalLocked, err := safemath.Add(pool.TotalLocked, amount)
		if err != nil {
			return err
		}
		acct.Staked = staked
		pool.TotalLocked = totalLocked
		return settleDebt(acct, pool)
	}()
	if err != nil {
		e.restore(bk)
		return err
	}

	if transferIn != nil {
		if err := transferIn(); err != nil {
			e.restore(bk)
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	return nil
}

// RequestWithdrawal moves amount out of the caller's stake into the
// withdrawal queue, unlocking after the pool's current lock duration. No
// asset moves yet.
func (e *StakingEngine) RequestWithdrawal(tick uint64, caller common.Address, poolIndex int, amount *uint256.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.requireInitialized(); err != nil {
		return err
	}
	if e.pausedWithdraw {
		return fmt.Errorf("%w: withdraw", ErrPaused)
	}
	if _, err := e.pool(poolIndex); err != nil {
		return err
	}
	if err := e.SettlePool(tick, poolIndex); err != nil {
		return err
	}

	bk := e.backupFor(poolIndex, caller)
	pool := e.pools[poolIndex]
	acct := e.accountOrCreate(poolIndex, caller)

	err := func() error {
		if acct.Staked.Lt(amount) {
			return fmt.Errorf("%w: requested %s, staked %s", ErrInsufficientStake, amount, acct.Staked)
		}
		unlockTick := tick + pool.WithdrawalLockTicks
		if unlockTick < tick {
			return fmt.Errorf("%w: unlock tick wraps", ErrArithmeticOverflow)
		}
		if err := e.realizePending(acct, pool); err != nil {
			return err
		}
		staked, err := safemath.Sub(acct.Staked, amount)
		if err != nil {
			return err
		}
		totalLocked, err := safemath.Sub(pool.TotalLocked, amount)
		if err != nil {
			return err
		}
		acct.Staked = staked
		pool.TotalLocked = totalLocked
		acct.Queue = append(acct.Queue, WithdrawalRequest{
			Amount:     new(uint256.Int).Set(amount),
			UnlockTick: unlockTick,
		})
		return settleDebt(acct, pool)
	}()
	if err != nil {
		e.restore(bk)
		return err
	}
	return nil
}

// FinalizeWithdrawal releases every queued entry whose unlock tick has been
// reached and removes exactly those entries. The whole queue is scanned:
// lock duration is admin-mutable, so unlock ticks are not guaranteed
// non-decreasing in insertion order. Nothing unlocked is a safe no-op.
// The release callback receives the accumulated amount.
func (e *StakingEngine) FinalizeWithdrawal(tick uint64, caller common.Address, poolIndex int, release func(amount *uint256.Int) error) (*uint256.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	if e.pausedWithdraw {
		return nil, fmt.Errorf("%w: withdraw", ErrPaused)
	}
	if _, err := e.pool(poolIndex); err != nil {
		return nil, err
	}

	acct, ok := e.account(poolIndex, caller)
	if !ok || len(acct.Queue) == 0 {
		return new(uint256.Int), nil
	}

	unlocked := bitset.NewBitSet(uint64(len(acct.Queue)))
	released := new(uint256.Int)
	for i, req := range acct.Queue {
		if req.UnlockTick <= tick {
			unlocked.Set(uint64(i))
			sum, err := safemath.Add(released, req.Amount)
			if err != nil {
				return nil, err
			}
			released = sum
		}
	}
	if !unlocked.Any() {
		return new(uint256.Int), nil
	}

	bk := e.backupFor(poolIndex, caller)

	remaining := make([]WithdrawalRequest, 0, len(acct.Queue)-unlocked.Count())
	for i, req := range acct.Queue {
		if !unlocked.IsSet(uint64(i)) {
			remaining = append(remaining, req)
		}
	}
	acct.Queue = remaining

	if release != nil {
		if err := release(released); err != nil {
			e.restore(bk)
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	return released, nil
}

// Claim settles the pool and pays out the caller's accumulated reward,
// clamped to the reward balance available in custody. The shortfall, if any,
// is not re-queued; an external replenishment process covers it. Returns the
// paid amount and the full computed total, which is reported even when zero.
func (e *StakingEngine) Claim(tick uint64, caller common.Address, poolIndex int, available *uint256.Int, payOut func(amount *uint256.Int) error) (paid, total *uint256.Int, err error) {
	if err := e.enter(); err != nil {
		return nil, nil, err
	}
	defer e.exit()

	if err := e.requireInitialized(); err != nil {
		return nil, nil, err
	}
	if e.pausedClaim {
		return nil, nil, fmt.Errorf("%w: claim", ErrPaused)
	}
	if _, err := e.pool(poolIndex); err != nil {
		return nil, nil, err
	}
	if err := e.SettlePool(tick, poolIndex); err != nil {
		return nil, nil, err
	}

	acct, ok := e.account(poolIndex, caller)
	if !ok {
		// no stake and no history: zero total, no transfer, no lazily
		// created ledger entry
		return new(uint256.Int), new(uint256.Int), nil
	}

	bk := e.backupFor(poolIndex, caller)
	pool := e.pools[poolIndex]

	accrued, err := accruedReward(acct, pool)
	if err != nil {
		return nil, nil, err
	}
	total, err = safemath.Add(accrued, acct.PendingReward)
	if err != nil {
		return nil, nil, err
	}
	if total.IsZero() {
		return new(uint256.Int), total, nil
	}

	acct.PendingReward = new(uint256.Int)
	if err := settleDebt(acct, pool); err != nil {
		e.restore(bk)
		return nil, nil, err
	}

	paid = new(uint256.Int).Set(total)
	if paid.Gt(available) {
		paid.Set(available)
	}
	if !paid.IsZero() && payOut != nil {
		if err := payOut(paid); err != nil {
			e.restore(bk)
			return nil, nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	return paid, total, nil
}

// realizePending folds the account's newly accrued reward into its pending
// balance. Callers recompute the settled debt afterwards.
func (e *StakingEngine) realizePending(acct *UserAccount, pool *Pool) error {
	accrued, err := accruedReward(acct, pool)
	if err != nil {
		return err
	}
	pending, err := safemath.Add(acct.PendingReward, accrued)
	if err != nil {
		return err
	}
	acct.PendingReward = pending
	return nil
}

// --- read-only queries ---

// PendingReward returns the reward the account could claim at the given
// tick, projecting the pool's accumulator without mutating it.
func (e *StakingEngine) PendingReward(tick uint64, poolIndex int, addr common.Address) (*uint256.Int, error) {
	pool, err := e.pool(poolIndex)
	if err != nil {
		return nil, err
	}
	acct, ok := e.account(poolIndex, addr)
	if !ok {
		return new(uint256.Int), nil
	}
	acc, err := e.projectedAccumulator(tick, pool)
	if err != nil {
		return nil, err
	}
	earned, err := safemath.MulDiv(acct.Staked, acc, RewardScale)
	if err != nil {
		return nil, err
	}
	accrued, err := safemath.Sub(earned, acct.SettledDebt)
	if err != nil {
		return nil, err
	}
	return safemath.Add(accrued, acct.PendingReward)
}

// StakedAmount returns the account's current stake in a pool.
func (e *StakingEngine) StakedAmount(poolIndex int, addr common.Address) (*uint256.Int, error) {
	if _, err := e.pool(poolIndex); err != nil {
		return nil, err
	}
	acct, ok := e.account(poolIndex, addr)
	if !ok {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(acct.Staked), nil
}

// WithdrawalStatus returns the total queued amount and the portion already
// unlocked at the given tick.
func (e *StakingEngine) WithdrawalStatus(tick uint64, poolIndex int, addr common.Address) (totalRequested, currentlyUnlocked *uint256.Int, err error) {
	if _, err := e.pool(poolIndex); err != nil {
		return nil, nil, err
	}
	totalRequested = new(uint256.Int)
	currentlyUnlocked = new(uint256.Int)
	acct, ok := e.account(poolIndex, addr)
	if !ok {
		return totalRequested, currentlyUnlocked, nil
	}
	for _, req := range acct.Queue {
		if totalRequested, err = safemath.Add(totalRequested, req.Amount); err != nil {
			return nil, nil, err
		}
		if req.UnlockTick <= tick {
			if currentlyUnlocked, err = safemath.Add(currentlyUnlocked, req.Amount); err != nil {
				return nil, nil, err
			}
		}
	}
	return totalRequested, currentlyUnlocked, nil
}
