package staking

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/defistate/staking-engine-go/staking/safemath"
)

// RewardMultiplier returns the total emission for the tick interval
// [from, to), clamped to the active emission window. It is the only function
// that reasons about the window; everything else consumes its output.
//
// An interval entirely outside the window collapses to an empty one and
// yields zero; ErrInvalidRange is reserved for a genuinely inverted input.
func (e *StakingEngine) RewardMultiplier(from, to uint64) (*uint256.Int, error) {
	if from > to {
		return nil, fmt.Errorf("%w: from %d > to %d", ErrInvalidRange, from, to)
	}
	from = clampTick(from, e.windowStart, e.windowEnd)
	to = clampTick(to, e.windowStart, e.windowEnd)
	if from >= to {
		return new(uint256.Int), nil
	}
	return safemath.Mul(uint256.NewInt(to-from), e.emissionRatePerTick)
}

func clampTick(tick, lo, hi uint64) uint64 {
	if tick < lo {
		return lo
	}
	if tick > hi {
		return hi
	}
	return tick
}

// SettlePool lazily brings a pool's accumulator up to the given tick.
// Idempotent: a second call at the same tick is a no-op. Ticks with no
// stakers emit no reward but still advance LastSettledTick so they are never
// replayed.
func (e *StakingEngine) SettlePool(tick uint64, poolIndex int) error {
	pool, err := e.pool(poolIndex)
	if err != nil {
		return err
	}
	if tick <= pool.LastSettledTick {
		return nil
	}

	multiplier, err := e.RewardMultiplier(pool.LastSettledTick, tick)
	if err != nil {
		return err
	}
	if !pool.TotalLocked.IsZero() && e.totalPoolWeight > 0 && !multiplier.IsZero() {
		delta, err := e.perUnitDelta(multiplier, pool)
		if err != nil {
			return err
		}
		acc, err := safemath.Add(pool.AccRewardPerUnit, delta)
		if err != nil {
			return err
		}
		pool.AccRewardPerUnit = acc
	}
	pool.LastSettledTick = tick
	return nil
}

// SettleAll settles every pool to the given tick. Used before parameter
// changes that would otherwise retroactively alter already-accrued rewards.
func (e *StakingEngine) SettleAll(tick uint64) error {
	for i := range e.pools {
		if err := e.SettlePool(tick, i); err != nil {
			return err
		}
	}
	return nil
}

// perUnitDelta computes the accumulator increment for a pool given the
// interval's total emission: multiplier * weight / totalWeight, scaled per
// locked unit. All three intermediate operations are individually checked.
func (e *StakingEngine) perUnitDelta(multiplier *uint256.Int, pool *Pool) (*uint256.Int, error) {
	poolShare, err := safemath.MulDiv(multiplier, uint256.NewInt(pool.Weight), uint256.NewInt(e.totalPoolWeight))
	if err != nil {
		return nil, err
	}
	return safemath.MulDiv(poolShare, RewardScale, pool.TotalLocked)
}

// accruedReward is the reward newly earned by an account since its last
// settlement: staked * acc / SCALE - settledDebt.
func accruedReward(acct *UserAccount, pool *Pool) (*uint256.Int, error) {
	earned, err := safemath.MulDiv(acct.Staked, pool.AccRewardPerUnit, RewardScale)
	if err != nil {
		return nil, err
	}
	return safemath.Sub(earned, acct.SettledDebt)
}

// settleDebt recomputes the account's settled debt against the pool's current
// accumulator. Must run after every operation that touches the account.
func settleDebt(acct *UserAccount, pool *Pool) error {
	debt, err := safemath.MulDiv(acct.Staked, pool.AccRewardPerUnit, RewardScale)
	if err != nil {
		return err
	}
	acct.SettledDebt = debt
	return nil
}

// projectedAccumulator returns the accumulator value the pool would have if
// settled at the given tick, without mutating anything. Read path only.
func (e *StakingEngine) projectedAccumulator(tick uint64, pool *Pool) (*uint256.Int, error) {
	acc := new(uint256.Int).Set(pool.AccRewardPerUnit)
	if tick <= pool.LastSettledTick || pool.TotalLocked.IsZero() || e.totalPoolWeight == 0 {
		return acc, nil
	}
	multiplier, err := e.RewardMultiplier(pool.LastSettledTick, tick)
	if err != nil {
		return nil, err
	}
	if multiplier.IsZero() {
		return acc, nil
	}
	delta, err := e.perUnitDelta(multiplier, pool)
	if err != nil {
		return nil, err
	}
	return safemath.Add(acc, delta)
}
