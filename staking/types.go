// Package staking implements a multi-pool staking and reward accounting
// engine. Users lock value (native coin or fungible tokens) into weighted
// pools and accrue a continuously-emitting reward token proportional to their
// share of each pool's locked value and the ticks elapsed.
//
// StakingEngine is the non-thread-safe bookkeeping core; StakingSystem wraps
// it with whole-operation locking, metrics and logging, and is the surface a
// host should use.
package staking

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RewardScale is the fixed-point scale of the per-pool reward accumulator.
// AccRewardPerUnit is "reward per staked unit, times RewardScale".
var RewardScale = uint256.NewInt(1_000_000_000_000_000_000)

// Role is a bit-flag in a per-account role mask.
type Role uint8

const (
	// RoleSuperAdmin may grant and revoke roles, in addition to everything
	// an operational admin can do.
	RoleSuperAdmin Role = 1 << iota
	// RoleOperationalAdmin may perform pool/weight/rate/pause operations but
	// cannot manage roles or authorize migrated restores.
	RoleOperationalAdmin
	// RoleUpgradeAuthority gates restoring state through a schema migration.
	// It carries no ledger or role-management powers.
	RoleUpgradeAuthority
)

// knownRoles is the union of all defined role bits.
const knownRoles = RoleSuperAdmin | RoleOperationalAdmin | RoleUpgradeAuthority

// Pool is one bucket of a single asset kind. Pool index 0 is always the
// native-coin pool (assets.Native sentinel); no other pool may use that
// sentinel. Pools are append-only: the index is the pool's permanent identity.
type Pool struct {
	Asset               common.Address
	Weight              uint64
	LastSettledTick     uint64
	AccRewardPerUnit    *uint256.Int // scaled by RewardScale, monotonically non-decreasing
	TotalLocked         *uint256.Int
	MinDeposit          *uint256.Int
	WithdrawalLockTicks uint64
}

func (p *Pool) clone() *Pool {
	cp := *p
	cp.AccRewardPerUnit = new(uint256.Int).Set(p.AccRewardPerUnit)
	cp.TotalLocked = new(uint256.Int).Set(p.TotalLocked)
	cp.MinDeposit = new(uint256.Int).Set(p.MinDeposit)
	return &cp
}

// WithdrawalRequest reserves previously staked value until its unlock tick.
type WithdrawalRequest struct {
	Amount     *uint256.Int
	UnlockTick uint64
}

// UserAccount is the per (pool, account) ledger record. Entries are created
// lazily on first deposit and never deleted, so settled/pending history stays
// queryable after the stake returns to zero.
type UserAccount struct {
	Staked        *uint256.Int
	SettledDebt   *uint256.Int // Staked * AccRewardPerUnit / RewardScale at last settlement
	PendingReward *uint256.Int
	Queue         []WithdrawalRequest
}

func newUserAccount() *UserAccount {
	return &UserAccount{
		Staked:        new(uint256.Int),
		SettledDebt:   new(uint256.Int),
		PendingReward: new(uint256.Int),
	}
}

func (a *UserAccount) clone() *UserAccount {
	cp := &UserAccount{
		Staked:        new(uint256.Int).Set(a.Staked),
		SettledDebt:   new(uint256.Int).Set(a.SettledDebt),
		PendingReward: new(uint256.Int).Set(a.PendingReward),
	}
	if a.Queue != nil {
		cp.Queue = make([]WithdrawalRequest, len(a.Queue))
		for i, req := range a.Queue {
			cp.Queue[i] = WithdrawalRequest{
				Amount:     new(uint256.Int).Set(req.Amount),
				UnlockTick: req.UnlockTick,
			}
		}
	}
	return cp
}

// accountKey identifies a ledger record.
type accountKey struct {
	pool int
	addr common.Address
}

// TransferFunc performs an external asset movement. It runs strictly after
// the ledger mutation it belongs to; a non-nil error rolls the whole
// operation back.
type TransferFunc func() error

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
