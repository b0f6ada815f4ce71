package staking

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/staking-engine-go/assets"
)

// StakingEngine is the non-thread-safe accounting core. It owns the pool
// registry, the user ledger, the role table and the pause switches, and
// performs every mutation under a read-settle-mutate-transfer discipline.
// Concurrent use must go through StakingSystem.
type StakingEngine struct {
	initialized bool

	rewardAsset         common.Address
	emissionRatePerTick *uint256.Int
	windowStart         uint64
	windowEnd           uint64

	totalPoolWeight uint64
	pools           []*Pool
	accounts        map[accountKey]*UserAccount
	roles           map[common.Address]Role

	pausedDeposit  bool
	pausedWithdraw bool
	pausedClaim    bool

	// entered guards against a collaborator callback recursively invoking a
	// state-mutating operation before the first returns.
	entered bool
}

// NewStakingEngine creates an empty, uninitialized engine.
func NewStakingEngine() *StakingEngine {
	return &StakingEngine{
		accounts: make(map[accountKey]*UserAccount),
		roles:    make(map[common.Address]Role),
	}
}

// Initialize fixes the reward asset, the emission window and the per-tick
// emission rate, and grants the caller the super-admin role. It can only run
// once.
func (e *StakingEngine) Initialize(caller, rewardAsset common.Address, windowStart, windowEnd uint64, emissionRatePerTick *uint256.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if e.initialized {
		return ErrAlreadyInitialized
	}
	if rewardAsset == assets.Native {
		return fmt.Errorf("%w: reward asset cannot be the native sentinel", ErrInvalidAsset)
	}
	if windowStart > windowEnd {
		return fmt.Errorf("%w: windowStart %d > windowEnd %d", ErrInvalidRange, windowStart, windowEnd)
	}

	e.initialized = true
	e.rewardAsset = rewardAsset
	e.windowStart = windowStart
	e.windowEnd = windowEnd
	e.emissionRatePerTick = new(uint256.Int).Set(emissionRatePerTick)
	e.roles[caller] = RoleSuperAdmin
	return nil
}

// RewardAsset returns the reward asset identifier fixed at initialization.
func (e *StakingEngine) RewardAsset() common.Address {
	return e.rewardAsset
}

// PoolCount returns the number of registered pools.
func (e *StakingEngine) PoolCount() int {
	return len(e.pools)
}

// PoolAsset returns the locked-asset identifier of a pool.
func (e *StakingEngine) PoolAsset(poolIndex int) (common.Address, error) {
	pool, err := e.pool(poolIndex)
	if err != nil {
		return common.Address{}, err
	}
	return pool.Asset, nil
}

// HasRole reports whether the account's mask contains all bits of role.
func (e *StakingEngine) HasRole(addr common.Address, role Role) bool {
	return e.roles[addr]&role == role
}

// --- internal helpers ---

func (e *StakingEngine) enter() error {
	if e.entered {
		return ErrReentrantCall
	}
	e.entered = true
	return nil
}

func (e *StakingEngine) exit() {
	e.entered = false
}

func (e *StakingEngine) requireInitialized() error {
	if !e.initialized {
		return ErrNotInitialized
	}
	return nil
}

// requireOperational admits operational admins and super-admins.
func (e *StakingEngine) requireOperational(caller common.Address) error {
	if e.roles[caller]&(RoleSuperAdmin|RoleOperationalAdmin) == 0 {
		return fmt.Errorf("%w: %s is not an admin", ErrUnauthorized, caller)
	}
	return nil
}

func (e *StakingEngine) requireSuperAdmin(caller common.Address) error {
	if !e.HasRole(caller, RoleSuperAdmin) {
		return fmt.Errorf("%w: %s is not a super-admin", ErrUnauthorized, caller)
	}
	return nil
}

func (e *StakingEngine) pool(poolIndex int) (*Pool, error) {
	if poolIndex < 0 || poolIndex >= len(e.pools) {
		return nil, fmt.Errorf("%w: index %d out of range (%d pools)", ErrInvalidPool, poolIndex, len(e.pools))
	}
	return e.pools[poolIndex], nil
}

func (e *StakingEngine) account(poolIndex int, addr common.Address) (*UserAccount, bool) {
	acct, ok := e.accounts[accountKey{pool: poolIndex, addr: addr}]
	return acct, ok
}

func (e *StakingEngine) accountOrCreate(poolIndex int, addr common.Address) *UserAccount {
	key := accountKey{pool: poolIndex, addr: addr}
	acct, ok := e.accounts[key]
	if !ok {
		acct = newUserAccount()
		e.accounts[key] = acct
	}
	return acct
}

// opBackup captures the pre-mutation image of the single pool and account an
// operation touches. Settlement is not part of the image: backups are taken
// after settlement, so restoring rolls back ledger effects only.
type opBackup struct {
	poolIndex  int
	pool       *Pool
	key        accountKey
	account    *UserAccount
	hadAccount bool
}

func (e *StakingEngine) backupFor(poolIndex int, addr common.Address) *opBackup {
	key := accountKey{pool: poolIndex, addr: addr}
	bk := &opBackup{
		poolIndex: poolIndex,
		pool:      e.pools[poolIndex].clone(),
		key:       key,
	}
	if acct, ok := e.accounts[key]; ok {
		bk.account = acct.clone()
		bk.hadAccount = true
	}
	return bk
}

func (e *StakingEngine) restore(bk *opBackup) {
	e.pools[bk.poolIndex] = bk.pool
	if bk.hadAccount {
		e.accounts[bk.key] = bk.account
	} else {
		delete(e.accounts, bk.key)
	}
}
