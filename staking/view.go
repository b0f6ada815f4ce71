package staking

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// StakingStateView is a complete, deep-copied snapshot of the engine's state.
// It is the unit of persistence (see the snapshot package) and the shape
// served to read-only consumers.
type StakingStateView struct {
	Initialized         bool           `json:"initialized"`
	RewardAsset         common.Address `json:"rewardAsset"`
	EmissionRatePerTick *uint256.Int   `json:"emissionRatePerTick"`
	WindowStart         uint64         `json:"windowStart"`
	WindowEnd           uint64         `json:"windowEnd"`
	TotalPoolWeight     uint64         `json:"totalPoolWeight"`
	Pools               []PoolView     `json:"pools"`
	Accounts            []AccountView  `json:"accounts"`
	Paused              PauseView      `json:"paused"`
	Roles               []RoleView     `json:"roles"`
}

type PoolView struct {
	Asset               common.Address `json:"asset"`
	Weight              uint64         `json:"weight"`
	LastSettledTick     uint64         `json:"lastSettledTick"`
	AccRewardPerUnit    *uint256.Int   `json:"accRewardPerUnit"`
	TotalLocked         *uint256.Int   `json:"totalLocked"`
	MinDeposit          *uint256.Int   `json:"minDeposit"`
	WithdrawalLockTicks uint64         `json:"withdrawalLockTicks"`
}

type AccountView struct {
	PoolIndex     int                     `json:"poolIndex"`
	Address       common.Address          `json:"address"`
	Staked        *uint256.Int            `json:"staked"`
	SettledDebt   *uint256.Int            `json:"settledDebt"`
	PendingReward *uint256.Int            `json:"pendingReward"`
	Queue         []WithdrawalRequestView `json:"queue,omitempty"`
}

type WithdrawalRequestView struct {
	Amount     *uint256.Int `json:"amount"`
	UnlockTick uint64       `json:"unlockTick"`
}

type PauseView struct {
	Deposit  bool `json:"deposit"`
	Withdraw bool `json:"withdraw"`
	Claim    bool `json:"claim"`
}

type RoleView struct {
	Address common.Address `json:"address"`
	Mask    Role           `json:"mask"`
}

// View returns a deep copy of the engine's entire state. Accounts and roles
// are emitted in a deterministic order so serialized views are stable.
func (e *StakingEngine) View() *StakingStateView {
	view := &StakingStateView{
		Initialized:     e.initialized,
		RewardAsset:     e.rewardAsset,
		WindowStart:     e.windowStart,
		WindowEnd:       e.windowEnd,
		TotalPoolWeight: e.totalPoolWeight,
		Paused: PauseView{
			Deposit:  e.pausedDeposit,
			Withdraw: e.pausedWithdraw,
			Claim:    e.pausedClaim,
		},
	}
	if e.emissionRatePerTick != nil {
		view.EmissionRatePerTick = new(uint256.Int).Set(e.emissionRatePerTick)
	} else {
		view.EmissionRatePerTick = new(uint256.Int)
	}

	view.Pools = make([]PoolView, len(e.pools))
	for i, pool := range e.pools {
		view.Pools[i] = PoolView{
			Asset:               pool.Asset,
			Weight:              pool.Weight,
			LastSettledTick:     pool.LastSettledTick,
			AccRewardPerUnit:    new(uint256.Int).Set(pool.AccRewardPerUnit),
			TotalLocked:         new(uint256.Int).Set(pool.TotalLocked),
			MinDeposit:          new(uint256.Int).Set(pool.MinDeposit),
			WithdrawalLockTicks: pool.WithdrawalLockTicks,
		}
	}

	view.Accounts = make([]AccountView, 0, len(e.accounts))
	for key, acct := range e.accounts {
		av := AccountView{
			PoolIndex:     key.pool,
			Address:       key.addr,
			Staked:        new(uint256.Int).Set(acct.Staked),
			SettledDebt:   new(uint256.Int).Set(acct.SettledDebt),
			PendingReward: new(uint256.Int).Set(acct.PendingReward),
		}
		if len(acct.Queue) > 0 {
			av.Queue = make([]WithdrawalRequestView, len(acct.Queue))
			for i, req := range acct.Queue {
				av.Queue[i] = WithdrawalRequestView{
					Amount:     new(uint256.Int).Set(req.Amount),
					UnlockTick: req.UnlockTick,
				}
			}
		}
		view.Accounts = append(view.Accounts, av)
	}
	sort.Slice(view.Accounts, func(i, j int) bool {
		a, b := view.Accounts[i], view.Accounts[j]
		if a.PoolIndex != b.PoolIndex {
			return a.PoolIndex < b.PoolIndex
		}
		return a.Address.Cmp(b.Address) < 0
	})

	view.Roles = make([]RoleView, 0, len(e.roles))
	for addr, mask := range e.roles {
		view.Roles = append(view.Roles, RoleView{Address: addr, Mask: mask})
	}
	sort.Slice(view.Roles, func(i, j int) bool {
		return view.Roles[i].Address.Cmp(view.Roles[j].Address) < 0
	})

	return view
}

// Clone returns a deep copy of the view.
func (v *StakingStateView) Clone() *StakingStateView {
	engine := NewStakingEngineFromView(v)
	return engine.View()
}

// NewStakingEngineFromView reconstructs an engine from a snapshot view. The
// view's data is deep-copied so the engine owns its memory.
func NewStakingEngineFromView(view *StakingStateView) *StakingEngine {
	e := NewStakingEngine()
	e.initialized = view.Initialized
	e.rewardAsset = view.RewardAsset
	e.windowStart = view.WindowStart
	e.windowEnd = view.WindowEnd
	e.totalPoolWeight = view.TotalPoolWeight
	e.pausedDeposit = view.Paused.Deposit
	e.pausedWithdraw = view.Paused.Withdraw
	e.pausedClaim = view.Paused.Claim
	if view.EmissionRatePerTick != nil {
		e.emissionRatePerTick = new(uint256.Int).Set(view.EmissionRatePerTick)
	} else {
		e.emissionRatePerTick = new(uint256.Int)
	}

	e.pools = make([]*Pool, len(view.Pools))
	for i, pv := range view.Pools {
		e.pools[i] = &Pool{
			Asset:               pv.Asset,
			Weight:              pv.Weight,
			LastSettledTick:     pv.LastSettledTick,
			AccRewardPerUnit:    setOrZero(pv.AccRewardPerUnit),
			TotalLocked:         setOrZero(pv.TotalLocked),
			MinDeposit:          setOrZero(pv.MinDeposit),
			WithdrawalLockTicks: pv.WithdrawalLockTicks,
		}
	}

	for _, av := range view.Accounts {
		acct := &UserAccount{
			Staked:        setOrZero(av.Staked),
			SettledDebt:   setOrZero(av.SettledDebt),
			PendingReward: setOrZero(av.PendingReward),
		}
		if len(av.Queue) > 0 {
			acct.Queue = make([]WithdrawalRequest, len(av.Queue))
			for i, req := range av.Queue {
				acct.Queue[i] = WithdrawalRequest{
					Amount:     setOrZero(req.Amount),
					UnlockTick: req.UnlockTick,
				}
			}
		}
		e.accounts[accountKey{pool: av.PoolIndex, addr: av.Address}] = acct
	}

	for _, rv := range view.Roles {
		if rv.Mask != 0 {
			e.roles[rv.Address] = rv.Mask
		}
	}
	return e
}

func setOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// PoolInfo returns a copy of one pool's parameters and accounting state.
func (e *StakingEngine) PoolInfo(poolIndex int) (PoolView, error) {
	pool, err := e.pool(poolIndex)
	if err != nil {
		return PoolView{}, err
	}
	return PoolView{
		Asset:               pool.Asset,
		Weight:              pool.Weight,
		LastSettledTick:     pool.LastSettledTick,
		AccRewardPerUnit:    new(uint256.Int).Set(pool.AccRewardPerUnit),
		TotalLocked:         new(uint256.Int).Set(pool.TotalLocked),
		MinDeposit:          new(uint256.Int).Set(pool.MinDeposit),
		WithdrawalLockTicks: pool.WithdrawalLockTicks,
	}, nil
}
