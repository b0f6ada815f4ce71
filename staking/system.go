package staking

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/staking-engine-go/assets"
	"github.com/defistate/staking-engine-go/ticksource"
)

// Config holds the collaborators a StakingSystem needs.
type Config struct {
	// Custodian is the address holding locked assets and the reward balance.
	Custodian common.Address
	// Ticks supplies the host's monotonically increasing tick counter.
	Ticks ticksource.Source
	// Assets resolves asset identifiers to their transfer interfaces.
	Assets assets.Provider
	// Native moves native value in and out of custody.
	Native assets.NativeTransferor
	Logger Logger
	// Registry receives the engine's metrics.
	Registry prometheus.Registerer
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Ticks == nil {
		return errors.New("config: Ticks is required")
	}
	if c.Assets == nil {
		return errors.New("config: Assets is required")
	}
	if c.Native == nil {
		return errors.New("config: Native is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// StakingSystem provides the concurrency-safe operation surface over the
// accounting core. A RWMutex scopes every mutating operation end to end
// (ledger mutation and external transfer included), giving the serialized
// operation log the engine's accounting assumes; an atomic.Pointer caches the
// latest state view for lock-free snapshot reads.
type StakingSystem struct {
	custodian common.Address
	ticks     ticksource.Source
	tokens    assets.Provider
	native    assets.NativeTransferor
	logger    Logger
	metrics   *Metrics

	mu         sync.RWMutex
	engine     *StakingEngine
	cachedView atomic.Pointer[StakingStateView]
}

// NewStakingSystem creates a system around a fresh, uninitialized engine.
func NewStakingSystem(cfg Config) (*StakingSystem, error) {
	return newSystem(cfg, NewStakingEngine())
}

// NewStakingSystemFromView creates a system from a snapshot view, immediately
// initializing the read-optimized cache from the restored state.
func NewStakingSystemFromView(cfg Config, view *StakingStateView) (*StakingSystem, error) {
	return newSystem(cfg, NewStakingEngineFromView(view))
}

func newSystem(cfg Config, engine *StakingEngine) (*StakingSystem, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &StakingSystem{
		custodian: cfg.Custodian,
		ticks:     cfg.Ticks,
		tokens:    cfg.Assets,
		native:    cfg.Native,
		logger:    cfg.Logger,
		metrics:   NewMetrics(cfg.Registry),
		engine:    engine,
	}
	s.cachedView.Store(s.engine.View())
	return s, nil
}

// track starts instrumentation for one operation; the returned func records
// duration, result counters and error logs.
func (s *StakingSystem) track(op string) func(err error) {
	timer := prometheus.NewTimer(s.metrics.operationDuration.WithLabelValues(op))
	return func(err error) {
		timer.ObserveDuration()
		s.metrics.observeOp(op, err)
		if err != nil {
			s.logger.Error("operation failed", "op", op, "error", err)
		}
	}
}

// updateCachedView stores a fresh view. Must be called with s.mu write-held.
func (s *StakingSystem) updateCachedView() {
	s.cachedView.Store(s.engine.View())
}

// --- lifecycle ---

// Initialize fixes the reward asset, emission window and rate, granting the
// caller super-admin.
func (s *StakingSystem) Initialize(caller, rewardAsset common.Address, windowStart, windowEnd uint64, emissionRatePerTick *uint256.Int) error {
	done := s.track("initialize")
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.engine.Initialize(caller, rewardAsset, windowStart, windowEnd, emissionRatePerTick)
	s.updateCachedView()
	done(err)
	return err
}

// RestoreFromView replaces the engine state with a snapshot view. When the
// view went through a schema migration, the caller must hold the
// upgrade-authority role in the restored state.
func (s *StakingSystem) RestoreFromView(caller common.Address, view *StakingStateView, migrated bool) error {
	done := s.track("restore")
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := NewStakingEngineFromView(view)
	if migrated && !candidate.HasRole(caller, RoleUpgradeAuthority) {
		err := ErrUnauthorized
		done(err)
		return err
	}
	s.engine = candidate
	s.updateCachedView()
	done(nil)
	return nil
}

// --- administration ---

func (s *StakingSystem) AddPool(caller common.Address, asset common.Address, weight uint64, minDeposit *uint256.Int, withdrawalLockTicks uint64, settleAllFirst bool) (int, error) {
	done := s.track("add_pool")
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.engine.AddPool(caller, s.ticks.Latest(), asset, weight, minDeposit, withdrawalLockTicks, settleAllFirst)
	s.updateCachedView()
	done(err)
	return index, err
}

func (s *StakingSystem) SetPoolWeight(caller common.Address, poolIndex int, weight uint64, settleAllFirst bool) error {
	done := s.track("set_pool_weight")
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.engine.SetPoolWeight(caller, s.ticks.Latest(), poolIndex, weight, settleAllFirst)
	s.updateCachedView()
	done(err)
	return err
}

func (s *StakingSystem) UpdatePoolParams(caller common.Address, poolIndex int, minDeposit *uint256.Int, withdrawalLockTicks uint64) error {
	done := s.track("update_pool_params")
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.engine.UpdatePoolParams(caller, poolIndex, minDeposit, withdrawalLockTicks)
	s.updateCachedView()
	done(err)
	return err
}

func (s *StakingSystem) SetEmissionRate(caller common.Address, rate *uint256.Int) error {
	done := s.track("set_emission_rate")
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.engine.SetEmissionRate(caller, s.ticks.Latest(), rate)
	s.updateCachedView()
	done(err)
	return err
}

func (s *StakingSystem) SetWindowStart(caller common.Address, start uint64) error {
	done := s.track("set_window_start")
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.engine.SetWindowStart(caller, s.ticks.Latest(), start)
	s.updateCachedView()
	done(err)
	return err
}

func (s *StakingSystem) SetWindowEnd(caller common.Address, end uint64) error {
	done := s.track("set_window_end")
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.engine.SetWindowEnd(caller, s.ticks.Latest(), end)
	s.updateCachedView()
	done(err)
	return err
}

func (s *StakingSystem) PauseDeposit(caller common.Address) error {
	return s.toggle("pause_deposit", caller, (*StakingEngine).PauseDeposit)
}

func (s *StakingSystem) UnpauseDeposit(caller common.Address) error {
	return s.toggle("unpause_deposit", caller, (*StakingEngine).UnpauseDeposit)
}

func (s *StakingSystem) PauseWithdraw(caller common.Address) error {
	return s.toggle("pause_withdraw", caller, (*StakingEngine).PauseWithdraw)
}

func (s *StakingSystem) UnpauseWithdraw(caller common.Address) error {
	return s.toggle("unpause_withdraw", caller, (*StakingEngine).UnpauseWithdraw)
}

func (s *StakingSystem) PauseClaim(caller common.Address) error {
	return s.toggle("pause_claim", caller, (*StakingEngine).PauseClaim)
}

func (s *StakingSystem) UnpauseClaim(caller common.Address) error {
	return s.toggle("unpause_claim", caller, (*StakingEngine).UnpauseClaim)
}

func (s *StakingSystem) toggle(op string, caller common.Address, fn func(*StakingEngine, common.Address) error) error {
	done := s.track(op)
	s.mu.Lock()
	defer s.mu.Unlock()

	err := fn(s.engine, caller)
	s.updateCachedView()
	done(err)
	return err
}

func (s *StakingSystem) GrantRole(caller, target common.Address, role Role) error {
	done := s.track("grant_role")
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.engine.GrantRole(caller, target, role)
	s.updateCachedView()
	done(err)
	return err
}

func (s *StakingSystem) RevokeRole(caller, target common.Address, role Role) error {
	done := s.track("revoke_role")
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.engine.RevokeRole(caller, target, role)
	s.updateCachedView()
	done(err)
	return err
}

// --- user operations ---

// Deposit locks amount of the pool's fungible asset for the caller.
func (s *StakingSystem) Deposit(caller common.Address, poolIndex int, amount *uint256.Int) error {
	done := s.track("deposit")
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.deposit(caller, poolIndex, amount)
	s.updateCachedView()
	done(err)
	return err
}

func (s *StakingSystem) deposit(caller common.Address, poolIndex int, amount *uint256.Int) error {
	asset, err := s.engine.PoolAsset(poolIndex)
	if err != nil {
		return err
	}
	token, err := s.tokens.Token(asset)
	if err != nil {
		return err
	}
	return s.engine.Deposit(s.ticks.Latest(), caller, poolIndex, amount, func() error {
		return token.TransferIn(caller, amount)
	})
}

// DepositNative locks native value attached by the caller.
func (s *StakingSystem) DepositNative(caller common.Address, value *uint256.Int) error {
	done := s.track("deposit_native")
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.engine.DepositNative(s.ticks.Latest(), caller, value, func() error {
		return s.native.Collect(caller, value)
	})
	s.updateCachedView()
	done(err)
	return err
}

// RequestWithdrawal reserves staked value for later release.
func (s *StakingSystem) RequestWithdrawal(caller common.Address, poolIndex int, amount *uint256.Int) error {
	done := s.track("request_withdrawal")
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.engine.RequestWithdrawal(s.ticks.Latest(), caller, poolIndex, amount)
	s.updateCachedView()
	done(err)
	return err
}

// FinalizeWithdrawal releases every unlocked queue entry to the caller.
func (s *StakingSystem) FinalizeWithdrawal(caller common.Address, poolIndex int) (*uint256.Int, error) {
	done := s.track("finalize_withdrawal")
	s.mu.Lock()
	defer s.mu.Unlock()

	released, err := s.finalizeWithdrawal(caller, poolIndex)
	s.updateCachedView()
	done(err)
	return released, err
}

func (s *StakingSystem) finalizeWithdrawal(caller common.Address, poolIndex int) (*uint256.Int, error) {
	asset, err := s.engine.PoolAsset(poolIndex)
	if err != nil {
		return nil, err
	}
	release := func(amount *uint256.Int) error {
		if asset == assets.Native {
			return s.native.Release(caller, amount)
		}
		token, err := s.tokens.Token(asset)
		if err != nil {
			return err
		}
		return token.TransferOut(caller, amount)
	}
	return s.engine.FinalizeWithdrawal(s.ticks.Latest(), caller, poolIndex, release)
}

// Claim settles the pool and pays the caller's accumulated reward, clamped
// to the reward balance in custody. The computed total is always reported,
// even when zero.
func (s *StakingSystem) Claim(caller common.Address, poolIndex int) (*uint256.Int, error) {
	done := s.track("claim")
	s.mu.Lock()
	defer s.mu.Unlock()

	paid, err := s.claim(caller, poolIndex)
	s.updateCachedView()
	done(err)
	return paid, err
}

func (s *StakingSystem) claim(caller common.Address, poolIndex int) (*uint256.Int, error) {
	token, err := s.tokens.Token(s.engine.RewardAsset())
	if err != nil {
		return nil, err
	}
	available := token.BalanceOf(s.custodian)
	paid, total, err := s.engine.Claim(s.ticks.Latest(), caller, poolIndex, available, func(amount *uint256.Int) error {
		return token.TransferOut(caller, amount)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("claim settled",
		"pool", poolIndex, "account", caller, "total", total.String(), "paid", paid.String())
	s.metrics.rewardPaidTotal.Add(paid.Float64())
	if paid.Lt(total) {
		s.metrics.claimsShorted.Inc()
		s.logger.Warn("claim shorted by custody balance",
			"pool", poolIndex, "account", caller, "total", total.String(), "paid", paid.String())
	}
	return paid, nil
}

// SettleAll brings every pool's accumulator up to the current tick. It is
// permissionless maintenance: settlement happens implicitly on every user
// operation anyway.
func (s *StakingSystem) SettleAll() error {
	done := s.track("settle_all")
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.engine.SettleAll(s.ticks.Latest())
	if err == nil {
		s.metrics.settlementsTotal.Add(float64(s.engine.PoolCount()))
	}
	s.updateCachedView()
	done(err)
	return err
}

// --- read-only queries ---

func (s *StakingSystem) PendingReward(poolIndex int, addr common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.PendingReward(s.ticks.Latest(), poolIndex, addr)
}

func (s *StakingSystem) StakedAmount(poolIndex int, addr common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.StakedAmount(poolIndex, addr)
}

func (s *StakingSystem) WithdrawalStatus(poolIndex int, addr common.Address) (totalRequested, currentlyUnlocked *uint256.Int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.WithdrawalStatus(s.ticks.Latest(), poolIndex, addr)
}

func (s *StakingSystem) PoolCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.PoolCount()
}

func (s *StakingSystem) PoolInfo(poolIndex int) (PoolView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.PoolInfo(poolIndex)
}

func (s *StakingSystem) HasRole(addr common.Address, role Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.HasRole(addr, role)
}

// View returns a deep copy of the latest cached state snapshot. The copy is
// the caller's to mutate; reads never contend with operations.
func (s *StakingSystem) View() *StakingStateView {
	cached := s.cachedView.Load()
	if cached == nil {
		return &StakingStateView{}
	}
	return cached.Clone()
}
