// Package indexer provides fast, read-only indexed access over a staking
// state view. A view is a point-in-time snapshot; the index is rebuilt
// whenever the consumer picks up a fresh view.
package indexer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/staking-engine-go/staking"
)

// IndexedState defines the methods for accessing an indexed state view.
type IndexedState interface {
	PoolByIndex(index int) (staking.PoolView, bool)
	PoolByAsset(asset common.Address) (int, staking.PoolView, bool)
	Account(poolIndex int, addr common.Address) (staking.AccountView, bool)
	AccountsByPool(poolIndex int) []staking.AccountView
	QueuedTotal(poolIndex int) *uint256.Int
	Pools() []staking.PoolView
}

// Indexer builds indexed views.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed state from a snapshot view.
func (i *Indexer) Index(view *staking.StakingStateView) IndexedState {
	return NewIndexableState(view)
}

type accountKey struct {
	pool int
	addr common.Address
}

// IndexableState holds the lookup maps for one state view.
type IndexableState struct {
	pools     []staking.PoolView
	byAsset   map[common.Address]int
	byAccount map[accountKey]staking.AccountView
	byPool    map[int][]staking.AccountView
}

// NewIndexableState creates a new indexed state from a view. The view's
// slices are not retained; everything handed out later is a copy.
func NewIndexableState(view *staking.StakingStateView) *IndexableState {
	s := &IndexableState{
		byAsset:   make(map[common.Address]int),
		byAccount: make(map[accountKey]staking.AccountView),
		byPool:    make(map[int][]staking.AccountView),
	}
	if view == nil {
		return s
	}

	s.pools = make([]staking.PoolView, len(view.Pools))
	copy(s.pools, view.Pools)
	for i, pool := range view.Pools {
		// Pool 0 is the native pool; its zero asset address must not be
		// probed for. First write wins on an (invalid) duplicate asset.
		if _, ok := s.byAsset[pool.Asset]; !ok {
			s.byAsset[pool.Asset] = i
		}
	}

	for _, acct := range view.Accounts {
		s.byAccount[accountKey{pool: acct.PoolIndex, addr: acct.Address}] = acct
		s.byPool[acct.PoolIndex] = append(s.byPool[acct.PoolIndex], acct)
	}
	return s
}

// PoolByIndex retrieves a pool by its index.
func (s *IndexableState) PoolByIndex(index int) (staking.PoolView, bool) {
	if index < 0 || index >= len(s.pools) {
		return staking.PoolView{}, false
	}
	return s.pools[index], true
}

// PoolByAsset retrieves a pool and its index by staked asset address.
func (s *IndexableState) PoolByAsset(asset common.Address) (int, staking.PoolView, bool) {
	i, ok := s.byAsset[asset]
	if !ok {
		return 0, staking.PoolView{}, false
	}
	return i, s.pools[i], true
}

// Account retrieves one account's position in one pool.
func (s *IndexableState) Account(poolIndex int, addr common.Address) (staking.AccountView, bool) {
	acct, ok := s.byAccount[accountKey{pool: poolIndex, addr: addr}]
	return acct, ok
}

// AccountsByPool returns a defensive copy of all accounts in a pool, in the
// view's (sorted) order.
func (s *IndexableState) AccountsByPool(poolIndex int) []staking.AccountView {
	accounts := s.byPool[poolIndex]
	accountsCopy := make([]staking.AccountView, len(accounts))
	copy(accountsCopy, accounts)
	return accountsCopy
}

// QueuedTotal returns the sum of all withdrawal amounts queued in a pool.
func (s *IndexableState) QueuedTotal(poolIndex int) *uint256.Int {
	total := new(uint256.Int)
	for _, acct := range s.byPool[poolIndex] {
		for _, req := range acct.Queue {
			total.Add(total, req.Amount)
		}
	}
	return total
}

// Pools returns a defensive copy of the slice of all pools.
func (s *IndexableState) Pools() []staking.PoolView {
	poolsCopy := make([]staking.PoolView, len(s.pools))
	copy(poolsCopy, s.pools)
	return poolsCopy
}
