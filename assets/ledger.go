package assets

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ledger is an in-memory asset ledger implementing Provider and
// NativeTransferor. All fungible movements are bound to a single custodian
// account. It backs the test suite and the engined binary; against a real
// chain the same interfaces are implemented by contract bindings instead.
type Ledger struct {
	custodian common.Address

	mu       sync.Mutex
	balances map[common.Address]map[common.Address]*uint256.Int // asset -> holder -> balance
}

// NewLedger creates an empty ledger whose fungible tokens custody value at the
// given custodian address.
func NewLedger(custodian common.Address) *Ledger {
	return &Ledger{
		custodian: custodian,
		balances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

// Mint credits a holder with new units of an asset. Test and bootstrap helper.
func (l *Ledger) Mint(asset, to common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(asset, to, amount)
}

// Burn destroys units of an asset held by a holder.
func (l *Ledger) Burn(asset, from common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	have := l.balance(asset, from)
	if have.Lt(amount) {
		return fmt.Errorf("%w: %s has %s of %s, burns %s",
			ErrInsufficientBalance, from, have, asset, amount)
	}
	l.setBalance(asset, from, new(uint256.Int).Sub(have, amount))
	return nil
}

// Balance returns a copy of the holder's balance for an asset.
func (l *Ledger) Balance(asset, holder common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(asset, holder)
}

// Token returns the fungible transfer interface for an asset. The native
// sentinel has no token interface; native value moves via Collect/Release.
func (l *Ledger) Token(asset common.Address) (Token, error) {
	if asset == Native {
		return nil, ErrNativeAsset
	}
	return &boundToken{ledger: l, asset: asset}, nil
}

// Collect implements NativeTransferor: value attached by a caller moves into
// custody.
func (l *Ledger) Collect(from common.Address, amount *uint256.Int) error {
	return l.move(Native, from, l.custodian, amount)
}

// Release implements NativeTransferor: custody value moves out to a recipient.
func (l *Ledger) Release(to common.Address, amount *uint256.Int) error {
	return l.move(Native, l.custodian, to, amount)
}

func (l *Ledger) move(asset, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	have := l.balance(asset, from)
	if have.Lt(amount) {
		return fmt.Errorf("%w: %s has %s of %s, needs %s",
			ErrInsufficientBalance, from, have, asset, amount)
	}
	l.setBalance(asset, from, new(uint256.Int).Sub(have, amount))
	l.credit(asset, to, amount)
	return nil
}

// balance must be called with l.mu held.
func (l *Ledger) balance(asset, holder common.Address) *uint256.Int {
	holders, ok := l.balances[asset]
	if !ok {
		return new(uint256.Int)
	}
	bal, ok := holders[holder]
	if !ok {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(bal)
}

// credit must be called with l.mu held.
func (l *Ledger) credit(asset, to common.Address, amount *uint256.Int) {
	holders, ok := l.balances[asset]
	if !ok {
		holders = make(map[common.Address]*uint256.Int)
		l.balances[asset] = holders
	}
	prev, ok := holders[to]
	if !ok {
		prev = new(uint256.Int)
	}
	holders[to] = new(uint256.Int).Add(prev, amount)
}

// setBalance must be called with l.mu held.
func (l *Ledger) setBalance(asset, holder common.Address, amount *uint256.Int) {
	holders, ok := l.balances[asset]
	if !ok {
		holders = make(map[common.Address]*uint256.Int)
		l.balances[asset] = holders
	}
	holders[holder] = amount
}

// boundToken adapts the ledger to the Token interface for one asset.
type boundToken struct {
	ledger *Ledger
	asset  common.Address
}

func (t *boundToken) TransferIn(from common.Address, amount *uint256.Int) error {
	return t.ledger.move(t.asset, from, t.ledger.custodian, amount)
}

func (t *boundToken) TransferOut(to common.Address, amount *uint256.Int) error {
	return t.ledger.move(t.asset, t.ledger.custodian, to, amount)
}

func (t *boundToken) BalanceOf(holder common.Address) *uint256.Int {
	return t.ledger.Balance(t.asset, holder)
}
