// Package assets defines the asset-movement collaborators the staking engine
// consumes: a fungible-token transfer interface, a native-value transfer
// primitive, and a provider resolving asset identifiers to tokens. The engine
// never holds balances itself; it only instructs these collaborators after its
// own bookkeeping is consistent.
package assets

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Native is the sentinel asset identifier for the host chain's native coin.
var Native = common.Address{}

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the payer's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrUnknownAsset is returned when a provider cannot resolve an asset id.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrNativeAsset is returned when the native sentinel is used where a
	// fungible token is required.
	ErrNativeAsset = errors.New("native asset has no token interface")
)

// Token is the fungible-asset transfer interface, bound to a single custodian:
// TransferIn pulls value from a holder into custody, TransferOut releases
// custody back out. A non-nil error rejects the movement entirely.
type Token interface {
	TransferIn(from common.Address, amount *uint256.Int) error
	TransferOut(to common.Address, amount *uint256.Int) error
	BalanceOf(holder common.Address) *uint256.Int
}

// NativeTransferor moves native value. Collect accepts value attached to an
// operation call; Release sends value to a recipient, failing the whole
// operation if the recipient rejects it.
type NativeTransferor interface {
	Collect(from common.Address, amount *uint256.Int) error
	Release(to common.Address, amount *uint256.Int) error
}

// Provider resolves an asset identifier to its Token collaborator.
type Provider interface {
	Token(asset common.Address) (Token, error)
}
