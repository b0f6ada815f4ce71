package staking

import (
	"errors"

	"github.com/defistate/staking-engine-go/staking/safemath"
)

// Every error below is fatal to the operation that raised it: the operation
// rolls back in full and is never retried internally.
var (
	// ErrUnauthorized is returned when the caller lacks the required role.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPaused is returned when the operation's path is disabled.
	ErrPaused = errors.New("path paused")
	// ErrInvalidPool is returned for an out-of-range pool index or the wrong
	// asset kind for the slot.
	ErrInvalidPool = errors.New("invalid pool")
	// ErrInvalidAsset is returned when an asset identifier cannot serve the
	// requested purpose, e.g. the native sentinel as the reward asset.
	ErrInvalidAsset = errors.New("invalid asset")
	// ErrBelowMinimum is returned for deposits under the pool floor.
	ErrBelowMinimum = errors.New("deposit below pool minimum")
	// ErrInsufficientStake is returned when a withdrawal request exceeds the
	// staked amount.
	ErrInsufficientStake = errors.New("insufficient stake")
	// ErrInvalidRange is returned on window/tick inconsistency.
	ErrInvalidRange = errors.New("invalid range")
	// ErrArithmeticOverflow is the taxonomy name for checked-arithmetic
	// failures; it is the safemath sentinel so errors.Is works across layers.
	ErrArithmeticOverflow = safemath.ErrOverflow
	// ErrTransferFailed is returned when a collaborator rejects an external
	// asset movement. The whole operation's ledger mutations are discarded.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrAlreadyPaused and ErrNotPaused reject redundant pause toggles.
	ErrAlreadyPaused = errors.New("already paused")
	ErrNotPaused     = errors.New("not paused")

	// ErrNotInitialized and ErrAlreadyInitialized guard the one-shot
	// initialization of global state.
	ErrNotInitialized     = errors.New("engine not initialized")
	ErrAlreadyInitialized = errors.New("engine already initialized")

	// ErrReentrantCall is returned when a collaborator callback attempts to
	// recursively invoke a state-mutating operation before the first returns.
	ErrReentrantCall = errors.New("reentrant call")

	// ErrInvalidRole is returned for grants/revocations of unknown role bits
	// or ones that would leave the engine without a super-admin.
	ErrInvalidRole = errors.New("invalid role")
)
