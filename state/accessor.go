package state

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Accessor reads ledger state at a given block height. Implementations used
// by the precomputation context may block on network I/O; the Snapshot used
// by the verified context answers from memory only.
type Accessor interface {
	Balance(ctx context.Context, asset, account common.Address, block uint64) (*uint256.Int, error)
	PastVotes(ctx context.Context, asset, account common.Address, block uint64) (*uint256.Int, error)
	TotalSupply(ctx context.Context, asset common.Address, block uint64) (*uint256.Int, error)
	PastTotalSupply(ctx context.Context, asset common.Address, block uint64) (*uint256.Int, error)
	Delegations(ctx context.Context, registry common.Address, registryContext string, account common.Address, block uint64) (*Delegations, error)
	Config(ctx context.Context, configContract common.Address, block uint64) (string, error)
}

// DelegationEntry mirrors the registry's (bytes32 delegate, uint256 ratio) pair.
type DelegationEntry struct {
	Delegate common.Hash
	Ratio    *uint256.Int
}

// DelegateAddress returns the low 20 bytes of the delegate field.
func (e DelegationEntry) DelegateAddress() common.Address {
	return common.BytesToAddress(e.Delegate[12:])
}

// Delegations is the registry answer for one delegator.
type Delegations struct {
	Entries    []DelegationEntry
	Expiration *uint256.Int
}
