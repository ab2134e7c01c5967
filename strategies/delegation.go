package strategies

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

const SplitDelegationName = "SplitDelegation"

// DelegationStrategy resolves which accounts delegated weight for an asset
// to account. extraData carries the delegators the voter claims.
type DelegationStrategy interface {
	Resolve(ctx context.Context, env Env, account common.Address, asset *Asset, extraData []byte) ([]Delegation, error)
}

// SplitDelegation checks claimed delegators against a registry in which a
// delegator may split its weight across several delegates by ratio.
type SplitDelegation struct{}

var _ DelegationStrategy = SplitDelegation{}

// DecodeDelegators splits extraData into 20-byte addresses.
func DecodeDelegators(extraData []byte) ([]common.Address, error) {
	if len(extraData)%common.AddressLength != 0 {
		return nil, errors.Wrapf(ErrInvalidLength, "got %d bytes", len(extraData))
	}
	delegators := make([]common.Address, 0, len(extraData)/common.AddressLength)
	for i := 0; i < len(extraData); i += common.AddressLength {
		delegators = append(delegators, common.BytesToAddress(extraData[i:i+common.AddressLength]))
	}
	return delegators, nil
}

// Resolve is all-or-nothing: either every claimed delegator resolves or the
// call fails and nothing is returned.
func (SplitDelegation) Resolve(ctx context.Context, env Env, account common.Address, asset *Asset, extraData []byte) ([]Delegation, error) {
	delegators, err := DecodeDelegators(extraData)
	if err != nil {
		return nil, err
	}

	result := make([]Delegation, 0, len(delegators))
	var invalid []common.Address
	for _, delegator := range delegators {
		d, ok, err := resolveDelegator(ctx, env, account, asset, delegator)
		if err != nil {
			return nil, err
		}
		if !ok {
			invalid = append(invalid, delegator)
			continue
		}
		result = append(result, d)
	}

	if len(invalid) > 0 {
		return nil, errors.Wrapf(ErrInvalidDelegations, "unresolved delegators %v", invalid)
	}
	return result, nil
}

func resolveDelegator(ctx context.Context, env Env, account common.Address, asset *Asset, delegator common.Address) (Delegation, bool, error) {
	registered, err := env.State.Delegations(ctx, asset.Delegation.Contract, asset.RegistryContext(), delegator, env.BlockNumber)
	if err != nil {
		return Delegation{}, false, errors.Wrapf(err, "read delegations of %s", delegator)
	}

	// a delegator without entries keeps its own weight
	if len(registered.Entries) == 0 {
		return Delegation{Delegate: delegator, Ratio: uint256.NewInt(1)}, true, nil
	}

	totalRatios := new(uint256.Int)
	for _, e := range registered.Entries {
		if _, overflow := totalRatios.AddOverflow(totalRatios, e.Ratio); overflow {
			return Delegation{}, false, errors.Wrapf(ErrOverflow, "ratios of %s", delegator)
		}
	}

	// TODO: registered.Expiration is not compared against the snapshot block timestamp yet; Env has no timestamp.
	for _, e := range registered.Entries {
		if e.DelegateAddress() != account {
			continue
		}
		if e.Ratio.IsZero() {
			return Delegation{}, false, nil
		}
		return Delegation{
			Delegate: delegator,
			Ratio:    new(uint256.Int).Div(totalRatios, e.Ratio),
		}, true, nil
	}
	return Delegation{}, false, nil
}
