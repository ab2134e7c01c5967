package strategies

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// DelegationObject tells where delegation for an asset is recorded and which
// strategy interprets it. An empty Strategy means the asset has no delegation.
type DelegationObject struct {
	Contract common.Address `json:"contract"`
	Strategy string         `json:"strategy"`
}

// Asset is one votable token or position.
type Asset struct {
	Contract            common.Address   `json:"contract"`
	ChainID             uint64           `json:"chainId"`
	VotingPowerStrategy string           `json:"votingPowerStrategy"`
	Delegation          DelegationObject `json:"delegation"`
}

// HasDelegation reports whether the asset declares a delegation strategy.
func (a *Asset) HasDelegation() bool {
	return a.Delegation.Strategy != ""
}

// RegistryContext is the context string under which delegations for the
// asset are recorded in the delegation registry.
func (a *Asset) RegistryContext() string {
	return a.Contract.Hex()
}

// ProtocolConfig is the voting configuration document published by a DAO's
// config contract.
type ProtocolConfig struct {
	VotingProtocolVersion string  `json:"votingProtocolVersion"`
	Assets                []Asset `json:"assets"`
	ExecutionStrategy     string  `json:"executionStrategy"`
}

func ParseConfig(doc string) (*ProtocolConfig, error) {
	cfg := &ProtocolConfig{}
	if err := json.Unmarshal([]byte(doc), cfg); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "decode: %s", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the document is structurally usable. Whether strategy
// names resolve is only known to a Context.
func (c *ProtocolConfig) Validate() error {
	if len(c.Assets) == 0 {
		return errors.Wrap(ErrInvalidConfig, "no assets configured")
	}
	for i, asset := range c.Assets {
		if asset.VotingPowerStrategy == "" {
			return errors.Wrapf(ErrInvalidConfig, "asset %d (%s) has no voting power strategy", i, asset.Contract)
		}
	}
	return nil
}

// Delegation is one resolved delegate relationship. Voting power read for
// Delegate is divided by Ratio before it is counted.
type Delegation struct {
	Delegate common.Address
	Ratio    *uint256.Int
}

// Tally holds vote counts by direction.
type Tally struct {
	Yes     uint256.Int
	No      uint256.Int
	Abstain uint256.Int
}

func NewTally(yes, no, abstain *uint256.Int) Tally {
	var t Tally
	t.Yes.Set(yes)
	t.No.Set(no)
	t.Abstain.Set(abstain)
	return t
}

// Sum returns yes+no+abstain, or ErrOverflow when it does not fit in 256 bits.
func (t Tally) Sum() (*uint256.Int, error) {
	total, overflow := new(uint256.Int).AddOverflow(&t.Yes, &t.No)
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow = total.AddOverflow(total, &t.Abstain); overflow {
		return nil, ErrOverflow
	}
	return total, nil
}

// CheckBounds fails when the tally claims more votes than the supply allows.
func (t Tally) CheckBounds(totalSupply *uint256.Int) error {
	sum, err := t.Sum()
	if err != nil {
		return err
	}
	if sum.Gt(totalSupply) {
		return errors.Wrapf(ErrTallyExceedsSupply, "tally %s > supply %s", sum.ToBig(), totalSupply.ToBig())
	}
	return nil
}

// Values returns the tally as [yes, no, abstain].
func (t Tally) Values() []*uint256.Int {
	return []*uint256.Int{t.Yes.Clone(), t.No.Clone(), t.Abstain.Clone()}
}
