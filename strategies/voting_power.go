package strategies

import (
	"context"

	"github.com/axiomesh/govproof/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	BalanceOfName    = "BalanceOf"
	GetPastVotesName = "GetPastVotes"
)

// Env is the state snapshot handle passed to every strategy call.
type Env struct {
	State       state.Accessor
	BlockNumber uint64
}

// VotingPowerStrategy computes an account's raw weight for one asset and the
// supply that weight is measured against.
type VotingPowerStrategy interface {
	VotingPower(ctx context.Context, env Env, account common.Address, asset *Asset) (*uint256.Int, error)
	TotalSupply(ctx context.Context, env Env, asset *Asset) (*uint256.Int, error)
}

// BalanceOf weighs an account by its token balance at the snapshot block.
type BalanceOf struct{}

var _ VotingPowerStrategy = BalanceOf{}

func (BalanceOf) VotingPower(ctx context.Context, env Env, account common.Address, asset *Asset) (*uint256.Int, error) {
	return env.State.Balance(ctx, asset.Contract, account, env.BlockNumber)
}

func (BalanceOf) TotalSupply(ctx context.Context, env Env, asset *Asset) (*uint256.Int, error) {
	return env.State.TotalSupply(ctx, asset.Contract, env.BlockNumber)
}

// GetPastVotes weighs an account by its checkpointed votes as of the
// snapshot block, for governance tokens whose weight moves between
// checkpoints.
type GetPastVotes struct{}

var _ VotingPowerStrategy = GetPastVotes{}

func (GetPastVotes) VotingPower(ctx context.Context, env Env, account common.Address, asset *Asset) (*uint256.Int, error) {
	return env.State.PastVotes(ctx, asset.Contract, account, env.BlockNumber)
}

func (GetPastVotes) TotalSupply(ctx context.Context, env Env, asset *Asset) (*uint256.Int, error) {
	return env.State.PastTotalSupply(ctx, asset.Contract, env.BlockNumber)
}
