package strategies

import "github.com/holiman/uint256"

const MajorityVotingName = "MajorityVoting"

// ExecutionStrategy decides whether a tally passes. It is a pure function of
// its inputs.
type ExecutionStrategy interface {
	Check(totalSupply *uint256.Int, tally Tally) bool
}

// MajorityVoting passes when more than half of the supply voted and yes
// votes are a strict majority of the non-abstaining votes.
type MajorityVoting struct{}

var _ ExecutionStrategy = MajorityVoting{}

func (MajorityVoting) Check(totalSupply *uint256.Int, tally Tally) bool {
	totalVotes, err := tally.Sum()
	if err != nil {
		// more votes than fit in 256 bits cannot come from a real supply
		return false
	}

	half := new(uint256.Int).Rsh(totalSupply, 1)
	if !totalVotes.Gt(half) {
		return false
	}

	nonAbstain := new(uint256.Int).Add(&tally.Yes, &tally.No)
	threshold := nonAbstain.Rsh(nonAbstain, 1)
	return tally.Yes.Gt(threshold)
}
