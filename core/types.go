package core

import (
	"github.com/axiomesh/govproof/journal"
	"github.com/axiomesh/govproof/state"
	"github.com/axiomesh/govproof/strategies"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// VoteRequest is a signed vote submitted for evaluation.
type VoteRequest struct {
	Voter      common.Address
	Signature  []byte
	DAO        common.Address
	ProposalID *uint256.Int
	Direction  uint8
	// Balance is the voting power the voter asserts and signed over.
	Balance *uint256.Int
	// DelegationData lists delegators as concatenated 20-byte addresses.
	DelegationData []byte
}

// ExecutionRequest asks whether a proposal with the given tally passes.
type ExecutionRequest struct {
	DAO        common.Address
	ProposalID *uint256.Int
	Tally      strategies.Tally
}

type VoteOutcome struct {
	Header           state.Header
	Signer           common.Address
	TotalVotingPower *uint256.Int
	// Accepted reports whether the asserted balance equals the computed power.
	Accepted bool
	// Record is nil unless the vote was accepted.
	Record   *journal.VoteRecord
	Snapshot *state.Snapshot
}

type ExecutionOutcome struct {
	Header      state.Header
	TotalSupply *uint256.Int
	Passed      bool
	// Record is nil unless the execution strategy passed.
	Record   *journal.TallyRecord
	Snapshot *state.Snapshot
}

// voteResult is what one context computes for a vote; both contexts must
// agree on it.
type voteResult struct {
	signer common.Address
	power  *uint256.Int
}

func (r *voteResult) equal(o *voteResult) bool {
	return r.signer == o.signer && r.power.Eq(o.power)
}

type executionResult struct {
	supply *uint256.Int
	passed bool
}

func (r *executionResult) equal(o *executionResult) bool {
	return r.passed == o.passed && r.supply.Eq(o.supply)
}
