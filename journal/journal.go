package journal

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

type Mode uint8

const (
	// ModeVote attests a single vote and the voter's balance.
	ModeVote Mode = iota + 1
	// ModeTally attests that a tally passes the execution strategy.
	ModeTally
)

func (m Mode) String() string {
	switch m {
	case ModeVote:
		return "vote"
	case ModeTally:
		return "tally"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Commitment binds a record to the block its state was read at.
type Commitment struct {
	BlockNumber uint64
	BlockHash   common.Hash
}

// Record is an immutable result of one evaluation run, encoded exactly as
// the Solidity Journal struct the verifier contract decodes.
type Record interface {
	Mode() Mode
	// Key identifies the record for storage; it does not cover the outcome.
	Key() string
	Encode() ([]byte, error)
}

// Committer publishes a record together with the proof artifact that backs it.
type Committer interface {
	Commit(ctx context.Context, record Record, proof []byte) error
}

// VoteRecord is the journal of a single authenticated vote.
type VoteRecord struct {
	Commitment     Commitment
	ConfigContract common.Address
	ProposalID     *uint256.Int
	Voter          common.Address
	Balance        *uint256.Int
	Direction      uint8
}

var _ Record = (*VoteRecord)(nil)

func (r *VoteRecord) Mode() Mode {
	return ModeVote
}

func (r *VoteRecord) Key() string {
	return fmt.Sprintf("%s/%s/%s/%s", ModeVote, r.ConfigContract.Hex(), r.ProposalID.ToBig(), r.Voter.Hex())
}

func (r *VoteRecord) Encode() ([]byte, error) {
	out, err := voteJournalArgs.Pack(abiVoteJournal{
		Commitment:     r.Commitment.abi(),
		ConfigContract: r.ConfigContract,
		ProposalID:     bigOf(r.ProposalID),
		Voter:          r.Voter,
		Balance:        bigOf(r.Balance),
		Direction:      r.Direction,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode vote journal")
	}
	return out, nil
}

// TallyRecord is the journal of a tally that passed the execution strategy.
type TallyRecord struct {
	Commitment     Commitment
	ConfigContract common.Address
	ProposalID     *uint256.Int
	Tally          []*uint256.Int
}

var _ Record = (*TallyRecord)(nil)

func (r *TallyRecord) Mode() Mode {
	return ModeTally
}

func (r *TallyRecord) Key() string {
	return fmt.Sprintf("%s/%s/%s", ModeTally, r.ConfigContract.Hex(), r.ProposalID.ToBig())
}

func (r *TallyRecord) Encode() ([]byte, error) {
	tally := make([]*big.Int, 0, len(r.Tally))
	for _, v := range r.Tally {
		tally = append(tally, bigOf(v))
	}
	out, err := tallyJournalArgs.Pack(abiTallyJournal{
		Commitment:     r.Commitment.abi(),
		ConfigContract: r.ConfigContract,
		ProposalID:     bigOf(r.ProposalID),
		Tally:          tally,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode tally journal")
	}
	return out, nil
}

func bigOf(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

type abiCommitment struct {
	BlockNumber *big.Int `abi:"blockNumber"`
	BlockHash   [32]byte `abi:"blockHash"`
}

func (c Commitment) abi() abiCommitment {
	return abiCommitment{
		BlockNumber: new(big.Int).SetUint64(c.BlockNumber),
		BlockHash:   c.BlockHash,
	}
}

type abiVoteJournal struct {
	Commitment     abiCommitment  `abi:"commitment"`
	ConfigContract common.Address `abi:"configContract"`
	ProposalID     *big.Int       `abi:"proposalId"`
	Voter          common.Address `abi:"voter"`
	Balance        *big.Int       `abi:"balance"`
	Direction      uint8          `abi:"direction"`
}

type abiTallyJournal struct {
	Commitment     abiCommitment  `abi:"commitment"`
	ConfigContract common.Address `abi:"configContract"`
	ProposalID     *big.Int       `abi:"proposalId"`
	Tally          []*big.Int     `abi:"tally"`
}

var (
	commitmentComponents = []abi.ArgumentMarshaling{
		{Name: "blockNumber", Type: "uint256"},
		{Name: "blockHash", Type: "bytes32"},
	}

	voteJournalArgs = mustTupleArgs([]abi.ArgumentMarshaling{
		{Name: "commitment", Type: "tuple", Components: commitmentComponents},
		{Name: "configContract", Type: "address"},
		{Name: "proposalId", Type: "uint256"},
		{Name: "voter", Type: "address"},
		{Name: "balance", Type: "uint256"},
		{Name: "direction", Type: "uint8"},
	})

	tallyJournalArgs = mustTupleArgs([]abi.ArgumentMarshaling{
		{Name: "commitment", Type: "tuple", Components: commitmentComponents},
		{Name: "configContract", Type: "address"},
		{Name: "proposalId", Type: "uint256"},
		{Name: "tally", Type: "uint256[]"},
	})
)

func mustTupleArgs(components []abi.ArgumentMarshaling) abi.Arguments {
	t, err := abi.NewType("tuple", "", components)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Name: "journal", Type: t}}
}
