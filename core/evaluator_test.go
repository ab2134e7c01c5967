package core

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/axiomesh/govproof/attestation"
	"github.com/axiomesh/govproof/repo"
	"github.com/axiomesh/govproof/state"
	"github.com/axiomesh/govproof/store"
	"github.com/axiomesh/govproof/strategies"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBlock   = 6_500_000
	testChainID = 11155111
)

var (
	configContract = common.HexToAddress("0xc0c0000000000000000000000000000000000001")
	dao            = common.HexToAddress("0xda00000000000000000000000000000000000001")
	token          = common.HexToAddress("0x1000000000000000000000000000000000000001")
	registry       = common.HexToAddress("0x2000000000000000000000000000000000000001")
	delegator      = common.HexToAddress("0xd000000000000000000000000000000000000001")
)

// snapshotSource serves a prepared snapshot as if it were a live node.
type snapshotSource struct {
	*state.Snapshot
}

func (s *snapshotSource) Header(_ context.Context, block uint64) (state.Header, error) {
	if block != 0 && block != s.Snapshot.Header.BlockNumber {
		return state.Header{}, fmt.Errorf("unknown block %d", block)
	}
	return s.Snapshot.Header, nil
}

// driftingSource answers every balance query with a larger value than the
// previous one, like a node whose state moves under the evaluation.
type driftingSource struct {
	*snapshotSource
	calls uint64
}

func (s *driftingSource) Balance(context.Context, common.Address, common.Address, uint64) (*uint256.Int, error) {
	s.calls++
	return uint256.NewInt(s.calls), nil
}

func testHeader() state.Header {
	return state.Header{ChainID: testChainID, BlockNumber: testBlock, BlockHash: common.HexToHash("0xb10c")}
}

func protocolDoc(t *testing.T, assets ...strategies.Asset) string {
	doc, err := json.Marshal(&strategies.ProtocolConfig{
		VotingProtocolVersion: "0.0.1",
		Assets:                assets,
		ExecutionStrategy:     strategies.MajorityVotingName,
	})
	require.Nil(t, err)
	return string(doc)
}

func balanceAsset() strategies.Asset {
	return strategies.Asset{
		Contract:            token,
		ChainID:             testChainID,
		VotingPowerStrategy: strategies.BalanceOfName,
	}
}

func delegatedAsset() strategies.Asset {
	a := balanceAsset()
	a.Delegation = strategies.DelegationObject{Contract: registry, Strategy: strategies.SplitDelegationName}
	return a
}

func testConfig(t *testing.T) *repo.Config {
	c := repo.DefaultConfig(t.TempDir())
	c.ConfigContract = configContract.Hex()
	c.BlockNumber = testBlock
	c.Log.Level = "error"
	return c
}

func newEvaluator(t *testing.T, c *repo.Config, source Source, archive Archive) *Evaluator {
	e, err := NewEvaluator(c, source, archive)
	require.Nil(t, err)
	e.Logger.SetOutput(io.Discard)
	return e
}

func openArchive(t *testing.T) *store.Store {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := store.Open(filepath.Join(t.TempDir(), "leveldb"), logger)
	require.Nil(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func voterKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.Nil(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func signedVote(t *testing.T, key *ecdsa.PrivateKey, voter common.Address, balance uint64) *VoteRequest {
	req := &VoteRequest{
		Voter:      voter,
		DAO:        dao,
		ProposalID: uint256.NewInt(7),
		Direction:  attestation.DirectionYes,
		Balance:    uint256.NewInt(balance),
	}
	sig, err := attestation.Sign(&attestation.Vote{
		ChainID:    testChainID,
		DAO:        req.DAO,
		ProposalID: req.ProposalID,
		Direction:  req.Direction,
		Balance:    req.Balance,
	}, key)
	require.Nil(t, err)
	req.Signature = sig
	return req
}

func TestEvaluateVote(t *testing.T) {
	key, voter := voterKey(t)
	snap := state.NewSnapshot(testHeader())
	snap.SetConfig(configContract, protocolDoc(t, balanceAsset()))
	snap.SetBalance(token, voter, uint256.NewInt(1000))

	archive := openArchive(t)
	e := newEvaluator(t, testConfig(t), &snapshotSource{snap}, archive)

	tests := []struct {
		name     string
		asserted uint64
		accepted bool
	}{
		{name: "asserted balance matches", asserted: 1000, accepted: true},
		{name: "asserted balance too low", asserted: 999, accepted: false},
		{name: "asserted balance too high", asserted: 1001, accepted: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := e.EvaluateVote(context.Background(), signedVote(t, key, voter, tt.asserted))
			require.Nil(t, err)
			assert.Equal(t, uint256.NewInt(1000), outcome.TotalVotingPower)
			assert.Equal(t, voter, outcome.Signer)
			assert.Equal(t, tt.accepted, outcome.Accepted)
			assert.Equal(t, tt.accepted, outcome.Record != nil)
		})
	}

	outcome, err := e.EvaluateVote(context.Background(), signedVote(t, key, voter, 999))
	require.Nil(t, err)
	assert.Nil(t, outcome.Record)

	// the accepted vote was committed with the snapshot as proof
	accepted := signedVote(t, key, voter, 1000)
	committed, err := archive.Record(fmt.Sprintf("vote/%s/%s/%s", configContract.Hex(), accepted.ProposalID.ToBig(), voter.Hex()))
	require.Nil(t, err)
	assert.Equal(t, "vote", committed.Mode)
	proof, err := state.DecodeSnapshot(committed.Proof)
	require.Nil(t, err)
	assert.Equal(t, testHeader(), proof.Header)

	stored, err := archive.GetSnapshot(testBlock)
	require.Nil(t, err)
	assert.Equal(t, proof.Keys(), stored.Keys())

	// a second evaluation of the same vote cannot commit twice
	_, err = e.EvaluateVote(context.Background(), accepted)
	assert.True(t, errors.Is(err, store.ErrAlreadyCommitted))
}

func TestEvaluateVoteRecordsOnlyWhatWasRead(t *testing.T) {
	key, voter := voterKey(t)
	snap := state.NewSnapshot(testHeader())
	snap.SetConfig(configContract, protocolDoc(t, balanceAsset()))
	snap.SetBalance(token, voter, uint256.NewInt(1000))
	snap.SetBalance(token, delegator, uint256.NewInt(5))
	snap.SetTotalSupply(token, uint256.NewInt(10_000))

	e := newEvaluator(t, testConfig(t), &snapshotSource{snap}, nil)
	outcome, err := e.EvaluateVote(context.Background(), signedVote(t, key, voter, 1000))
	require.Nil(t, err)
	assert.True(t, outcome.Accepted)
	assert.Len(t, outcome.Snapshot.Keys(), 2)
}

func TestEvaluateVoteWithDelegation(t *testing.T) {
	key, voter := voterKey(t)
	snap := state.NewSnapshot(testHeader())
	asset := delegatedAsset()
	snap.SetConfig(configContract, protocolDoc(t, asset))
	snap.SetBalance(token, voter, uint256.NewInt(100))
	snap.SetBalance(token, delegator, uint256.NewInt(400))
	snap.SetDelegations(registry, asset.RegistryContext(), delegator, &state.Delegations{
		Entries: []state.DelegationEntry{
			{Delegate: common.BytesToHash(voter.Bytes()), Ratio: uint256.NewInt(1)},
			{Delegate: common.BytesToHash(dao.Bytes()), Ratio: uint256.NewInt(1)},
		},
		Expiration: uint256.NewInt(0),
	})

	e := newEvaluator(t, testConfig(t), &snapshotSource{snap}, nil)

	// half of the delegator's 400 is split to the voter
	req := signedVote(t, key, voter, 200)
	req.DelegationData = delegator.Bytes()
	outcome, err := e.EvaluateVote(context.Background(), req)
	require.Nil(t, err)
	assert.Equal(t, uint256.NewInt(200), outcome.TotalVotingPower)
	assert.True(t, outcome.Accepted)

	req = signedVote(t, key, voter, 200)
	req.DelegationData = append(delegator.Bytes(), 0x01)
	_, err = e.EvaluateVote(context.Background(), req)
	assert.True(t, errors.Is(err, strategies.ErrInvalidLength))
}

func TestEvaluateVoteSignatures(t *testing.T) {
	key, voter := voterKey(t)
	other := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	snap := state.NewSnapshot(testHeader())
	snap.SetConfig(configContract, protocolDoc(t, balanceAsset()))
	snap.SetBalance(token, voter, uint256.NewInt(1000))
	snap.SetBalance(token, other, uint256.NewInt(1000))

	c := testConfig(t)
	e := newEvaluator(t, c, &snapshotSource{snap}, nil)

	req := signedVote(t, key, other, 1000)
	_, err := e.EvaluateVote(context.Background(), req)
	assert.True(t, errors.Is(err, attestation.ErrVoterMismatch))

	req = signedVote(t, key, voter, 1000)
	req.Signature[64] = 29
	_, err = e.EvaluateVote(context.Background(), req)
	assert.True(t, errors.Is(err, attestation.ErrInvalidV))

	req = signedVote(t, key, voter, 1000)
	req.Signature = req.Signature[:64]
	_, err = e.EvaluateVote(context.Background(), req)
	assert.True(t, errors.Is(err, attestation.ErrInvalidSignatureLength))

	// without voter enforcement the signer is reported but the claimed voter is evaluated
	c.Evaluation.EnforceVoter = false
	req = signedVote(t, key, other, 1000)
	outcome, err := e.EvaluateVote(context.Background(), req)
	require.Nil(t, err)
	assert.Equal(t, voter, outcome.Signer)
	assert.True(t, outcome.Accepted)
	assert.Equal(t, other, outcome.Record.Voter)
}

func TestEvaluateVoteErrors(t *testing.T) {
	key, voter := voterKey(t)

	t.Run("unknown strategy", func(t *testing.T) {
		asset := balanceAsset()
		asset.VotingPowerStrategy = "QuadraticVoting"
		snap := state.NewSnapshot(testHeader())
		snap.SetConfig(configContract, protocolDoc(t, asset))
		e := newEvaluator(t, testConfig(t), &snapshotSource{snap}, nil)

		_, err := e.EvaluateVote(context.Background(), signedVote(t, key, voter, 1))
		assert.True(t, errors.Is(err, strategies.ErrStrategyNotFound))
	})

	t.Run("malformed config", func(t *testing.T) {
		snap := state.NewSnapshot(testHeader())
		snap.SetConfig(configContract, "not json")
		e := newEvaluator(t, testConfig(t), &snapshotSource{snap}, nil)

		_, err := e.EvaluateVote(context.Background(), signedVote(t, key, voter, 1))
		assert.True(t, errors.Is(err, strategies.ErrInvalidConfig))
	})

	t.Run("state read fails", func(t *testing.T) {
		snap := state.NewSnapshot(testHeader())
		snap.SetConfig(configContract, protocolDoc(t, balanceAsset()))
		e := newEvaluator(t, testConfig(t), &snapshotSource{snap}, nil)

		_, err := e.EvaluateVote(context.Background(), signedVote(t, key, voter, 1))
		assert.True(t, errors.Is(err, state.ErrMissingState))
	})

	t.Run("chain mismatch", func(t *testing.T) {
		snap := state.NewSnapshot(testHeader())
		c := testConfig(t)
		c.ChainID = 1
		e := newEvaluator(t, c, &snapshotSource{snap}, nil)

		_, err := e.EvaluateVote(context.Background(), signedVote(t, key, voter, 1))
		assert.True(t, errors.Is(err, ErrChainMismatch))
	})

	t.Run("invalid request", func(t *testing.T) {
		e := newEvaluator(t, testConfig(t), &snapshotSource{state.NewSnapshot(testHeader())}, nil)
		req := signedVote(t, key, voter, 1)
		req.Direction = 3
		_, err := e.EvaluateVote(context.Background(), req)
		assert.True(t, errors.Is(err, ErrInvalidRequest))
	})
}

func TestEvaluateVoteDivergence(t *testing.T) {
	key, voter := voterKey(t)
	snap := state.NewSnapshot(testHeader())
	asset := delegatedAsset()
	snap.SetConfig(configContract, protocolDoc(t, asset))
	snap.SetDelegations(registry, asset.RegistryContext(), voter, &state.Delegations{Expiration: uint256.NewInt(0)})

	source := &driftingSource{snapshotSource: &snapshotSource{snap}}
	e := newEvaluator(t, testConfig(t), source, nil)

	// the voter names itself twice, so its balance is read twice and the
	// live run sees 1 + 2 while the snapshot holds only the last answer
	req := signedVote(t, key, voter, 3)
	req.DelegationData = append(voter.Bytes(), voter.Bytes()...)
	_, err := e.EvaluateVote(context.Background(), req)
	assert.True(t, errors.Is(err, ErrContextDivergence))
}

func TestEvaluateExecution(t *testing.T) {
	votes := common.HexToAddress("0x1000000000000000000000000000000000000002")
	snap := state.NewSnapshot(testHeader())
	snap.SetConfig(configContract, protocolDoc(t, balanceAsset(), strategies.Asset{
		Contract:            votes,
		ChainID:             testChainID,
		VotingPowerStrategy: strategies.GetPastVotesName,
	}))
	snap.SetTotalSupply(token, uint256.NewInt(60))
	snap.SetPastTotalSupply(votes, uint256.NewInt(40))

	archive := openArchive(t)
	e := newEvaluator(t, testConfig(t), &snapshotSource{snap}, archive)

	tests := []struct {
		name             string
		yes, no, abstain uint64
		passed           bool
	}{
		{name: "majority of quorum", yes: 60, no: 0, abstain: 0, passed: true},
		{name: "quorum not reached", yes: 50, no: 0, abstain: 0, passed: false},
		{name: "tie fails", yes: 30, no: 30, abstain: 0, passed: false},
		{name: "abstain counts toward quorum", yes: 30, no: 20, abstain: 10, passed: true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &ExecutionRequest{
				DAO:        dao,
				ProposalID: uint256.NewInt(uint64(i + 1)),
				Tally:      strategies.NewTally(uint256.NewInt(tt.yes), uint256.NewInt(tt.no), uint256.NewInt(tt.abstain)),
			}
			outcome, err := e.EvaluateExecution(context.Background(), req)
			require.Nil(t, err)
			assert.Equal(t, uint256.NewInt(100), outcome.TotalSupply)
			assert.Equal(t, tt.passed, outcome.Passed)

			_, err = archive.Record(fmt.Sprintf("tally/%s/%d", configContract.Hex(), i+1))
			if tt.passed {
				require.Nil(t, err)
				assert.Equal(t, []*uint256.Int{uint256.NewInt(tt.yes), uint256.NewInt(tt.no), uint256.NewInt(tt.abstain)}, outcome.Record.Tally)
			} else {
				assert.True(t, errors.Is(err, store.ErrNotFound))
			}
		})
	}
}

func TestEvaluateExecutionStrictTally(t *testing.T) {
	snap := state.NewSnapshot(testHeader())
	snap.SetConfig(configContract, protocolDoc(t, balanceAsset()))
	snap.SetTotalSupply(token, uint256.NewInt(100))

	c := testConfig(t)
	e := newEvaluator(t, c, &snapshotSource{snap}, nil)
	req := &ExecutionRequest{
		ProposalID: uint256.NewInt(1),
		Tally:      strategies.NewTally(uint256.NewInt(200), uint256.NewInt(0), uint256.NewInt(0)),
	}

	outcome, err := e.EvaluateExecution(context.Background(), req)
	require.Nil(t, err)
	assert.True(t, outcome.Passed)

	c.Evaluation.StrictTally = true
	_, err = e.EvaluateExecution(context.Background(), req)
	assert.True(t, errors.Is(err, strategies.ErrTallyExceedsSupply))
}

func TestReplay(t *testing.T) {
	key, voter := voterKey(t)
	snap := state.NewSnapshot(testHeader())
	snap.SetConfig(configContract, protocolDoc(t, balanceAsset()))
	snap.SetBalance(token, voter, uint256.NewInt(1000))
	snap.SetTotalSupply(token, uint256.NewInt(1500))

	archive := openArchive(t)
	e := newEvaluator(t, testConfig(t), &snapshotSource{snap}, archive)

	live, err := e.EvaluateVote(context.Background(), signedVote(t, key, voter, 1000))
	require.Nil(t, err)

	stored, err := archive.GetSnapshot(0)
	require.Nil(t, err)
	replayed, err := e.ReplayVote(context.Background(), stored, signedVote(t, key, voter, 1000))
	require.Nil(t, err)
	assert.Equal(t, live.TotalVotingPower, replayed.TotalVotingPower)
	assert.Equal(t, live.Record, replayed.Record)

	// the vote never read the supply, so the stored snapshot cannot answer it
	_, err = e.ReplayExecution(context.Background(), stored, &ExecutionRequest{
		ProposalID: uint256.NewInt(7),
		Tally:      strategies.NewTally(uint256.NewInt(1000), uint256.NewInt(0), uint256.NewInt(0)),
	})
	assert.True(t, errors.Is(err, state.ErrMissingState))

	out, err := e.ReplayExecution(context.Background(), snap, &ExecutionRequest{
		ProposalID: uint256.NewInt(7),
		Tally:      strategies.NewTally(uint256.NewInt(1000), uint256.NewInt(0), uint256.NewInt(0)),
	})
	require.Nil(t, err)
	assert.True(t, out.Passed)
}

func TestParallelAssetsAgree(t *testing.T) {
	key, voter := voterKey(t)
	assets := make([]strategies.Asset, 0, 8)
	snap := state.NewSnapshot(testHeader())
	for i := 0; i < 8; i++ {
		a := balanceAsset()
		a.Contract = common.BigToAddress(new(big.Int).Lsh(big.NewInt(1), uint(i+100)))
		assets = append(assets, a)
		snap.SetBalance(a.Contract, voter, uint256.NewInt(uint64(i+1)))
	}
	snap.SetConfig(configContract, protocolDoc(t, assets...))

	c := testConfig(t)
	c.Evaluation.ParallelAssets = true
	e := newEvaluator(t, c, &snapshotSource{snap}, nil)

	outcome, err := e.EvaluateVote(context.Background(), signedVote(t, key, voter, 36))
	require.Nil(t, err)
	assert.True(t, outcome.Accepted)
}

func TestReplayOnlyEvaluator(t *testing.T) {
	key, voter := voterKey(t)
	e := newEvaluator(t, testConfig(t), nil, nil)

	_, err := e.EvaluateVote(context.Background(), signedVote(t, key, voter, 1))
	assert.True(t, errors.Is(err, ErrNoSource))
}
