package core

import (
	"context"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/govproof/attestation"
	"github.com/axiomesh/govproof/journal"
	"github.com/axiomesh/govproof/repo"
	"github.com/axiomesh/govproof/state"
	"github.com/axiomesh/govproof/strategies"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrContextDivergence = errors.New("precomputation and verified results differ")
	ErrChainMismatch     = errors.New("node is on an unexpected chain")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNoSource          = errors.New("no live state source, only replay is possible")
)

// Archive keeps what an evaluation produced. *store.Store implements it.
type Archive interface {
	journal.Committer

	PutSnapshot(snapshot *state.Snapshot) error
}

// Evaluator runs a vote or an execution check twice: once against the live
// source while recording every read, and once more against the recorded
// snapshot alone. Only a result both runs agree on is committed.
type Evaluator struct {
	Config *repo.Config
	Logger *logrus.Logger
	// Source may be nil for an evaluator that only replays snapshots.
	Source Source
	// Archive may be nil, in which case nothing is persisted.
	Archive Archive

	configContract common.Address
	strategyOpts   []strategies.Option
}

func NewEvaluator(config *repo.Config, source Source, archive Archive, strategyOpts ...strategies.Option) (*Evaluator, error) {
	logger := log.New()
	logger.SetLevel(log.ParseLevel(config.Log.Level))

	if !common.IsHexAddress(config.ConfigContract) {
		return nil, errors.Errorf("config contract %q is not an address", config.ConfigContract)
	}

	return &Evaluator{
		Config:         config,
		Logger:         logger,
		Source:         source,
		Archive:        archive,
		configContract: common.HexToAddress(config.ConfigContract),
		strategyOpts:   strategyOpts,
	}, nil
}

func (e *Evaluator) header(ctx context.Context) (state.Header, error) {
	if e.Source == nil {
		return state.Header{}, ErrNoSource
	}
	header, err := e.Source.Header(ctx, e.Config.BlockNumber)
	if err != nil {
		return state.Header{}, err
	}
	if e.Config.ChainID != 0 && header.ChainID != e.Config.ChainID {
		return state.Header{}, errors.Wrapf(ErrChainMismatch, "want %d, node reports %d", e.Config.ChainID, header.ChainID)
	}
	return header, nil
}

func (e *Evaluator) strategyContext(acc state.Accessor, header state.Header) *strategies.Context {
	opts := []strategies.Option{
		strategies.WithLogger(e.Logger.WithField("block", header.BlockNumber)),
		strategies.WithParallelAssets(e.Config.Evaluation.ParallelAssets),
	}
	env := strategies.Env{State: acc, BlockNumber: header.BlockNumber}
	return strategies.DefaultContext(env, append(opts, e.strategyOpts...)...)
}

func (e *Evaluator) loadConfig(ctx context.Context, acc state.Accessor, header state.Header) (*strategies.ProtocolConfig, error) {
	doc, err := acc.Config(ctx, e.configContract, header.BlockNumber)
	if err != nil {
		return nil, errors.Wrap(err, "read voting protocol config")
	}
	return strategies.ParseConfig(doc)
}

func checkVoteRequest(req *VoteRequest) error {
	if req.ProposalID == nil || req.Balance == nil {
		return errors.Wrap(ErrInvalidRequest, "proposal id and balance are required")
	}
	if req.Direction > attestation.DirectionAbstain {
		return errors.Wrapf(ErrInvalidRequest, "direction %d", req.Direction)
	}
	return nil
}

func checkExecutionRequest(req *ExecutionRequest) error {
	if req.ProposalID == nil {
		return errors.Wrap(ErrInvalidRequest, "proposal id is required")
	}
	return nil
}

// EvaluateVote authenticates a vote and checks that the balance it asserts
// is the voter's total voting power at the configured block.
func (e *Evaluator) EvaluateVote(ctx context.Context, req *VoteRequest) (*VoteOutcome, error) {
	if err := checkVoteRequest(req); err != nil {
		return nil, err
	}
	header, err := e.header(ctx)
	if err != nil {
		return nil, err
	}

	recorder := state.NewRecorder(e.Source, header)
	pre, err := e.evaluateVote(ctx, recorder, header, req)
	if err != nil {
		return nil, errors.Wrap(err, "precompute vote")
	}
	snapshot, err := recorder.Snapshot()
	if err != nil {
		return nil, err
	}

	verified, err := e.evaluateVote(ctx, snapshot, header, req)
	if err != nil {
		return nil, errors.Wrap(err, "verify vote")
	}
	if !pre.equal(verified) {
		return nil, errors.Wrapf(ErrContextDivergence, "voting power %s != %s", pre.power.ToBig(), verified.power.ToBig())
	}

	outcome := e.voteOutcome(header, snapshot, req, verified)
	if outcome.Record != nil {
		if err := e.commit(ctx, outcome.Record, snapshot); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// ReplayVote evaluates a vote against a stored snapshot only. Nothing is
// committed.
func (e *Evaluator) ReplayVote(ctx context.Context, snapshot *state.Snapshot, req *VoteRequest) (*VoteOutcome, error) {
	if err := checkVoteRequest(req); err != nil {
		return nil, err
	}
	res, err := e.evaluateVote(ctx, snapshot, snapshot.Header, req)
	if err != nil {
		return nil, err
	}
	return e.voteOutcome(snapshot.Header, snapshot, req, res), nil
}

func (e *Evaluator) evaluateVote(ctx context.Context, acc state.Accessor, header state.Header, req *VoteRequest) (*voteResult, error) {
	vote := &attestation.Vote{
		ChainID:    header.ChainID,
		DAO:        req.DAO,
		ProposalID: req.ProposalID,
		Direction:  req.Direction,
		Balance:    req.Balance,
	}

	var (
		signer common.Address
		err    error
	)
	if e.Config.Evaluation.EnforceVoter {
		signer, err = attestation.Verify(vote, req.Signature, req.Voter)
	} else {
		signer, err = attestation.RecoverSigner(vote.Digest(), req.Signature)
		if err == nil && signer != req.Voter {
			e.Logger.WithFields(logrus.Fields{
				"voter":  req.Voter.Hex(),
				"signer": signer.Hex(),
			}).Warn("vote signed by another account")
		}
	}
	if err != nil {
		return nil, err
	}

	cfg, err := e.loadConfig(ctx, acc, header)
	if err != nil {
		return nil, err
	}

	power, err := e.strategyContext(acc, header).TotalVotingPower(ctx, cfg, req.Voter, req.DelegationData)
	if err != nil {
		return nil, err
	}

	e.Logger.WithFields(logrus.Fields{
		"proposal": req.ProposalID.ToBig(),
		"voter":    req.Voter.Hex(),
		"assets":   len(cfg.Assets),
		"power":    power.ToBig(),
	}).Debug("voting power evaluated")

	return &voteResult{signer: signer, power: power}, nil
}

func (e *Evaluator) voteOutcome(header state.Header, snapshot *state.Snapshot, req *VoteRequest, res *voteResult) *VoteOutcome {
	outcome := &VoteOutcome{
		Header:           header,
		Signer:           res.signer,
		TotalVotingPower: res.power,
		Accepted:         res.power.Eq(req.Balance),
		Snapshot:         snapshot,
	}
	if outcome.Accepted {
		outcome.Record = &journal.VoteRecord{
			Commitment:     commitment(header),
			ConfigContract: e.configContract,
			ProposalID:     req.ProposalID,
			Voter:          req.Voter,
			Balance:        req.Balance,
			Direction:      req.Direction,
		}
	}

	e.Logger.WithFields(logrus.Fields{
		"proposal": req.ProposalID.ToBig(),
		"voter":    req.Voter.Hex(),
		"asserted": req.Balance.ToBig(),
		"power":    res.power.ToBig(),
		"accepted": outcome.Accepted,
	}).Info("vote evaluated")
	return outcome
}

// EvaluateExecution checks a proposal's tally against the execution strategy
// named by the protocol config.
func (e *Evaluator) EvaluateExecution(ctx context.Context, req *ExecutionRequest) (*ExecutionOutcome, error) {
	if err := checkExecutionRequest(req); err != nil {
		return nil, err
	}
	header, err := e.header(ctx)
	if err != nil {
		return nil, err
	}

	recorder := state.NewRecorder(e.Source, header)
	pre, err := e.evaluateExecution(ctx, recorder, header, req)
	if err != nil {
		return nil, errors.Wrap(err, "precompute execution")
	}
	snapshot, err := recorder.Snapshot()
	if err != nil {
		return nil, err
	}

	verified, err := e.evaluateExecution(ctx, snapshot, header, req)
	if err != nil {
		return nil, errors.Wrap(err, "verify execution")
	}
	if !pre.equal(verified) {
		return nil, errors.Wrapf(ErrContextDivergence, "total supply %s != %s", pre.supply.ToBig(), verified.supply.ToBig())
	}

	outcome := e.executionOutcome(header, snapshot, req, verified)
	if outcome.Record != nil {
		if err := e.commit(ctx, outcome.Record, snapshot); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// ReplayExecution checks a tally against a stored snapshot only. Nothing is
// committed.
func (e *Evaluator) ReplayExecution(ctx context.Context, snapshot *state.Snapshot, req *ExecutionRequest) (*ExecutionOutcome, error) {
	if err := checkExecutionRequest(req); err != nil {
		return nil, err
	}
	res, err := e.evaluateExecution(ctx, snapshot, snapshot.Header, req)
	if err != nil {
		return nil, err
	}
	return e.executionOutcome(snapshot.Header, snapshot, req, res), nil
}

func (e *Evaluator) evaluateExecution(ctx context.Context, acc state.Accessor, header state.Header, req *ExecutionRequest) (*executionResult, error) {
	cfg, err := e.loadConfig(ctx, acc, header)
	if err != nil {
		return nil, err
	}

	sctx := e.strategyContext(acc, header)
	supply, err := sctx.TotalSupply(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if e.Config.Evaluation.StrictTally {
		if err := req.Tally.CheckBounds(supply); err != nil {
			return nil, err
		}
	}

	passed, err := sctx.CheckExecution(cfg.ExecutionStrategy, supply, req.Tally)
	if err != nil {
		return nil, err
	}
	return &executionResult{supply: supply, passed: passed}, nil
}

func (e *Evaluator) executionOutcome(header state.Header, snapshot *state.Snapshot, req *ExecutionRequest, res *executionResult) *ExecutionOutcome {
	outcome := &ExecutionOutcome{
		Header:      header,
		TotalSupply: res.supply,
		Passed:      res.passed,
		Snapshot:    snapshot,
	}
	if outcome.Passed {
		outcome.Record = &journal.TallyRecord{
			Commitment:     commitment(header),
			ConfigContract: e.configContract,
			ProposalID:     req.ProposalID,
			Tally:          req.Tally.Values(),
		}
	}

	e.Logger.WithFields(logrus.Fields{
		"proposal":     req.ProposalID.ToBig(),
		"yes":          req.Tally.Yes.ToBig(),
		"no":           req.Tally.No.ToBig(),
		"abstain":      req.Tally.Abstain.ToBig(),
		"total_supply": res.supply.ToBig(),
		"passed":       outcome.Passed,
	}).Info("execution evaluated")
	return outcome
}

func (e *Evaluator) commit(ctx context.Context, record journal.Record, snapshot *state.Snapshot) error {
	if e.Archive == nil {
		return nil
	}
	proof, err := snapshot.Encode()
	if err != nil {
		return err
	}
	if err := e.Archive.PutSnapshot(snapshot); err != nil {
		return errors.Wrap(err, "store snapshot")
	}
	if err := e.Archive.Commit(ctx, record, proof); err != nil {
		return errors.Wrapf(err, "commit %s record", record.Mode())
	}
	return nil
}

func commitment(header state.Header) journal.Commitment {
	return journal.Commitment{
		BlockNumber: header.BlockNumber,
		BlockHash:   header.BlockHash,
	}
}

