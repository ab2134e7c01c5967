package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/axiomesh/govproof/attestation"
	"github.com/axiomesh/govproof/core"
	"github.com/axiomesh/govproof/journal"
	"github.com/axiomesh/govproof/strategies"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var (
	voterFlag = &cli.StringFlag{
		Name:     "voter",
		Usage:    "address of the voter",
		Required: true,
	}
	signatureFlag = &cli.StringFlag{
		Name:     "signature",
		Usage:    "65-byte hex signature over the vote, 0x prefix optional",
		Required: true,
	}
	daoFlag = &cli.StringFlag{
		Name:  "dao",
		Usage: "address of the DAO contract the vote is cast on",
	}
	proposalFlag = &cli.StringFlag{
		Name:     "proposal-id",
		Usage:    "proposal id, decimal or 0x hex",
		Required: true,
	}
	directionFlag = &cli.StringFlag{
		Name:  "direction",
		Usage: "yes, no or abstain",
		Value: "yes",
	}
	balanceFlag = &cli.StringFlag{
		Name:     "balance",
		Usage:    "voting power the voter asserts, decimal or 0x hex",
		Required: true,
	}
	delegatorsFlag = &cli.StringSliceFlag{
		Name:  "delegator",
		Usage: "delegator whose weight the voter claims, may be repeated",
	}
	yesFlag = &cli.StringFlag{
		Name:  "yes",
		Value: "0",
	}
	noFlag = &cli.StringFlag{
		Name:  "no",
		Value: "0",
	}
	abstainFlag = &cli.StringFlag{
		Name:  "abstain",
		Value: "0",
	}
)

var voteFlags = []cli.Flag{blockFlag, voterFlag, signatureFlag, daoFlag, proposalFlag, directionFlag, balanceFlag, delegatorsFlag}

var executeFlags = []cli.Flag{blockFlag, daoFlag, proposalFlag, yesFlag, noFlag, abstainFlag}

func parseUint256(name, s string) (*uint256.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
	if !ok || v.Sign() < 0 {
		return nil, errors.Errorf("%s: %q is not an unsigned integer", name, s)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errors.Errorf("%s: %q does not fit in 256 bits", name, s)
	}
	return u, nil
}

func parseAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Errorf("%s: %q is not an address", name, s)
	}
	return common.HexToAddress(s), nil
}

func parseDirection(s string) (uint8, error) {
	switch strings.ToLower(s) {
	case "no", "0":
		return attestation.DirectionNo, nil
	case "yes", "1":
		return attestation.DirectionYes, nil
	case "abstain", "2":
		return attestation.DirectionAbstain, nil
	default:
		return 0, errors.Errorf("direction: %q is not one of yes, no, abstain", s)
	}
}

func parseVoteRequest(ctx *cli.Context) (*core.VoteRequest, error) {
	voter, err := parseAddress("voter", ctx.String(voterFlag.Name))
	if err != nil {
		return nil, err
	}
	var dao common.Address
	if ctx.IsSet(daoFlag.Name) {
		if dao, err = parseAddress("dao", ctx.String(daoFlag.Name)); err != nil {
			return nil, err
		}
	}
	sig, err := attestation.ParseSignature(ctx.String(signatureFlag.Name))
	if err != nil {
		return nil, err
	}
	proposal, err := parseUint256("proposal-id", ctx.String(proposalFlag.Name))
	if err != nil {
		return nil, err
	}
	direction, err := parseDirection(ctx.String(directionFlag.Name))
	if err != nil {
		return nil, err
	}
	balance, err := parseUint256("balance", ctx.String(balanceFlag.Name))
	if err != nil {
		return nil, err
	}

	var delegation []byte
	for _, d := range ctx.StringSlice(delegatorsFlag.Name) {
		addr, err := parseAddress("delegator", d)
		if err != nil {
			return nil, err
		}
		delegation = append(delegation, addr.Bytes()...)
	}

	return &core.VoteRequest{
		Voter:          voter,
		Signature:      sig,
		DAO:            dao,
		ProposalID:     proposal,
		Direction:      direction,
		Balance:        balance,
		DelegationData: delegation,
	}, nil
}

func parseExecutionRequest(ctx *cli.Context) (*core.ExecutionRequest, error) {
	var (
		dao common.Address
		err error
	)
	if ctx.IsSet(daoFlag.Name) {
		if dao, err = parseAddress("dao", ctx.String(daoFlag.Name)); err != nil {
			return nil, err
		}
	}
	proposal, err := parseUint256("proposal-id", ctx.String(proposalFlag.Name))
	if err != nil {
		return nil, err
	}
	yes, err := parseUint256("yes", ctx.String(yesFlag.Name))
	if err != nil {
		return nil, err
	}
	no, err := parseUint256("no", ctx.String(noFlag.Name))
	if err != nil {
		return nil, err
	}
	abstain, err := parseUint256("abstain", ctx.String(abstainFlag.Name))
	if err != nil {
		return nil, err
	}

	return &core.ExecutionRequest{
		DAO:        dao,
		ProposalID: proposal,
		Tally:      strategies.NewTally(yes, no, abstain),
	}, nil
}

type recordView struct {
	Mode    string `json:"mode"`
	Key     string `json:"key"`
	Journal string `json:"journal"`
}

type voteView struct {
	BlockNumber      uint64      `json:"blockNumber"`
	BlockHash        common.Hash `json:"blockHash"`
	Signer           string      `json:"signer"`
	TotalVotingPower string      `json:"totalVotingPower"`
	Accepted         bool        `json:"accepted"`
	Record           *recordView `json:"record,omitempty"`
}

type executionView struct {
	BlockNumber uint64      `json:"blockNumber"`
	BlockHash   common.Hash `json:"blockHash"`
	TotalSupply string      `json:"totalSupply"`
	Passed      bool        `json:"passed"`
	Record      *recordView `json:"record,omitempty"`
}

func viewRecord(record journal.Record) (*recordView, error) {
	encoded, err := record.Encode()
	if err != nil {
		return nil, err
	}
	return &recordView{
		Mode:    record.Mode().String(),
		Key:     record.Key(),
		Journal: hexutil.Encode(encoded),
	}, nil
}

func printVoteOutcome(outcome *core.VoteOutcome) error {
	view := &voteView{
		BlockNumber:      outcome.Header.BlockNumber,
		BlockHash:        outcome.Header.BlockHash,
		Signer:           outcome.Signer.Hex(),
		TotalVotingPower: outcome.TotalVotingPower.ToBig().String(),
		Accepted:         outcome.Accepted,
	}
	if outcome.Record != nil {
		r, err := viewRecord(outcome.Record)
		if err != nil {
			return err
		}
		view.Record = r
	}
	return printJSON(view)
}

func printExecutionOutcome(outcome *core.ExecutionOutcome) error {
	view := &executionView{
		BlockNumber: outcome.Header.BlockNumber,
		BlockHash:   outcome.Header.BlockHash,
		TotalSupply: outcome.TotalSupply.ToBig().String(),
		Passed:      outcome.Passed,
	}
	if outcome.Record != nil {
		r, err := viewRecord(outcome.Record)
		if err != nil {
			return err
		}
		view.Record = r
	}
	return printJSON(view)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
